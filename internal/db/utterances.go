package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bobarin/voicerelay/internal/models"
	"github.com/google/uuid"
)

// ErrUtteranceNotFound is returned by GetUtterance for an unknown id.
var ErrUtteranceNotFound = errors.New("utterance not found")

func (db *DB) Name() string { return "postgres" }

// Record logs a persisted utterance.
func (db *DB) Record(ctx context.Context, u *models.Utterance) error {
	return db.CreateUtterance(ctx, u)
}

func (db *DB) CreateUtterance(ctx context.Context, u *models.Utterance) error {
	query := `
		INSERT INTO utterances (
			id, source, endpoint, input_text, response_text,
			provider, transport, byte_size, url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := db.QueryRowContext(
		ctx, query,
		u.ID, u.Source, u.Endpoint, u.InputText, u.ResponseText,
		u.Provider, u.Transport, u.ByteSize, u.URL,
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert utterance: %w", err)
	}
	return nil
}

func (db *DB) GetUtterance(ctx context.Context, id uuid.UUID) (*models.Utterance, error) {
	query := `
		SELECT
			id, source, endpoint, input_text, response_text,
			provider, transport, byte_size, url, created_at
		FROM utterances
		WHERE id = $1
	`

	u := &models.Utterance{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Source, &u.Endpoint, &u.InputText, &u.ResponseText,
		&u.Provider, &u.Transport, &u.ByteSize, &u.URL, &u.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUtteranceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get utterance: %w", err)
	}

	return u, nil
}

// ListUtterances returns the newest utterances first.
func (db *DB) ListUtterances(ctx context.Context, limit, offset int) ([]models.Utterance, error) {
	query := `
		SELECT
			id, source, endpoint, input_text, response_text,
			provider, transport, byte_size, url, created_at
		FROM utterances
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query utterances: %w", err)
	}
	defer rows.Close()

	utterances := []models.Utterance{}
	for rows.Next() {
		var u models.Utterance
		err := rows.Scan(
			&u.ID, &u.Source, &u.Endpoint, &u.InputText, &u.ResponseText,
			&u.Provider, &u.Transport, &u.ByteSize, &u.URL, &u.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan utterance: %w", err)
		}
		utterances = append(utterances, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate utterances: %w", err)
	}

	return utterances, nil
}

func (db *DB) CountUtterances(ctx context.Context) (int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM utterances`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count utterances: %w", err)
	}
	return total, nil
}
