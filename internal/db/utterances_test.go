package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bobarin/voicerelay/internal/models"
	"github.com/google/uuid"
)

var utteranceColumns = []string{
	"id", "source", "endpoint", "input_text", "response_text",
	"provider", "transport", "byte_size", "url", "created_at",
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &DB{DB: conn}, mock
}

func TestRecordFillsCreatedAt(t *testing.T) {
	database, mock := newMockDB(t)

	input, reply := "hello", "hi there"
	u := &models.Utterance{
		ID:           uuid.New(),
		Source:       models.UtteranceSourceVoice,
		Endpoint:     "/updateText",
		InputText:    &input,
		ResponseText: &reply,
		ByteSize:     2,
		URL:          "/output.mp3",
	}
	created := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO utterances")).
		WithArgs(u.ID, "voice", "/updateText", input, reply, nil, nil, int64(2), "/output.mp3").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	if err := database.Record(context.Background(), u); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if !u.CreatedAt.Equal(created) {
		t.Errorf("expected created_at from RETURNING, got %s", u.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateUtteranceError(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO utterances")).
		WillReturnError(errors.New("connection refused"))

	err := database.CreateUtterance(context.Background(), &models.Utterance{ID: uuid.New()})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGetUtterance(t *testing.T) {
	database, mock := newMockDB(t)
	id := uuid.New()
	created := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM utterances")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(utteranceColumns).
			AddRow(id.String(), "upload", "/discordSay", nil, nil, nil, nil, int64(4), "/output.mp3", created))

	u, err := database.GetUtterance(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != id || u.Source != models.UtteranceSourceUpload || u.InputText != nil || u.ByteSize != 4 {
		t.Errorf("unexpected utterance %+v", u)
	}
}

func TestGetUtteranceNotFound(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM utterances")).
		WillReturnRows(sqlmock.NewRows(utteranceColumns))

	_, err := database.GetUtterance(context.Background(), uuid.New())
	if !errors.Is(err, ErrUtteranceNotFound) {
		t.Errorf("expected ErrUtteranceNotFound, got %v", err)
	}
}

func TestListAndCountUtterances(t *testing.T) {
	database, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs(20, 40).
		WillReturnRows(sqlmock.NewRows(utteranceColumns).
			AddRow(uuid.New().String(), "voice", "/updateText", "a", "b", "convai", "json", int64(2), "/output.mp3", now).
			AddRow(uuid.New().String(), "upload", "/updateText", nil, nil, nil, nil, int64(3), "/output.mp3", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM utterances")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	list, err := database.ListUtterances(context.Background(), 20, 40)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].Transport == nil || *list[0].Transport != "json" || list[1].Provider != nil {
		t.Errorf("unexpected list %+v", list)
	}

	total, err := database.CountUtterances(context.Background())
	if err != nil || total != 42 {
		t.Errorf("expected 42, got %d (%v)", total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
