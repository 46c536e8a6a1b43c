package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/voicerelay/internal/models"
	"go.uber.org/zap"
)

const (
	// Upload timeout per attempt
	uploadTimeout = 60 * time.Second

	// Error bodies past this are cut before they reach logs
	maxErrorBodyBytes = 200

	// Retry configuration for mirror uploads only; the voice request path never retries
	maxRetries     = 2
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second

	// Object that always holds the most recent audio
	latestObjectName = "latest"
)

// SupabaseMirror copies every persisted audio file into a Supabase Storage
// bucket, once under the utterance id and once as "latest", so clients
// outside the relay's host can fetch it from the CDN.
type SupabaseMirror struct {
	url         string
	serviceKey  string
	Bucket      string
	ext         string
	contentType string
	client      *http.Client
	logger      *zap.SugaredLogger
}

// NewSupabaseMirror builds a mirror for files named like outputFile.
func NewSupabaseMirror(url, serviceKey, bucket, outputFile string, logger *zap.SugaredLogger) *SupabaseMirror {
	ext := NewLocalStore("", outputFile).Ext()
	return &SupabaseMirror{
		url:         strings.TrimRight(url, "/"),
		serviceKey:  serviceKey,
		Bucket:      bucket,
		ext:         ext,
		contentType: ContentType(outputFile, nil),
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("supabase"),
	}
}

func (s *SupabaseMirror) Name() string { return "supabase" }

// Record uploads the utterance audio under its id and as the latest object.
func (s *SupabaseMirror) Record(ctx context.Context, u *models.Utterance) error {
	if len(u.Audio) == 0 {
		return fmt.Errorf("utterance %s has no audio to mirror", u.ID)
	}

	for _, path := range []string{s.UtterancePath(u), latestObjectName + s.ext} {
		if err := s.Upload(ctx, path, u.Audio, s.contentType); err != nil {
			return err
		}
	}

	s.logger.Infow("Mirrored audio", "utterance", u.ID, "bytes", len(u.Audio),
		"url", s.GetPublicURL(s.UtterancePath(u)))
	return nil
}

// UtterancePath is the object path for one utterance.
func (s *SupabaseMirror) UtterancePath(u *models.Utterance) string {
	return "utterances/" + u.ID.String() + s.ext
}

// Upload uploads a file to Supabase Storage with retries and exponential backoff.
// Uses PUT with x-upsert so "latest" can be overwritten.
func (s *SupabaseMirror) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, path)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			s.logger.Infow("Upload retry", "attempt", attempt, "max", maxRetries, "path", path, "wait", delay.String())

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		status, body, err := s.put(ctx, url, data, contentType)
		if err != nil {
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if ctx.Err() == nil && isRetryableError(err) {
				s.logger.Warnw("Upload attempt failed (retryable)", "attempt", attempt+1, "error", err)
				continue
			}
			return lastErr
		}

		if status == http.StatusOK || status == http.StatusCreated {
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", status, body)
		if isRetryableStatus(status) {
			s.logger.Warnw("Upload attempt returned retryable status", "attempt", attempt+1, "status", status)
			continue
		}

		// Non-retryable status (400, 401, 403, 404, 413, etc.)
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (s *SupabaseMirror) put(ctx context.Context, url string, data []byte, contentType string) (int, string, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return resp.StatusCode, string(body), nil
}

// GetPublicURL returns the public URL for a file
func (s *SupabaseMirror) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, path)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}
