package services

import (
	"context"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// VoiceService — common interface for upstream voice providers
// Convai and OpenAI both implement this so the relay can use whichever is
// configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

var (
	// ErrMissingCredentials is returned by CheckConfig when the provider cannot
	// be called with the current configuration.
	ErrMissingCredentials = errors.New("missing voice service credentials")

	// ErrNoAudio means every attempt finished without a usable audio payload.
	ErrNoAudio = errors.New("voice service returned no audio")
)

// VoiceResponse is the common response type from any voice provider.
type VoiceResponse struct {
	ResponseText *string // Character's reply, nil when the provider sent none
	AudioBase64  string  // Base64-encoded audio, never empty on success
	Transport    string  // Which transport produced the response ("json", "multipart", "sdk")
}

// VoiceService is the interface that any voice provider must implement.
type VoiceService interface {
	Name() string

	// CheckConfig reports missing credentials without touching the network.
	CheckConfig() error

	// GetResponse sends the user's text and returns the character's reply.
	// When no attempt yields audio the error wraps ErrNoAudio and the last
	// underlying failure.
	GetResponse(ctx context.Context, text string) (*VoiceResponse, error)
}

// UpstreamError is a non-2xx answer from a provider. Body is kept so it can be
// logged and echoed back to the caller.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, truncate(e.Body, 500))
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
