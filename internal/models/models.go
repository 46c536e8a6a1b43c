package models

import (
	"time"

	"github.com/google/uuid"
)

type UtteranceSource string

const (
	// Caller supplied the audio itself
	UtteranceSourceUpload UtteranceSource = "upload"
	// Audio came back from the voice service
	UtteranceSourceVoice UtteranceSource = "voice"
)

// Utterance is one successful write of the persisted audio file.
type Utterance struct {
	ID           uuid.UUID       `json:"id"`
	Source       UtteranceSource `json:"source"`
	Endpoint     string          `json:"endpoint"`
	InputText    *string         `json:"input_text,omitempty"`
	ResponseText *string         `json:"response_text,omitempty"`
	Provider     *string         `json:"provider,omitempty"`  // "convai", "openai"
	Transport    *string         `json:"transport,omitempty"` // "json", "multipart"
	ByteSize     int64           `json:"byte_size"`
	URL          string          `json:"url"`
	CreatedAt    time.Time       `json:"created_at"`

	// Not serialized: the bytes that were written, for sinks that mirror the file
	Audio []byte `json:"-"`
}

// AudioReadyEvent is published after every successful write so bots polling
// the relay can fetch the new file.
type AudioReadyEvent struct {
	UtteranceID  uuid.UUID `json:"utterance_id"`
	URL          string    `json:"url"`
	ResponseText *string   `json:"response_text,omitempty"`
	ByteSize     int64     `json:"byte_size"`
	CreatedAt    time.Time `json:"created_at"`
}

// DTOs for API requests/responses

type SubmitRequest struct {
	Text   string `json:"text"`
	Base64 string `json:"base64"`

	// Route the request came in on, for logs and the utterance record
	Endpoint string `json:"-"`
}

// SubmitResponse keeps the shape the HUD scripts parse: text is null, not omitted.
type SubmitResponse struct {
	Success bool    `json:"success"`
	Text    *string `json:"text"`
	URL     string  `json:"url"`
}

type ListUtterancesResponse struct {
	Utterances []Utterance `json:"utterances"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// NewAudioReadyEvent builds the queue payload for an utterance.
func NewAudioReadyEvent(u *Utterance) AudioReadyEvent {
	return AudioReadyEvent{
		UtteranceID:  u.ID,
		URL:          u.URL,
		ResponseText: u.ResponseText,
		ByteSize:     u.ByteSize,
		CreatedAt:    u.CreatedAt,
	}
}
