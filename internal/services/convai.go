package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Convai Character Service
// POST {baseURL}/character/getResponse with the user's text; the character
// answers with a text reply and (when voiceResponse is set) base64 audio.
// The same payload can be sent as JSON or as multipart/form-data.
// ---------------------------------------------------------------------------

const (
	convaiDefaultBaseURL   = "https://api.convai.com"
	convaiDefaultSessionID = "-1"
	convaiDefaultTimeout   = 45 * time.Second
	convaiResponsePath     = "/character/getResponse"
	convaiAPIKeyHeader     = "CONVAI-API-KEY"

	// Audio for a long reply is a few MB of base64; cap well above that.
	convaiMaxResponseBytes = 64 << 20
)

// DefaultConvaiAudioFields lists the keys Convai has used for the audio payload.
var DefaultConvaiAudioFields = []string{"audio_base64", "audio"}

// DefaultConvaiTextFields lists the keys Convai has used for the text reply.
var DefaultConvaiTextFields = []string{"response"}

// ConvaiRequest is the getResponse payload shared by every transport.
type ConvaiRequest struct {
	UserText      string `json:"userText"`
	CharID        string `json:"charID"`
	SessionID     string `json:"sessionID"`
	VoiceResponse bool   `json:"voiceResponse"`
}

// Transport encodes a ConvaiRequest into an HTTP request.
type Transport interface {
	Name() string
	NewRequest(ctx context.Context, url string, payload ConvaiRequest) (*http.Request, error)
}

// JSONTransport sends the payload as application/json.
type JSONTransport struct{}

func (JSONTransport) Name() string { return "json" }

func (JSONTransport) NewRequest(ctx context.Context, url string, payload ConvaiRequest) (*http.Request, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Convai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create Convai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// MultipartTransport sends the payload as multipart/form-data, the encoding
// Convai's own examples use.
type MultipartTransport struct{}

func (MultipartTransport) Name() string { return "multipart" }

func (MultipartTransport) NewRequest(ctx context.Context, url string, payload ConvaiRequest) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	voiceResponse := "False"
	if payload.VoiceResponse {
		voiceResponse = "True"
	}

	fields := [][2]string{
		{"userText", payload.UserText},
		{"charID", payload.CharID},
		{"sessionID", payload.SessionID},
		{"voiceResponse", voiceResponse},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create Convai request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// FieldExtractor pulls one value out of a decoded response. ok reports whether
// the field was present as a string, even an empty one.
type FieldExtractor func(fields map[string]json.RawMessage) (value string, ok bool)

// StringField extracts a top-level JSON string by key.
func StringField(name string) FieldExtractor {
	return func(fields map[string]json.RawMessage) (string, bool) {
		raw, ok := fields[name]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
}

// StringFields builds one extractor per key, preserving order.
func StringFields(names ...string) []FieldExtractor {
	out := make([]FieldExtractor, 0, len(names))
	for _, n := range names {
		out = append(out, StringField(n))
	}
	return out
}

// firstMatch runs extractors in order; the first non-empty result wins.
// present is true when any field was found, so an empty reply stays "" rather
// than absent.
func firstMatch(extractors []FieldExtractor, fields map[string]json.RawMessage) (value string, present bool) {
	for _, extract := range extractors {
		v, ok := extract(fields)
		if v != "" {
			return v, true
		}
		present = present || ok
	}
	return "", present
}

// ConvaiOptions configures a ConvaiService. Zero values fall back to defaults.
type ConvaiOptions struct {
	APIKey            string
	CharacterID       string
	BaseURL           string
	SessionID         string
	Timeout           time.Duration
	MultipartFallback bool
	AudioFields       []string
	TextFields        []string
}

// ConvaiService talks to the Convai character API.
type ConvaiService struct {
	apiKey      string
	characterID string
	sessionID   string
	url         string
	timeout     time.Duration
	transports  []Transport
	audioFields []FieldExtractor
	textFields  []FieldExtractor
	client      *http.Client
	logger      *zap.SugaredLogger
}

// Ensure ConvaiService implements VoiceService at compile time.
var _ VoiceService = (*ConvaiService)(nil)

func NewConvaiService(opts ConvaiOptions, logger *zap.SugaredLogger) *ConvaiService {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = convaiDefaultBaseURL
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = convaiDefaultSessionID
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = convaiDefaultTimeout
	}
	audioFields := opts.AudioFields
	if len(audioFields) == 0 {
		audioFields = DefaultConvaiAudioFields
	}
	textFields := opts.TextFields
	if len(textFields) == 0 {
		textFields = DefaultConvaiTextFields
	}

	transports := []Transport{JSONTransport{}}
	if opts.MultipartFallback {
		transports = append(transports, MultipartTransport{})
	}

	return &ConvaiService{
		apiKey:      opts.APIKey,
		characterID: opts.CharacterID,
		sessionID:   sessionID,
		url:         strings.TrimRight(baseURL, "/") + convaiResponsePath,
		timeout:     timeout,
		transports:  transports,
		audioFields: StringFields(audioFields...),
		textFields:  StringFields(textFields...),
		client:      &http.Client{Timeout: timeout},
		logger:      logger.Named("convai"),
	}
}

func (s *ConvaiService) Name() string { return "convai" }

func (s *ConvaiService) CheckConfig() error {
	if s.apiKey == "" || s.characterID == "" {
		return fmt.Errorf("%w: CONVAI_API_KEY or CONVAI_CHAR_ID/CHARACTER_ID", ErrMissingCredentials)
	}
	return nil
}

// GetResponse tries each transport in order until one returns audio.
func (s *ConvaiService) GetResponse(ctx context.Context, text string) (*VoiceResponse, error) {
	if err := s.CheckConfig(); err != nil {
		return nil, err
	}

	payload := ConvaiRequest{
		UserText:      text,
		CharID:        s.characterID,
		SessionID:     s.sessionID,
		VoiceResponse: true,
	}

	var lastErr error
	for _, t := range s.transports {
		resp, err := s.send(ctx, t, payload)
		if err != nil {
			s.logger.Warnw("Convai attempt failed", "transport", t.Name(), "error", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if resp.AudioBase64 == "" {
			s.logger.Warnw("Convai response carried no audio", "transport", t.Name())
			lastErr = fmt.Errorf("convai %s response had none of the audio fields", t.Name())
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoAudio, lastErr)
}

func (s *ConvaiService) send(ctx context.Context, t Transport, payload ConvaiRequest) (*VoiceResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := t.NewRequest(attemptCtx, s.url, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set(convaiAPIKeyHeader, s.apiKey)
	req.Header.Set("Accept", "application/json")

	s.logger.Infow("Requesting character response",
		"transport", t.Name(), "charID", s.characterID, "textLen", len(payload.UserText))
	started := time.Now()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("convai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, convaiMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read Convai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Provider: "convai", Status: resp.StatusCode, Body: string(body)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse Convai response: %w", err)
	}
	if fields == nil {
		return nil, errors.New("convai returned an empty JSON body")
	}

	audio, _ := firstMatch(s.audioFields, fields)
	out := &VoiceResponse{
		AudioBase64: audio,
		Transport:   t.Name(),
	}
	if reply, ok := firstMatch(s.textFields, fields); ok {
		out.ResponseText = &reply
	}

	s.logger.Infow("Character response received",
		"transport", t.Name(), "status", resp.StatusCode,
		"audioLen", len(out.AudioBase64), "took", time.Since(started).String())

	return out, nil
}
