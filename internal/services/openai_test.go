package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestOpenAIGetResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode chat request: %v", err)
			return
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":" hi there "},"finish_reason":"stop"}]}`))
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input          string `json:"input"`
			Voice          string `json:"voice"`
			ResponseFormat string `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode speech request: %v", err)
			return
		}
		if req.Input != "hi there" || req.Voice != "alloy" || req.ResponseFormat != "mp3" {
			t.Errorf("unexpected speech request: %+v", req)
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{0xff, 0xfb, 0x90})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := NewOpenAIService(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, zap.NewNop().Sugar())

	resp, err := svc.GetResponse(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ResponseText == nil || *resp.ResponseText != "hi there" {
		t.Errorf("expected trimmed reply, got %v", resp.ResponseText)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	if len(audio) != 3 || audio[0] != 0xff {
		t.Errorf("unexpected audio bytes: %v", audio)
	}
}

func TestOpenAIUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	svc := NewOpenAIService(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, zap.NewNop().Sugar())

	if _, err := svc.GetResponse(context.Background(), "hello"); !errors.Is(err, ErrNoAudio) {
		t.Errorf("expected ErrNoAudio, got %v", err)
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	svc := NewOpenAIService(OpenAIOptions{}, zap.NewNop().Sugar())
	if err := svc.CheckConfig(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}
