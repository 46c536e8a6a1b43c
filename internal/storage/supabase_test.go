package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bobarin/voicerelay/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestSupabaseMirrorRecord(t *testing.T) {
	var mu sync.Mutex
	uploads := map[string]string{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("missing service key")
		}
		if r.Header.Get("x-upsert") != "true" {
			t.Errorf("expected upsert header")
		}
		if r.Header.Get("Content-Type") != "audio/mpeg" {
			t.Errorf("expected audio/mpeg, got %s", r.Header.Get("Content-Type"))
		}

		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		uploads[r.URL.Path] = string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewSupabaseMirror(srv.URL, "service-key", "voice", "output.mp3", zap.NewNop().Sugar())
	u := &models.Utterance{ID: uuid.New(), Audio: []byte("mp3-bytes")}

	if err := m.Record(context.Background(), u); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	byID := "/storage/v1/object/voice/utterances/" + u.ID.String() + ".mp3"
	if uploads[byID] != "mp3-bytes" {
		t.Errorf("expected upload at %s, got %v", byID, uploads)
	}
	if uploads["/storage/v1/object/voice/latest.mp3"] != "mp3-bytes" {
		t.Errorf("expected latest.mp3 upload, got %v", uploads)
	}
}

func TestSupabaseMirrorRetriesRetryableStatus(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m := NewSupabaseMirror(srv.URL, "k", "voice", "output.mp3", zap.NewNop().Sugar())
	if err := m.Upload(context.Background(), "latest.mp3", []byte("x"), "audio/mpeg"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestSupabaseMirrorStopsOnClientError(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	m := NewSupabaseMirror(srv.URL, "k", "voice", "output.mp3", zap.NewNop().Sugar())
	err := m.Upload(context.Background(), "latest.mp3", []byte("x"), "audio/mpeg")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("expected no retry on 403, got %d attempts", attempts)
	}
}

func TestSupabasePublicURL(t *testing.T) {
	m := NewSupabaseMirror("https://x.supabase.co/", "k", "voice", "output.wav", zap.NewNop().Sugar())
	want := "https://x.supabase.co/storage/v1/object/public/voice/latest.wav"
	if got := m.GetPublicURL("latest.wav"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSupabaseMirrorCapsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 5000)))
	}))
	defer srv.Close()

	m := NewSupabaseMirror(srv.URL, "k", "voice", "output.mp3", zap.NewNop().Sugar())
	err := m.Upload(context.Background(), "latest.mp3", []byte("x"), "audio/mpeg")
	if err == nil {
		t.Fatal("expected error")
	}
	if n := strings.Count(err.Error(), "x"); n != maxErrorBodyBytes {
		t.Errorf("expected %d bytes of body in error, got %d", maxErrorBodyBytes, n)
	}
}
