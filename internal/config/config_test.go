package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONVAI_API_KEY", "")
	t.Setenv("CONVAI_CHAR_ID", "")
	t.Setenv("CHARACTER_ID", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("expected port 3000, got %s", cfg.Port)
	}
	if cfg.OutputFile != "output.mp3" {
		t.Errorf("expected output.mp3, got %s", cfg.OutputFile)
	}
	if cfg.Convai.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", cfg.Convai.Timeout)
	}
	if cfg.Convai.SessionID != "-1" {
		t.Errorf("expected session -1, got %s", cfg.Convai.SessionID)
	}
	if !cfg.Convai.MultipartFallback {
		t.Error("expected multipart fallback on by default")
	}
	if len(cfg.Convai.AudioFields) != 2 || cfg.Convai.AudioFields[0] != "audio_base64" || cfg.Convai.AudioFields[1] != "audio" {
		t.Errorf("unexpected audio fields: %v", cfg.Convai.AudioFields)
	}
	if cfg.MaxBodyBytes != 50<<20 {
		t.Errorf("expected 50MB body limit, got %d", cfg.MaxBodyBytes)
	}
}

func TestLoadCharacterIDAlias(t *testing.T) {
	t.Setenv("CONVAI_CHAR_ID", "")
	t.Setenv("CHARACTER_ID", "legacy-char")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Convai.CharacterID != "legacy-char" {
		t.Errorf("expected CHARACTER_ID fallback, got %q", cfg.Convai.CharacterID)
	}

	t.Setenv("CONVAI_CHAR_ID", "primary-char")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Convai.CharacterID != "primary-char" {
		t.Errorf("expected CONVAI_CHAR_ID to win, got %q", cfg.Convai.CharacterID)
	}
}

func TestLoadAudioFieldList(t *testing.T) {
	t.Setenv("CONVAI_AUDIO_FIELDS", " audioContent , ,audio ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Convai.AudioFields) != 2 || cfg.Convai.AudioFields[0] != "audioContent" {
		t.Errorf("unexpected audio fields: %v", cfg.Convai.AudioFields)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"port":     {"PORT", "abc"},
		"output":   {"OUTPUT_FILE", "../output.mp3"},
		"provider": {"VOICE_PROVIDER", "elevenlabs"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
