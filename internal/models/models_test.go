package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSubmitResponseKeepsNullText(t *testing.T) {
	data, err := json.Marshal(SubmitResponse{Success: true, URL: "/output.mp3"})
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	text, ok := result["text"]
	if !ok {
		t.Fatal("expected text key to be present")
	}
	if text != nil {
		t.Errorf("expected text=null, got %v", text)
	}
	if result["url"] != "/output.mp3" {
		t.Errorf("expected url=/output.mp3, got %v", result["url"])
	}
}

func TestUtteranceOmitsAudio(t *testing.T) {
	u := Utterance{
		ID:     uuid.New(),
		Source: UtteranceSourceUpload,
		Audio:  []byte{0x01, 0x02},
	}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("failed to marshal utterance: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if _, ok := result["Audio"]; ok {
		t.Error("audio bytes must not be serialized")
	}
}

func TestNewAudioReadyEvent(t *testing.T) {
	reply := "hi there"
	u := &Utterance{
		ID:           uuid.New(),
		ResponseText: &reply,
		ByteSize:     2,
		URL:          "/output.mp3",
		CreatedAt:    time.Now(),
	}

	ev := NewAudioReadyEvent(u)
	if ev.UtteranceID != u.ID {
		t.Errorf("expected id %s, got %s", u.ID, ev.UtteranceID)
	}
	if ev.ResponseText == nil || *ev.ResponseText != reply {
		t.Errorf("expected response text %q, got %v", reply, ev.ResponseText)
	}
	if ev.URL != "/output.mp3" || ev.ByteSize != 2 {
		t.Errorf("unexpected event: %+v", ev)
	}
}
