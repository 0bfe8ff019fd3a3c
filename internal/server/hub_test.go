package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sjawhar/voice-dataset/internal/session"
	"github.com/sjawhar/voice-dataset/internal/verify"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

func TestHubEventShapes(t *testing.T) {
	hub := NewHub(nil)
	hub.now = func() time.Time { return time.Unix(1, 0) }
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.Status("Recording...")
	hub.Level(0.25)
	hub.SessionStarted(workflow.SessionInfo{ID: "s1", Speaker: "alice", Total: 3})
	hub.PromptChanged(session.Prompt{ID: "2", Text: "Two."}, 1, 3)
	hub.TakeSaved(workflow.SavedTake{SessionID: "s1", Prompt: session.Prompt{ID: "2"}, AudioFile: "alice_2.wav", Duration: 1500 * time.Millisecond})
	hub.SessionEnded("s1", true)
	hub.VerificationReady(verify.Result{SessionID: "s1", TakeID: 4, PromptID: "2", Score: 0.5, Status: "flagged"})

	wantTypes := []string{"status", "level", "session_started", "prompt_changed", "take_saved", "session_ended", "verification_ready"}
	for _, want := range wantTypes {
		select {
		case msg := <-ch:
			var payload map[string]any
			if err := json.Unmarshal(msg, &payload); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if payload["type"] != want {
				t.Fatalf("expected event type %s, got %#v", want, payload["type"])
			}
			if payload["version"] != float64(EventVersion) {
				t.Fatalf("expected version field in payload: %s", string(msg))
			}
			if payload["timestamp"] != "1970-01-01T00:00:01Z" {
				t.Fatalf("expected timestamp field in payload: %s", string(msg))
			}
			if want == "take_saved" && payload["duration"] != 1.5 {
				t.Fatalf("expected duration in seconds, got %s", string(msg))
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s event", want)
		}
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Level(float64(i) / 500)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected subscriber buffer to be full, got %d/%d", len(ch), cap(ch))
	}
}
