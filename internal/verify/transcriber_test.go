package verify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
)

func TestOpenAITranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.Contains(auth, "test-key") {
			t.Errorf("expected auth header to include test-key, got %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", model)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  hello from whisper  "})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tr, err := NewTranscriber("openai", "test-key", "", WithBaseURL(server.URL+"/v1"))
	if err != nil {
		t.Fatalf("NewTranscriber failed: %v", err)
	}
	got, err := tr.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "hello from whisper" {
		t.Fatalf("expected trimmed transcript, got %q", got)
	}
}

func TestDeepgramTranscribe(t *testing.T) {
	var gotOpts *interfaces.PreRecordedTranscriptionOptions
	tr := &deepgramTranscriber{
		model: "nova-2",
		fromFile: func(_ context.Context, path string, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
			if path != "/data/take.wav" {
				t.Fatalf("unexpected path %q", path)
			}
			gotOpts = opts
			return map[string]any{
				"results": map[string]any{
					"channels": []any{map[string]any{
						"alternatives": []any{
							map[string]any{"transcript": " Hello there. "},
							map[string]any{"transcript": "hollow there"},
						},
					}},
				},
			}, nil
		},
	}

	got, err := tr.Transcribe(context.Background(), "/data/take.wav")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "Hello there." {
		t.Fatalf("expected top alternative, got %q", got)
	}
	if gotOpts == nil || gotOpts.Model != "nova-2" || !gotOpts.SmartFormat {
		t.Fatalf("unexpected options %#v", gotOpts)
	}
}

func TestDeepgramTranscribeErrors(t *testing.T) {
	tr := &deepgramTranscriber{fromFile: func(context.Context, string, *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return nil, errors.New("401")
	}}
	if _, err := tr.Transcribe(context.Background(), "x.wav"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected wrapped client error, got %v", err)
	}

	tr.fromFile = func(context.Context, string, *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return map[string]any{"results": map[string]any{"channels": []any{}}}, nil
	}
	if _, err := tr.Transcribe(context.Background(), "x.wav"); err == nil {
		t.Fatal("expected empty response to fail")
	}
}

func TestNewTranscriberUnknownProvider(t *testing.T) {
	if _, err := NewTranscriber("sphinx", "k", ""); err == nil {
		t.Fatal("expected unknown provider to fail")
	}
}
