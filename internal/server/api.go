package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sjawhar/voice-dataset/internal/audio"
	"github.com/sjawhar/voice-dataset/internal/session"
	"github.com/sjawhar/voice-dataset/internal/storage"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Controller is the command surface of the recording workflow.
type Controller interface {
	StartSession(req workflow.StartRequest) error
	SelectDevice(id int) error
	ToggleRecord() error
	Save() error
	Discard() error
	Skip() error
	EndSession(confirm bool) error
	Snapshot() workflow.Snapshot
}

type SessionStore interface {
	ListSessions() ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetTakes(sessionID string) ([]storage.Take, error)
	GetTake(sessionID, promptID string) (storage.Take, error)
	GetSkips(sessionID string) ([]storage.Skip, error)
}

type statusResponse struct {
	workflow.Snapshot
	Warnings []string `json:"warnings"`
}

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	ctl := deps.Control

	mux.HandleFunc("GET /api/devices", func(w http.ResponseWriter, r *http.Request) {
		if deps.Devices == nil {
			writeJSON(w, http.StatusOK, []audio.Device{})
			return
		}
		devices, err := deps.Devices.InputDevices()
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		if devices == nil {
			devices = []audio.Device{}
		}
		writeJSON(w, http.StatusOK, devices)
	})

	mux.HandleFunc("POST /api/device", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID *int `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == nil {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "expected {\"id\": <device index>}")
			return
		}
		if deps.Devices != nil && *req.ID != audio.DefaultDevice {
			if !hasDevice(deps.Devices, *req.ID) {
				writeJSONError(w, http.StatusBadRequest, "unknown_device", fmt.Sprintf("no input device with index %d", *req.ID))
				return
			}
		}
		command(w, ctl, func() error { return ctl.SelectDevice(*req.ID) })
	})

	mux.HandleFunc("POST /api/session/start", func(w http.ResponseWriter, r *http.Request) {
		var req workflow.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
		command(w, ctl, func() error { return ctl.StartSession(req) })
	})

	mux.HandleFunc("POST /api/session/end", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Confirm bool `json:"confirm"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON body: %v", err))
				return
			}
		}
		command(w, ctl, func() error { return ctl.EndSession(req.Confirm) })
	})

	mux.HandleFunc("POST /api/record/toggle", func(w http.ResponseWriter, r *http.Request) {
		command(w, ctl, ctl.ToggleRecord)
	})

	mux.HandleFunc("POST /api/take/save", func(w http.ResponseWriter, r *http.Request) {
		command(w, ctl, ctl.Save)
	})

	mux.HandleFunc("POST /api/take/discard", func(w http.ResponseWriter, r *http.Request) {
		command(w, ctl, ctl.Discard)
	})

	mux.HandleFunc("POST /api/prompt/skip", func(w http.ResponseWriter, r *http.Request) {
		command(w, ctl, ctl.Skip)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if deps.Warnings != nil {
			warnings = deps.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, statusResponse{Snapshot: ctl.Snapshot(), Warnings: warnings})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			writeJSON(w, http.StatusOK, []storage.Session{})
			return
		}
		sessions, err := deps.Store.ListSessions()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "io", fmt.Sprintf("list sessions: %v", err))
			return
		}
		if sessions == nil {
			sessions = []storage.Session{}
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "bad_request", "invalid session id")
			return
		}
		if deps.Store == nil {
			writeJSONError(w, http.StatusNotFound, "not_found", "session journal disabled")
			return
		}

		sessionData, err := deps.Store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			kind := "io"
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
				status, kind = http.StatusNotFound, "not_found"
			}
			writeJSONError(w, status, kind, fmt.Sprintf("get session: %v", err))
			return
		}

		takes, err := deps.Store.GetTakes(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "io", fmt.Sprintf("get session takes: %v", err))
			return
		}
		skips, err := deps.Store.GetSkips(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "io", fmt.Sprintf("get session skips: %v", err))
			return
		}
		if takes == nil {
			takes = []storage.Take{}
		}
		if skips == nil {
			skips = []storage.Skip{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": sessionData,
			"takes":   takes,
			"skips":   skips,
		})
	})

	mux.HandleFunc("GET /api/sessions/{id}/takes/{prompt}/audio", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "bad_request", "invalid session id")
			return
		}
		if deps.Store == nil {
			writeJSONError(w, http.StatusNotFound, "not_found", "session journal disabled")
			return
		}

		sessionData, err := deps.Store.GetSession(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		take, err := deps.Store.GetTake(sessionID, r.PathValue("prompt"))
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "not_found", "take not found")
			return
		}

		cleanPath, ok := withinDir(sessionData.OutputDir, take.AudioPath)
		if !ok {
			writeJSONError(w, http.StatusForbidden, "bad_request", "invalid audio path")
			return
		}

		f, err := os.Open(cleanPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "not_found", "audio file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "io", fmt.Sprintf("stat audio: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Type", "audio/wav")
		http.ServeContent(w, r, filepath.Base(cleanPath), info.ModTime(), f)
	})
}

// command runs fn and answers with the resulting workflow snapshot.
func command(w http.ResponseWriter, ctl Controller, fn func() error) {
	if err := fn(); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctl.Snapshot())
}

func hasDevice(lister audio.DeviceLister, id int) bool {
	devices, err := lister.InputDevices()
	if err != nil {
		return false
	}
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// withinDir reports the cleaned path when it lies inside dir.
func withinDir(dir, path string) (string, bool) {
	if dir == "" || path == "" {
		return "", false
	}
	cleanPath := filepath.Clean(path)
	rel, err := filepath.Rel(filepath.Clean(dir), cleanPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return cleanPath, true
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// errorStatus maps a workflow error to its HTTP status and error kind.
func errorStatus(err error) (int, string) {
	var (
		devErr       *audio.DeviceError
		malformedErr *session.MalformedInputError
		ioErr        *workflow.IOError
	)
	switch {
	case errors.As(err, &malformedErr):
		return http.StatusBadRequest, "malformed_input"
	case errors.Is(err, workflow.ErrInvalidSpeaker):
		return http.StatusBadRequest, "invalid_speaker"
	case errors.Is(err, workflow.ErrNoPromptSource):
		return http.StatusBadRequest, "no_prompt_source"
	case errors.Is(err, workflow.ErrConfirmationRequired):
		return http.StatusPreconditionRequired, "confirmation_required"
	case errors.Is(err, workflow.ErrEmptyTake):
		return http.StatusConflict, "empty_take"
	case errors.Is(err, workflow.ErrSessionActive):
		return http.StatusConflict, "session_active"
	case errors.Is(err, workflow.ErrNoSession):
		return http.StatusConflict, "no_session"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.As(err, &devErr):
		return http.StatusServiceUnavailable, "device"
	case errors.As(err, &ioErr) && ioErr.Op == workflow.OpLoadPrompts:
		return http.StatusBadRequest, "malformed_input"
	}
	return http.StatusInternalServerError, "io"
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	status, kind := errorStatus(err)
	writeJSONError(w, status, kind, workflow.Describe(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "kind": kind})
}
