package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sjawhar/voice-dataset/internal/audio"
	"github.com/sjawhar/voice-dataset/internal/session"
	"github.com/sjawhar/voice-dataset/internal/storage"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

type stubController struct {
	err      error
	snapshot workflow.Snapshot
	calls    []string
	device   int
	confirm  bool
	start    workflow.StartRequest
}

func (c *stubController) record(name string) error {
	c.calls = append(c.calls, name)
	return c.err
}

func (c *stubController) StartSession(req workflow.StartRequest) error {
	c.start = req
	return c.record("start")
}

func (c *stubController) SelectDevice(id int) error {
	c.device = id
	return c.record("device")
}

func (c *stubController) ToggleRecord() error { return c.record("toggle") }
func (c *stubController) Save() error         { return c.record("save") }
func (c *stubController) Discard() error      { return c.record("discard") }
func (c *stubController) Skip() error         { return c.record("skip") }

func (c *stubController) EndSession(confirm bool) error {
	c.confirm = confirm
	if !confirm {
		return workflow.ErrConfirmationRequired
	}
	return c.record("end")
}

func (c *stubController) Snapshot() workflow.Snapshot { return c.snapshot }

type stubLister struct {
	devices []audio.Device
	err     error
}

func (l stubLister) InputDevices() ([]audio.Device, error) { return l.devices, l.err }

type apiStoreStub struct {
	sessions map[string]storage.Session
	takes    map[string][]storage.Take
}

func (s apiStoreStub) ListSessions() ([]storage.Session, error) {
	var out []storage.Session
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s apiStoreStub) GetSession(id string) (storage.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return storage.Session{}, os.ErrNotExist
}

func (s apiStoreStub) GetTakes(sessionID string) ([]storage.Take, error) {
	return s.takes[sessionID], nil
}

func (s apiStoreStub) GetTake(sessionID, promptID string) (storage.Take, error) {
	for _, t := range s.takes[sessionID] {
		if t.PromptID == promptID {
			return t, nil
		}
	}
	return storage.Take{}, os.ErrNotExist
}

func (s apiStoreStub) GetSkips(string) ([]storage.Skip, error) { return nil, nil }

func newTestHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Control == nil {
		deps.Control = &stubController{}
	}
	h, err := Handler(deps)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	return h
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var got map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode error body failed: %v", err)
	}
	return got
}

func TestAPICommandsReachController(t *testing.T) {
	ctl := &stubController{snapshot: workflow.Snapshot{State: "ready", Done: 1, Total: 3}}
	h := newTestHandler(t, Deps{Control: ctl})

	routes := []string{"/api/record/toggle", "/api/take/save", "/api/take/discard", "/api/prompt/skip"}
	for _, route := range routes {
		rr := doRequest(h, http.MethodPost, route, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d body=%s", route, rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), `"state":"ready"`) {
			t.Fatalf("%s: expected snapshot in response, got %s", route, rr.Body.String())
		}
	}

	want := []string{"toggle", "save", "discard", "skip"}
	if strings.Join(ctl.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("expected calls %v, got %v", want, ctl.calls)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{&session.MalformedInputError{Source: "p.csv", Missing: []string{"unique_id"}}, http.StatusBadRequest, "malformed_input"},
		{workflow.ErrInvalidSpeaker, http.StatusBadRequest, "invalid_speaker"},
		{workflow.ErrNoPromptSource, http.StatusBadRequest, "no_prompt_source"},
		{&workflow.IOError{Op: workflow.OpLoadPrompts, Path: "p.csv", Err: os.ErrNotExist}, http.StatusBadRequest, "malformed_input"},
		{workflow.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{workflow.ErrEmptyTake, http.StatusConflict, "empty_take"},
		{workflow.ErrSessionActive, http.StatusConflict, "session_active"},
		{workflow.ErrNoSession, http.StatusConflict, "no_session"},
		{workflow.ErrConfirmationRequired, http.StatusPreconditionRequired, "confirmation_required"},
		{&audio.DeviceError{Device: 2, Op: "open", Err: errors.New("busy")}, http.StatusServiceUnavailable, "device"},
		{&workflow.IOError{Op: "write audio", Path: "a.wav", Err: errors.New("disk full")}, http.StatusInternalServerError, "io"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			h := newTestHandler(t, Deps{Control: &stubController{err: tt.err}})
			rr := doRequest(h, http.MethodPost, "/api/take/save", "")
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			got := decodeError(t, rr)
			if got["kind"] != tt.kind {
				t.Fatalf("expected kind %q, got %q", tt.kind, got["kind"])
			}
			if got["error"] != workflow.Describe(tt.err) {
				t.Fatalf("expected error %q, got %q", workflow.Describe(tt.err), got["error"])
			}
		})
	}
}

func TestAPISessionEndRequiresConfirmation(t *testing.T) {
	ctl := &stubController{}
	h := newTestHandler(t, Deps{Control: ctl})

	rr := doRequest(h, http.MethodPost, "/api/session/end", "")
	if rr.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected status 428 without confirmation, got %d", rr.Code)
	}

	rr = doRequest(h, http.MethodPost, "/api/session/end", `{"confirm":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with confirmation, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !ctl.confirm {
		t.Fatal("expected confirmation to reach the controller")
	}
}

func TestAPISessionStartInvalidJSON(t *testing.T) {
	ctl := &stubController{}
	h := newTestHandler(t, Deps{Control: ctl})

	rr := doRequest(h, http.MethodPost, "/api/session/start", `{invalid json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if len(ctl.calls) != 0 {
		t.Fatalf("expected controller not to be called, got %v", ctl.calls)
	}

	rr = doRequest(h, http.MethodPost, "/api/session/start", `{"prompts_path":"p.csv","speaker":"alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ctl.start.PromptsPath != "p.csv" || ctl.start.Speaker != "alice" {
		t.Fatalf("unexpected start request %+v", ctl.start)
	}
}

func TestAPIDevices(t *testing.T) {
	ctl := &stubController{}
	lister := stubLister{devices: []audio.Device{{ID: 0, Name: "Built-in", MaxInputChannels: 2, DefaultSampleRate: 44100}, {ID: 3, Name: "USB Mic", MaxInputChannels: 1, DefaultSampleRate: 48000}}}
	h := newTestHandler(t, Deps{Control: ctl, Devices: lister})

	rr := doRequest(h, http.MethodGet, "/api/devices", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var devices []audio.Device
	if err := json.NewDecoder(rr.Body).Decode(&devices); err != nil {
		t.Fatalf("decode devices failed: %v", err)
	}
	if len(devices) != 2 || devices[1].Name != "USB Mic" {
		t.Fatalf("unexpected devices %+v", devices)
	}

	rr = doRequest(h, http.MethodPost, "/api/device", `{"id":3}`)
	if rr.Code != http.StatusOK || ctl.device != 3 {
		t.Fatalf("expected device 3 selected, got status %d device %d", rr.Code, ctl.device)
	}

	rr = doRequest(h, http.MethodPost, "/api/device", `{"id":9}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown device, got %d", rr.Code)
	}

	rr = doRequest(h, http.MethodPost, "/api/device", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing id, got %d", rr.Code)
	}
}

func TestAPIDevicesEnumerationFailure(t *testing.T) {
	lister := stubLister{err: &audio.DeviceError{Device: audio.DefaultDevice, Op: "enumerate", Err: errors.New("no host api")}}
	h := newTestHandler(t, Deps{Devices: lister})

	rr := doRequest(h, http.MethodGet, "/api/devices", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestAPIStatusWithWarnings(t *testing.T) {
	prompt := session.Prompt{ID: "7", Text: "Seven."}
	ctl := &stubController{snapshot: workflow.Snapshot{State: "reviewing", Speaker: "alice", Prompt: &prompt, Done: 2, Total: 5, HasTake: true}}
	h := newTestHandler(t, Deps{
		Control: ctl,
		Warnings: func() []string {
			return []string{"Deepgram API key not configured"}
		},
	})

	rr := doRequest(h, http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{`"state":"reviewing"`, `"has_take":true`, `"done":2`, `"total":5`, "Deepgram API key not configured"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in response, got %s", want, body)
		}
	}
}

func TestAPIStatusNoWarnings(t *testing.T) {
	h := newTestHandler(t, Deps{})

	rr := doRequest(h, http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"warnings":[]`) {
		t.Fatalf("expected empty warnings array in response, got %s", rr.Body.String())
	}
}

func TestAPISessionTraversalBlocked(t *testing.T) {
	h := newTestHandler(t, Deps{Store: apiStoreStub{}})

	rr := doRequest(h, http.MethodGet, "/api/sessions/%2e%2e%2f%2e%2e%2fetc%2fpasswd/takes/1/audio", "")
	if rr.Code != http.StatusForbidden && rr.Code != http.StatusNotFound {
		t.Fatalf("expected forbidden/notfound for traversal, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAPITakeAudioOutsideOutputDir(t *testing.T) {
	store := apiStoreStub{
		sessions: map[string]storage.Session{"s1": {ID: "s1", OutputDir: t.TempDir()}},
		takes:    map[string][]storage.Take{"s1": {{SessionID: "s1", PromptID: "1", AudioPath: "/etc/passwd"}}},
	}
	h := newTestHandler(t, Deps{Store: store})

	rr := doRequest(h, http.MethodGet, "/api/sessions/s1/takes/1/audio", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAPISessionDetailNotFound(t *testing.T) {
	h := newTestHandler(t, Deps{Store: apiStoreStub{}})

	rr := doRequest(h, http.MethodGet, "/api/sessions/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

type silentRecorder struct{}

func (silentRecorder) Start(int, audio.Format) error { return nil }

func (silentRecorder) Stop() *audio.Take {
	return &audio.Take{Format: audio.DefaultFormat(), Frames: [][]byte{make([]byte, 2048), make([]byte, 2048)}}
}

func TestAPIRecordingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	promptsPath := filepath.Join(dir, "prompts.csv")
	if err := os.WriteFile(promptsPath, []byte("unique_id,text_sentences\n1,Hello there.\n2,Goodbye.\n"), 0o644); err != nil {
		t.Fatalf("write prompts failed: %v", err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hub := NewHub(nil)
	wf := workflow.New(workflow.Deps{Recorder: silentRecorder{}, Events: hub, Journal: store})
	h := newTestHandler(t, Deps{Control: wf, Store: store, Hub: hub})

	events := hub.Subscribe()
	defer hub.Unsubscribe(events)

	body := fmt.Sprintf(`{"prompts_path":%q,"speaker":"alice","seed":3}`, promptsPath)
	steps := []struct {
		path string
		body string
	}{
		{"/api/session/start", body},
		{"/api/record/toggle", ""},
		{"/api/record/toggle", ""},
		{"/api/take/save", ""},
	}
	for _, step := range steps {
		rr := doRequest(h, http.MethodPost, step.path, step.body)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d body=%s", step.path, rr.Code, rr.Body.String())
		}
	}

	snap := wf.Snapshot()
	if snap.Done != 1 || snap.Total != 2 {
		t.Fatalf("expected progress 1/2, got %d/%d", snap.Done, snap.Total)
	}

	sawSaved := false
	for len(events) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(<-events, &payload); err != nil {
			t.Fatalf("unmarshal event failed: %v", err)
		}
		if payload["type"] == "take_saved" {
			sawSaved = true
		}
	}
	if !sawSaved {
		t.Fatal("expected a take_saved event")
	}

	rr := doRequest(h, http.MethodGet, "/api/sessions/"+snap.SessionID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for session detail, got %d body=%s", rr.Code, rr.Body.String())
	}
	var detail struct {
		Session storage.Session `json:"session"`
		Takes   []storage.Take  `json:"takes"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail failed: %v", err)
	}
	if detail.Session.Speaker != "alice" || len(detail.Takes) != 1 {
		t.Fatalf("unexpected session detail %+v", detail)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+snap.SessionID+"/takes/"+detail.Takes[0].PromptID+"/audio", nil)
	req.Header.Set("Range", "bytes=0-43")
	audioRR := httptest.NewRecorder()
	h.ServeHTTP(audioRR, req)

	if audioRR.Code != http.StatusPartialContent {
		t.Fatalf("expected status 206, got %d body=%s", audioRR.Code, audioRR.Body.String())
	}
	if !strings.HasPrefix(audioRR.Body.String(), "RIFF") {
		t.Fatal("expected a wav header in the ranged response")
	}
	if audioRR.Header().Get("Content-Range") == "" {
		t.Fatal("expected Content-Range header")
	}
}
