package workflow

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sjawhar/voice-dataset/internal/audio"
	"github.com/sjawhar/voice-dataset/internal/session"
	"github.com/sjawhar/voice-dataset/internal/storage"
)

// Operator-visible status texts.
const (
	StatusStopped       = "Recording stopped. Press SPACE to re-record, N to save."
	StatusNoAudio       = "Nothing was captured. Press SPACE to re-record or S to skip."
	StatusSaved         = "Saved successfully. Press SPACE to record next sentence."
	StatusDiscarded     = "Recording discarded. Press SPACE to record."
	StatusSkipped       = "Sentence skipped. Press SPACE to record new sentence."
	StatusNothingToSave = "No recording to save. Please record first."
	StatusComplete      = "All sentences have been recorded!"
	StatusNoPrompts     = "No sentences to record."
	StatusEnded         = "Session ended"
)

// OpLoadPrompts marks an IOError raised while reading the prompt source.
const OpLoadPrompts = "load prompts"

type State int

const (
	Idle State = iota
	Ready
	Recording
	Reviewing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Recording:
		return "recording"
	case Reviewing:
		return "reviewing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Recorder is the live capture. Stop must return only after capture has
// fully stopped.
type Recorder interface {
	Start(device int, format audio.Format) error
	Stop() *audio.Take
}

type AudioWriter interface {
	Write(frames [][]byte, format audio.Format, dest string) (string, error)
}

// Journal indexes sessions and takes. Its failures are logged and never
// fail a command.
type Journal interface {
	CreateSession(sess storage.Session) (string, error)
	RecordTake(take storage.Take) (int64, error)
	RecordSkip(sessionID, promptID string, at time.Time) error
	UpdateProgress(id string, done int) error
	EndSession(id string, endedAt time.Time, status string) error
}

type Deps struct {
	Recorder Recorder
	Writer   AudioWriter
	Events   Events
	Journal  Journal
	Logger   *zap.SugaredLogger
}

type Option func(*Workflow)

// WithAfterSave registers fn to run after every successful save, outside the
// workflow lock. fn must not block.
func WithAfterSave(fn func(SavedTake)) Option {
	return func(w *Workflow) { w.afterSave = append(w.afterSave, fn) }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithSeedSource(seed func() uint64) Option {
	return func(w *Workflow) { w.seed = seed }
}

func WithDevice(id int) Option {
	return func(w *Workflow) { w.device = id }
}

type StartRequest struct {
	PromptsPath string `json:"prompts_path"`
	Speaker     string `json:"speaker"`
	OutputRoot  string `json:"output_root,omitempty"`
	Seed        uint64 `json:"seed,omitempty"`
}

// Snapshot is a consistent view of the workflow for control surfaces.
type Snapshot struct {
	State     string          `json:"state"`
	SessionID string          `json:"session_id,omitempty"`
	Speaker   string          `json:"speaker,omitempty"`
	OutputDir string          `json:"output_dir,omitempty"`
	Prompt    *session.Prompt `json:"prompt,omitempty"`
	Done      int             `json:"done"`
	Total     int             `json:"total"`
	Device    int             `json:"device"`
	HasTake   bool            `json:"has_take"`
	Complete  bool            `json:"complete"`
	Status    string          `json:"status"`
}

// Workflow is the recording state machine. All commands are serialized by
// one mutex; the only blocking call made under it is Recorder.Stop.
type Workflow struct {
	recorder  Recorder
	writer    AudioWriter
	events    Events
	journal   Journal
	log       *zap.SugaredLogger
	afterSave []func(SavedTake)
	now       func() time.Time
	seed      func() uint64

	mu       sync.Mutex
	state    State
	device   int
	active   *activeSession
	take     *audio.Take
	rowFor   string
	complete bool
	status   string
}

type activeSession struct {
	id          string
	speaker     string
	promptsPath string
	layout      storage.Layout
	prompts     *session.State
	metadata    *storage.Writer
	seed        uint64
}

func New(deps Deps, opts ...Option) *Workflow {
	w := &Workflow{
		recorder: deps.Recorder,
		writer:   deps.Writer,
		events:   deps.Events,
		journal:  deps.Journal,
		log:      deps.Logger,
		now:      time.Now,
		seed:     session.NewSeed,
		device:   audio.DefaultDevice,
	}
	if w.writer == nil {
		w.writer = audio.WAVWriter{}
	}
	if w.events == nil {
		w.events = nopEvents{}
	}
	if w.log == nil {
		w.log = zap.NewNop().Sugar()
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// StartSession loads prompts and progress for a speaker and enters Ready. If
// every prompt is already done it reports completion and stays Idle. Any
// failure leaves the workflow Idle.
func (w *Workflow) StartSession(req StartRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Idle {
		return w.fail(ErrSessionActive)
	}

	speaker := strings.TrimSpace(req.Speaker)
	if !storage.ValidSpeaker(speaker) {
		return w.fail(ErrInvalidSpeaker)
	}
	promptsPath := strings.TrimSpace(req.PromptsPath)
	if promptsPath == "" {
		return w.fail(ErrNoPromptSource)
	}
	absPrompts, err := filepath.Abs(promptsPath)
	if err != nil {
		return w.fail(&IOError{Op: OpLoadPrompts, Path: promptsPath, Err: err})
	}

	seed := req.Seed
	if seed == 0 {
		seed = w.seed()
	}

	prompts, err := session.LoadPrompts(absPrompts, seed)
	if err != nil {
		var malformed *session.MalformedInputError
		if errors.As(err, &malformed) {
			return w.fail(err)
		}
		return w.fail(&IOError{Op: OpLoadPrompts, Path: absPrompts, Err: err})
	}

	root := strings.TrimSpace(req.OutputRoot)
	if root == "" {
		root = filepath.Dir(absPrompts)
	}
	layout := storage.NewLayout(root, speaker)

	completed, err := session.LoadCompleted(layout.DonePath())
	if err != nil {
		return w.fail(&IOError{Op: "read done ledger", Path: layout.DonePath(), Err: err})
	}
	if err := layout.Prepare(); err != nil {
		return w.fail(&IOError{Op: "create output directories", Path: layout.Dir(), Err: err})
	}
	metadata, created, err := storage.OpenWriter(layout.MetadataPath())
	if err != nil {
		return w.fail(&IOError{Op: "open metadata", Path: layout.MetadataPath(), Err: err})
	}

	state := session.NewState(prompts, completed, session.NewLedger(layout.DonePath()))
	done, total := state.Progress()

	sess := &activeSession{
		id:          uuid.NewString(),
		speaker:     speaker,
		promptsPath: absPrompts,
		layout:      layout,
		prompts:     state,
		metadata:    metadata,
		seed:        seed,
	}
	if w.journal != nil {
		if _, err := w.journal.CreateSession(storage.Session{
			ID:          sess.id,
			Speaker:     speaker,
			PromptsPath: absPrompts,
			OutputDir:   layout.Dir(),
			Seed:        seed,
			Total:       total,
			Done:        done,
			StartedAt:   w.now(),
		}); err != nil {
			w.log.Warnw("journal create session failed", "session", sess.id, "error", err)
		}
	}

	w.active = sess
	w.state = Ready
	w.take = nil
	w.rowFor = ""
	w.complete = false

	w.log.Infow("session started",
		"session", sess.id,
		"speaker", speaker,
		"prompts", total,
		"done", done,
		"output", layout.Dir(),
		"metadata_created", created,
		"seed", seed,
	)
	w.events.SessionStarted(SessionInfo{
		ID:          sess.id,
		Speaker:     speaker,
		PromptsPath: absPrompts,
		OutputDir:   layout.Dir(),
		Seed:        seed,
		Done:        done,
		Total:       total,
	})
	w.setStatus(fmt.Sprintf("Loaded %d sentences.", total))

	w.afterMove()
	return nil
}

// SelectDevice chooses the input device for the next recording.
func (w *Workflow) SelectDevice(id int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == Recording {
		return w.fail(fmt.Errorf("%w: cannot change device while recording", ErrInvalidTransition))
	}
	w.device = id
	return nil
}

// ToggleRecord starts a capture from Ready or Reviewing and stops it from
// Recording. Re-recording drops the pending take only once the new capture
// is running.
func (w *Workflow) ToggleRecord() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Idle:
		return w.fail(ErrNoSession)
	case Recording:
		take := w.recorder.Stop()
		w.take = take
		w.state = Reviewing
		if take.Empty() {
			w.setStatus(StatusNoAudio)
		} else {
			w.setStatus(StatusStopped)
		}
		w.log.Debugw("capture stopped", "session", w.active.id, "samples", take.Samples(), "peak", take.Peak())
		return nil
	}

	if _, ok := w.active.prompts.CurrentPrompt(); !ok {
		return w.fail(fmt.Errorf("%w: no prompt left to record", ErrInvalidTransition))
	}
	if err := w.recorder.Start(w.device, audio.DefaultFormat()); err != nil {
		w.log.Warnw("capture start failed", "device", w.device, "error", err)
		return w.fail(err)
	}
	// Capture announces its own status; keep the snapshot in step.
	w.status = audio.StatusRecording
	w.take = nil
	w.state = Recording
	return nil
}

// Save commits the pending take: audio, transcript, metadata row, then the
// done ledger. On failure the workflow stays in Reviewing with the take
// intact and the prompt not done.
func (w *Workflow) Save() error {
	saved, err := w.save()
	if err != nil {
		return err
	}
	for _, fn := range w.afterSave {
		fn(saved)
	}
	return nil
}

func (w *Workflow) save() (SavedTake, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Idle:
		return SavedTake{}, w.fail(ErrNoSession)
	case Recording:
		return SavedTake{}, w.fail(fmt.Errorf("%w: stop recording before saving", ErrInvalidTransition))
	case Ready:
		return SavedTake{}, w.fail(ErrEmptyTake)
	}
	if w.take.Empty() {
		return SavedTake{}, w.fail(ErrEmptyTake)
	}

	sess := w.active
	prompt, ok := sess.prompts.CurrentPrompt()
	if !ok {
		return SavedTake{}, w.fail(fmt.Errorf("%w: no current prompt", ErrInvalidTransition))
	}
	layout := sess.layout

	audioPath := layout.AudioPath(prompt.ID)
	written, err := w.writer.Write(w.take.Frames, w.take.Format, audioPath)
	if err != nil {
		return SavedTake{}, w.fail(&IOError{Op: "write audio", Path: audioPath, Err: err})
	}
	if written == "" {
		return SavedTake{}, w.fail(ErrEmptyTake)
	}

	transcriptPath := layout.TranscriptPath(prompt.ID)
	if err := storage.WriteTranscript(transcriptPath, prompt.Text); err != nil {
		return SavedTake{}, w.fail(&IOError{Op: "write transcript", Path: transcriptPath, Err: err})
	}

	audioFile := layout.AudioName(prompt.ID)
	if w.rowFor != prompt.ID {
		if err := sess.metadata.Append(audioFile, prompt.Text); err != nil {
			return SavedTake{}, w.fail(&IOError{Op: "append metadata", Path: sess.metadata.Path(), Err: err})
		}
		w.rowFor = prompt.ID
	}

	if err := sess.prompts.MarkDone(prompt.ID); err != nil {
		return SavedTake{}, w.fail(&IOError{Op: "append done ledger", Path: layout.DonePath(), Err: err})
	}

	take := w.take
	done, total := sess.prompts.Progress()
	saved := SavedTake{
		SessionID:      sess.id,
		Speaker:        sess.speaker,
		Prompt:         prompt,
		AudioFile:      audioFile,
		AudioPath:      written,
		TranscriptPath: transcriptPath,
		MetadataPath:   sess.metadata.Path(),
		DonePath:       layout.DonePath(),
		Samples:        take.Samples(),
		Duration:       take.Duration(),
		Peak:           take.Peak(),
		Done:           done,
		Total:          total,
	}

	if w.journal != nil {
		takeID, err := w.journal.RecordTake(storage.Take{
			SessionID: sess.id,
			PromptID:  prompt.ID,
			AudioFile: audioFile,
			AudioPath: written,
			Text:      prompt.Text,
			Samples:   saved.Samples,
			Duration:  saved.Duration.Seconds(),
			Peak:      saved.Peak,
			SavedAt:   w.now(),
		})
		if err != nil {
			w.log.Warnw("journal record take failed", "session", sess.id, "prompt", prompt.ID, "error", err)
		}
		saved.TakeID = takeID
		if err := w.journal.UpdateProgress(sess.id, done); err != nil {
			w.log.Warnw("journal update progress failed", "session", sess.id, "error", err)
		}
	}

	w.log.Infow("take saved", "session", sess.id, "prompt", prompt.ID, "file", written, "samples", saved.Samples, "done", done, "total", total)

	w.take = nil
	w.rowFor = ""
	w.state = Ready
	sess.prompts.Advance()

	w.events.TakeSaved(saved)
	w.setStatus(StatusSaved)
	w.afterMove()

	return saved, nil
}

// Discard drops the pending take without touching any durable state.
func (w *Workflow) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Idle:
		return w.fail(ErrNoSession)
	case Reviewing:
	default:
		return w.fail(fmt.Errorf("%w: nothing to discard while %s", ErrInvalidTransition, w.state))
	}

	w.take = nil
	w.state = Ready
	w.setStatus(StatusDiscarded)
	return nil
}

// Skip moves past the current prompt without marking it done, dropping any
// pending take.
func (w *Workflow) Skip() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Idle:
		return w.fail(ErrNoSession)
	case Recording:
		return w.fail(fmt.Errorf("%w: stop recording before skipping", ErrInvalidTransition))
	}

	sess := w.active
	prompt, ok := sess.prompts.CurrentPrompt()
	if !ok {
		return w.fail(fmt.Errorf("%w: no prompt to skip", ErrInvalidTransition))
	}
	if w.journal != nil {
		if err := w.journal.RecordSkip(sess.id, prompt.ID, w.now()); err != nil {
			w.log.Warnw("journal record skip failed", "session", sess.id, "prompt", prompt.ID, "error", err)
		}
	}

	w.take = nil
	w.rowFor = ""
	w.state = Ready
	sess.prompts.Advance()

	w.log.Infow("prompt skipped", "session", sess.id, "prompt", prompt.ID)
	w.setStatus(StatusSkipped)
	w.afterMove()
	return nil
}

// EndSession stops any capture, discards its take, and returns to Idle.
// Without confirm it changes nothing and returns ErrConfirmationRequired.
func (w *Workflow) EndSession(confirm bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == Idle {
		return w.fail(ErrNoSession)
	}
	if !confirm {
		return ErrConfirmationRequired
	}

	if w.state == Recording {
		discarded := w.recorder.Stop()
		w.log.Infow("capture discarded at session end", "session", w.active.id, "samples", discarded.Samples())
	}
	w.end(false)
	w.setStatus(StatusEnded)
	return nil
}

func (w *Workflow) CurrentPrompt() (session.Prompt, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active == nil {
		return session.Prompt{}, false
	}
	return w.active.prompts.CurrentPrompt()
}

func (w *Workflow) Progress() (done, total int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active == nil {
		return 0, 0
	}
	return w.active.prompts.Progress()
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		State:    w.state.String(),
		Device:   w.device,
		HasTake:  w.state == Reviewing && !w.take.Empty(),
		Complete: w.complete,
		Status:   w.status,
	}
	if sess := w.active; sess != nil {
		snap.SessionID = sess.id
		snap.Speaker = sess.speaker
		snap.OutputDir = sess.layout.Dir()
		if p, ok := sess.prompts.CurrentPrompt(); ok {
			snap.Prompt = &p
		}
		snap.Done, snap.Total = sess.prompts.Progress()
	}
	return snap
}

// afterMove announces the prompt now under the cursor, or completes the
// session when none is left. A source without usable rows ends the session
// without completing it.
func (w *Workflow) afterMove() {
	sess := w.active
	done, total := sess.prompts.Progress()
	if p, ok := sess.prompts.CurrentPrompt(); ok {
		w.events.PromptChanged(p, done, total)
		return
	}

	if total == 0 {
		w.log.Warnw("prompt source has no usable rows", "session", sess.id)
		w.end(false)
		w.setStatus(StatusNoPrompts)
		return
	}

	w.log.Infow("all prompts recorded", "session", sess.id, "done", done, "total", total)
	w.end(true)
	w.setStatus(StatusComplete)
}

func (w *Workflow) end(complete bool) {
	sess := w.active
	if sess == nil {
		return
	}

	status := storage.SessionEnded
	if complete {
		status = storage.SessionComplete
	}
	if w.journal != nil {
		if err := w.journal.EndSession(sess.id, w.now(), status); err != nil {
			w.log.Warnw("journal end session failed", "session", sess.id, "error", err)
		}
	}

	w.active = nil
	w.take = nil
	w.rowFor = ""
	w.state = Idle
	w.complete = complete

	w.log.Infow("session ended", "session", sess.id, "complete", complete)
	w.events.SessionEnded(sess.id, complete)
}

func (w *Workflow) setStatus(msg string) {
	w.status = msg
	w.events.Status(msg)
}

func (w *Workflow) fail(err error) error {
	w.setStatus(Describe(err))
	return err
}
