package workflow

import (
	"time"

	"github.com/sjawhar/voice-dataset/internal/session"
)

// Events receives workflow notifications. Implementations must not block:
// Status and Level are also called from the capture goroutine.
type Events interface {
	Status(msg string)
	Level(level float64)
	SessionStarted(info SessionInfo)
	PromptChanged(p session.Prompt, done, total int)
	TakeSaved(take SavedTake)
	SessionEnded(id string, complete bool)
}

type SessionInfo struct {
	ID          string `json:"id"`
	Speaker     string `json:"speaker"`
	PromptsPath string `json:"prompts_path"`
	OutputDir   string `json:"output_dir"`
	Seed        uint64 `json:"seed"`
	Done        int    `json:"done"`
	Total       int    `json:"total"`
}

// SavedTake describes a take after all of its durable writes completed.
type SavedTake struct {
	SessionID      string         `json:"session_id"`
	TakeID         int64          `json:"take_id,omitempty"`
	Speaker        string         `json:"speaker"`
	Prompt         session.Prompt `json:"prompt"`
	AudioFile      string         `json:"audio_file"`
	AudioPath      string         `json:"-"`
	TranscriptPath string         `json:"-"`
	MetadataPath   string         `json:"-"`
	DonePath       string         `json:"-"`
	Samples        int            `json:"samples"`
	Duration       time.Duration  `json:"duration"`
	Peak           float64        `json:"peak"`
	Done           int            `json:"done"`
	Total          int            `json:"total"`
}

// Fanout delivers every notification to each of its targets in order.
type Fanout []Events

func (f Fanout) Status(msg string) {
	for _, e := range f {
		e.Status(msg)
	}
}

func (f Fanout) Level(level float64) {
	for _, e := range f {
		e.Level(level)
	}
}

func (f Fanout) SessionStarted(info SessionInfo) {
	for _, e := range f {
		e.SessionStarted(info)
	}
}

func (f Fanout) PromptChanged(p session.Prompt, done, total int) {
	for _, e := range f {
		e.PromptChanged(p, done, total)
	}
}

func (f Fanout) TakeSaved(take SavedTake) {
	for _, e := range f {
		e.TakeSaved(take)
	}
}

func (f Fanout) SessionEnded(id string, complete bool) {
	for _, e := range f {
		e.SessionEnded(id, complete)
	}
}

type nopEvents struct{}

func (nopEvents) Status(string)                          {}
func (nopEvents) Level(float64)                          {}
func (nopEvents) SessionStarted(SessionInfo)             {}
func (nopEvents) PromptChanged(session.Prompt, int, int) {}
func (nopEvents) TakeSaved(SavedTake)                    {}
func (nopEvents) SessionEnded(string, bool)              {}
