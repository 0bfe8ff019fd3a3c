package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

type StatusEvent struct {
	Event
	Message string `json:"message"`
}

type LevelEvent struct {
	Event
	Level float64 `json:"level"`
}

type SessionStartedEvent struct {
	Event
	SessionID   string `json:"session_id"`
	Speaker     string `json:"speaker"`
	PromptsPath string `json:"prompts_path"`
	OutputDir   string `json:"output_dir"`
	Seed        uint64 `json:"seed"`
	Done        int    `json:"done"`
	Total       int    `json:"total"`
}

type PromptChangedEvent struct {
	Event
	PromptID string `json:"prompt_id"`
	Text     string `json:"text"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
}

type TakeSavedEvent struct {
	Event
	SessionID string  `json:"session_id"`
	TakeID    int64   `json:"take_id,omitempty"`
	PromptID  string  `json:"prompt_id"`
	AudioFile string  `json:"audio_file"`
	Samples   int     `json:"samples"`
	Duration  float64 `json:"duration"`
	Peak      float64 `json:"peak"`
	Done      int     `json:"done"`
	Total     int     `json:"total"`
}

type SessionEndedEvent struct {
	Event
	SessionID string `json:"session_id"`
	Complete  bool   `json:"complete"`
}

type VerificationReadyEvent struct {
	Event
	SessionID string  `json:"session_id"`
	TakeID    int64   `json:"take_id"`
	PromptID  string  `json:"prompt_id"`
	Heard     string  `json:"heard"`
	Score     float64 `json:"score"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
