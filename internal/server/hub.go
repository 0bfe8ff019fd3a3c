package server

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sjawhar/voice-dataset/internal/session"
	"github.com/sjawhar/voice-dataset/internal/verify"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

// Hub fans events out to websocket subscribers. It implements
// workflow.Events and verify.Notifier; a subscriber that falls behind
// misses messages instead of stalling the sender.
type Hub struct {
	log *zap.SugaredLogger
	now func() time.Time

	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		log:     logger,
		now:     time.Now,
		clients: make(map[chan []byte]struct{}),
	}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) Status(msg string) {
	h.broadcastEvent(StatusEvent{
		Event:   newEvent("status", h.now()),
		Message: msg,
	})
}

func (h *Hub) Level(level float64) {
	h.broadcastEvent(LevelEvent{
		Event: newEvent("level", h.now()),
		Level: level,
	})
}

func (h *Hub) SessionStarted(info workflow.SessionInfo) {
	h.broadcastEvent(SessionStartedEvent{
		Event:       newEvent("session_started", h.now()),
		SessionID:   info.ID,
		Speaker:     info.Speaker,
		PromptsPath: info.PromptsPath,
		OutputDir:   info.OutputDir,
		Seed:        info.Seed,
		Done:        info.Done,
		Total:       info.Total,
	})
}

func (h *Hub) PromptChanged(p session.Prompt, done, total int) {
	h.broadcastEvent(PromptChangedEvent{
		Event:    newEvent("prompt_changed", h.now()),
		PromptID: p.ID,
		Text:     p.Text,
		Done:     done,
		Total:    total,
	})
}

func (h *Hub) TakeSaved(take workflow.SavedTake) {
	h.broadcastEvent(TakeSavedEvent{
		Event:     newEvent("take_saved", h.now()),
		SessionID: take.SessionID,
		TakeID:    take.TakeID,
		PromptID:  take.Prompt.ID,
		AudioFile: take.AudioFile,
		Samples:   take.Samples,
		Duration:  take.Duration.Seconds(),
		Peak:      take.Peak,
		Done:      take.Done,
		Total:     take.Total,
	})
}

func (h *Hub) SessionEnded(id string, complete bool) {
	h.broadcastEvent(SessionEndedEvent{
		Event:     newEvent("session_ended", h.now()),
		SessionID: id,
		Complete:  complete,
	})
}

func (h *Hub) VerificationReady(r verify.Result) {
	h.broadcastEvent(VerificationReadyEvent{
		Event:     newEvent("verification_ready", h.now()),
		SessionID: r.SessionID,
		TakeID:    r.TakeID,
		PromptID:  r.PromptID,
		Heard:     r.Heard,
		Score:     r.Score,
		Status:    r.Status,
		Error:     r.Error,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Warnw("event marshal error", "error", err)
		return
	}
	h.Broadcast(payload)
}
