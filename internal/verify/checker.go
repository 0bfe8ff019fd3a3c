package verify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sjawhar/voice-dataset/internal/storage"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

// Result is the outcome of checking one saved take.
type Result struct {
	SessionID string  `json:"session_id"`
	TakeID    int64   `json:"take_id"`
	PromptID  string  `json:"prompt_id"`
	Expected  string  `json:"expected"`
	Heard     string  `json:"heard"`
	Score     float64 `json:"score"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
}

type Store interface {
	UpdateVerification(takeID int64, status, heard string, score float64) error
}

type Notifier interface {
	VerificationReady(r Result)
}

// Checker transcribes saved takes in the background and flags those whose
// transcript strays from the prompt. It never changes session state.
type Checker struct {
	transcriber Transcriber
	store       Store
	notify      Notifier
	threshold   float64
	timeout     time.Duration
	log         *zap.SugaredLogger

	queue   chan workflow.SavedTake
	sleep   func(time.Duration)
	backoff []time.Duration
}

func NewChecker(t Transcriber, store Store, notify Notifier, threshold float64, timeout time.Duration, logger *zap.SugaredLogger) *Checker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Checker{
		transcriber: t,
		store:       store,
		notify:      notify,
		threshold:   threshold,
		timeout:     timeout,
		log:         logger,
		queue:       make(chan workflow.SavedTake, 32),
		sleep:       time.Sleep,
		backoff:     []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second},
	}
}

// Enqueue schedules a check without blocking. When the queue is full the take
// is left unchecked.
func (c *Checker) Enqueue(take workflow.SavedTake) {
	select {
	case c.queue <- take:
	default:
		c.log.Warnw("verification queue full, skipping take", "session", take.SessionID, "prompt", take.Prompt.ID)
	}
}

// Run processes queued takes until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case take := <-c.queue:
			c.Check(ctx, take)
		}
	}
}

// Check transcribes one take, records the outcome, and announces it.
func (c *Checker) Check(ctx context.Context, take workflow.SavedTake) Result {
	res := Result{
		SessionID: take.SessionID,
		TakeID:    take.TakeID,
		PromptID:  take.Prompt.ID,
		Expected:  take.Prompt.Text,
	}

	heard, err := c.transcribe(ctx, take.AudioPath)
	if err != nil {
		res.Status = storage.VerifyFailed
		res.Error = err.Error()
		c.log.Warnw("take verification failed", "session", take.SessionID, "prompt", take.Prompt.ID, "error", err)
	} else {
		res.Heard = heard
		res.Score = Score(take.Prompt.Text, heard)
		res.Status = storage.VerifyPassed
		if res.Score < c.threshold {
			res.Status = storage.VerifyFlagged
			c.log.Infow("take flagged", "session", take.SessionID, "prompt", take.Prompt.ID, "score", res.Score, "heard", heard)
		}
	}

	if c.store != nil && take.TakeID != 0 {
		if err := c.store.UpdateVerification(take.TakeID, res.Status, res.Heard, res.Score); err != nil {
			c.log.Warnw("store verification failed", "take", take.TakeID, "error", err)
		}
	}
	if c.notify != nil {
		c.notify.VerificationReady(res)
	}
	return res
}

func (c *Checker) transcribe(ctx context.Context, path string) (string, error) {
	var lastErr error
	for attempt := range c.backoff {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		heard, err := c.transcriber.Transcribe(attemptCtx, path)
		cancel()
		if err == nil {
			return heard, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(c.backoff)-1 {
			c.sleep(c.backoff[attempt])
		}
	}
	return "", lastErr
}
