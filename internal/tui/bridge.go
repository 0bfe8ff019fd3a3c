package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sjawhar/voice-dataset/internal/session"
	"github.com/sjawhar/voice-dataset/internal/verify"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

type StatusMsg string

type LevelMsg float64

type SessionStartedMsg workflow.SessionInfo

type PromptChangedMsg struct {
	Prompt session.Prompt
	Done   int
	Total  int
}

type TakeSavedMsg workflow.SavedTake

type SessionEndedMsg struct {
	ID       string
	Complete bool
}

type VerificationMsg verify.Result

// Bridge turns workflow and verification callbacks into tea messages.
// Sends never block; when the program falls behind, messages are dropped
// and the model catches up from the next snapshot.
type Bridge struct {
	ch chan tea.Msg
}

func NewBridge() *Bridge {
	return &Bridge{ch: make(chan tea.Msg, 256)}
}

func (b *Bridge) Messages() <-chan tea.Msg { return b.ch }

func (b *Bridge) Status(msg string) { b.send(StatusMsg(msg)) }

func (b *Bridge) Level(level float64) { b.send(LevelMsg(level)) }

func (b *Bridge) SessionStarted(info workflow.SessionInfo) { b.send(SessionStartedMsg(info)) }

func (b *Bridge) PromptChanged(p session.Prompt, done, total int) {
	b.send(PromptChangedMsg{Prompt: p, Done: done, Total: total})
}

func (b *Bridge) TakeSaved(take workflow.SavedTake) { b.send(TakeSavedMsg(take)) }

func (b *Bridge) SessionEnded(id string, complete bool) {
	b.send(SessionEndedMsg{ID: id, Complete: complete})
}

func (b *Bridge) VerificationReady(r verify.Result) { b.send(VerificationMsg(r)) }

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default:
	}
}

func waitForMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
