package session

import (
	"errors"
	"testing"
)

type memLedger struct {
	lines []string
	err   error
}

func (l *memLedger) Append(id string) error {
	if l.err != nil {
		return l.err
	}
	l.lines = append(l.lines, id)
	return nil
}

func prompts(ids ...string) []Prompt {
	out := make([]Prompt, len(ids))
	for i, id := range ids {
		out[i] = Prompt{ID: id, Text: "text " + id}
	}
	return out
}

func TestStateSkipsCompletedOnLoad(t *testing.T) {
	state := NewState(prompts("a", "b", "c"), map[string]struct{}{"a": {}, "b": {}}, &memLedger{})

	p, ok := state.CurrentPrompt()
	if !ok || p.ID != "c" {
		t.Fatalf("expected current prompt c, got %#v ok=%v", p, ok)
	}
	if state.Cursor() != 2 {
		t.Fatalf("expected cursor 2, got %d", state.Cursor())
	}
	if done, total := state.Progress(); done != 2 || total != 3 {
		t.Fatalf("expected progress 2/3, got %d/%d", done, total)
	}
}

func TestStateAllCompleted(t *testing.T) {
	state := NewState(prompts("a", "b"), map[string]struct{}{"a": {}, "b": {}, "zzz": {}}, nil)

	if _, ok := state.CurrentPrompt(); ok {
		t.Fatal("expected no current prompt")
	}
	if done, total := state.Progress(); done != 2 || total != 2 {
		t.Fatalf("expected progress 2/2 ignoring unknown ids, got %d/%d", done, total)
	}
}

func TestStateAdvanceIsMonotonic(t *testing.T) {
	ledger := &memLedger{}
	state := NewState(prompts("a", "b", "c", "d"), nil, ledger)

	last := state.Cursor()
	step := func(name string, fn func()) {
		fn()
		if state.Cursor() < last {
			t.Fatalf("%s: cursor moved backward from %d to %d", name, last, state.Cursor())
		}
		last = state.Cursor()
	}

	step("advance", func() { state.Advance() })
	step("mark c done", func() { _ = state.MarkDone("c") })
	step("advance past c", func() { state.Advance() })
	step("query", func() { state.CurrentPrompt() })

	p, ok := state.CurrentPrompt()
	if !ok || p.ID != "d" {
		t.Fatalf("expected d after skipping completed c, got %#v ok=%v", p, ok)
	}

	step("advance to end", func() { state.Advance() })
	step("advance beyond end", func() { state.Advance() })
	if state.Cursor() != 4 {
		t.Fatalf("expected cursor to stop at end, got %d", state.Cursor())
	}
	if _, ok := state.CurrentPrompt(); ok {
		t.Fatal("expected no prompt past the end")
	}
}

func TestStateMarkDoneIsIdempotent(t *testing.T) {
	ledger := &memLedger{}
	state := NewState(prompts("a", "b"), nil, ledger)

	for i := 0; i < 2; i++ {
		if err := state.MarkDone("a"); err != nil {
			t.Fatalf("MarkDone failed: %v", err)
		}
	}
	if len(ledger.lines) != 1 || ledger.lines[0] != "a" {
		t.Fatalf("expected exactly one ledger line for a, got %v", ledger.lines)
	}

	restored := NewState(prompts("a", "b"), map[string]struct{}{"b": {}}, ledger)
	if err := restored.MarkDone("b"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	if len(ledger.lines) != 1 {
		t.Fatalf("expected ids restored from the ledger not to be rewritten, got %v", ledger.lines)
	}
}

func TestStateMarkDoneFailureLeavesPromptOpen(t *testing.T) {
	ledger := &memLedger{err: errors.New("disk full")}
	state := NewState(prompts("a"), nil, ledger)

	if err := state.MarkDone("a"); err == nil {
		t.Fatal("expected MarkDone to fail")
	}
	if state.IsDone("a") {
		t.Fatal("expected a to remain not done")
	}
	if p, ok := state.CurrentPrompt(); !ok || p.ID != "a" {
		t.Fatalf("expected a to remain current, got %#v ok=%v", p, ok)
	}
}

func TestStateSkipDoesNotComplete(t *testing.T) {
	ledger := &memLedger{}
	state := NewState(prompts("1", "2", "3"), nil, ledger)

	state.Advance()
	p, _ := state.CurrentPrompt()
	if p.ID != "2" {
		t.Fatalf("expected prompt 2, got %q", p.ID)
	}
	state.Advance()

	if state.IsDone("2") {
		t.Fatal("skip must not mark a prompt done")
	}
	if len(ledger.lines) != 0 {
		t.Fatalf("skip must not touch the ledger, got %v", ledger.lines)
	}
	if p, _ := state.CurrentPrompt(); p.ID != "3" {
		t.Fatalf("expected prompt 3 after skipping, got %q", p.ID)
	}
}
