package session

import "fmt"

// DoneLog durably records completed prompt ids.
type DoneLog interface {
	Append(id string) error
}

// State tracks traversal of a session's prompts. The cursor only moves
// forward and always rests on the first prompt at or after its position
// that is not completed, or past the end.
//
// State is not safe for concurrent use; the workflow serializes access.
type State struct {
	prompts   []Prompt
	cursor    int
	completed map[string]struct{}
	log       DoneLog
}

func NewState(prompts []Prompt, completed map[string]struct{}, log DoneLog) *State {
	if completed == nil {
		completed = make(map[string]struct{})
	}
	s := &State{prompts: prompts, completed: completed, log: log}
	s.resolve()
	return s
}

// CurrentPrompt returns the prompt under the cursor. ok is false once every
// remaining prompt is completed.
func (s *State) CurrentPrompt() (Prompt, bool) {
	s.resolve()
	if s.cursor >= len(s.prompts) {
		return Prompt{}, false
	}
	return s.prompts[s.cursor], true
}

// Advance moves past the current prompt, done or not, and resolves to the
// next prompt that is not completed.
func (s *State) Advance() (Prompt, bool) {
	if s.cursor < len(s.prompts) {
		s.cursor++
	}
	return s.CurrentPrompt()
}

// MarkDone records id as completed. The ledger is written before the
// in-memory set changes, so a failed write leaves the prompt not done.
// Marking an id that is already done writes nothing.
func (s *State) MarkDone(id string) error {
	if _, ok := s.completed[id]; ok {
		return nil
	}
	if s.log != nil {
		if err := s.log.Append(id); err != nil {
			return fmt.Errorf("append done ledger: %w", err)
		}
	}
	s.completed[id] = struct{}{}
	return nil
}

func (s *State) IsDone(id string) bool {
	_, ok := s.completed[id]
	return ok
}

// Progress reports how many of the loaded prompts are completed.
func (s *State) Progress() (done, total int) {
	for _, p := range s.prompts {
		if _, ok := s.completed[p.ID]; ok {
			done++
		}
	}
	return done, len(s.prompts)
}

func (s *State) Cursor() int { return s.cursor }

func (s *State) Len() int { return len(s.prompts) }

func (s *State) resolve() {
	for s.cursor < len(s.prompts) {
		if _, ok := s.completed[s.prompts[s.cursor].ID]; !ok {
			return
		}
		s.cursor++
	}
}
