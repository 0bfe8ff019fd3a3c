package workflow

import (
	"errors"
	"fmt"

	"github.com/sjawhar/voice-dataset/internal/audio"
	"github.com/sjawhar/voice-dataset/internal/session"
)

var (
	ErrInvalidTransition    = errors.New("action not valid in current state")
	ErrEmptyTake            = errors.New("no recording to save")
	ErrSessionActive        = errors.New("session already active")
	ErrNoSession            = errors.New("no active session")
	ErrConfirmationRequired = errors.New("ending the session requires confirmation")
	ErrInvalidSpeaker       = errors.New("invalid speaker name")
	ErrNoPromptSource       = errors.New("no prompt source selected")
)

// IOError reports a durable write or read that failed. The prompt involved
// is left not done.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Describe maps an error from any workflow command to the message shown to
// the operator.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var (
		devErr       *audio.DeviceError
		malformedErr *session.MalformedInputError
		ioErr        *IOError
	)
	switch {
	case errors.As(err, &devErr):
		return fmt.Sprintf("Could not open input device: %v", devErr.Err)
	case errors.As(err, &malformedErr):
		return fmt.Sprintf("Failed to load sentences: %v", malformedErr)
	case errors.As(err, &ioErr):
		if ioErr.Op == OpLoadPrompts {
			return fmt.Sprintf("Failed to load sentences: %v", ioErr.Err)
		}
		return fmt.Sprintf("Failed to save recording: %v", ioErr)
	case errors.Is(err, ErrEmptyTake):
		return StatusNothingToSave
	case errors.Is(err, ErrNoPromptSource):
		return "Please select an input CSV file."
	case errors.Is(err, ErrInvalidSpeaker):
		return "Please enter a speaker name."
	case errors.Is(err, ErrSessionActive):
		return "A session is already running. End it first."
	case errors.Is(err, ErrNoSession):
		return "No active session. Start a session first."
	case errors.Is(err, ErrConfirmationRequired):
		return "Are you sure you want to end the current session?"
	case errors.Is(err, ErrInvalidTransition):
		return err.Error()
	}
	return err.Error()
}
