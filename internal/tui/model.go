package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sjawhar/voice-dataset/internal/audio"
	"github.com/sjawhar/voice-dataset/internal/storage"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

const levelBarWidth = 40

// Controller is the part of the workflow the terminal drives.
type Controller interface {
	SelectDevice(id int) error
	ToggleRecord() error
	Save() error
	Discard() error
	Skip() error
	EndSession(confirm bool) error
	Snapshot() workflow.Snapshot
}

type confirmAction int

const (
	confirmNone confirmAction = iota
	confirmEnd
	confirmQuit
)

type commandDoneMsg struct {
	err  error
	quit bool
}

// Model is the bubbletea model for a recording session.
type Model struct {
	ctl      Controller
	messages <-chan tea.Msg

	devices     []audio.Device
	deviceIndex int

	snapshot     workflow.Snapshot
	level        float64
	status       string
	errorMessage string
	verifyLine   string
	flagged      bool

	confirm confirmAction
	busy    bool
	width   int
}

func New(ctl Controller, messages <-chan tea.Msg, devices []audio.Device) Model {
	m := Model{
		ctl:         ctl,
		messages:    messages,
		devices:     devices,
		deviceIndex: -1,
	}
	m.refresh()
	m.status = m.snapshot.Status
	for i, d := range devices {
		if d.ID == m.snapshot.Device {
			m.deviceIndex = i
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return waitForMsg(m.messages)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case commandDoneMsg:
		m.busy = false
		m.refresh()
		if msg.err != nil {
			m.errorMessage = workflow.Describe(msg.err)
		} else {
			m.errorMessage = ""
			m.status = m.snapshot.Status
		}
		if msg.quit {
			return m, tea.Quit
		}
		return m, nil

	case StatusMsg:
		m.status = string(msg)
		m.refresh()
	case LevelMsg:
		m.level = float64(msg)
	case SessionStartedMsg, PromptChangedMsg, SessionEndedMsg:
		m.level = 0
		m.refresh()
	case TakeSavedMsg:
		m.verifyLine = ""
		m.flagged = false
		m.refresh()
	case VerificationMsg:
		m.setVerification(msg)
	default:
		return m, nil
	}
	return m, waitForMsg(m.messages)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, m.run(m.endForQuit, true)
	}

	if m.confirm != confirmNone {
		action := m.confirm
		m.confirm = confirmNone
		switch strings.ToLower(key) {
		case "y":
			if action == confirmQuit {
				return m, m.run(m.endForQuit, true)
			}
			return m, m.run(func() error { return m.ctl.EndSession(true) }, false)
		default:
			m.status = "Cancelled."
			return m, nil
		}
	}

	if m.busy {
		return m, nil
	}

	switch strings.ToLower(key) {
	case " ":
		return m, m.run(m.ctl.ToggleRecord, false)
	case "n":
		return m, m.run(m.ctl.Save, false)
	case "d":
		return m, m.run(m.ctl.Discard, false)
	case "s":
		return m, m.run(m.ctl.Skip, false)
	case "i":
		return m.cycleDevice()
	case "e":
		if m.snapshot.State == workflow.Idle.String() {
			m.errorMessage = workflow.Describe(workflow.ErrNoSession)
			return m, nil
		}
		m.confirm = confirmEnd
		return m, nil
	case "q":
		if m.snapshot.State == workflow.Idle.String() {
			return m, tea.Quit
		}
		m.confirm = confirmQuit
		return m, nil
	}
	return m, nil
}

func (m Model) cycleDevice() (tea.Model, tea.Cmd) {
	if len(m.devices) == 0 {
		m.errorMessage = "No input devices available."
		return m, nil
	}
	next := (m.deviceIndex + 1) % len(m.devices)
	id := m.devices[next].ID
	if err := m.ctl.SelectDevice(id); err != nil {
		m.errorMessage = workflow.Describe(err)
		return m, nil
	}
	m.deviceIndex = next
	m.errorMessage = ""
	m.status = fmt.Sprintf("Input device: %s", m.devices[next])
	m.refresh()
	return m, nil
}

// endForQuit ends any running session so the device and ledgers are
// released before the program exits.
func (m Model) endForQuit() error {
	err := m.ctl.EndSession(true)
	if errors.Is(err, workflow.ErrNoSession) {
		return nil
	}
	return err
}

// run executes a workflow command off the update loop. Stopping a capture
// waits for the current chunk, so commands never run inline.
func (m *Model) run(fn func() error, quit bool) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		return commandDoneMsg{err: fn(), quit: quit}
	}
}

func (m *Model) refresh() {
	if m.ctl == nil {
		return
	}
	m.snapshot = m.ctl.Snapshot()
}

func (m *Model) setVerification(msg VerificationMsg) {
	switch msg.Status {
	case storage.VerifyFlagged:
		m.flagged = true
		m.verifyLine = fmt.Sprintf("Sentence %s may not match (score %.2f), heard: %q", msg.PromptID, msg.Score, msg.Heard)
	case storage.VerifyPassed:
		m.flagged = false
		m.verifyLine = fmt.Sprintf("Sentence %s verified (score %.2f)", msg.PromptID, msg.Score)
	case storage.VerifyFailed:
		m.flagged = false
		m.verifyLine = fmt.Sprintf("Sentence %s could not be verified: %s", msg.PromptID, msg.Error)
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Voice Dataset Recorder"))
	b.WriteString("\n")

	snap := m.snapshot
	speaker := snap.Speaker
	if speaker == "" {
		speaker = "-"
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s\n", labelStyle.Render("Speaker:"), speaker, labelStyle.Render("Device:"), m.deviceName()))
	b.WriteString(fmt.Sprintf("%s %d/%d", labelStyle.Render("Progress:"), snap.Done, snap.Total))
	if snap.State == workflow.Recording.String() {
		b.WriteString("   " + recStyle.Render("● REC"))
	}
	b.WriteString("\n\n")

	switch {
	case snap.Prompt != nil:
		b.WriteString(idStyle.Render("Sentence " + snap.Prompt.ID))
		b.WriteString("\n")
		style := promptStyle
		if m.width > 8 {
			style = style.Width(m.width - 4)
		}
		b.WriteString(style.Render(snap.Prompt.Text))
	case snap.Complete:
		b.WriteString(promptStyle.Render(workflow.StatusComplete))
	default:
		b.WriteString(promptStyle.Render("No active session."))
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Level ") + renderLevel(m.level, levelBarWidth))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.errorMessage != "" {
		b.WriteString(errorStyle.Render(m.errorMessage))
		b.WriteString("\n")
	}
	if m.verifyLine != "" {
		if m.flagged {
			b.WriteString(flaggedStyle.Render(m.verifyLine))
		} else {
			b.WriteString(statusStyle.Render(m.verifyLine))
		}
		b.WriteString("\n")
	}

	switch m.confirm {
	case confirmEnd:
		b.WriteString(confirmStyle.Render("End the current session? (y/n)"))
		b.WriteString("\n")
	case confirmQuit:
		b.WriteString(confirmStyle.Render("End the session and quit? (y/n)"))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("SPACE record/stop · N save & next · D discard · S skip · I input device · E end session · Q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) deviceName() string {
	if m.deviceIndex >= 0 && m.deviceIndex < len(m.devices) {
		return m.devices[m.deviceIndex].String()
	}
	if m.snapshot.Device == audio.DefaultDevice {
		return "default"
	}
	return fmt.Sprintf("Index: %d", m.snapshot.Device)
}

func renderLevel(level float64, width int) string {
	level = max(0, min(1, level))
	filled := int(level * float64(width))
	bar := lipgloss.NewStyle().Foreground(levelColor(level)).Render(strings.Repeat("█", filled))
	return bar + meterStyle.Render(strings.Repeat("░", width-filled))
}
