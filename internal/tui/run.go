// Package tui provides Bubble Tea models for drover.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chazuruo/drover/internal/engine"
	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/workflow"
)

// StepRow is the display state of one step.
type StepRow struct {
	ID     string
	Type   workflow.StepType
	Status runstore.StepStatus
	Note   string
}

// RunModel is a Bubble Tea model that displays a run while the engine
// executes it in a separate goroutine. Engine progress arrives as EventMsg
// values via Program.Send; the final outcome arrives as a DoneMsg.
type RunModel struct {
	// WorkflowName is the display name of the workflow.
	WorkflowName string

	// RunID is filled in by the first event.
	RunID string

	// Rows mirrors the steps in document order.
	Rows []StepRow

	// Current is the index of the step being executed.
	Current int

	// State is the current model state.
	State RunnerState

	// Spinner animates the running step.
	Spinner spinner.Model

	// Final is the run state reported by the engine when it finished.
	Final *runstore.RunState

	// Err is the engine's final error, if any.
	Err error

	// Canceled indicates the user requested cancellation.
	Canceled bool

	runsRoot string
	cancel   context.CancelFunc

	// styles
	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	warnStyle    lipgloss.Style
	runningStyle lipgloss.Style
	pendingStyle lipgloss.Style
	dimStyle     lipgloss.Style

	// width and height
	width  int
	height int
}

// RunnerState represents the current state of the run display.
type RunnerState int

const (
	// StateRunning means the engine is executing steps.
	StateRunning RunnerState = iota
	// StateCanceling means cancellation was requested and the engine is
	// persisting its final state.
	StateCanceling
	// StateFinished means the engine returned.
	StateFinished
)

// EventMsg wraps an engine progress event.
type EventMsg engine.Event

// DoneMsg is sent when the engine's Run or ResumeRun call returns.
type DoneMsg struct {
	State *runstore.RunState
	Err   error
}

// NewRunModel creates a run model for the given workflow. cancel is invoked
// when the user interrupts the run; the model then waits for the engine's
// DoneMsg so the on-disk state is final before the program exits.
func NewRunModel(name string, steps []workflow.Step, runsRoot string, cancel context.CancelFunc) RunModel {
	rows := make([]StepRow, len(steps))
	for i, step := range steps {
		rows[i] = StepRow{
			ID:     step.ID,
			Type:   step.Type,
			Status: runstore.StepPending,
		}
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))

	return RunModel{
		WorkflowName: name,
		Rows:         rows,
		State:        StateRunning,
		Spinner:      sp,
		runsRoot:     runsRoot,
		cancel:       cancel,
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		warnStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		runningStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("229")),
		pendingStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		dimStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Init implements tea.Model.
func (m RunModel) Init() tea.Cmd {
	return m.Spinner.Tick
}

// Update implements tea.Model.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.State == StateFinished {
				return m, tea.Quit
			}
			if m.State != StateCanceling {
				// The engine persists the interrupted state before it
				// returns; quitting happens on DoneMsg.
				m.Canceled = true
				m.State = StateCanceling
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case EventMsg:
		return m.applyEvent(engine.Event(msg)), nil

	case DoneMsg:
		m.Final = msg.State
		m.Err = msg.Err
		m.State = StateFinished
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// applyEvent folds one engine event into the display state.
func (m RunModel) applyEvent(ev engine.Event) RunModel {
	switch ev.Type {
	case engine.EventRunStarted:
		m.RunID = ev.RunID

	case engine.EventStepStarted:
		if ev.StepIndex >= 0 && ev.StepIndex < len(m.Rows) {
			m.Current = ev.StepIndex
			m.Rows[ev.StepIndex].Status = runstore.StepRunning
		}

	case engine.EventStepCompleted, engine.EventPolicyViolation:
		if ev.StepIndex >= 0 && ev.StepIndex < len(m.Rows) {
			m.Rows[ev.StepIndex].Status = runstore.StepStatus(ev.Status)
			m.Rows[ev.StepIndex].Note = ev.Message
		}
	}
	return m
}

// View implements tea.Model.
func (m RunModel) View() string {
	if m.State == StateFinished {
		return m.finishedView()
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf(" %s", m.WorkflowName))
	if m.RunID != "" {
		b.WriteString(m.dimStyle.Render(fmt.Sprintf("  (%s)", m.RunID)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.stepListView())
	b.WriteString("\n")

	if m.State == StateCanceling {
		b.WriteString(m.warnStyle.Render(" canceling, waiting for the run state to land..."))
	} else {
		b.WriteString(m.helpText())
	}
	b.WriteString("\n")

	return b.String()
}

// stepListView renders one line per step with a status icon.
func (m RunModel) stepListView() string {
	var b strings.Builder
	for i, row := range m.Rows {
		icon, style := m.rowDecoration(row.Status)
		line := fmt.Sprintf(" %s %d. %s (%s)", icon, i+1, row.ID, row.Type)
		b.WriteString(style.Render(line))
		if row.Note != "" {
			b.WriteString(m.dimStyle.Render("  " + row.Note))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m RunModel) rowDecoration(status runstore.StepStatus) (string, lipgloss.Style) {
	switch status {
	case runstore.StepSucceeded:
		return "✓", m.successStyle
	case runstore.StepFailed:
		return "✗", m.errorStyle
	case runstore.StepPolicyViolation:
		return "⚠", m.warnStyle
	case runstore.StepRunning:
		return m.Spinner.View(), m.runningStyle
	case runstore.StepSkipped:
		return "-", m.dimStyle
	default:
		return "○", m.pendingStyle
	}
}

// helpText returns the help text.
func (m RunModel) helpText() string {
	return m.dimStyle.Render(" [ctrl+c] cancel")
}

// finishedView renders the final summary.
func (m RunModel) finishedView() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(m.stepListView())
	b.WriteString("\n")

	switch {
	case m.Err == nil:
		b.WriteString(m.successStyle.Render(fmt.Sprintf(" ✓ run %s succeeded", m.RunID)))
	case errs.IsCanceled(m.Err):
		b.WriteString(m.warnStyle.Render(fmt.Sprintf(" run %s interrupted", m.RunID)))
		if hint := m.resumeHint(); hint != "" {
			b.WriteString("\n" + m.dimStyle.Render(" "+hint))
		}
	default:
		b.WriteString(m.errorStyle.Render(fmt.Sprintf(" ✗ run %s failed: %v", m.RunID, m.Err)))
	}
	b.WriteString("\n")

	if m.RunID != "" && m.runsRoot != "" {
		b.WriteString(m.dimStyle.Render(fmt.Sprintf(" artifacts: %s", filepath.Join(m.runsRoot, m.RunID))))
		b.WriteString("\n")
	}

	return b.String()
}

// resumeHint names the first step that still needs work after an interrupt.
func (m RunModel) resumeHint() string {
	if m.Final == nil {
		return ""
	}
	for _, rec := range m.Final.Steps {
		if rec.Status != runstore.StepSucceeded {
			return fmt.Sprintf("resume with: drover resume %s --from %s", m.Final.RunID, rec.StepID)
		}
	}
	return ""
}

// DidSucceed returns true if the run succeeded.
func (m RunModel) DidSucceed() bool {
	return m.State == StateFinished && m.Err == nil
}

// DidCancel returns true if the user canceled.
func (m RunModel) DidCancel() bool {
	return m.Canceled
}

// RunErr returns the engine's final error.
func (m RunModel) RunErr() error {
	return m.Err
}

// FinalState returns the engine's final run state, if it got that far.
func (m RunModel) FinalState() *runstore.RunState {
	return m.Final
}
