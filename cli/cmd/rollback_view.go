package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rewind/api/model"
	"rewind/api/saga"
	"rewind/cli/style"
)

// --- Messages ---

type sagaEventMsg saga.Event

type rollbackResult struct {
	op  *model.StackOperation
	err error
}

// --- Model ---

type stepState int

const (
	stepPending stepState = iota
	stepRunning
	stepDone
	stepFailed
)

type stepView struct {
	name   string
	state  stepState
	detail string
}

var rollbackSteps = []string{"validate", "bucket", "select", "update", "monitor"}

type rollbackModel struct {
	target      string
	timestamp   string
	spinner     spinner.Model
	steps       []stepView
	status      string
	state       string
	polls       string
	op          *model.StackOperation
	done        bool
	err         error
	interrupted bool
	cancel      context.CancelFunc
}

func newRollbackModel(target, timestamp string, cancel context.CancelFunc) rollbackModel {
	s := spinner.New()
	s.Spinner = spinner.Moon
	s.Style = lipgloss.NewStyle().Foreground(style.Cyan)

	steps := make([]stepView, len(rollbackSteps))
	for i, name := range rollbackSteps {
		steps[i] = stepView{name: name}
	}
	return rollbackModel{
		target:    target,
		timestamp: timestamp,
		spinner:   s,
		steps:     steps,
		cancel:    cancel,
	}
}

func (m rollbackModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m rollbackModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sagaEventMsg:
		m = m.apply(saga.Event(msg))
		return m, nil

	case rollbackResult:
		m.done = true
		m.op = msg.op
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m rollbackModel) apply(e saga.Event) rollbackModel {
	steps := make([]stepView, len(m.steps))
	copy(steps, m.steps)
	m.steps = steps

	idx := -1
	for i, s := range m.steps {
		if s.name == e.Metadata["step"] {
			idx = i
		}
	}

	switch e.Action {
	case "step.start":
		if idx >= 0 {
			m.steps[idx].state = stepRunning
		}
	case "step.complete":
		if idx >= 0 {
			m.steps[idx].state = stepDone
			if m.steps[idx].detail == "" {
				m.steps[idx].detail = e.Metadata["durationMs"] + "ms"
			}
		}
	case "step.failed":
		if idx >= 0 {
			m.steps[idx].state = stepFailed
			m.steps[idx].detail = e.Metadata["error"]
		}
	case "bucket.resolved":
		if idx >= 0 {
			m.steps[idx].detail = e.Metadata["bucket"]
		}
	case "deployment.selected":
		if idx >= 0 {
			m.steps[idx].detail = e.Metadata["directory"]
		}
	case "stack.submitted":
		if idx >= 0 {
			m.steps[idx].detail = "accepted"
		}
	case "stack.unchanged":
		if idx >= 0 {
			m.steps[idx].detail = "no changes"
		}
	case "stack.status":
		m.status = e.Message
		m.state = e.Metadata["state"]
		m.polls = e.Metadata["poll"]
	}
	return m
}

func (m rollbackModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Rolling back %s to %s\n\n", style.Bold.Render(m.target), style.Bold.Render(m.timestamp))

	for _, s := range m.steps {
		var icon, name string
		padded := fmt.Sprintf("%-10s", s.name)
		switch s.state {
		case stepRunning:
			icon = m.spinner.View()
			name = style.StepRunning.Render(padded)
		case stepDone:
			icon = style.StepDone.Render("✓")
			name = style.StepDone.Render(padded)
		case stepFailed:
			icon = style.StepFailed.Render("✗")
			name = style.StepFailed.Render(padded)
		default:
			icon = style.StepPending.Render("·")
			name = style.StepPending.Render(padded)
		}
		detail := s.detail
		if s.name == "monitor" && m.status != "" && s.state == stepRunning {
			detail = fmt.Sprintf("%s %s (poll %s)", style.StackState(m.state), m.status, m.polls)
		}
		fmt.Fprintf(&b, "  %s %s %s\n", icon, name, style.DimText.Render(detail))
	}

	if m.done && m.err == nil {
		b.WriteString(successLine(m.op) + "\n")
	}
	if m.interrupted {
		b.WriteString(style.Warning.Render("\n  Stopped watching. The stack update continues on the provider.") + "\n")
	}
	return b.String()
}
