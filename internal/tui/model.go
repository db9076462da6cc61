// Package tui renders a live view of one generation run: per-artifact
// status lines plus an overall progress bar, fed by the event bus.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"docforge/internal/events"
	"docforge/internal/graph"
)

type rowStatus int

const (
	rowPending rowStatus = iota
	rowGenerating
	rowSucceeded
	rowFailed
	rowSkipped
)

type artifactRow struct {
	status   rowStatus
	attempts int
	elapsed  time.Duration
	detail   string
}

// Model is the root Bubble Tea model for a run.
type Model struct {
	spinner  spinner.Model
	bar      progress.Model
	eventSub <-chan events.Event

	order   []graph.ArtifactType
	rows    map[graph.ArtifactType]*artifactRow
	stage   string
	percent int
	status  string
	width   int
	done    bool
}

// New creates a run view subscribed to all events on the bus.
func New(bus *events.Bus) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	bar := progress.New(progress.WithDefaultGradient())
	return Model{
		spinner:  sp,
		bar:      bar,
		eventSub: bus.SubscribeAll(256),
		rows:     make(map[graph.ArtifactType]*artifactRow),
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.eventSub))
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(msg.Width-8, 48)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case events.RunStartedEvent:
		m.order = msg.Requested
		for _, t := range m.order {
			m.rows[t] = &artifactRow{status: rowPending}
		}
		return m, waitForEvent(m.eventSub)

	case events.RunProgressEvent:
		m.stage = msg.Stage
		m.percent = msg.Percent
		return m, waitForEvent(m.eventSub)

	case events.ArtifactStartedEvent:
		m.row(msg.Type).status = rowGenerating
		return m, waitForEvent(m.eventSub)

	case events.ArtifactCompletedEvent:
		row := m.row(msg.Type)
		row.status = rowSucceeded
		row.attempts = msg.Attempts
		row.elapsed = msg.Elapsed
		return m, waitForEvent(m.eventSub)

	case events.ArtifactFailedEvent:
		row := m.row(msg.Type)
		row.status = rowFailed
		if msg.Err != nil {
			row.detail = msg.Err.Error()
		}
		return m, waitForEvent(m.eventSub)

	case events.ArtifactSkippedEvent:
		row := m.row(msg.Type)
		row.status = rowSkipped
		row.detail = msg.Reason
		return m, waitForEvent(m.eventSub)

	case events.RunFinishedEvent:
		m.done = true
		m.status = msg.Status
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) row(t graph.ArtifactType) *artifactRow {
	if r, ok := m.rows[t]; ok {
		return r
	}
	r := &artifactRow{}
	m.rows[t] = r
	m.order = append(m.order, t)
	return r
}

// View renders the run view.
func (m Model) View() string {
	var b strings.Builder

	if m.done {
		switch m.status {
		case "completed":
			b.WriteString(StyleStatusComplete.Render("Run completed"))
		default:
			b.WriteString(StyleStatusFailed.Render("Run " + m.status))
		}
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(StyleTitle.Render("Generating documents"))
		if m.stage != "" {
			b.WriteString(StyleDetail.Render("(" + m.stage + ")"))
		}
	}
	b.WriteString("\n\n")

	for _, t := range m.order {
		row := m.rows[t]
		b.WriteString(fmt.Sprintf("  %s %s", statusGlyph(row), t))
		switch {
		case row.status == rowSucceeded && row.attempts > 1:
			b.WriteString(StyleDetail.Render(fmt.Sprintf("  (%d attempts, %s)", row.attempts, row.elapsed.Round(time.Millisecond))))
		case row.status == rowSucceeded:
			b.WriteString(StyleDetail.Render(fmt.Sprintf("  (%s)", row.elapsed.Round(time.Millisecond))))
		case row.detail != "":
			b.WriteString(StyleDetail.Render("  " + row.detail))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(m.percent) / 100.0))
	b.WriteString(fmt.Sprintf("  %d%%\n", m.percent))

	if !m.done {
		b.WriteString(StyleDetail.Render("\npress q to detach\n"))
	}
	return b.String()
}

func statusGlyph(row *artifactRow) string {
	switch row.status {
	case rowGenerating:
		return StyleStatusRunning.Render("*")
	case rowSucceeded:
		return StyleStatusComplete.Render("+")
	case rowFailed:
		return StyleStatusFailed.Render("!")
	case rowSkipped:
		return StyleStatusSkipped.Render("-")
	default:
		return StyleStatusPending.Render(".")
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
