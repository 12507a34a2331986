// Package dashboard is a terminal view of a running autopilot: the health
// window and a live tail of autonomy decisions.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/banner"
	"github.com/alekspetrov/autonomy/internal/telemetry"
)

const (
	maxEvents      = 15
	healthInterval = 2 * time.Second
)

// Source is what the dashboard reads from, normally a gateway.Client.
type Source interface {
	Health(ctx context.Context) (*autopilot.HealthSnapshot, error)
	StreamEvents(ctx context.Context, fn func(telemetry.Event)) error
}

type tickMsg time.Time

type eventMsg telemetry.Event

type healthMsg struct {
	snap *autopilot.HealthSnapshot
	err  error
}

type streamClosedMsg struct{ err error }

// Model is the bubbletea model for the dashboard.
type Model struct {
	version string
	source  Source
	ctx     context.Context

	health    *autopilot.HealthSnapshot
	healthErr error
	events    []telemetry.Event
	streamErr error
	now       func() time.Time

	width    int
	quitting bool
}

// NewModel creates a dashboard model. source may be nil in tests.
func NewModel(ctx context.Context, version string, source Source) Model {
	return Model{
		version: version,
		source:  source,
		ctx:     ctx,
		now:     time.Now,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchHealth(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(healthInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchHealth() tea.Cmd {
	if m.source == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, healthInterval)
		defer cancel()
		snap, err := m.source.Health(ctx)
		return healthMsg{snap: snap, err: err}
	}
}

// AddEvent returns a command that appends an event to the tail.
func AddEvent(e telemetry.Event) tea.Cmd {
	return func() tea.Msg { return eventMsg(e) }
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.events = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.fetchHealth(), tickCmd())

	case healthMsg:
		m.healthErr = msg.err
		if msg.err == nil {
			m.health = msg.snap
		}

	case eventMsg:
		m.events = append(m.events, telemetry.Event(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}

	case streamClosedMsg:
		m.streamErr = msg.err
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Watch stopped.\n"
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("   %s %s", banner.Name, m.version)))
	b.WriteString("\n\n")
	b.WriteString(m.renderHealth())
	b.WriteString("\n")
	b.WriteString(m.renderEvents())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  q quit  c clear"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderHealth() string {
	w := panelInnerWidth
	if m.health == nil {
		msg := "  Waiting for gateway..."
		if m.healthErr != nil {
			msg = "  Gateway unreachable: " + m.healthErr.Error()
		}
		return renderPanel("HEALTH", msg)
	}

	h := m.health
	enabled, enabledStyle := "disabled", unhealthyStyle
	if h.Enabled {
		enabled, enabledStyle = "enabled", healthyStyle
	}

	lines := []string{
		dotLeader("Status", string(h.HealthStatus), statusStyle(h.HealthStatus), w),
		dotLeader("Autonomy", enabled, enabledStyle, w),
		dotLeader("Decisions", humanize.Comma(int64(h.TotalDecisions)), labelStyle, w),
		dotLeader("Scheduled / blocked / errors", fmt.Sprintf("%d / %d / %d", h.Allowed, h.Blocked, h.Errors), labelStyle, w),
		dotLeader("Error rate", fmt.Sprintf("%.1f%%", h.ErrorRate*100), statusStyle(h.HealthStatus), w),
		dotLeader("Success rate", fmt.Sprintf("%.1f%%", h.SuccessRate*100), labelStyle, w),
	}
	if m.healthErr != nil {
		lines = append(lines, dimStyle.Render("  stale: "+m.healthErr.Error()))
	}
	return renderPanel("HEALTH", strings.Join(lines, "\n"))
}

func (m Model) renderEvents() string {
	if len(m.events) == 0 {
		content := "  No decisions yet"
		if m.streamErr != nil {
			content = "  Event stream closed: " + m.streamErr.Error()
		}
		return renderPanel("DECISIONS", content)
	}

	lines := make([]string, 0, len(m.events)+1)
	for i := len(m.events) - 1; i >= 0; i-- {
		lines = append(lines, m.renderEvent(m.events[i]))
	}
	if m.streamErr != nil {
		lines = append(lines, dimStyle.Render("  stream closed: "+m.streamErr.Error()))
	}
	return renderPanel("DECISIONS", strings.Join(lines, "\n"))
}

func (m Model) renderEvent(e telemetry.Event) string {
	name := strings.TrimPrefix(e.Event, "autonomy.")
	detail := e.SessionID
	if e.TaskID != "" {
		detail += " " + e.TaskID
	}
	if e.Error != "" {
		detail += " " + e.Error
	}
	age := ""
	if !e.Timestamp.IsZero() {
		age = humanize.RelTime(e.Timestamp, m.now(), "ago", "from now")
	}

	line := truncateVisual(fmt.Sprintf("  %s %-32s %s", outcomeIcon(e.Outcome), name, detail), panelInnerWidth-lipgloss.Width(age)-1)
	line = padOrTruncate(line, panelInnerWidth-lipgloss.Width(age))
	return outcomeStyle(e.Outcome).Render(line) + dimStyle.Render(age)
}

func outcomeIcon(o telemetry.Outcome) string {
	switch o {
	case telemetry.OutcomeScheduled:
		return "✓"
	case telemetry.OutcomeBlocked:
		return "○"
	case telemetry.OutcomeError:
		return "✗"
	default:
		return "·"
	}
}

func outcomeStyle(o telemetry.Outcome) lipgloss.Style {
	switch o {
	case telemetry.OutcomeScheduled:
		return healthyStyle
	case telemetry.OutcomeError:
		return unhealthyStyle
	default:
		return labelStyle
	}
}

func statusStyle(s autopilot.HealthStatus) lipgloss.Style {
	switch s {
	case autopilot.StatusDegraded:
		return degradedStyle
	case autopilot.StatusUnhealthy:
		return unhealthyStyle
	default:
		return healthyStyle
	}
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, version string, source Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(ctx, version, source), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		err := source.StreamEvents(ctx, func(e telemetry.Event) {
			p.Send(eventMsg(e))
		})
		if ctx.Err() == nil {
			p.Send(streamClosedMsg{err: err})
		}
	}()

	_, err := p.Run()
	if ctx.Err() != nil && err != nil {
		return nil
	}
	return err
}
