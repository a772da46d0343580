// Package tui renders a running search in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/brawldraft/mcts"
)

// Engine is the part of the search engine the view controls.
type Engine interface {
	Stop()
	Iterations() int64
}

const maxLog = 8

type Model struct {
	engine Engine
	events <-chan mcts.Event
	title  string
	budget time.Duration
	start  time.Time

	runID      string
	status     string
	iterations int64
	elapsed    time.Duration
	results    []mcts.Result
	log        []string
	final      bool
	err        error
	quitting   bool
}

// New builds a model that reads events until the channel is closed.
func New(engine Engine, events <-chan mcts.Event, title string, budget time.Duration) Model {
	return Model{
		engine: engine,
		events: events,
		title:  title,
		budget: budget,
		start:  time.Now(),
	}
}

// Run shows the search until the user quits and returns the last model.
func Run(m Model, opts ...tea.ProgramOption) (Model, error) {
	out, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return m, err
	}
	return out.(Model), nil
}

type TickMsg time.Time

type eventMsg mcts.Event

type closedMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForEvent(events <-chan mcts.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if m.final {
				return m, tea.Quit
			}
			m.quitting = true
			m.engine.Stop()
		}
		return m, nil
	case TickMsg:
		if m.final {
			return m, nil
		}
		m.iterations = m.engine.Iterations()
		m.elapsed = time.Since(m.start)
		return m, tickCmd()
	case eventMsg:
		m.apply(mcts.Event(msg))
		return m, waitForEvent(m.events)
	case closedMsg:
		m.final = true
		if m.quitting {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) apply(ev mcts.Event) {
	m.runID = ev.RunID
	switch ev.Kind {
	case mcts.EventStatus:
		m.status = ev.Status
		m.iterations = ev.Iterations
		m.elapsed = ev.Elapsed
	case mcts.EventIntermediate:
		m.results = ev.Results
		m.iterations = ev.Iterations
	case mcts.EventError:
		m.err = ev.Err
		m.pushLog("error: " + ev.Err.Error())
	case mcts.EventFinal:
		m.final = true
		m.results = ev.Results
		m.iterations = ev.Iterations
		m.elapsed = ev.Elapsed
		if ev.Err != nil {
			m.err = ev.Err
		}
	}
	if ev.Status != "" {
		m.pushLog(ev.Status)
	}
}

func (m *Model) pushLog(line string) {
	if len(m.log) > 0 && m.log[0] == line {
		return
	}
	m.log = append([]string{line}, m.log...)
	if len(m.log) > maxLog {
		m.log = m.log[:maxLog]
	}
}

// Final reports whether the final event has arrived.
func (m Model) Final() bool { return m.final }

// Results is the latest ranking.
func (m Model) Results() []mcts.Result { return m.results }

// Err is the last error reported by the search.
func (m Model) Err() error { return m.err }

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.title + "\n")
	if m.runID != "" {
		fmt.Fprintf(&sb, "Run:        %s\n", m.runID)
	}
	fmt.Fprintf(&sb, "Status:     %s\n", m.status)
	fmt.Fprintf(&sb, "Iterations: %d\n", m.iterations)
	fmt.Fprintf(&sb, "Elapsed:    %.1fs / %.1fs\n\n", m.elapsed.Seconds(), m.budget.Seconds())

	if m.final {
		sb.WriteString("Final ranking:\n")
	} else {
		sb.WriteString("Current ranking:\n")
	}
	if len(m.results) == 0 {
		sb.WriteString("  (no moves yet)\n")
	}
	for i, r := range m.results {
		fmt.Fprintf(&sb, "  %2d. %-16s visits %-8d win %.3f\n", i+1, r.Move, r.Visits, r.WinRate)
	}

	if len(m.log) > 0 {
		sb.WriteString("\nLog:\n")
		for _, l := range m.log {
			sb.WriteString("  " + l + "\n")
		}
	}

	switch {
	case m.final:
		sb.WriteString("\nPress q to quit.\n")
	case m.quitting:
		sb.WriteString("\nStopping...\n")
	default:
		sb.WriteString("\nPress q to stop.\n")
	}
	return sb.String()
}
