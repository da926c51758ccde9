// Package picker is a terminal UI for answering disambiguation requests.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/taskbot/internal/resolution"
)

const barWidth = 30

// Choice is the destination picked for one task.
type Choice struct {
	TaskIndex     int
	DestinationID string
	SubListID     string
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	taskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)
)

// Model walks the user through every disambiguation decision in turn.
type Model struct {
	pending  []resolution.Decision
	current  int
	cursor   int
	choices  []Choice
	bar      progress.Model
	quitting bool
	done     bool
}

// New creates a picker over the decisions that request disambiguation.
// Other decisions are ignored.
func New(decisions []resolution.Decision) Model {
	var pending []resolution.Decision
	for _, d := range decisions {
		if d.Action == resolution.ActionRequestDisambiguation && d.Disambiguation != nil &&
			len(d.Disambiguation.Suggestions) > 0 {
			pending = append(pending, d)
		}
	}
	return Model{
		pending: pending,
		bar: progress.New(
			progress.WithGradient("#ff5f5f", "#00ff87"),
			progress.WithWidth(barWidth),
		),
		done: len(pending) == 0,
	}
}

// Choices returns what the user picked so far.
func (m Model) Choices() []Choice {
	return m.choices
}

// Aborted reports whether the user quit before answering every task.
func (m Model) Aborted() bool {
	return m.quitting && !m.done
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.done {
		return m, nil
	}

	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.suggestions())-1 {
			m.cursor++
		}
	case "enter", " ":
		d := m.pending[m.current]
		s := m.suggestions()[m.cursor]
		m.choices = append(m.choices, Choice{
			TaskIndex:     d.TaskIndex,
			DestinationID: s.DestinationID,
			SubListID:     s.SubListID,
		})
		return m.advance()
	case "s":
		return m.advance()
	}
	return m, nil
}

func (m Model) advance() (tea.Model, tea.Cmd) {
	m.current++
	m.cursor = 0
	if m.current >= len(m.pending) {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) suggestions() []resolution.Suggestion {
	return m.pending[m.current].Disambiguation.Suggestions
}

// View implements tea.Model.
func (m Model) View() string {
	if m.done || m.quitting {
		return ""
	}

	d := m.pending[m.current]
	c := d.Disambiguation.Candidate

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Task %d of %d", m.current+1, len(m.pending))))
	b.WriteString("\n")
	b.WriteString(taskStyle.Render(c.Name))
	b.WriteString("\n")
	if c.Description != "" {
		b.WriteString(dimStyle.Render(c.Description))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("confidence "))
	b.WriteString(m.bar.ViewAs(c.Recommended.Confidence))
	b.WriteString("\n")
	if d.Disambiguation.Reason != "" {
		b.WriteString(dimStyle.Render(d.Disambiguation.Reason))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, s := range d.Disambiguation.Suggestions {
		line := fmt.Sprintf("%s / %s", s.DestinationName, s.SubListName)
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("  ")
		b.WriteString(dimStyle.Render(s.Reason))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerKeyStyle.Render("↑/↓") + dimStyle.Render(" move  "))
	b.WriteString(footerKeyStyle.Render("enter") + dimStyle.Render(" choose  "))
	b.WriteString(footerKeyStyle.Render("s") + dimStyle.Render(" skip  "))
	b.WriteString(footerKeyStyle.Render("q") + dimStyle.Render(" quit"))

	return containerStyle.Render(b.String())
}

// Run shows the picker on the terminal and returns the choices made.
func Run(decisions []resolution.Decision, opts ...tea.ProgramOption) ([]Choice, error) {
	final, err := tea.NewProgram(New(decisions), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("run picker: %w", err)
	}
	m := final.(Model)
	if m.Aborted() {
		return m.Choices(), ErrAborted
	}
	return m.Choices(), nil
}
