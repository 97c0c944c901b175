package tui

import (
	"fmt"
	"strings"

	"grocery-planner/internal/selection"
	"grocery-planner/internal/workflow"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	stageStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0A0A0"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F2CC60"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2CC60"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
	panelStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1)
)

const helpLine = "c status • l login • z stores • 1-9 pick store • g plan • tab kind • +/- count • space toggle • s stage • r report • q quit"

// View renders the whole screen.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("🛒 Grocery Planner"))
	b.WriteString("  ")
	b.WriteString(stageStyle.Render(m.snap.Stage.String()))
	if m.busy() {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")

	b.WriteString(m.sessionLine())
	b.WriteString("\n")
	b.WriteString(m.storesView())
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Next plan: %d × %s\n", m.count, m.kind))

	if len(m.snap.Rows) > 0 {
		b.WriteString(panelStyle.Render(m.planView()))
		b.WriteString("\n")
	}

	for _, op := range workflow.Ops {
		if err := m.snap.Errors[op]; err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%s: %v", op, err)))
			b.WriteString("\n")
		}
	}
	if m.snap.Report != nil {
		b.WriteString(okStyle.Render("Report: " + m.snap.Report.Path))
		b.WriteString("\n")
	}

	if m.mode != inputNone {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(helpLine))
	return b.String()
}

func (m *Model) busy() bool {
	for _, busy := range m.snap.Busy {
		if busy {
			return true
		}
	}
	return false
}

func (m *Model) sessionLine() string {
	s := m.snap.Session
	if s.StatusMessage == "" {
		return stageStyle.Render("Session not checked yet.")
	}
	if s.Authenticated {
		return okStyle.Render("● " + s.StatusMessage)
	}
	return errorStyle.Render("● " + s.StatusMessage)
}

func (m *Model) storesView() string {
	res := m.snap.Stores
	if res.StatusMessage == "" {
		return "No store search yet."
	}
	var b strings.Builder
	b.WriteString(res.StatusMessage)
	b.WriteString("\n")
	for i, c := range res.Candidates {
		line := fmt.Sprintf("  %d) %s", i+1, c.Label())
		if c.LocationID == res.SelectedID {
			line = selectedStyle.Render(line + " ✓")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) planView() string {
	var lines []string
	for i, row := range m.snap.Rows {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		lines = append(lines, prefix+rowText(row))
	}
	return strings.Join(lines, "\n")
}

func rowText(row selection.Node) string {
	indent := strings.Repeat("  ", row.Depth)
	if row.Kind == selection.NodeLeaf {
		return fmt.Sprintf("%s%s %s", indent, row.State.Mark(), row.Label)
	}
	arrow := "▸"
	if row.Expanded {
		arrow = "▾"
	}
	return fmt.Sprintf("%s%s %s %s", indent, arrow, row.State.Mark(), row.Label)
}
