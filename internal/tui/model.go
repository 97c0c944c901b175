// Package tui is the terminal front end of the planner. It follows the Elm
// architecture used by bubbletea: key presses become commands that call the
// workflow core, and their completions come back as messages.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grocery-planner/internal/planner"
	"grocery-planner/internal/selection"
	"grocery-planner/internal/workflow"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// inputMode is what the text input is collecting, if anything.
type inputMode int

const (
	inputNone inputMode = iota
	inputZip
	inputDescription
)

// opDoneMsg reports a finished core operation.
type opDoneMsg struct {
	op   workflow.Op
	err  error
	note string
}

// Model is the bubbletea model. All domain state lives in the core; the
// model keeps a snapshot and view state only.
type Model struct {
	core     *workflow.Core
	loginURL string

	kind  planner.MealKind
	count int

	snap   workflow.Snapshot
	cursor int
	status string

	mode    inputMode
	input   textinput.Model
	spinner spinner.Model

	width  int
	height int
}

// New creates the model. kind and count seed the plan request.
func New(core *workflow.Core, loginURL string, kind planner.MealKind, count int) *Model {
	ti := textinput.New()
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if count < 1 {
		count = 1
	}
	return &Model{
		core:     core,
		loginURL: loginURL,
		kind:     kind,
		count:    count,
		snap:     core.Snapshot(),
		input:    ti,
		spinner:  sp,
	}
}

// Init checks the session and starts the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.checkSession(), m.spinner.Tick)
}

// Update handles a message and returns the next command.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case opDoneMsg:
		m.refresh()
		switch {
		case errors.Is(msg.err, workflow.ErrSuperseded):
		case msg.err != nil:
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		default:
			m.status = msg.note
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		m.input.SetValue("")
		if value == "" {
			m.status = "Nothing entered."
			return m, nil
		}
		if mode == inputZip {
			return m, m.searchStores(value)
		}
		return m, m.generatePlan(value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c":
		return m, m.checkSession()
	case "l":
		m.status = "Log in at " + m.loginURL + " then press c."
		return m, nil
	case "z":
		return m, m.prompt(inputZip, "zip code")
	case "g":
		return m, m.prompt(inputDescription, "what should we cook?")
	case "tab":
		m.kind = nextKind(m.kind)
		return m, nil
	case "+", "=":
		m.count++
		return m, nil
	case "-":
		if m.count > 1 {
			m.count--
		}
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.snap.Rows)-1 {
			m.cursor++
		}
		return m, nil
	case " ", "enter":
		return m, m.activate()
	case "s":
		return m, m.stageCart()
	case "r":
		return m, m.requestReport()
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.selectStore(int(msg.String()[0] - '1'))
		return m, nil
	}
	return m, nil
}

func (m *Model) prompt(mode inputMode, placeholder string) tea.Cmd {
	m.mode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	return m.input.Focus()
}

// activate toggles the leaf under the cursor, or folds the meal or group.
func (m *Model) activate() tea.Cmd {
	if m.cursor >= len(m.snap.Rows) {
		return nil
	}
	row := m.snap.Rows[m.cursor]
	if row.Kind == selection.NodeLeaf {
		if _, err := m.core.ToggleLeafAt(m.snap.PlanGen, row.Key); err != nil {
			m.status = err.Error()
		}
	} else if err := m.core.ToggleExpandedAt(m.snap.PlanGen, row.Key); err != nil {
		m.status = err.Error()
	}
	m.refresh()
	return nil
}

func (m *Model) selectStore(i int) {
	candidates := m.snap.Stores.Candidates
	if i < 0 || i >= len(candidates) {
		return
	}
	if err := m.core.SelectStore(candidates[i].LocationID); err != nil {
		m.status = err.Error()
		return
	}
	m.refresh()
	m.status = "Store selected: " + candidates[i].Label()
}

// refresh pulls a new snapshot and keeps the cursor in range.
func (m *Model) refresh() {
	m.snap = m.core.Snapshot()
	if m.cursor >= len(m.snap.Rows) {
		m.cursor = max(len(m.snap.Rows)-1, 0)
	}
}

func (m *Model) checkSession() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		s, err := core.CheckSession(context.Background())
		return opDoneMsg{op: workflow.OpSession, err: err, note: s.StatusMessage}
	}
}

func (m *Model) searchStores(zip string) tea.Cmd {
	core := m.core
	return func() tea.Msg {
		_, err := core.SearchStores(context.Background(), zip)
		if errors.Is(err, workflow.ErrSuperseded) {
			return opDoneMsg{op: workflow.OpStores, err: err}
		}
		// failures are already described by the results message
		return opDoneMsg{op: workflow.OpStores, note: core.Snapshot().Stores.StatusMessage}
	}
}

func (m *Model) generatePlan(description string) tea.Cmd {
	core, kind, count := m.core, m.kind, m.count
	return func() tea.Msg {
		plan, err := core.GeneratePlan(context.Background(), description, kind, count)
		if err != nil {
			return opDoneMsg{op: workflow.OpPlan, err: err}
		}
		return opDoneMsg{op: workflow.OpPlan, note: fmt.Sprintf("Generated %d %s meals.", len(plan.Meals), kind)}
	}
}

func (m *Model) stageCart() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		_, err := core.StageCart(context.Background())
		return opDoneMsg{op: workflow.OpCart, err: err, note: "Cart staged."}
	}
}

func (m *Model) requestReport() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		rep, err := core.RequestReport(context.Background())
		if err != nil {
			return opDoneMsg{op: workflow.OpReport, err: err}
		}
		return opDoneMsg{op: workflow.OpReport, note: "Report saved to " + rep.Path}
	}
}

func nextKind(k planner.MealKind) planner.MealKind {
	for i, known := range planner.MealKinds {
		if known == k {
			return planner.MealKinds[(i+1)%len(planner.MealKinds)]
		}
	}
	return planner.MealKinds[0]
}
