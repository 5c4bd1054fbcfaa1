// Package tui is the interactive front end: enter a head count and a total,
// split it, enter what each person paid and see who pays whom.
package tui

import (
	"io"
	"strconv"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"splitter/internal/core"
	"splitter/internal/log"
)

// Fixed focus slots ahead of the per-user inputs. The submit button follows
// the last contribution input.
const (
	slotCount = iota
	slotTotal
	slotSplit
	firstContributionSlot
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithTolerance overrides the settlement tolerance.
func WithTolerance(tol float64) AppOption {
	return func(a *App) {
		if tol >= 0 {
			a.tolerance = tol
		}
	}
}

// WithLogger sets the logger. The TUI owns the terminal, so it should not
// write to stdout.
func WithLogger(logger *log.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger.WithComponent(log.ComponentTUI)
		}
	}
}

// App is the bubbletea model holding one split session.
type App struct {
	session   core.Session
	tolerance float64
	logger    *log.Logger

	count         textinput.Model
	total         textinput.Model
	contributions []textinput.Model

	focus     int
	statusMsg string
	errMsg    string
	width     int
}

// NewApp returns an App with the count field focused.
func NewApp(opts ...AppOption) *App {
	a := &App{
		tolerance: core.DefaultTolerance,
		logger:    log.New(log.Config{Output: io.Discard, Component: log.ComponentTUI}),
		count:     newInput("Number of users", 4),
		total:     newInput("Total amount", 16),
		statusMsg: "Enter the number of users and the total amount.",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.setFocus(slotCount)
	return a
}

func newInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 20
	ti.Prompt = "› "
	return ti
}

func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return a, tea.Quit
		case "tab", "down":
			return a, a.setFocus(a.focus + 1)
		case "shift+tab", "up":
			return a, a.setFocus(a.focus - 1)
		case "enter":
			return a.activate()
		}
	}

	return a, a.updateFocusedInput(msg)
}

// slots is the number of focusable elements on screen.
func (a *App) slots() int {
	if !a.session.Initialized() {
		return firstContributionSlot
	}
	return firstContributionSlot + len(a.contributions) + 1
}

func (a *App) submitSlot() int {
	return firstContributionSlot + len(a.contributions)
}

// setFocus moves focus to slot i, wrapping around.
func (a *App) setFocus(i int) tea.Cmd {
	n := a.slots()
	a.focus = ((i % n) + n) % n

	a.count.Blur()
	a.total.Blur()
	for j := range a.contributions {
		a.contributions[j].Blur()
	}

	if in := a.input(a.focus); in != nil {
		return in.Focus()
	}
	return nil
}

// input returns the text input at slot i, or nil for buttons.
func (a *App) input(i int) *textinput.Model {
	switch {
	case i == slotCount:
		return &a.count
	case i == slotTotal:
		return &a.total
	case i >= firstContributionSlot && i < a.submitSlot():
		return &a.contributions[i-firstContributionSlot]
	}
	return nil
}

func (a *App) updateFocusedInput(msg tea.Msg) tea.Cmd {
	in := a.input(a.focus)
	if in == nil {
		return nil
	}
	var cmd tea.Cmd
	*in, cmd = in.Update(msg)
	return cmd
}

// activate presses the focused button, or advances from an input.
func (a *App) activate() (tea.Model, tea.Cmd) {
	switch {
	case a.focus == slotSplit:
		return a, a.split()
	case a.session.Initialized() && a.focus == a.submitSlot():
		a.submit()
		return a, nil
	}
	return a, a.setFocus(a.focus + 1)
}

// split derives the average and lays out one contribution input per user.
// Invalid input keeps the previous session on screen.
func (a *App) split() tea.Cmd {
	count := core.ParseParticipantCount(a.count.Value())
	total := core.ParseTotal(a.total.Value())

	next, err := a.session.Split(count, total)
	if err != nil {
		a.errMsg = err.Error()
		a.logger.Debug("Split rejected", log.FieldParticipants, count, log.FieldTotal, total, log.FieldError, err)
		return nil
	}

	a.session = next
	a.errMsg = ""
	a.statusMsg = next.AverageBanner()
	a.contributions = make([]textinput.Model, count)
	for i := range a.contributions {
		a.contributions[i] = newInput("Paid by User "+strconv.Itoa(i+1), 16)
	}
	a.logger.Debug("Split derived",
		log.FieldParticipants, count, log.FieldTotal, total, log.FieldAverage, next.Average)
	return a.setFocus(firstContributionSlot)
}

// submit records every contribution field and recomputes the plan.
func (a *App) submit() {
	next := a.session
	for i, in := range a.contributions {
		var err error
		if next, err = next.RecordContribution(i, in.Value()); err != nil {
			a.errMsg = err.Error()
			return
		}
	}
	a.session = next.ComputeSettlement(a.tolerance)
	a.errMsg = ""
	a.statusMsg = a.session.AverageBanner()
	a.logger.Debug("Settlement computed",
		log.FieldState, a.session.State.String(),
		log.FieldTransfers, len(a.session.Plan.Transfers),
		log.FieldResiduals, len(a.session.Plan.Residuals))
}

// Session returns the current split session.
func (a *App) Session() core.Session {
	return a.session
}
