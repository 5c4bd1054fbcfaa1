package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitter/internal/core"
)

func press(t *testing.T, a *App, keys ...tea.KeyMsg) *App {
	t.Helper()
	for _, k := range keys {
		model, _ := a.Update(k)
		next, ok := model.(*App)
		require.True(t, ok, "model must stay *App")
		a = next
	}
	return a
}

func typeText(t *testing.T, a *App, s string) *App {
	t.Helper()
	return press(t, a, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

var (
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
)

// splitWith fills the count and total fields and presses the split button.
func splitWith(t *testing.T, a *App, count, total string) *App {
	t.Helper()
	a.setFocus(slotCount)
	a.count.SetValue("")
	a.total.SetValue("")
	a = typeText(t, a, count)
	a = press(t, a, keyTab)
	a = typeText(t, a, total)
	return press(t, a, keyTab, keyEnter)
}

func TestApp_SplitShowsBannerAndInputs(t *testing.T) {
	a := splitWith(t, NewApp(), "3", "150")

	s := a.Session()
	assert.Equal(t, core.StateParametersSet, s.State)
	assert.Equal(t, 50.0, s.Average)
	assert.Len(t, a.contributions, 3)
	assert.Equal(t, firstContributionSlot, a.focus, "focus jumps to User 1")
	assert.True(t, a.contributions[0].Focused())

	view := a.View()
	assert.Contains(t, view, "All users to pay: Rs 50.00")
	assert.Contains(t, view, "User 3")
	assert.Contains(t, view, submitLabel)
}

func TestApp_InvalidSplitKeepsPreviousSession(t *testing.T) {
	a := splitWith(t, NewApp(), "2", "100")
	before := a.Session()

	a = splitWith(t, a, "0", "100")
	assert.Equal(t, core.ErrNonPositiveCount.Error(), a.errMsg)
	assert.Equal(t, before, a.Session())
	assert.Len(t, a.contributions, 2)
	assert.Contains(t, a.View(), core.ErrNonPositiveCount.Error())

	a = splitWith(t, a, "2", "abc")
	assert.Equal(t, core.ErrNonPositiveTotal.Error(), a.errMsg)
	assert.Equal(t, before, a.Session())
}

func TestApp_SplitBeforeAnythingIsRejected(t *testing.T) {
	a := press(t, NewApp(), keyTab, keyTab, keyEnter)
	assert.False(t, a.Session().Initialized())
	assert.NotEmpty(t, a.errMsg)
	assert.NotContains(t, a.View(), submitLabel)
}

func TestApp_SubmitComputesPlan(t *testing.T) {
	a := splitWith(t, NewApp(), "3", "150")

	a = typeText(t, a, "100")
	a = press(t, a, keyEnter)
	a = typeText(t, a, "30")
	a = press(t, a, keyEnter)
	a = typeText(t, a, "20")
	a = press(t, a, keyEnter)
	require.Equal(t, a.submitSlot(), a.focus, "enter on the last input moves to submit")
	a = press(t, a, keyEnter)

	s := a.Session()
	assert.Equal(t, core.StateSettlementComputed, s.State)
	assert.Equal(t, []float64{100, 30, 20}, s.Contributions)
	assert.Equal(t, []string{
		"You need to receive Rs 50.00",
		"Pay total Extra Rs 20.00\nYou pay Rs 20.00 to User 1",
		"Pay total Extra Rs 30.00\nYou pay Rs 30.00 to User 1",
	}, s.Plan.Messages)

	view := a.View()
	assert.Contains(t, view, "You need to receive Rs 50.00")
	assert.Contains(t, view, "You pay Rs 30.00 to User 1")
}

func TestApp_EmptyContributionsCountAsZero(t *testing.T) {
	a := splitWith(t, NewApp(), "2", "50")
	a.setFocus(a.submitSlot())
	a = press(t, a, keyEnter)

	assert.Equal(t, []string{
		"Pay total Extra Rs 25.00\nYou still need to pay Rs25.00",
		"Pay total Extra Rs 25.00\nYou still need to pay Rs25.00",
	}, a.Session().Plan.Messages)
}

func TestApp_ResubmitIsIdempotent(t *testing.T) {
	a := splitWith(t, NewApp(), "2", "100")
	a = typeText(t, a, "80")
	a.setFocus(a.submitSlot())
	a = press(t, a, keyEnter)
	first := a.Session().Plan

	a = press(t, a, keyEnter)
	assert.Equal(t, first, a.Session().Plan)
}

func TestApp_FocusWraps(t *testing.T) {
	a := NewApp()
	assert.Equal(t, slotCount, a.focus)

	a = press(t, a, keyUp)
	assert.Equal(t, slotSplit, a.focus, "before a split only count, total and the button are focusable")

	a = press(t, a, keyTab)
	assert.Equal(t, slotCount, a.focus)
	assert.True(t, a.count.Focused())
	assert.False(t, a.total.Focused())
}

func TestApp_QuitKeys(t *testing.T) {
	for _, k := range []tea.KeyMsg{{Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		_, cmd := NewApp().Update(k)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestApp_WithTolerance(t *testing.T) {
	a := NewApp(WithTolerance(0.001), WithTolerance(-1))
	assert.Equal(t, 0.001, a.tolerance)
}

func TestApp_WindowSize(t *testing.T) {
	a := splitWith(t, NewApp(), "4", "40")
	model, _ := a.Update(tea.WindowSizeMsg{Width: 40, Height: 20})
	a = model.(*App)
	assert.Equal(t, 40, a.width)
	assert.Contains(t, a.View(), "User 4")
}
