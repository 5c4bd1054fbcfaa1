package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			Width(18)
	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444"))
	focusedButtonStyle = buttonStyle.
				BorderForeground(lipgloss.Color("#5B8DEF")).
				Foreground(lipgloss.Color("#5B8DEF")).
				Bold(true)
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7BD88F"))
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			MarginRight(1)
	cardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	planStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DDDDDD"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)
)

const (
	splitLabel  = "Set users & calculate split"
	submitLabel = "Submit contributions"
	cardsPerRow = 3
)

func (a *App) View() string {
	sections := []string{
		titleStyle.Render("SPLITTER"),
		lipgloss.JoinHorizontal(lipgloss.Center, labelStyle.Render("Number of users"), a.count.View()),
		lipgloss.JoinHorizontal(lipgloss.Center, labelStyle.Render("Total amount (Rs)"), a.total.View()),
		a.renderButton(splitLabel, a.focus == slotSplit),
	}

	if a.session.Initialized() {
		sections = append(sections,
			bannerStyle.Render(a.session.AverageBanner()),
			a.renderCards(),
			a.renderButton(submitLabel, a.focus == a.submitSlot()),
		)
	} else {
		sections = append(sections, hintStyle.Render(a.statusMsg))
	}

	if a.errMsg != "" {
		sections = append(sections, errorStyle.Render(a.errMsg))
	}
	sections = append(sections, hintStyle.Render("tab/↓ next · shift+tab/↑ previous · enter select · esc quit"))
	return strings.Join(sections, "\n")
}

func (a *App) renderButton(label string, focused bool) string {
	if focused {
		return focusedButtonStyle.Render(label)
	}
	return buttonStyle.Render(label)
}

// renderCards lays out one card per user: the contribution input and, once
// computed, that user's settlement message.
func (a *App) renderCards() string {
	cards := make([]string, 0, len(a.contributions))
	for i := range a.contributions {
		body := []string{
			cardTitleStyle.Render(fmt.Sprintf("User %d", i+1)),
			a.contributions[i].View(),
		}
		if msg := a.planMessage(i); msg != "" {
			body = append(body, planStyle.Render(msg))
		}
		cards = append(cards, cardStyle.Render(strings.Join(body, "\n")))
	}

	perRow := cardsPerRow
	if a.width > 0 {
		perRow = max(1, a.width/34)
	}
	var rows []string
	for start := 0; start < len(cards); start += perRow {
		end := min(start+perRow, len(cards))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[start:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (a *App) planMessage(i int) string {
	if i < len(a.session.Plan.Messages) {
		return a.session.Plan.Messages[i]
	}
	return ""
}
