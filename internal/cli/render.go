package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitline/internal/completion"
	"github.com/julianstephens/habitline/internal/history"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	doneStyle = lipgloss.NewStyle().
			Strikethrough(true)

	badgeStyles = map[completion.Status]lipgloss.Style{
		completion.Pending: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		completion.OnTime:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		completion.Early:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		completion.Late:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

const maxBarWidth = 30

// Header renders a section title.
func Header(title string) string {
	return headerStyle.Render(title)
}

// Badge renders a fixed-width status label.
func Badge(s completion.Status) string {
	style, ok := badgeStyles[s]
	if !ok {
		style = badgeStyles[completion.Pending]
	}
	return style.Width(9).Render(s.Label())
}

// HabitLine renders one classified habit.
func HabitLine(h completion.Classified, loc *time.Location) string {
	kind := "parent"
	if !h.IsParent() {
		kind = "occurrence"
	}
	title := h.Title
	if h.Status.Done() {
		title = doneStyle.Render(title)
	}
	return fmt.Sprintf("%s  %s  %s  %s %s",
		dimStyle.Render(h.ID),
		h.DueAt.In(loc).Format("Mon Jan 02 15:04"),
		Badge(h.Status),
		title,
		dimStyle.Render("("+kind+")"))
}

// BarChart renders one bar per history entry, scaled to the busiest day.
func BarChart(entries []history.Entry) string {
	peak := 0
	for _, e := range entries {
		if e.Count > peak {
			peak = e.Count
		}
	}

	var b strings.Builder
	for _, e := range entries {
		width := 0
		if peak > 0 {
			width = e.Count * maxBarWidth / peak
		}
		if e.Count > 0 && width == 0 {
			width = 1
		}
		fmt.Fprintf(&b, "%s %s %s %d\n",
			e.Label,
			dimStyle.Render(e.Day),
			barStyle.Render(strings.Repeat("█", width)),
			e.Count)
	}
	return b.String()
}
