package app

import (
	"fmt"
	"strings"
	"time"

	"repoctx/internal/shared/util"

	"github.com/charmbracelet/lipgloss"
)

var (
	summaryTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3B82F6")).
				Bold(true)

	summaryOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	summaryFailStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F87171")).
				Bold(true)

	summaryLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#64748B")).
				Width(12)

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#64748B")).
			Padding(0, 1)
)

// RenderSummary formats a batch summary for a terminal.
func RenderSummary(s *BatchSummary) string {
	if s == nil {
		return ""
	}

	rows := []string{summaryTitleStyle.Render("repoctx batch " + shortRunID(s.RunID))}
	row := func(label, value string) {
		rows = append(rows, summaryLabelStyle.Render(label)+value)
	}

	row("files", fmt.Sprintf("%d", s.Files))
	if s.Failed > 0 {
		row("failed", summaryFailStyle.Render(fmt.Sprintf("%d", s.Failed)))
	} else {
		row("failed", summaryOKStyle.Render("0"))
	}
	row("cached", fmt.Sprintf("%d", s.Cached))
	if s.Stored > 0 {
		row("stored", fmt.Sprintf("%d", s.Stored))
	}

	langs := make([]string, 0, len(s.Languages))
	for _, lang := range util.SortedKeys(s.Languages) {
		langs = append(langs, fmt.Sprintf("%s=%d", lang, s.Languages[lang]))
	}
	if len(langs) > 0 {
		row("languages", strings.Join(langs, " "))
	}
	row("duration", s.Duration.Round(time.Millisecond).String())
	row("heap", fmt.Sprintf("%d MB", s.HeapMB))

	return summaryBoxStyle.Render(strings.Join(rows, "\n"))
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
