package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorDim    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorError  = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#F25D94"}

	titleStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

// maxCellWidth caps a column's display width; longer cells are truncated.
const maxCellWidth = 60

// writeTable prints rows as aligned columns. Widths are measured in terminal
// cells so Hangul titles line up.
func writeTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], min(runewidth.StringWidth(row[i]), maxCellWidth))
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = runewidth.FillRight(h, widths[i])
	}
	fmt.Fprintln(w, headerStyle.Render(strings.Join(cells, "  ")))

	for i := range widths {
		cells[i] = strings.Repeat("-", widths[i])
	}
	fmt.Fprintln(w, dimStyle.Render(strings.Join(cells, "  ")))

	for _, row := range rows {
		for i := range widths {
			content := ""
			if i < len(row) {
				content = runewidth.Truncate(row[i], widths[i], "…")
			}
			cells[i] = runewidth.FillRight(content, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}
