package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/heapstore/internal/api"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9B9B9B"))
)

func renderResult(w io.Writer, res *api.Result) {
	widths := make([]int, len(res.Columns))
	for i, col := range res.Columns {
		widths[i] = lipgloss.Width(col)
	}
	for _, row := range res.Rows {
		for i, cell := range row {
			if n := lipgloss.Width(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	fmt.Fprintln(w, formatRow(res.Columns, widths, headerStyle))
	separator := make([]string, len(widths))
	for i, width := range widths {
		separator[i] = strings.Repeat("-", width)
	}
	fmt.Fprintln(w, formatRow(separator, widths, mutedStyle))
	for _, row := range res.Rows {
		fmt.Fprintln(w, formatRow(row, widths, lipgloss.NewStyle()))
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("(%d row(s))", len(res.Rows))))
}

func formatRow(values []string, widths []int, style lipgloss.Style) string {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = style.Render(v + strings.Repeat(" ", widths[i]-lipgloss.Width(v)))
	}
	return strings.Join(cells, " | ")
}
