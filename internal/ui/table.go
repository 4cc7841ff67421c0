package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderTable draws rows under headers with the shared palette. Cells
// equal to "-" are muted.
func RenderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			if row >= 0 && row < len(rows) && col < len(rows[row]) && rows[row][col] == "-" {
				return TableMutedCellStyle
			}
			return TableCellStyle
		})
	return t.Render()
}
