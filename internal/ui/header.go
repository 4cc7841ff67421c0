package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one key/value line. Params render in the order given.
type Param struct {
	Key   string
	Value string
}

// Header is a command banner with title, command, and parameters.
type Header struct {
	Title   string  // e.g., "ASEKO LOCAL BRIDGE"
	Command string  // e.g., "aseko-server serve"
	Params  []Param // e.g., {"Listen", "0.0.0.0:47524"}
	Width   int     // Terminal width for responsive rendering
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params ...Param) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Add appends a parameter line.
func (h *Header) Add(key, value string) *Header {
	h.Params = append(h.Params, Param{Key: key, Value: value})
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := max(h.Width, MinTerminalWidth)

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	commandLine := HeaderCommandStyle.Render(h.Command)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(h.Params) == 0 {
		return headerBox(width).Render(topSection)
	}

	divider := RenderHorizontalDivider(max(width-6, 10), "─")

	keyWidth := 0
	for _, p := range h.Params {
		keyWidth = max(keyWidth, len(p.Key)+1)
	}
	paramLines := make([]string, 0, len(h.Params))
	for _, p := range h.Params {
		key := HeaderParamKeyStyle.Width(keyWidth + 2).Render(p.Key + ":")
		paramLines = append(paramLines, key+" "+HeaderParamValueStyle.Render(p.Value))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, topSection, divider, strings.Join(paramLines, "\n"))
	return headerBox(width).Render(content)
}

func headerBox(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
