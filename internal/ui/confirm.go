package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm prints prompt followed by "[y/N]" and reads one line from in.
// Anything but y or yes declines.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	promptStyle := lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	fmt.Fprint(out, promptStyle.Render(prompt+" [y/N]: "))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Cancelled."))
		return false
	}
}
