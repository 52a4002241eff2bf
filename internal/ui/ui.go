// Package ui renders CLI output: styled when stdout is a terminal,
// plain when piped.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// IsTTY reports whether stdout is a terminal.
func IsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func render(style lipgloss.Style, s string) string {
	if IsTTY() {
		return style.Render(s)
	}
	return s
}

// Title formats a heading.
func Title(s string) string { return render(titleStyle, s) }

// Path formats a file path.
func Path(s string) string { return render(pathStyle, s) }

// Score formats a relevance score.
func Score(v float64) string { return render(scoreStyle, fmt.Sprintf("%.3f", v)) }

// Dim formats secondary text.
func Dim(s string) string { return render(dimStyle, s) }

// Error formats an error line.
func Error(s string) string { return render(errorStyle, s) }

// Success formats a success line.
func Success(s string) string { return render(successStyle, s) }

// ProgressLine renders one carriage-returned progress line.
func ProgressLine(phase string, current, total int) string {
	if total > 0 {
		return fmt.Sprintf("\r%s %d/%d", Dim(phase), current, total)
	}
	return fmt.Sprintf("\r%s", Dim(phase))
}
