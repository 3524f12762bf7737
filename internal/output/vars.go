package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))            // dark green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	debugStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"info":    "ℹ",
	"bullet":  "•",
}

func PrintSuccess(w io.Writer, text string) {
	fmt.Fprintln(w, successStyle.Render(StyleSymbols["pass"]+" "+text))
}
func PrintError(w io.Writer, text string) {
	fmt.Fprintln(w, errorStyle.Render(StyleSymbols["fail"]+" "+text))
}
func PrintWarning(w io.Writer, text string) {
	fmt.Fprintln(w, warningStyle.Render(StyleSymbols["warning"]+" "+text))
}
func PrintInfo(w io.Writer, text string) {
	fmt.Fprintln(w, infoStyle.Render(StyleSymbols["info"]+" "+text))
}
func PrintHeader(w io.Writer, text string) {
	fmt.Fprintln(w, headerStyle.Render(text))
}
func FDebug(text string) string {
	return debugStyle.Render(text)
}
