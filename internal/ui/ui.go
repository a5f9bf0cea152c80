// Package ui renders CLI output: status glyphs, headings and tables.
package ui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	cAccent = lipgloss.Color("63")  // blue
	cPass   = lipgloss.Color("42")  // green
	cWarn   = lipgloss.Color("214") // orange
	cFail   = lipgloss.Color("196") // red
	cMuted  = lipgloss.Color("244") // gray
)

var (
	accentStyle = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(cPass)
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(cFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(cMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(cAccent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Init picks the colour profile for out. Output that is not a terminal, or
// a terminal with NO_COLOR set, gets plain text.
func Init(out io.Writer) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(f).EnvColorProfile())
}

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// Heading renders a section title.
func Heading(title string) string {
	return accentStyle.Render(strings.ToUpper(title))
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}
