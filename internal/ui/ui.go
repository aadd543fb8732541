// Package ui styles CLI output and collects interactive input.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/pacetech/docflow/internal/docflow/schema"
	docsync "github.com/pacetech/docflow/internal/docflow/sync"
)

var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}
	colorBlue   = lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"}
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(colorGray)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorGreen)
	WarnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	KeyStyle     = lipgloss.NewStyle().Foreground(colorBlue)
)

// Init picks the color profile for out. Non-terminals get plain text, and
// NO_COLOR / CLICOLOR_FORCE are honored.
func Init(out *os.File) {
	if !IsTerminal(out) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or 100 when unknown.
func Width(f *os.File) int {
	if f == nil {
		return 100
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

// Status renders a record status.
func Status(s schema.Status) string {
	switch s {
	case schema.StatusSynced:
		return SuccessStyle.Render(string(s))
	case schema.StatusPending:
		return WarnStyle.Render(string(s))
	case schema.StatusError:
		return ErrorStyle.Render(string(s))
	default:
		return string(s)
	}
}

// Indicator renders an indicator state with its glyph.
func Indicator(s docsync.IndicatorState) string {
	switch s {
	case docsync.IndicatorOnline:
		return SuccessStyle.Render("● online")
	case docsync.IndicatorOffline:
		return MutedStyle.Render("○ offline")
	case docsync.IndicatorSyncing:
		return KeyStyle.Render("↻ syncing")
	case docsync.IndicatorError:
		return ErrorStyle.Render("✕ error")
	default:
		return string(s)
	}
}

// Result renders a pass summary colored by outcome.
func Result(res docsync.Result) string {
	switch {
	case res.Skipped:
		return MutedStyle.Render(res.Summary())
	case res.Failed > 0:
		return WarnStyle.Render(res.Summary())
	default:
		return SuccessStyle.Render(res.Summary())
	}
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TitleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.String()
}

// KeyValues writes aligned "key: value" lines.
func KeyValues(w io.Writer, pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	for _, p := range pairs {
		key := p[0] + ":" + strings.Repeat(" ", width-len(p[0]))
		fmt.Fprintf(w, "%s %s\n", KeyStyle.Render(key), p[1])
	}
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// Confirm asks a yes/no question on the terminal.
func Confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}
