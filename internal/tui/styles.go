package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"vibemon/internal/prefs"
)

type palette struct {
	primary   lipgloss.Color
	secondary lipgloss.Color
	muted     lipgloss.Color
	danger    lipgloss.Color
	warn      lipgloss.Color
	text      lipgloss.Color
	barEmpty  lipgloss.Color
}

var (
	darkPalette = palette{
		primary:   lipgloss.Color("#7C3AED"), // purple
		secondary: lipgloss.Color("#10B981"), // green
		muted:     lipgloss.Color("#6B7280"), // gray
		danger:    lipgloss.Color("#EF4444"), // red
		warn:      lipgloss.Color("#F59E0B"), // yellow
		text:      lipgloss.Color("#E5E7EB"),
		barEmpty:  lipgloss.Color("#3A3F47"),
	}
	lightPalette = palette{
		primary:   lipgloss.Color("#6D28D9"),
		secondary: lipgloss.Color("#047857"),
		muted:     lipgloss.Color("#6B7280"),
		danger:    lipgloss.Color("#B91C1C"),
		warn:      lipgloss.Color("#B45309"),
		text:      lipgloss.Color("#111827"),
		barEmpty:  lipgloss.Color("#D1D5DB"),
	}
)

// resolveTheme maps the system theme to light or dark.
func resolveTheme(theme string) string {
	if theme == prefs.ThemeSystem || theme == "" {
		if lipgloss.HasDarkBackground() {
			return prefs.ThemeDark
		}
		return prefs.ThemeLight
	}
	return theme
}

type styles struct {
	app       lipgloss.Style
	title     lipgloss.Style
	section   lipgloss.Style
	card      lipgloss.Style
	cardLabel lipgloss.Style
	cardValue lipgloss.Style
	muted     lipgloss.Style
	ok        lipgloss.Style
	warn      lipgloss.Style
	err       lipgloss.Style
	selected  lipgloss.Style
	banner    lipgloss.Style
	barFilled lipgloss.Style
	barEmpty  lipgloss.Style
	help      lipgloss.Style
	table     table.Styles
}

func newStyles(theme string) styles {
	p := darkPalette
	if resolveTheme(theme) == prefs.ThemeLight {
		p = lightPalette
	}

	t := table.DefaultStyles()
	t.Header = t.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(p.muted).
		BorderBottom(true).
		Bold(true).
		Foreground(p.primary)
	t.Cell = t.Cell.Foreground(p.text)
	t.Selected = t.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(p.primary).
		Bold(false)

	return styles{
		app: lipgloss.NewStyle().Padding(1, 2),
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(p.primary).
			Padding(0, 1),
		section: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.primary),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.muted).
			Padding(0, 1),
		cardLabel: lipgloss.NewStyle().Foreground(p.muted),
		cardValue: lipgloss.NewStyle().Bold(true).Foreground(p.text),
		muted:     lipgloss.NewStyle().Foreground(p.muted),
		ok:        lipgloss.NewStyle().Foreground(p.secondary),
		warn:      lipgloss.NewStyle().Foreground(p.warn),
		err:       lipgloss.NewStyle().Foreground(p.danger),
		selected:  lipgloss.NewStyle().Bold(true).Foreground(p.primary),
		banner: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.warn).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(p.warn).
			PaddingLeft(1),
		barFilled: lipgloss.NewStyle().Foreground(p.primary),
		barEmpty:  lipgloss.NewStyle().Foreground(p.barEmpty),
		help: lipgloss.NewStyle().
			Foreground(p.muted).
			Padding(1, 0, 0, 0),
		table: t,
	}
}
