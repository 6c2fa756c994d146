// Package styles holds the two terminal themes and the lipgloss styles
// derived from them.
package styles

import (
	"image/color"
	"strings"

	"charm.land/lipgloss/v2"
)

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Palette is the set of colors a theme is built from.
type Palette struct {
	Background    string
	BackgroundAlt string
	Text          string
	TextSecondary string
	Muted         string
	Border        string
	Accent        string
	Success       string
	Error         string
	Warning       string
	Info          string
	Badge         string
	Selected      string
}

// Tokyo Night
var darkPalette = Palette{
	Background:    "#1A1B26",
	BackgroundAlt: "#24283B",
	Text:          "#C0CAF5",
	TextSecondary: "#9AA5CE",
	Muted:         "#8B95C1",
	Border:        "#6B75A8",
	Accent:        "#7AA2F7",
	Success:       "#9ECE6A",
	Error:         "#F7768E",
	Warning:       "#E0AF68",
	Info:          "#7DCFFF",
	Badge:         "#BB9AF7",
	Selected:      "#364A82",
}

// Tokyo Night Day
var lightPalette = Palette{
	Background:    "#E1E2E7",
	BackgroundAlt: "#D0D5E3",
	Text:          "#3760BF",
	TextSecondary: "#6172B0",
	Muted:         "#848CB5",
	Border:        "#A8AECB",
	Accent:        "#2E7DE9",
	Success:       "#587539",
	Error:         "#F52A65",
	Warning:       "#8C6C3E",
	Info:          "#007197",
	Badge:         "#9854F1",
	Selected:      "#B7C1E3",
}

// Theme is a palette together with every style the UI draws with.
type Theme struct {
	Name    string
	Palette Palette

	Background color.Color

	Base      lipgloss.Style
	Muted     lipgloss.Style
	Secondary lipgloss.Style
	Bold      lipgloss.Style
	Accent    lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Info      lipgloss.Style
	Badge     lipgloss.Style

	UserMessage lipgloss.Style
	Selected    lipgloss.Style
	Panel       lipgloss.Style
	PanelFocus  lipgloss.Style
	Modal       lipgloss.Style
	StatusBar   lipgloss.Style
	Separator   lipgloss.Style
}

// Normalize maps any theme name to ThemeDark or ThemeLight.
func Normalize(name string) string {
	if strings.EqualFold(strings.TrimSpace(name), ThemeLight) {
		return ThemeLight
	}
	return ThemeDark
}

// ByName returns the theme for name, falling back to the dark theme.
func ByName(name string) Theme {
	if Normalize(name) == ThemeLight {
		return newTheme(ThemeLight, lightPalette)
	}
	return newTheme(ThemeDark, darkPalette)
}

func newTheme(name string, p Palette) Theme {
	base := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Text))
	return Theme{
		Name:       name,
		Palette:    p,
		Background: lipgloss.Color(p.Background),

		Base:      base,
		Muted:     base.Foreground(lipgloss.Color(p.Muted)),
		Secondary: base.Foreground(lipgloss.Color(p.TextSecondary)),
		Bold:      base.Bold(true),
		Accent:    base.Foreground(lipgloss.Color(p.Accent)),
		Success:   base.Foreground(lipgloss.Color(p.Success)),
		Error:     base.Foreground(lipgloss.Color(p.Error)),
		Warning:   base.Foreground(lipgloss.Color(p.Warning)),
		Info:      base.Foreground(lipgloss.Color(p.Info)),
		Badge:     base.Foreground(lipgloss.Color(p.Badge)).Bold(true),

		UserMessage: base.
			Padding(0, 1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color(p.Accent)).
			Bold(true),
		Selected: base.Background(lipgloss.Color(p.Selected)),
		Panel: base.
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.Border)).
			Padding(0, 1),
		PanelFocus: base.
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.Accent)).
			Padding(0, 1),
		Modal: base.
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color(p.Warning)).
			Padding(1, 2),
		StatusBar: base.Foreground(lipgloss.Color(p.TextSecondary)).Padding(0, 1),
		Separator: base.Foreground(lipgloss.Color(p.Border)),
	}
}
