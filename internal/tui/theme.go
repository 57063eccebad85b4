package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/synthwave/internal/a2a"
)

// Theme is the neon palette shared by both views. Colors are ANSI 256
// codes so they render on any modern terminal.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	Accent    lipgloss.Color // fuchsia: names, active ring, inputs
	Highlight lipgloss.Color // cyan: titles and status line
	Selected  lipgloss.Color // indigo: active peer and own messages

	Online  lipgloss.Color
	Busy    lipgloss.Color
	Offline lipgloss.Color

	BorderColor lipgloss.Color
	HelpText    lipgloss.Color
	WarnText    lipgloss.Color
	ErrorText   lipgloss.Color
}

// ToneColor maps an agent status bucket to its dot color.
func (theme Theme) ToneColor(tone a2a.Tone) lipgloss.Color {
	switch tone {
	case a2a.ToneOnline:
		return theme.Online
	case a2a.ToneBusy:
		return theme.Busy
	default:
		return theme.Offline
	}
}

var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	Accent:    lipgloss.Color("207"),
	Highlight: lipgloss.Color("51"),
	Selected:  lipgloss.Color("62"),

	Online:  lipgloss.Color("42"),
	Busy:    lipgloss.Color("220"),
	Offline: lipgloss.Color("196"),

	BorderColor: lipgloss.Color("240"),
	HelpText:    lipgloss.Color("241"),
	WarnText:    lipgloss.Color("214"),
	ErrorText:   lipgloss.Color("203"),
}
