package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// lineInput is a single-line text field with a cursor.
type lineInput struct {
	buffer      []rune
	cursor      int
	placeholder string
}

func newLineInput(placeholder string) lineInput {
	return lineInput{placeholder: placeholder}
}

func (input lineInput) Value() string { return string(input.buffer) }

func (input *lineInput) Reset() {
	input.buffer = nil
	input.cursor = 0
}

// HandleKey applies an editing key and reports whether it was consumed.
func (input *lineInput) HandleKey(message tea.KeyMsg) bool {
	switch message.Type {
	case tea.KeyBackspace:
		if input.cursor > 0 {
			input.buffer = append(input.buffer[:input.cursor-1], input.buffer[input.cursor:]...)
			input.cursor--
		}
	case tea.KeyDelete:
		if input.cursor < len(input.buffer) {
			input.buffer = append(input.buffer[:input.cursor], input.buffer[input.cursor+1:]...)
		}
	case tea.KeyLeft:
		if input.cursor > 0 {
			input.cursor--
		}
	case tea.KeyRight:
		if input.cursor < len(input.buffer) {
			input.cursor++
		}
	case tea.KeyHome, tea.KeyCtrlA:
		input.cursor = 0
	case tea.KeyEnd, tea.KeyCtrlE:
		input.cursor = len(input.buffer)
	case tea.KeyCtrlU:
		input.buffer = append([]rune(nil), input.buffer[input.cursor:]...)
		input.cursor = 0
	case tea.KeyRunes, tea.KeySpace:
		runes := message.Runes
		if message.Type == tea.KeySpace {
			runes = []rune{' '}
		}
		for _, character := range runes {
			input.buffer = append(input.buffer, 0)
			copy(input.buffer[input.cursor+1:], input.buffer[input.cursor:])
			input.buffer[input.cursor] = character
			input.cursor++
		}
	default:
		return false
	}
	return true
}

// View renders the field. The cursor is drawn only when focused.
func (input lineInput) View(theme Theme, width int, focused bool) string {
	border := theme.BorderColor
	if focused {
		border = theme.Accent
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
	if width > 4 {
		style = style.Width(width - 2)
	}

	if len(input.buffer) == 0 {
		text := lipgloss.NewStyle().Foreground(theme.FaintText).Render(input.placeholder)
		if focused {
			text = cursorStyle(theme).Render(" ") + text
		}
		return style.Render(text)
	}

	var b strings.Builder
	b.WriteString(string(input.buffer[:input.cursor]))
	if focused {
		under := " "
		if input.cursor < len(input.buffer) {
			under = string(input.buffer[input.cursor])
		}
		b.WriteString(cursorStyle(theme).Render(under))
		if input.cursor < len(input.buffer) {
			b.WriteString(string(input.buffer[input.cursor+1:]))
		}
	} else {
		b.WriteString(string(input.buffer[input.cursor:]))
	}
	return style.Render(b.String())
}

func cursorStyle(theme Theme) lipgloss.Style {
	return lipgloss.NewStyle().Reverse(true).Foreground(theme.Accent)
}
