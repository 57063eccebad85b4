package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View selects the tab on screen.
type View int

const (
	ViewVoice View = iota
	ViewChat
)

func (view View) String() string {
	if view == ViewChat {
		return "A2A Chat"
	}
	return "V2V Chat"
}

// ParseView maps "voice"/"v2v" and "a2a"/"chat" to a view.
func ParseView(name string) (View, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "voice", "v2v":
		return ViewVoice, true
	case "a2a", "chat":
		return ViewChat, true
	}
	return ViewVoice, false
}

// Option configures a Model.
type Option func(*Model)

func WithInitialView(view View) Option {
	return func(model *Model) { model.view = view }
}

func WithTheme(theme Theme) Option {
	return func(model *Model) { model.theme = theme }
}

// Model is the root program model: a tab bar over the voice and chat
// views plus a status bar showing the latest log record.
type Model struct {
	keys  KeyMap
	theme Theme
	view  View

	voice VoiceModel
	chat  ChatModel

	width  int
	height int
	ready  bool

	logSummary string
	logLevel   slog.Level
	logSeq     uint64

	initCmd tea.Cmd
}

func NewModel(ctx context.Context, chat ChatStore, talk VoiceStore, options ...Option) Model {
	model := Model{
		keys:  DefaultKeyMap,
		theme: DefaultTheme,
		view:  ViewVoice,
	}
	for _, option := range options {
		option(&model)
	}
	model.voice = NewVoiceModel(ctx, talk, model.theme, model.keys)
	model.chat = NewChatModel(ctx, chat, model.theme, model.keys)
	if model.view == ViewChat {
		model.initCmd = model.chat.activate()
	}
	return model
}

func (model Model) Init() tea.Cmd {
	return model.initCmd
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit
		case key.Matches(message, model.keys.SwitchView):
			return model.switchView()
		}
		var cmd tea.Cmd
		if model.view == ViewChat {
			model.chat, cmd = model.chat.Update(message)
		} else {
			model.voice, cmd = model.voice.Update(message)
		}
		return model, cmd

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.resize()

	case chatChangedMsg:
		var cmd tea.Cmd
		model.chat, cmd = model.chat.Update(message)
		return model, cmd

	case voiceChangedMsg:
		var cmd tea.Cmd
		model.voice, cmd = model.voice.Update(message)
		return model, cmd

	case actionDoneMsg:
		var chatCmd, voiceCmd tea.Cmd
		model.chat, chatCmd = model.chat.Update(message)
		model.voice, voiceCmd = model.voice.Update(message)
		return model, tea.Batch(chatCmd, voiceCmd)

	case logRecordMsg:
		model.logSummary = message.Summary
		model.logLevel = message.Level
		model.logSeq = message.seq
		seq := message.seq
		return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{seq: seq}
		})

	case logRecordFadeMsg:
		if message.seq == model.logSeq {
			model.logSummary = ""
		}
	}
	return model, nil
}

func (model Model) switchView() (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if model.view == ViewChat {
		model.view = ViewVoice
		cmd = model.chat.deactivate()
	} else {
		model.view = ViewChat
		cmd = model.chat.activate()
	}
	return model, cmd
}

// resize hands the space between the tab bar and status bar to both views.
func (model *Model) resize() {
	bodyHeight := model.height - 2
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	model.voice.setSize(model.width, bodyHeight)
	model.chat.setSize(model.width, bodyHeight)
}

func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}
	var body string
	if model.view == ViewChat {
		body = model.chat.View()
	} else {
		body = model.voice.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, model.renderTabs(), body, model.renderStatusBar())
}

func (model Model) renderTabs() string {
	var tabs []string
	for _, view := range []View{ViewVoice, ViewChat} {
		style := lipgloss.NewStyle().Padding(0, 2).Foreground(model.theme.FaintText)
		if view == model.view {
			style = style.Foreground(model.theme.Accent).Bold(true).Underline(true)
		}
		tabs = append(tabs, style.Render(view.String()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (model Model) renderStatusBar() string {
	if model.logSummary != "" {
		color := model.theme.FaintText
		switch {
		case model.logLevel >= slog.LevelError:
			color = model.theme.ErrorText
		case model.logLevel >= slog.LevelWarn:
			color = model.theme.WarnText
		}
		return lipgloss.NewStyle().Foreground(color).MaxWidth(max(model.width, 1)).Render(model.logSummary)
	}

	bindings := []key.Binding{model.keys.SwitchView, model.keys.Quit}
	if model.view == ViewChat {
		bindings = append(model.chat.helpBindings(), bindings...)
	} else {
		bindings = append(model.voice.helpBindings(), bindings...)
	}
	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, " • "))
}
