package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/synthwave/internal/voice"
)

// DebugVideoChunk is the placeholder payload sent by the video key.
const DebugVideoChunk = "base64_encoded_video_chunk_data_example"

// VoiceModel is the push-to-talk view.
type VoiceModel struct {
	ctx   context.Context
	store VoiceStore
	keys  KeyMap
	theme Theme

	snap   voice.Snapshot
	width  int
	height int
}

func NewVoiceModel(ctx context.Context, store VoiceStore, theme Theme, keys KeyMap) VoiceModel {
	return VoiceModel{
		ctx:   ctx,
		store: store,
		keys:  keys,
		theme: theme,
		snap:  store.Snapshot(),
	}
}

func (model VoiceModel) Update(message tea.Msg) (VoiceModel, tea.Cmd) {
	switch message := message.(type) {
	case voiceChangedMsg, actionDoneMsg:
		model.snap = model.store.Snapshot()
		return model, nil

	case tea.KeyMsg:
		store, ctx := model.store, model.ctx
		switch {
		case key.Matches(message, model.keys.Toggle):
			if model.snap.Status == voice.StatusResponding {
				return model, nil
			}
			return model, run("toggle", func() error { return store.Toggle(ctx) })
		case key.Matches(message, model.keys.StopPlayback):
			return model, run("stop_playback", func() error {
				store.StopPlayback()
				return nil
			})
		case key.Matches(message, model.keys.SendVideo):
			return model, run("send_video", func() error { return store.SendVideoChunk(DebugVideoChunk) })
		}
	}
	return model, nil
}

func (model *VoiceModel) setSize(width, height int) {
	model.width = width
	model.height = height
}

func statusLine(status voice.Status) string {
	switch status {
	case voice.StatusResponding:
		return "Processing..."
	case voice.StatusListening:
		return "Say something"
	default:
		return "Press space to start"
	}
}

func (model VoiceModel) View() string {
	title := lipgloss.NewStyle().
		Foreground(model.theme.Accent).
		Bold(true).
		Render("🎙️ SYNTHWAVE VOICE AI")

	ringColor := model.theme.BorderColor
	ringBorder := lipgloss.RoundedBorder()
	glyph := "🎤"
	switch model.snap.Status {
	case voice.StatusListening:
		ringColor = model.theme.Accent
		ringBorder = lipgloss.ThickBorder()
		glyph = "● REC"
	case voice.StatusResponding:
		ringColor = model.theme.Highlight
		glyph = "…"
	}
	ring := lipgloss.NewStyle().
		Border(ringBorder).
		BorderForeground(ringColor).
		Width(11).
		Height(3).
		Align(lipgloss.Center, lipgloss.Center).
		Render(glyph)

	status := lipgloss.NewStyle().Foreground(model.theme.Highlight).Render(statusLine(model.snap.Status))

	sections := []string{title, "", ring, "", status}
	if model.snap.Response != "" {
		notice := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(model.theme.Selected).
			Padding(0, 1).
			Foreground(model.theme.NormalText).
			Render(model.snap.Response)
		sections = append(sections, "", notice)
	}

	buttons := lipgloss.NewStyle().Foreground(model.theme.HelpText).
		Render("[s] STOP RESPONSE    [v] SEND VIDEO")
	sections = append(sections, "", buttons)

	body := lipgloss.JoinVertical(lipgloss.Center, sections...)
	if model.width == 0 || model.height == 0 {
		return body
	}
	return lipgloss.Place(model.width, model.height, lipgloss.Center, lipgloss.Center, body)
}

func (model VoiceModel) helpBindings() []key.Binding {
	return []key.Binding{model.keys.Toggle, model.keys.StopPlayback, model.keys.SendVideo}
}
