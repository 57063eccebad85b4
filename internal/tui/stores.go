package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ent0n29/synthwave/internal/a2a"
	"github.com/ent0n29/synthwave/internal/protocol"
	"github.com/ent0n29/synthwave/internal/voice"
)

// ChatStore is the A2A state the chat view reads and drives. *a2a.Store
// implements it.
type ChatStore interface {
	Snapshot() a2a.Snapshot
	SetCurrentAgent(agent *protocol.Agent)
	SetActiveChatAgent(agent *protocol.Agent)
	FetchAgents(ctx context.Context) error
	RegisterAgent(ctx context.Context, draft protocol.AgentCreate) error
	FetchMessages(ctx context.Context, agentID int) error
	SendMessage(ctx context.Context, senderID int, draft protocol.MessageCreate) error
	ConnectCurrentAgent(ctx context.Context) error
	DisconnectWebSocket()
}

// VoiceStore is the voice state the voice view reads and drives.
// *voice.Store implements it.
type VoiceStore interface {
	Snapshot() voice.Snapshot
	Toggle(ctx context.Context) error
	StopPlayback()
	SendVideoChunk(content string) error
}

// chatChangedMsg and voiceChangedMsg are sent by the store change hooks.
type (
	chatChangedMsg  struct{}
	voiceChangedMsg struct{}
)

// actionDoneMsg reports the end of one store action run as a command.
type actionDoneMsg struct {
	action string
	err    error
}

// Bind forwards store changes into program. Store calls are always made
// from commands, never from Update, so the hooks never send on the
// program's own goroutine.
func Bind(program *tea.Program, chat *a2a.Store, talk *voice.Store) {
	if chat != nil {
		chat.SetChangeHook(func() { program.Send(chatChangedMsg{}) })
	}
	if talk != nil {
		talk.SetChangeHook(func() { program.Send(voiceChangedMsg{}) })
	}
}

// run wraps a store action as a command.
func run(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn()}
	}
}
