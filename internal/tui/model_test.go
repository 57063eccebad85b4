package tui

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ent0n29/synthwave/internal/a2a"
	"github.com/ent0n29/synthwave/internal/fakebackend"
	"github.com/ent0n29/synthwave/internal/observability"
	"github.com/ent0n29/synthwave/internal/protocol"
	"github.com/ent0n29/synthwave/internal/voice"
)

type testRig struct {
	chat    *a2a.Store
	talk    *voice.Store
	backend *fakebackend.Server
	player  *voice.MockPlayer
}

func newTestRig(t *testing.T) testRig {
	t.Helper()
	backend := fakebackend.New(nil, nil)
	server := httptest.NewServer(backend.Router())
	t.Cleanup(server.Close)

	metrics := observability.NewMetrics("test_tui_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"))
	chat := a2a.NewStore(a2a.NewClient(server.URL, 5*time.Second), nil, metrics)
	t.Cleanup(chat.DisconnectWebSocket)

	player := voice.NewMockPlayer()
	voiceURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/voice-chat"
	talk := voice.NewStore(voice.NewWSDialer(voiceURL), voice.NewMockCapture(), player, nil, metrics)
	t.Cleanup(talk.Close)

	return testRig{chat: chat, talk: talk, backend: backend, player: player}
}

func (rig testRig) model(t *testing.T, options ...Option) Model {
	t.Helper()
	model := NewModel(context.Background(), rig.chat, rig.talk, options...)
	model = drain(t, model, model.Init())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return updated.(Model)
}

// drain runs cmd and every command it leads to, feeding each message back
// into the model the way the program loop would.
func drain(t *testing.T, model Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 200 {
			t.Fatalf("command queue did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		message := next()
		if batch, ok := message.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		updated, more := model.Update(message)
		model = updated.(Model)
		queue = append(queue, more)
	}
	return model
}

func press(t *testing.T, model Model, message tea.KeyMsg) Model {
	t.Helper()
	updated, cmd := model.Update(message)
	return drain(t, updated.(Model), cmd)
}

func typeText(t *testing.T, model Model, text string) Model {
	t.Helper()
	return press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

var (
	enterKey  = tea.KeyMsg{Type: tea.KeyEnter}
	spaceKey  = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	switchKey = tea.KeyMsg{Type: tea.KeyCtrlT}
	logoutKey = tea.KeyMsg{Type: tea.KeyCtrlL}
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func registerNova(t *testing.T, model Model) Model {
	t.Helper()
	model = typeText(t, model, "  Nova ")
	return press(t, model, enterKey)
}

func TestViewBeforeWindowSize(t *testing.T) {
	rig := newTestRig(t)
	model := NewModel(context.Background(), rig.chat, rig.talk)
	if view := model.View(); view != "Loading..." {
		t.Fatalf("View() = %q, want Loading...", view)
	}
}

func TestDefaultViewIsVoice(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t)

	view := model.View()
	for _, want := range []string{"V2V Chat", "A2A Chat", "SYNTHWAVE VOICE AI", "Press space to start"} {
		if !strings.Contains(view, want) {
			t.Errorf("voice view missing %q", want)
		}
	}
	if rig.backend.Hub().Opens() != 0 {
		t.Fatalf("voice view opened a chat socket")
	}
}

func TestSwitchViewFetchesAgents(t *testing.T) {
	rig := newTestRig(t)
	if _, err := rig.backend.Registry().CreateAgent(protocol.AgentCreate{Name: "Bob", Status: protocol.AgentOnline}); err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	model := rig.model(t)

	model = press(t, model, switchKey)
	if model.view != ViewChat {
		t.Fatalf("view = %v, want %v", model.view, ViewChat)
	}
	if got := len(rig.chat.Snapshot().Agents); got != 1 {
		t.Fatalf("len(Agents) = %d, want 1", got)
	}
	view := model.View()
	for _, want := range []string{"Your Agent", "Available Agents", "Bob", "Select an agent to start chatting"} {
		if !strings.Contains(view, want) {
			t.Errorf("chat view missing %q", want)
		}
	}

	model = press(t, model, switchKey)
	if model.view != ViewVoice {
		t.Fatalf("view = %v, want %v", model.view, ViewVoice)
	}
}

func TestEmptyPeerListMessage(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t, WithInitialView(ViewChat))
	if !strings.Contains(model.View(), "No other agents available.") {
		t.Fatalf("empty peer list message missing")
	}
}

func TestRegisterThroughChatView(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t, WithInitialView(ViewChat))

	model = registerNova(t, model)

	current := rig.chat.Snapshot().CurrentAgent
	if current == nil || current.Name != "Nova" || current.Status != protocol.AgentOnline {
		t.Fatalf("CurrentAgent = %+v, want online Nova", current)
	}
	if model.chat.register.Value() != "" {
		t.Fatalf("registration input not cleared: %q", model.chat.register.Value())
	}
	waitFor(t, "chat socket", func() bool { return rig.backend.Hub().Connected(current.ID) })

	found := false
	for _, agent := range rig.chat.Snapshot().Agents {
		if agent.ID == current.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("agent list not refreshed after registration")
	}
	if !strings.Contains(model.View(), "Logout") {
		t.Fatalf("agent card does not offer logout")
	}
}

func TestBlankRegistrationIsIgnored(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t, WithInitialView(ViewChat))

	model = typeText(t, model, "   ")
	updated, cmd := model.Update(enterKey)
	if cmd != nil {
		t.Fatalf("blank registration produced a command")
	}
	model = updated.(Model)
	if rig.chat.Snapshot().CurrentAgent != nil {
		t.Fatalf("blank registration set a current agent")
	}
}

func TestSelectPeerAndSendMessage(t *testing.T) {
	rig := newTestRig(t)
	bob, err := rig.backend.Registry().CreateAgent(protocol.AgentCreate{Name: "Bob", Status: protocol.AgentOnline})
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	model := rig.model(t, WithInitialView(ViewChat))
	model = registerNova(t, model)

	model = press(t, model, enterKey)
	active := rig.chat.Snapshot().ActiveChatAgent
	if active == nil || active.ID != bob.ID {
		t.Fatalf("ActiveChatAgent = %+v, want Bob", active)
	}
	if model.chat.focus != focusCompose {
		t.Fatalf("focus = %v, want compose", model.chat.focus)
	}

	model = typeText(t, model, " hi bob ")
	model = press(t, model, enterKey)

	messages := rig.chat.Snapshot().Messages
	if len(messages) != 1 || messages[0].Content != "hi bob" || messages[0].ReceiverID != bob.ID {
		t.Fatalf("Messages = %+v, want one trimmed message to Bob", messages)
	}
	if model.chat.compose.Value() != "" {
		t.Fatalf("compose input not cleared: %q", model.chat.compose.Value())
	}
	view := model.View()
	for _, want := range []string{"Chat with", "You", "hi bob"} {
		if !strings.Contains(view, want) {
			t.Errorf("chat pane missing %q", want)
		}
	}
}

func TestSendRequiresActivePeer(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t, WithInitialView(ViewChat))
	model = registerNova(t, model)

	model = press(t, model, tea.KeyMsg{Type: tea.KeyTab})
	model = typeText(t, model, "hello")
	updated, cmd := model.Update(enterKey)
	if cmd != nil {
		t.Fatalf("send without an active peer produced a command")
	}
	model = updated.(Model)
	if model.chat.compose.Value() != "hello" {
		t.Fatalf("compose input = %q, want it kept", model.chat.compose.Value())
	}
}

func TestLogoutDisconnects(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t, WithInitialView(ViewChat))
	model = registerNova(t, model)
	waitFor(t, "chat socket", func() bool { return rig.backend.Hub().LiveSockets() == 1 })

	model = press(t, model, logoutKey)

	if rig.chat.Snapshot().CurrentAgent != nil {
		t.Fatalf("CurrentAgent still set after logout")
	}
	if rig.chat.Snapshot().SocketAgentID != 0 {
		t.Fatalf("socket still held after logout")
	}
	waitFor(t, "socket close", func() bool { return rig.backend.Hub().LiveSockets() == 0 })
	if !strings.Contains(model.View(), "Enter your agent name") {
		t.Fatalf("registration input not shown after logout")
	}
}

func TestLeavingChatViewDropsSocket(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t, WithInitialView(ViewChat))
	model = registerNova(t, model)
	waitFor(t, "chat socket", func() bool { return rig.backend.Hub().LiveSockets() == 1 })

	model = press(t, model, switchKey)
	waitFor(t, "socket close", func() bool { return rig.backend.Hub().LiveSockets() == 0 })

	model = press(t, model, switchKey)
	waitFor(t, "reconnect", func() bool { return rig.backend.Hub().LiveSockets() == 1 })
	if got := rig.backend.Hub().Opens(); got != 2 {
		t.Fatalf("Opens() = %d, want 2", got)
	}
}

func TestVoiceToggleRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t)

	model = press(t, model, spaceKey)
	if rig.talk.Snapshot().Status != voice.StatusListening {
		t.Fatalf("Status = %q, want listening", rig.talk.Snapshot().Status)
	}
	if !strings.Contains(model.View(), "Say something") {
		t.Fatalf("listening status line missing")
	}

	model = press(t, model, spaceKey)
	waitFor(t, "reply playback", func() bool { return len(rig.player.Played()) == 1 })
	waitFor(t, "idle", func() bool { return rig.talk.Snapshot().Status == voice.StatusIdle })

	updated, _ := model.Update(voiceChangedMsg{})
	model = updated.(Model)
	view := model.View()
	if !strings.Contains(view, voice.ResponseReceived) || !strings.Contains(view, "Press space to start") {
		t.Fatalf("voice view after reply:\n%s", view)
	}
}

func TestVideoKeySendsChunk(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t)

	model = press(t, model, spaceKey)
	model = press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'v'}})
	waitFor(t, "video chunk", func() bool { return rig.backend.VideoChunks() == 1 })
}

type respondingVoice struct {
	toggles int
}

func (v *respondingVoice) Snapshot() voice.Snapshot {
	return voice.Snapshot{Status: voice.StatusResponding}
}
func (v *respondingVoice) Toggle(context.Context) error { v.toggles++; return nil }
func (v *respondingVoice) StopPlayback()               {}
func (v *respondingVoice) SendVideoChunk(string) error { return nil }

func TestSpaceIgnoredWhileResponding(t *testing.T) {
	rig := newTestRig(t)
	talk := &respondingVoice{}
	model := NewModel(context.Background(), rig.chat, talk)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	if !strings.Contains(model.View(), "Processing...") {
		t.Fatalf("responding status line missing")
	}
	_, cmd := model.Update(spaceKey)
	if cmd != nil {
		t.Fatalf("space while responding produced a command")
	}
	if talk.toggles != 0 {
		t.Fatalf("Toggle called %d times", talk.toggles)
	}
}

func TestLogRecordShowsAndFades(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t)

	updated, cmd := model.Update(logRecordMsg{Summary: "send failed", Level: slog.LevelError, seq: 3})
	model = updated.(Model)
	if cmd == nil {
		t.Fatalf("log record did not schedule a fade")
	}
	if !strings.Contains(model.View(), "send failed") {
		t.Fatalf("status bar missing log record")
	}

	updated, _ = model.Update(logRecordFadeMsg{seq: 2})
	model = updated.(Model)
	if !strings.Contains(model.View(), "send failed") {
		t.Fatalf("stale fade cleared a newer record")
	}

	updated, _ = model.Update(logRecordFadeMsg{seq: 3})
	model = updated.(Model)
	if strings.Contains(model.View(), "send failed") {
		t.Fatalf("fade did not clear the record")
	}
}

func TestQuit(t *testing.T) {
	rig := newTestRig(t)
	model := rig.model(t)
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("ctrl+c did not quit")
	}
}

func TestParseView(t *testing.T) {
	tests := []struct {
		name string
		want View
		ok   bool
	}{
		{"", ViewVoice, true},
		{"voice", ViewVoice, true},
		{"V2V", ViewVoice, true},
		{"a2a", ViewChat, true},
		{" chat ", ViewChat, true},
		{"video", ViewVoice, false},
	}
	for _, test := range tests {
		got, ok := ParseView(test.name)
		if got != test.want || ok != test.ok {
			t.Errorf("ParseView(%q) = %v, %v; want %v, %v", test.name, got, ok, test.want, test.ok)
		}
	}
}
