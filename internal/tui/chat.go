package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/synthwave/internal/a2a"
	"github.com/ent0n29/synthwave/internal/protocol"
)

type chatFocus int

const (
	focusAgents chatFocus = iota
	focusCompose
)

const sidebarWidth = 32

// ChatModel is the agent-to-agent view: registration, peer list and the
// conversation with the selected peer.
type ChatModel struct {
	ctx   context.Context
	store ChatStore
	keys  KeyMap
	theme Theme

	snap     a2a.Snapshot
	register lineInput
	compose  lineInput
	focus    chatFocus
	cursor   int

	width  int
	height int

	// active is true while the view is on screen. boundAgentID is the
	// current agent the socket and history were last loaded for.
	active       bool
	boundAgentID int
}

func NewChatModel(ctx context.Context, store ChatStore, theme Theme, keys KeyMap) ChatModel {
	return ChatModel{
		ctx:      ctx,
		store:    store,
		keys:     keys,
		theme:    theme,
		register: newLineInput("Enter your agent name"),
		compose:  newLineInput("Type a message..."),
		focus:    focusAgents,
		snap:     store.Snapshot(),
	}
}

// activate loads the agent list and, when an agent is already signed in,
// its socket and history.
func (model *ChatModel) activate() tea.Cmd {
	model.active = true
	model.boundAgentID = 0
	model.snap = model.store.Snapshot()
	return tea.Batch(model.fetchAgents(), model.bindCurrentAgent())
}

// deactivate drops the socket while the view is hidden.
func (model *ChatModel) deactivate() tea.Cmd {
	model.active = false
	model.boundAgentID = 0
	store := model.store
	return run("disconnect", func() error {
		store.DisconnectWebSocket()
		return nil
	})
}

func (model ChatModel) Update(message tea.Msg) (ChatModel, tea.Cmd) {
	switch message := message.(type) {
	case chatChangedMsg:
		model.refresh()
		return model, model.bindCurrentAgent()

	case actionDoneMsg:
		model.refresh()
		cmds := []tea.Cmd{model.bindCurrentAgent()}
		if message.action == "register_agent" {
			cmds = append(cmds, model.fetchAgents())
		}
		return model, tea.Batch(cmds...)

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model *ChatModel) refresh() {
	model.snap = model.store.Snapshot()
	peers := model.peers()
	if model.cursor >= len(peers) {
		model.cursor = len(peers) - 1
	}
	if model.cursor < 0 {
		model.cursor = 0
	}
}

// bindCurrentAgent connects the socket and loads history whenever the
// current agent changes, and disconnects when it is cleared.
func (model *ChatModel) bindCurrentAgent() tea.Cmd {
	if !model.active {
		return nil
	}
	currentID := 0
	if model.snap.CurrentAgent != nil {
		currentID = model.snap.CurrentAgent.ID
	}
	if currentID == model.boundAgentID {
		return nil
	}
	model.boundAgentID = currentID

	store, ctx := model.store, model.ctx
	if currentID == 0 {
		return run("disconnect", func() error {
			store.DisconnectWebSocket()
			return nil
		})
	}
	return tea.Batch(
		run("connect", func() error { return store.ConnectCurrentAgent(ctx) }),
		run("fetch_messages", func() error { return store.FetchMessages(ctx, currentID) }),
	)
}

func (model ChatModel) fetchAgents() tea.Cmd {
	store, ctx := model.store, model.ctx
	return run("fetch_agents", func() error { return store.FetchAgents(ctx) })
}

func (model ChatModel) peers() []protocol.Agent {
	currentID := 0
	if model.snap.CurrentAgent != nil {
		currentID = model.snap.CurrentAgent.ID
	}
	return a2a.Peers(model.snap.Agents, currentID)
}

func (model ChatModel) handleKey(message tea.KeyMsg) (ChatModel, tea.Cmd) {
	store, ctx := model.store, model.ctx

	if model.snap.CurrentAgent == nil {
		if key.Matches(message, model.keys.Submit) {
			name := strings.TrimSpace(model.register.Value())
			if name == "" {
				return model, nil
			}
			model.register.Reset()
			draft := protocol.AgentCreate{Name: name, Status: protocol.AgentOnline}
			return model, run("register_agent", func() error { return store.RegisterAgent(ctx, draft) })
		}
		if key.Matches(message, model.keys.Up, model.keys.Down) {
			model.moveCursor(message)
			return model, nil
		}
		model.register.HandleKey(message)
		return model, nil
	}

	switch {
	case key.Matches(message, model.keys.Logout):
		model.compose.Reset()
		model.focus = focusAgents
		return model, run("logout", func() error {
			store.SetCurrentAgent(nil)
			store.DisconnectWebSocket()
			return nil
		})

	case key.Matches(message, model.keys.FocusNext):
		if model.focus == focusAgents {
			model.focus = focusCompose
		} else {
			model.focus = focusAgents
		}
		return model, nil
	}

	if model.focus == focusAgents {
		switch {
		case key.Matches(message, model.keys.Up, model.keys.Down):
			model.moveCursor(message)
		case key.Matches(message, model.keys.Submit):
			peers := model.peers()
			if len(peers) == 0 {
				return model, nil
			}
			peer := peers[model.cursor]
			model.focus = focusCompose
			return model, run("select_agent", func() error {
				store.SetActiveChatAgent(&peer)
				return nil
			})
		}
		return model, nil
	}

	if key.Matches(message, model.keys.Submit) {
		content := strings.TrimSpace(model.compose.Value())
		current, peer := model.snap.CurrentAgent, model.snap.ActiveChatAgent
		if content == "" || current == nil || peer == nil {
			return model, nil
		}
		model.compose.Reset()
		senderID := current.ID
		draft := protocol.MessageCreate{ReceiverID: peer.ID, Content: content, MessageType: protocol.MessageText}
		return model, run("send_message", func() error { return store.SendMessage(ctx, senderID, draft) })
	}
	model.compose.HandleKey(message)
	return model, nil
}

func (model *ChatModel) moveCursor(message tea.KeyMsg) {
	peers := model.peers()
	if len(peers) == 0 {
		return
	}
	if key.Matches(message, model.keys.Up) && model.cursor > 0 {
		model.cursor--
	}
	if key.Matches(message, model.keys.Down) && model.cursor < len(peers)-1 {
		model.cursor++
	}
}

func (model *ChatModel) setSize(width, height int) {
	model.width = width
	model.height = height
}

func (model ChatModel) View() string {
	sidebar := lipgloss.JoinVertical(lipgloss.Left,
		model.renderAgentCard(),
		model.renderPeerList(),
	)
	mainWidth := model.width - sidebarWidth - 1
	if mainWidth < 20 {
		mainWidth = 20
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", model.renderChatPane(mainWidth))
}

func (model ChatModel) card(title string, body string) string {
	titleStyle := lipgloss.NewStyle().Foreground(model.theme.Highlight).Bold(true)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Padding(0, 1).
		Width(sidebarWidth - 2).
		Render(titleStyle.Render(title) + "\n" + body)
}

func (model ChatModel) renderAgentCard() string {
	current := model.snap.CurrentAgent
	if current == nil {
		body := model.register.View(model.theme, sidebarWidth-4, true) + "\n" +
			lipgloss.NewStyle().Foreground(model.theme.HelpText).Render("enter: Register Agent")
		return model.card("Your Agent", body)
	}
	name := lipgloss.NewStyle().Foreground(model.theme.Accent).Render(current.Name)
	status := lipgloss.NewStyle().Foreground(model.theme.ToneColor(a2a.StatusTone(current.Status))).Render(current.Status)
	logout := lipgloss.NewStyle().Foreground(model.theme.HelpText).Render("ctrl+l: Logout")
	return model.card("Your Agent", fmt.Sprintf("Name: %s\nStatus: %s\n%s", name, status, logout))
}

func (model ChatModel) renderPeerList() string {
	peers := model.peers()
	if len(peers) == 0 {
		empty := lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("No other agents available.")
		return model.card("Available Agents", empty)
	}
	var lines []string
	for index, peer := range peers {
		dot := lipgloss.NewStyle().Foreground(model.theme.ToneColor(a2a.StatusTone(peer.Status))).Render("●")
		line := dot + " " + peer.Name
		style := lipgloss.NewStyle().Width(sidebarWidth - 4)
		if model.snap.ActiveChatAgent != nil && model.snap.ActiveChatAgent.ID == peer.ID {
			style = style.Background(model.theme.Selected)
		}
		if model.snap.CurrentAgent != nil && model.focus == focusAgents && index == model.cursor {
			line = "› " + line
		} else {
			line = "  " + line
		}
		lines = append(lines, style.Render(line))
	}
	return model.card("Available Agents", strings.Join(lines, "\n"))
}

func (model ChatModel) renderChatPane(width int) string {
	peer := model.snap.ActiveChatAgent
	if peer == nil {
		return lipgloss.Place(width, max(model.height, 3), lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("Select an agent to start chatting"))
	}

	header := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Padding(0, 1).
		Width(width - 2).
		Render(lipgloss.NewStyle().Foreground(model.theme.Highlight).Render("Chat with ") +
			lipgloss.NewStyle().Foreground(model.theme.Accent).Render(peer.Name))

	currentID := 0
	if model.snap.CurrentAgent != nil {
		currentID = model.snap.CurrentAgent.ID
	}
	var lines []string
	for _, msg := range a2a.Thread(model.snap.Messages, currentID, peer.ID) {
		lines = append(lines, model.renderMessage(msg, currentID == msg.SenderID, peer.Name, width)...)
	}

	composeFocused := model.snap.CurrentAgent != nil && model.focus == focusCompose
	compose := model.compose.View(model.theme, width, composeFocused)

	// Keep the newest messages in view.
	available := model.height - lipgloss.Height(header) - lipgloss.Height(compose)
	if available > 0 && len(lines) > available {
		lines = lines[len(lines)-available:]
	}
	body := strings.Join(lines, "\n")
	if available > 0 {
		body = lipgloss.NewStyle().Height(available).Render(body)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, compose)
}

func (model ChatModel) renderMessage(msg protocol.Message, own bool, peerName string, width int) []string {
	label := peerName
	bubble := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	align := lipgloss.Left
	if own {
		label = "You"
		bubble = bubble.Foreground(model.theme.Accent)
		align = lipgloss.Right
	}
	stamp := ""
	if !msg.Timestamp.IsZero() {
		stamp = " • " + msg.Timestamp.Local().Format("15:04:05")
	}
	meta := lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(label + stamp)
	block := lipgloss.NewStyle().Width(width).Align(align).Render(meta + "\n" + bubble.Render(msg.Content))
	return strings.Split(block, "\n")
}

func (model ChatModel) helpBindings() []key.Binding {
	if model.snap.CurrentAgent == nil {
		return []key.Binding{model.keys.Submit}
	}
	return []key.Binding{model.keys.FocusNext, model.keys.Up, model.keys.Down, model.keys.Submit, model.keys.Logout}
}
