package a2a

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/synthwave/internal/observability"
	"github.com/ent0n29/synthwave/internal/protocol"
)

const socketLabel = "chat"

// ErrConnectSuperseded is returned when a disconnect or a change of current
// agent lands while a connect is in flight. No socket is kept.
var ErrConnectSuperseded = errors.New("chat socket connect superseded")

// Backend is the REST surface plus the chat socket dialer. *Client
// implements it.
type Backend interface {
	ListAgents(ctx context.Context) ([]protocol.Agent, error)
	RegisterAgent(ctx context.Context, draft protocol.AgentCreate) (protocol.Agent, error)
	ListMessages(ctx context.Context, agentID int) ([]protocol.Message, error)
	SendMessage(ctx context.Context, senderID int, draft protocol.MessageCreate) (protocol.Message, error)
	DialChat(ctx context.Context, agentID int) (*websocket.Conn, error)
}

// Snapshot is a copy of the store state safe to hand to a renderer.
type Snapshot struct {
	Agents          []protocol.Agent
	Messages        []protocol.Message
	CurrentAgent    *protocol.Agent
	ActiveChatAgent *protocol.Agent
	// SocketAgentID is the agent the live socket is scoped to, or 0 when no
	// socket is held.
	SocketAgentID int
}

// Store owns the A2A chat state and its single live socket. Every network
// action logs its failure and leaves state untouched; the error is also
// returned so callers may surface it, though the views do not.
type Store struct {
	backend Backend
	logger  *slog.Logger
	metrics *observability.Metrics

	// connMu serializes socket replacement so a new socket is only dialed
	// after the previous one has been released.
	connMu sync.Mutex

	mu              sync.RWMutex
	agents          []protocol.Agent
	messages        []protocol.Message
	currentAgent    *protocol.Agent
	activeChatAgent *protocol.Agent
	conn            *chatConn
	// epoch advances on every disconnect and every change of current
	// agent. A connect that observes a different epoch after its dial
	// discards the new socket.
	epoch    uint64
	onChange func()
}

type chatConn struct {
	ws      *websocket.Conn
	agentID int
	closing atomic.Bool
	once    sync.Once
}

func (c *chatConn) close() {
	c.once.Do(func() {
		c.closing.Store(true)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func NewStore(backend Backend, logger *slog.Logger, metrics *observability.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger.With("component", "a2a_store"),
		metrics: metrics,
	}
}

// SetChangeHook registers the function called after every state change.
// It runs outside the store lock and may call Snapshot.
func (s *Store) SetChangeHook(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = hook
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Agents:          append([]protocol.Agent(nil), s.agents...),
		Messages:        append([]protocol.Message(nil), s.messages...),
		CurrentAgent:    cloneAgent(s.currentAgent),
		ActiveChatAgent: cloneAgent(s.activeChatAgent),
	}
	if s.conn != nil {
		snap.SocketAgentID = s.conn.agentID
	}
	return snap
}

func (s *Store) SetAgents(agents []protocol.Agent) {
	s.mu.Lock()
	s.agents = append([]protocol.Agent(nil), agents...)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SetCurrentAgent(agent *protocol.Agent) {
	s.mu.Lock()
	if idOf(s.currentAgent) != idOf(agent) {
		s.epoch++
	}
	s.currentAgent = cloneAgent(agent)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SetActiveChatAgent(agent *protocol.Agent) {
	s.mu.Lock()
	s.activeChatAgent = cloneAgent(agent)
	s.mu.Unlock()
	s.notify()
}

// AddMessage appends in arrival order. No sorting or de-duplication is
// applied.
func (s *Store) AddMessage(msg protocol.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) FetchAgents(ctx context.Context) error {
	started := time.Now()
	agents, err := s.backend.ListAgents(ctx)
	s.observe("list_agents", started, err)
	if err != nil {
		s.logger.Error("failed to fetch agents", "error", err)
		return err
	}
	s.SetAgents(agents)
	return nil
}

func (s *Store) RegisterAgent(ctx context.Context, draft protocol.AgentCreate) error {
	started := time.Now()
	agent, err := s.backend.RegisterAgent(ctx, draft)
	s.observe("register_agent", started, err)
	if err != nil {
		s.logger.Error("failed to register agent", "name", draft.Name, "error", err)
		return err
	}
	s.logger.Info("agent registered", "agent_id", agent.ID, "name", agent.Name)
	s.SetCurrentAgent(&agent)
	return nil
}

func (s *Store) FetchMessages(ctx context.Context, agentID int) error {
	started := time.Now()
	messages, err := s.backend.ListMessages(ctx, agentID)
	s.observe("list_messages", started, err)
	if err != nil {
		s.logger.Error("failed to fetch messages", "agent_id", agentID, "error", err)
		return err
	}
	s.mu.Lock()
	s.messages = append([]protocol.Message(nil), messages...)
	s.mu.Unlock()
	s.notify()
	return nil
}

// SendMessage appends the server-confirmed message only after the POST
// returns.
func (s *Store) SendMessage(ctx context.Context, senderID int, draft protocol.MessageCreate) error {
	started := time.Now()
	msg, err := s.backend.SendMessage(ctx, senderID, draft)
	s.observe("send_message", started, err)
	if err != nil {
		s.logger.Error("failed to send message", "sender_id", senderID, "receiver_id", draft.ReceiverID, "error", err)
		return err
	}
	s.AddMessage(msg)
	return nil
}

// ConnectWebSocket releases any socket the store holds and then opens a new
// one scoped to agentID. Frames are decoded as messages and appended.
func (s *Store) ConnectWebSocket(ctx context.Context, agentID int) error {
	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()
	return s.connect(ctx, agentID, epoch)
}

// ConnectCurrentAgent opens the socket for whichever agent is current when
// it is called. It does nothing when no agent is set.
func (s *Store) ConnectCurrentAgent(ctx context.Context) error {
	s.mu.RLock()
	id, epoch := idOf(s.currentAgent), s.epoch
	s.mu.RUnlock()
	if id == 0 {
		return nil
	}
	return s.connect(ctx, id, epoch)
}

func (s *Store) connect(ctx context.Context, agentID int, epoch uint64) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if !s.epochIs(epoch) {
		s.logger.Info("websocket connect superseded", "agent_id", agentID)
		return ErrConnectSuperseded
	}
	if s.releaseConn() {
		s.notify()
	}

	ws, err := s.backend.DialChat(ctx, agentID)
	if err != nil {
		s.socketEvent("error")
		s.logger.Error("websocket error", "agent_id", agentID, "error", err)
		return err
	}
	c := &chatConn{ws: ws, agentID: agentID}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		c.close()
		s.logger.Info("websocket connect superseded", "agent_id", agentID)
		return ErrConnectSuperseded
	}
	s.conn = c
	s.mu.Unlock()
	s.socketEvent("open")
	if s.metrics != nil {
		s.metrics.ActiveSockets.WithLabelValues(socketLabel).Inc()
	}
	s.logger.Info("websocket connected", "agent_id", agentID)
	s.notify()

	go s.readLoop(c)
	return nil
}

// DisconnectWebSocket closes the owned socket, if any, and clears the handle.
// A connect still dialing when this is called discards its socket.
func (s *Store) DisconnectWebSocket() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.releaseConn() {
		s.notify()
	}
}

func (s *Store) epochIs(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch == epoch
}

// releaseConn detaches and closes the current socket. It reports whether a
// socket was held.
func (s *Store) releaseConn() bool {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()
	if c == nil {
		return false
	}
	c.close()
	if s.metrics != nil {
		s.metrics.ActiveSockets.WithLabelValues(socketLabel).Dec()
	}
	return true
}

func (s *Store) readLoop(c *chatConn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			s.handleSocketEnd(c, err)
			return
		}
		s.socketEvent("message")
		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			if s.metrics != nil {
				s.metrics.DroppedSocketData.WithLabelValues(socketLabel, "decode").Inc()
			}
			s.logger.Error("failed to parse websocket message", "agent_id", c.agentID, "error", err)
			continue
		}
		s.AddMessage(msg)
	}
}

// handleSocketEnd runs once per connection when its reader stops. The handle
// is cleared only if it still points at c, so a superseded socket never
// clobbers its replacement. A connection lost without a close frame
// surfaces as code 1006 and counts as an error.
func (s *Store) handleSocketEnd(c *chatConn, err error) {
	var closeErr *websocket.CloseError
	switch {
	case c.closing.Load():
		s.logger.Debug("websocket closed locally", "agent_id", c.agentID)
	case errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure:
		s.socketEvent("close")
		s.logger.Info("websocket closed", "agent_id", c.agentID, "code", closeErr.Code, "reason", closeErr.Text)
	default:
		s.socketEvent("error")
		s.logger.Error("websocket error", "agent_id", c.agentID, "error", err)
	}
	c.close()

	s.mu.Lock()
	owned := s.conn == c
	if owned {
		s.conn = nil
	}
	s.mu.Unlock()
	if !owned {
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSockets.WithLabelValues(socketLabel).Dec()
	}
	s.notify()
}

func (s *Store) notify() {
	s.mu.RLock()
	hook := s.onChange
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (s *Store) observe(operation string, started time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveHTTP(operation, time.Since(started), err)
	}
}

func (s *Store) socketEvent(event string) {
	if s.metrics != nil {
		s.metrics.SocketEvents.WithLabelValues(socketLabel, event).Inc()
	}
}

func idOf(a *protocol.Agent) int {
	if a == nil {
		return 0
	}
	return a.ID
}

func cloneAgent(a *protocol.Agent) *protocol.Agent {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
