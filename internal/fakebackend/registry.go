package fakebackend

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/synthwave/internal/protocol"
)

var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrSenderNotFound     = errors.New("sender agent not found")
	ErrReceiverNotFound   = errors.New("receiver agent not found")
	ErrDuplicateName      = errors.New("agent name already registered")
	ErrInvalidName        = errors.New("agent name is required")
	ErrInvalidStatus      = errors.New("status must be one of online, offline, busy")
	ErrInvalidMessageType = errors.New("message_type must be one of text, voice, video")
)

// Registry is the in-process stand-in for the backend database: agents with
// unique names and an append-only message log.
type Registry struct {
	mu            sync.RWMutex
	agents        []protocol.Agent
	byName        map[string]int
	messages      []protocol.Message
	nextAgentID   int
	nextMessageID int
	now           func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byName:        make(map[string]int),
		nextAgentID:   1,
		nextMessageID: 1,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) CreateAgent(draft protocol.AgentCreate) (protocol.Agent, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return protocol.Agent{}, ErrInvalidName
	}
	status := draft.Status
	if status == "" {
		status = protocol.AgentOffline
	}
	if !protocol.ValidAgentStatus(status) {
		return protocol.Agent{}, ErrInvalidStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return protocol.Agent{}, ErrDuplicateName
	}
	a := protocol.Agent{ID: r.nextAgentID, Name: name, Status: status}
	r.nextAgentID++
	r.agents = append(r.agents, a)
	r.byName[name] = a.ID
	return a, nil
}

func (r *Registry) Agent(id int) (protocol.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return protocol.Agent{}, ErrAgentNotFound
	}
	return r.agents[idx], nil
}

// Agents pages through agents in id order.
func (r *Registry) Agents(skip, limit int) []protocol.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if skip < 0 {
		skip = 0
	}
	if skip >= len(r.agents) {
		return []protocol.Agent{}
	}
	end := len(r.agents)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return append([]protocol.Agent{}, r.agents[skip:end]...)
}

func (r *Registry) SetStatus(id int, status string) error {
	if !protocol.ValidAgentStatus(status) {
		return ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(id)
	if idx < 0 {
		return ErrAgentNotFound
	}
	r.agents[idx].Status = status
	return nil
}

func (r *Registry) CreateMessage(senderID int, draft protocol.MessageCreate) (protocol.Message, error) {
	msgType := draft.MessageType
	if msgType == "" {
		msgType = protocol.MessageText
	}
	if !protocol.ValidMessageType(msgType) {
		return protocol.Message{}, ErrInvalidMessageType
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(senderID) < 0 {
		return protocol.Message{}, ErrSenderNotFound
	}
	if r.indexOf(draft.ReceiverID) < 0 {
		return protocol.Message{}, ErrReceiverNotFound
	}
	m := protocol.Message{
		ID:          r.nextMessageID,
		SenderID:    senderID,
		ReceiverID:  draft.ReceiverID,
		Content:     draft.Content,
		MessageType: msgType,
		Timestamp:   protocol.Timestamp{Time: r.now()},
	}
	r.nextMessageID++
	r.messages = append(r.messages, m)
	return m, nil
}

// MessagesFor returns every message agentID sent or received, oldest first.
func (r *Registry) MessagesFor(agentID int) []protocol.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []protocol.Message{}
	for _, m := range r.messages {
		if m.SenderID == agentID || m.ReceiverID == agentID {
			out = append(out, m)
		}
	}
	return out
}

func (r *Registry) indexOf(id int) int {
	for i, a := range r.agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}
