package fakebackend

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// peer is one live chat socket. Writes are serialized because pushes from
// REST handlers race with the socket's own handler.
type peer struct {
	id      string
	agentID int
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) writeJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.ws.WriteJSON(v)
}

// Hub maps agent ids to their live chat socket. A reconnect replaces the
// previous entry; only the current peer may remove itself.
type Hub struct {
	mu    sync.RWMutex
	peers map[int]*peer
	opens int
	live  int
}

func NewHub() *Hub {
	return &Hub{peers: make(map[int]*peer)}
}

func (h *Hub) attach(agentID int, ws *websocket.Conn) *peer {
	p := &peer{id: uuid.NewString(), agentID: agentID, ws: ws}
	h.mu.Lock()
	h.peers[agentID] = p
	h.opens++
	h.live++
	h.mu.Unlock()
	return p
}

// detach drops p from the live count and removes it if it is still the
// registered peer for its agent. It reports whether it was.
func (h *Hub) detach(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live--
	if h.peers[p.agentID] != p {
		return false
	}
	delete(h.peers, p.agentID)
	return true
}

// Push delivers v to agentID's socket. It reports false when the agent has
// no live socket.
func (h *Hub) Push(agentID int, v any) (bool, error) {
	h.mu.RLock()
	p, ok := h.peers[agentID]
	h.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := p.writeJSON(v); err != nil {
		_ = p.ws.Close()
		return true, err
	}
	return true, nil
}

// Connected reports whether agentID currently holds a chat socket.
func (h *Hub) Connected(agentID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[agentID]
	return ok
}

// ActiveCount is the number of agents with a live chat socket.
func (h *Hub) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// LiveSockets counts chat sockets whose handler is still running, including
// superseded ones that have not closed yet.
func (h *Hub) LiveSockets() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// Opens counts every chat socket ever attached.
func (h *Hub) Opens() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opens
}

// Kick closes agentID's chat socket from the server side with a normal
// closure. It reports whether a socket was open.
func (h *Hub) Kick(agentID int, reason string) bool {
	h.mu.RLock()
	p, ok := h.peers[agentID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	_ = p.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeTimeout))
	_ = p.ws.Close()
	return true
}
