package a2a

import "github.com/ent0n29/synthwave/internal/protocol"

// Tone buckets an agent status for display.
type Tone int

const (
	ToneOffline Tone = iota
	ToneOnline
	ToneBusy
)

// StatusTone maps a free-form status to its display bucket. Anything other
// than online or busy renders as offline.
func StatusTone(status string) Tone {
	switch status {
	case protocol.AgentOnline:
		return ToneOnline
	case protocol.AgentBusy:
		return ToneBusy
	default:
		return ToneOffline
	}
}

// Thread returns the conversation between agents a and b in arrival order.
// Messages between either agent and a third party are excluded.
func Thread(messages []protocol.Message, a, b int) []protocol.Message {
	var out []protocol.Message
	for _, m := range messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	return out
}

// Peers lists every agent except currentID. A zero currentID keeps them all.
func Peers(agents []protocol.Agent, currentID int) []protocol.Agent {
	out := make([]protocol.Agent, 0, len(agents))
	for _, a := range agents {
		if currentID != 0 && a.ID == currentID {
			continue
		}
		out = append(out, a)
	}
	return out
}
