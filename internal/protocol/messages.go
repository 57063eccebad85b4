package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Agent statuses the backend accepts. The client treats any other value as
// offline for display purposes.
const (
	AgentOnline  = "online"
	AgentOffline = "offline"
	AgentBusy    = "busy"
)

// Message types the backend accepts. The chat view only ever sends text.
const (
	MessageText  = "text"
	MessageVoice = "voice"
	MessageVideo = "video"
)

// Frame types carried in the "type" field of socket frames. A video chunk
// travels on the voice socket and is relayed between agents on the chat
// socket.
const (
	FrameMessage    = "message"
	FrameVideoChunk = "video_chunk"
)

var ErrInvalidMessage = errors.New("invalid message payload")

type Agent struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type AgentCreate struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

type Message struct {
	ID          int       `json:"id"`
	SenderID    int       `json:"sender_id"`
	ReceiverID  int       `json:"receiver_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Timestamp   Timestamp `json:"timestamp"`
}

type MessageCreate struct {
	ReceiverID  int    `json:"receiver_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

// ChatFrame is what an agent writes on its own chat socket. Type selects
// between a stored message and a relayed video chunk.
type ChatFrame struct {
	Type        string `json:"type"`
	ReceiverID  int    `json:"receiver_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
}

// VideoChunk carries base64 video. SenderID is set only when the chunk is
// relayed to another agent's chat socket.
type VideoChunk struct {
	Type     string `json:"type"`
	SenderID int    `json:"sender_id,omitempty"`
	Content  string `json:"content"`
}

// Timestamp accepts both zoned RFC3339 values and the naive ISO datetimes
// the agent backend emits. Naive values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(raw []byte) error {
	s := strings.TrimSpace(string(raw))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, v)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", v)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// DecodeMessage parses one chat-socket frame. Frames that are valid JSON but
// carry no sender/receiver pair (for example relayed video chunks) are
// rejected so they never enter a conversation thread.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.SenderID == 0 || msg.ReceiverID == 0 {
		return Message{}, fmt.Errorf("%w: missing sender_id or receiver_id", ErrInvalidMessage)
	}
	return msg, nil
}

// ValidAgentStatus reports whether s is one of the statuses the backend stores.
func ValidAgentStatus(s string) bool {
	switch s {
	case AgentOnline, AgentOffline, AgentBusy:
		return true
	default:
		return false
	}
}

// ValidMessageType reports whether s is one of the accepted message types.
func ValidMessageType(s string) bool {
	switch s {
	case MessageText, MessageVoice, MessageVideo:
		return true
	default:
		return false
	}
}
