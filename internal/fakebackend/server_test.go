package fakebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/synthwave/internal/protocol"
)

func newTestServer(t *testing.T, responder Responder) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(nil, responder)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

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

func TestCreateAgentDefaultsAndConflicts(t *testing.T) {
	_, ts := newTestServer(t, nil)

	res := postJSON(t, ts.URL+"/agents/", protocol.AgentCreate{Name: "Nova"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var agent protocol.Agent
	if err := json.NewDecoder(res.Body).Decode(&agent); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	if agent.ID == 0 || agent.Name != "Nova" || agent.Status != protocol.AgentOffline {
		t.Fatalf("unexpected agent: %+v", agent)
	}

	dup := postJSON(t, ts.URL+"/agents/", protocol.AgentCreate{Name: "Nova"})
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want %d", dup.StatusCode, http.StatusConflict)
	}

	bad := postJSON(t, ts.URL+"/agents/", protocol.AgentCreate{Name: "Orion", Status: "asleep"})
	if bad.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid status code = %d, want %d", bad.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateMessageRequiresKnownAgents(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	a, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "a"})

	res := postJSON(t, ts.URL+"/messages/999", protocol.MessageCreate{ReceiverID: a.ID, Content: "hi"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown sender status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
	res = postJSON(t, ts.URL+"/messages/1", protocol.MessageCreate{ReceiverID: 999, Content: "hi"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown receiver status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestMessagePushedToReceiverSocket(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	alice, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "alice"})
	bob, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "bob"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/ws/chat/2"), nil)
	if err != nil {
		t.Fatalf("dial chat: %v", err)
	}
	defer conn.Close()
	waitFor(t, "bob online", func() bool {
		got, _ := srv.Registry().Agent(bob.ID)
		return got.Status == protocol.AgentOnline
	})

	res := postJSON(t, ts.URL+"/messages/1", protocol.MessageCreate{ReceiverID: bob.ID, Content: "ping"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pushed message: %v", err)
	}
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if msg.SenderID != alice.ID || msg.ReceiverID != bob.ID || msg.Content != "ping" {
		t.Fatalf("unexpected pushed message: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Fatalf("pushed message has no timestamp")
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	waitFor(t, "bob offline", func() bool {
		got, _ := srv.Registry().Agent(bob.ID)
		return got.Status == protocol.AgentOffline
	})
}

func dialChat(t *testing.T, srv *Server, ts *httptest.Server, agentID int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/ws/chat/"+strconv.Itoa(agentID)), nil)
	if err != nil {
		t.Fatalf("dial chat %d: %v", agentID, err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, "chat socket attached", func() bool { return srv.Hub().Connected(agentID) })
	return conn
}

// expectSilence fails if conn receives any frame within a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected frame on sender socket: %s", data)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("read error = %v, want timeout", err)
	}
}

func TestChatSocketMessageFrameStoredAndForwarded(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	alice, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "alice"})
	bob, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "bob"})
	sender := dialChat(t, srv, ts, alice.ID)
	receiver := dialChat(t, srv, ts, bob.ID)

	frame := protocol.ChatFrame{Type: protocol.FrameMessage, ReceiverID: bob.ID, Content: "hello"}
	if err := sender.WriteJSON(frame); err != nil {
		t.Fatalf("write message frame: %v", err)
	}

	_ = receiver.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := receiver.ReadMessage()
	if err != nil {
		t.Fatalf("read forwarded message: %v", err)
	}
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if msg.SenderID != alice.ID || msg.Content != "hello" || msg.MessageType != protocol.MessageText {
		t.Fatalf("unexpected forwarded message: %+v", msg)
	}
	if stored := srv.Registry().MessagesFor(alice.ID); len(stored) != 1 || stored[0].ID != msg.ID {
		t.Fatalf("stored messages = %+v, want the forwarded one", stored)
	}
	expectSilence(t, sender)
}

func TestChatSocketVideoChunkRelayedNotStored(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	alice, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "alice"})
	bob, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "bob"})
	sender := dialChat(t, srv, ts, alice.ID)
	receiver := dialChat(t, srv, ts, bob.ID)

	frame := protocol.ChatFrame{Type: protocol.FrameVideoChunk, ReceiverID: bob.ID, Content: "AAAA"}
	if err := sender.WriteJSON(frame); err != nil {
		t.Fatalf("write video frame: %v", err)
	}

	_ = receiver.SetReadDeadline(time.Now().Add(2 * time.Second))
	var relay protocol.VideoChunk
	if err := receiver.ReadJSON(&relay); err != nil {
		t.Fatalf("read relayed chunk: %v", err)
	}
	want := protocol.VideoChunk{Type: protocol.FrameVideoChunk, SenderID: alice.ID, Content: "AAAA"}
	if relay != want {
		t.Fatalf("relayed chunk = %+v, want %+v", relay, want)
	}
	if stored := srv.Registry().MessagesFor(alice.ID); len(stored) != 0 {
		t.Fatalf("video chunk stored as %+v", stored)
	}
	expectSilence(t, sender)
}

func TestChatSocketIgnoresUnknownFrames(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	alice, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "alice"})
	bob, _ := srv.Registry().CreateAgent(protocol.AgentCreate{Name: "bob"})
	sender := dialChat(t, srv, ts, alice.ID)

	// Untyped drafts and frames without content are dropped.
	for _, raw := range []string{
		`{"receiver_id":2,"content":"no type"}`,
		`{"type":"message","receiver_id":2}`,
		`{"type":"status","receiver_id":2,"content":"busy"}`,
	} {
		if err := sender.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write %s: %v", raw, err)
		}
	}
	expectSilence(t, sender)
	if stored := srv.Registry().MessagesFor(bob.ID); len(stored) != 0 {
		t.Fatalf("unexpected stored messages: %+v", stored)
	}
}

func TestChatSocketRejectsUnknownAgent(t *testing.T) {
	_, ts := newTestServer(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/ws/chat/42"), nil)
	if err != nil {
		t.Fatalf("dial chat: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != CloseAgentNotFound {
		t.Fatalf("read error = %v, want close %d", err, CloseAgentNotFound)
	}
}

func TestVoiceSocketEchoesAndReportsErrors(t *testing.T) {
	var fail atomic.Bool
	responder := ResponderFunc(func(_ context.Context, audio []byte) ([]byte, error) {
		if fail.Load() {
			return nil, errors.New("model offline")
		}
		return append([]byte("re:"), audio...), nil
	})
	srv, ts := newTestServer(t, responder)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/ws/voice-chat"), nil)
	if err != nil {
		t.Fatalf("dial voice: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("abc")); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if kind != websocket.BinaryMessage || string(data) != "re:abc" {
		t.Fatalf("reply = (%d, %q), want binary re:abc", kind, data)
	}

	if err := conn.WriteJSON(protocol.VideoChunk{Type: protocol.FrameVideoChunk, Content: "AAAA"}); err != nil {
		t.Fatalf("write video chunk: %v", err)
	}
	waitFor(t, "video chunk", func() bool { return srv.VideoChunks() == 1 })

	fail.Store(true)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("abc")); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	kind, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if kind != websocket.TextMessage || !strings.HasPrefix(string(data), "Error: ") {
		t.Fatalf("error reply = (%d, %q), want text Error: ...", kind, data)
	}
}
