package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/synthwave/internal/protocol"
)

// APIError is returned for any non-2xx REST response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: http status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: http status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Client talks to the agent backend over REST and dials its chat socket.
type Client struct {
	baseURL string
	wsBase  string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient builds a client for baseURL. A zero timeout leaves requests
// unbounded.
func NewClient(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &Client{
		baseURL: base,
		wsBase:  WSBaseURL(base),
		http:    &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// WSBaseURL derives the socket base from the REST base by swapping the
// first "http" for "ws", so https becomes wss.
func WSBaseURL(baseURL string) string {
	return strings.Replace(baseURL, "http", "ws", 1)
}

// ChatURL is the live-delivery socket for agentID.
func (c *Client) ChatURL(agentID int) string {
	return fmt.Sprintf("%s/api/ws/chat/%d", c.wsBase, agentID)
}

func (c *Client) ListAgents(ctx context.Context) ([]protocol.Agent, error) {
	var out []protocol.Agent
	if err := c.do(ctx, http.MethodGet, "/agents/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterAgent(ctx context.Context, draft protocol.AgentCreate) (protocol.Agent, error) {
	var out protocol.Agent
	if err := c.do(ctx, http.MethodPost, "/agents/", draft, &out); err != nil {
		return protocol.Agent{}, err
	}
	return out, nil
}

func (c *Client) ListMessages(ctx context.Context, agentID int) ([]protocol.Message, error) {
	var out []protocol.Message
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/messages/%d", agentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, senderID int, draft protocol.MessageCreate) (protocol.Message, error) {
	var out protocol.Message
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/messages/%d", senderID), draft, &out); err != nil {
		return protocol.Message{}, err
	}
	return out, nil
}

// DialChat opens the push socket for agentID.
func (c *Client) DialChat(ctx context.Context, agentID int) (*websocket.Conn, error) {
	url := c.ChatURL(agentID)
	conn, res, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial %s: %w (http status %d)", url, err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &APIError{Method: method, Path: path, StatusCode: res.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
