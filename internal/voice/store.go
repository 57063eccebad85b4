package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/synthwave/internal/audio"
	"github.com/ent0n29/synthwave/internal/observability"
	"github.com/ent0n29/synthwave/internal/protocol"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusResponding Status = "responding"
)

// ResponseReceived is the notice shown once a reply has been handed to the
// player.
const ResponseReceived = "🔊 Response received"

const socketLabel = "voice"

var ErrSocketNotOpen = errors.New("voice socket is not open")

// Dialer opens the voice socket.
type Dialer interface {
	DialVoice(ctx context.Context) (*websocket.Conn, error)
}

// WSDialer dials a fixed voice socket URL.
type WSDialer struct {
	url    string
	dialer *websocket.Dialer
}

func NewWSDialer(url string) *WSDialer {
	return &WSDialer{
		url: strings.TrimSpace(url),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			ReadBufferSize:   64 << 10,
			WriteBufferSize:  64 << 10,
		},
	}
}

func (d *WSDialer) URL() string { return d.url }

func (d *WSDialer) DialVoice(ctx context.Context) (*websocket.Conn, error) {
	conn, res, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial %s: %w (http status %d)", d.url, err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	return conn, nil
}

type Snapshot struct {
	Status    Status
	Response  string
	SessionID string
	Connected bool
	Playing   bool
}

// Store drives one push-to-talk conversation: record an utterance, send it
// as a single binary frame, play the binary reply.
type Store struct {
	dialer  Dialer
	capture Capture
	player  Player
	logger  *slog.Logger
	metrics *observability.Metrics

	// opMu serializes Toggle and Close so recorder and socket acquisition
	// never interleave.
	opMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	response  string
	sessionID string
	sentAt    time.Time
	conn      *voiceConn
	recorder  Recorder
	playback  Playback
	onChange  func()
}

type voiceConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closing atomic.Bool
	once    sync.Once
}

func (c *voiceConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}

func (c *voiceConn) close() {
	c.once.Do(func() {
		c.closing.Store(true)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func NewStore(dialer Dialer, capture Capture, player Player, logger *slog.Logger, metrics *observability.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dialer:  dialer,
		capture: capture,
		player:  player,
		logger:  logger.With("component", "voice_store"),
		metrics: metrics,
		status:  StatusIdle,
	}
}

// SetChangeHook registers the function called after every state change.
// It runs outside the store lock.
func (s *Store) SetChangeHook(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = hook
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Status:    s.status,
		Response:  s.response,
		SessionID: s.sessionID,
		Connected: s.conn != nil,
		Playing:   s.playback != nil,
	}
}

// Toggle starts a recording unless one is running, in which case it ends
// the recording and sends it. A toggle while responding starts a new
// recording; callers that want to block that check Snapshot first.
func (s *Store) Toggle(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	listening := s.status == StatusListening
	s.mu.RUnlock()
	if listening {
		s.finishRecording()
		return nil
	}
	return s.startRecording(ctx)
}

func (s *Store) startRecording(ctx context.Context) error {
	s.StopPlayback()

	if err := s.ensureSocket(ctx); err != nil {
		s.logger.Error("voice socket error", "error", err)
	}

	rec, err := s.capture.Open(ctx)
	if err != nil {
		s.voiceSession("capture_failed")
		s.logger.Error("error accessing microphone", "error", err)
		return err
	}
	if err := rec.Start(); err != nil {
		s.voiceSession("capture_failed")
		s.logger.Error("failed to start recording", "error", err)
		return err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.recorder = rec
	s.sessionID = id
	s.setStatusLocked(StatusListening)
	s.mu.Unlock()
	s.voiceSession("started")
	s.logger.Info("recording started", "session_id", id)
	s.notify()
	return nil
}

func (s *Store) finishRecording() {
	s.StopPlayback()

	s.mu.Lock()
	rec := s.recorder
	s.recorder = nil
	id := s.sessionID
	s.setStatusLocked(StatusResponding)
	s.mu.Unlock()
	s.notify()

	if rec == nil {
		s.abandonSession(id)
		return
	}
	go s.flush(id, rec.Stop())
}

// flush waits for the recorder to drain and sends the recording as one
// binary frame.
func (s *Store) flush(sessionID string, recorded <-chan []byte) {
	data := <-recorded

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		s.dropped("not_open")
		s.logger.Warn("voice socket not open, recording dropped", "session_id", sessionID, "bytes", len(data))
		s.abandonSession(sessionID)
		return
	}

	s.mu.Lock()
	s.sentAt = time.Now()
	s.mu.Unlock()
	if err := conn.write(websocket.BinaryMessage, data); err != nil {
		s.dropped("write_failed")
		s.logger.Error("failed to send recording", "session_id", sessionID, "error", err)
		s.handleSocketEnd(conn, err)
		return
	}
	s.voiceSession("sent")
	s.logger.Info("recording sent", "session_id", sessionID, "bytes", len(data), "type", audio.Sniff(data))
}

// abandonSession returns to idle if sessionID is still waiting on a reply
// that can no longer arrive.
func (s *Store) abandonSession(sessionID string) {
	s.mu.Lock()
	changed := s.status == StatusResponding && s.sessionID == sessionID
	if changed {
		s.setStatusLocked(StatusIdle)
	}
	s.mu.Unlock()
	if changed {
		s.voiceSession("dropped")
		s.notify()
	}
}

// StopPlayback halts any reply that is playing. Status is not changed.
func (s *Store) StopPlayback() {
	s.mu.Lock()
	pb := s.playback
	s.playback = nil
	s.mu.Unlock()
	if pb == nil {
		return
	}
	pb.Stop()
	s.notify()
}

// SendVideoChunk writes a debug video frame to the voice socket.
func (s *Store) SendVideoChunk(content string) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		s.logger.Warn("websocket is not open, video chunk not sent")
		return ErrSocketNotOpen
	}
	frame := protocol.VideoChunk{Type: protocol.FrameVideoChunk, Content: content}
	conn.writeMu.Lock()
	err := conn.ws.WriteJSON(frame)
	conn.writeMu.Unlock()
	if err != nil {
		s.dropped("write_failed")
		s.logger.Error("failed to send video chunk", "error", err)
		s.handleSocketEnd(conn, err)
		return err
	}
	s.socketEvent("video_chunk")
	return nil
}

// Close releases the recorder, the playback and the socket.
func (s *Store) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	rec := s.recorder
	s.recorder = nil
	conn := s.conn
	s.conn = nil
	s.setStatusLocked(StatusIdle)
	s.mu.Unlock()

	discard(rec)
	s.StopPlayback()
	if conn != nil {
		conn.close()
		s.gauge(-1)
	}
}

func (s *Store) ensureSocket(ctx context.Context) error {
	s.mu.RLock()
	open := s.conn != nil
	s.mu.RUnlock()
	if open {
		return nil
	}

	ws, err := s.dialer.DialVoice(ctx)
	if err != nil {
		s.socketEvent("error")
		return err
	}
	c := &voiceConn{ws: ws}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	s.socketEvent("open")
	s.gauge(1)
	s.logger.Info("voice socket connected")
	go s.readLoop(c)
	return nil
}

func (s *Store) readLoop(c *voiceConn) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			s.handleSocketEnd(c, err)
			return
		}
		s.socketEvent("message")
		switch kind {
		case websocket.BinaryMessage:
			s.handleReply(data)
		default:
			s.handleServerText(string(data))
		}
	}
}

func (s *Store) handleReply(data []byte) {
	s.mu.RLock()
	status := s.status
	sentAt := s.sentAt
	s.mu.RUnlock()
	if status == StatusListening {
		s.dropped("reply_while_listening")
		s.logger.Warn("reply discarded while recording", "bytes", len(data))
		return
	}

	s.StopPlayback()
	pb, err := s.player.Play(data)
	if err != nil {
		s.logger.Error("failed to play reply", "bytes", len(data), "type", audio.Sniff(data), "error", err)
	} else {
		if s.metrics != nil {
			s.metrics.PlaybackBytes.Add(float64(len(data)))
		}
		go s.watchPlayback(pb)
	}

	s.mu.Lock()
	if err == nil {
		s.playback = pb
	}
	s.response = ResponseReceived
	s.setStatusLocked(StatusIdle)
	s.mu.Unlock()

	if s.metrics != nil && !sentAt.IsZero() {
		s.metrics.ObserveReplyLatency(time.Since(sentAt))
	}
	s.voiceSession("replied")
	s.logger.Info("reply received", "bytes", len(data), "type", audio.Sniff(data))
	s.notify()
}

func (s *Store) watchPlayback(pb Playback) {
	<-pb.Done()
	s.mu.Lock()
	owned := s.playback == pb
	if owned {
		s.playback = nil
	}
	s.mu.Unlock()
	if owned {
		s.notify()
	}
}

// handleServerText covers the error notices the server sends as text
// frames. They are never played.
func (s *Store) handleServerText(text string) {
	text = strings.TrimSpace(text)
	s.logger.Error("voice server error", "detail", text)
	s.mu.Lock()
	changed := s.status == StatusResponding
	if changed {
		s.response = text
		s.setStatusLocked(StatusIdle)
	}
	s.mu.Unlock()
	if changed {
		s.voiceSession("server_error")
		s.notify()
	}
}

// handleSocketEnd clears the handle if c still owns it and resets the
// conversation to idle. A recording in progress is discarded. Code 1006
// means the connection was lost without a close frame and counts as an
// error.
func (s *Store) handleSocketEnd(c *voiceConn, err error) {
	var closeErr *websocket.CloseError
	switch {
	case c.closing.Load():
		s.logger.Debug("voice socket closed locally")
	case errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure:
		s.socketEvent("close")
		s.logger.Info("voice socket closed", "code", closeErr.Code, "reason", closeErr.Text)
	default:
		s.socketEvent("error")
		s.logger.Error("voice socket error", "error", err)
	}
	c.close()

	s.mu.Lock()
	owned := s.conn == c
	var rec Recorder
	if owned {
		s.conn = nil
		rec = s.recorder
		s.recorder = nil
		s.setStatusLocked(StatusIdle)
	}
	s.mu.Unlock()
	if !owned {
		return
	}
	discard(rec)
	s.gauge(-1)
	s.notify()
}

func (s *Store) setStatusLocked(to Status) {
	from := s.status
	if from == to {
		return
	}
	s.status = to
	if s.metrics != nil {
		s.metrics.StateTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	hook := s.onChange
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (s *Store) socketEvent(event string) {
	if s.metrics != nil {
		s.metrics.SocketEvents.WithLabelValues(socketLabel, event).Inc()
	}
}

func (s *Store) gauge(delta float64) {
	if s.metrics != nil {
		s.metrics.ActiveSockets.WithLabelValues(socketLabel).Add(delta)
	}
}

func (s *Store) dropped(reason string) {
	if s.metrics != nil {
		s.metrics.DroppedSocketData.WithLabelValues(socketLabel, reason).Inc()
	}
}

func (s *Store) voiceSession(outcome string) {
	if s.metrics != nil {
		s.metrics.VoiceSessions.WithLabelValues(outcome).Inc()
	}
}

// discard stops a recorder whose audio is no longer wanted.
func discard(rec Recorder) {
	if rec == nil {
		return
	}
	done := rec.Stop()
	go func() {
		for range done {
		}
	}()
}
