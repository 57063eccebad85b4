// Package fakebackend is an in-process implementation of the agent backend
// contract. It backs the client tests and the fake-backend command used for
// local runs without the real service.
package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/synthwave/internal/protocol"
)

// CloseAgentNotFound is the close code sent when a chat socket names an
// unknown agent.
const CloseAgentNotFound = 4001

// Responder turns one recorded utterance into reply audio.
type Responder interface {
	Respond(ctx context.Context, audio []byte) ([]byte, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, audio []byte) ([]byte, error)

func (f ResponderFunc) Respond(ctx context.Context, audio []byte) ([]byte, error) {
	return f(ctx, audio)
}

// Echo replies with the recording itself.
var Echo = ResponderFunc(func(_ context.Context, audio []byte) ([]byte, error) {
	return audio, nil
})

type Server struct {
	registry  *Registry
	hub       *Hub
	responder Responder
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	voiceLive   atomic.Int64
	videoChunks atomic.Int64
}

func New(logger *slog.Logger, responder Responder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if responder == nil {
		responder = Echo
	}
	return &Server{
		registry:  NewRegistry(),
		hub:       NewHub(),
		responder: responder,
		logger:    logger.With("component", "fake_backend"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) Hub() *Hub { return s.hub }

// VoiceSockets is the number of voice sockets currently open.
func (s *Server) VoiceSockets() int { return int(s.voiceLive.Load()) }

// VideoChunks counts video chunk frames received on voice sockets.
func (s *Server) VideoChunks() int { return int(s.videoChunks.Load()) }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)

	r.Get("/agents/", s.handleListAgents)
	r.Post("/agents/", s.handleCreateAgent)
	r.Get("/agents/{id}", s.handleGetAgent)

	r.Get("/messages/{id}", s.handleListMessages)
	r.Post("/messages/{id}", s.handleCreateMessage)

	r.Get("/api/ws/chat/{id}", s.handleChatWS)
	r.Get("/api/ws/voice-chat", s.handleVoiceWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"chat_sockets":  s.hub.ActiveCount(),
		"voice_sockets": s.VoiceSockets(),
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, s.registry.Agents(skip, limit))
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var draft protocol.AgentCreate
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	agent, err := s.registry.CreateAgent(draft)
	switch {
	case errors.Is(err, ErrDuplicateName):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.logger.Info("agent registered", "agent_id", agent.ID, "name", agent.Name)
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	agent, err := s.registry.Agent(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.registry.MessagesFor(id))
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := pathID(w, r)
	if !ok {
		return
	}
	var draft protocol.MessageCreate
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	msg, err := s.createAndDeliver(senderID, draft)
	switch {
	case errors.Is(err, ErrSenderNotFound), errors.Is(err, ErrReceiverNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

// createAndDeliver stores the message and pushes it to the receiver's chat
// socket when one is open.
func (s *Server) createAndDeliver(senderID int, draft protocol.MessageCreate) (protocol.Message, error) {
	msg, err := s.registry.CreateMessage(senderID, draft)
	if err != nil {
		return protocol.Message{}, err
	}
	delivered, err := s.hub.Push(msg.ReceiverID, msg)
	if err != nil {
		s.logger.Warn("push to receiver failed", "receiver_id", msg.ReceiverID, "message_id", msg.ID, "error", err)
	} else if delivered {
		s.logger.Debug("message pushed", "receiver_id", msg.ReceiverID, "message_id", msg.ID)
	}
	return msg, nil
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "agent id must be an integer")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := s.registry.Agent(id); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseAgentNotFound, "Agent not found"),
			time.Now().Add(writeTimeout))
		return
	}

	p := s.hub.attach(id, conn)
	_ = s.registry.SetStatus(id, protocol.AgentOnline)
	log := s.logger.With("agent_id", id, "conn_id", p.id)
	log.Info("chat socket connected")

	conn.SetReadLimit(1 << 20)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var frame protocol.ChatFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("invalid chat frame", "error", err)
			continue
		}
		s.handleChatFrame(log, id, frame)
	}

	if s.hub.detach(p) {
		_ = s.registry.SetStatus(id, protocol.AgentOffline)
	}
	log.Info("chat socket disconnected")
}

// handleChatFrame stores "message" frames and relays "video_chunk" frames
// to the receiver without storing them. Nothing is written back to the
// sender.
func (s *Server) handleChatFrame(log *slog.Logger, senderID int, frame protocol.ChatFrame) {
	if frame.ReceiverID == 0 || frame.Content == "" {
		log.Warn("chat frame missing receiver_id or content", "type", frame.Type)
		return
	}
	switch frame.Type {
	case protocol.FrameMessage:
		msg, err := s.createAndDeliver(senderID, protocol.MessageCreate{
			ReceiverID:  frame.ReceiverID,
			Content:     frame.Content,
			MessageType: frame.MessageType,
		})
		if err != nil {
			log.Warn("chat frame rejected", "error", err)
			return
		}
		log.Debug("chat frame stored", "message_id", msg.ID, "receiver_id", msg.ReceiverID)
	case protocol.FrameVideoChunk:
		relay := protocol.VideoChunk{Type: protocol.FrameVideoChunk, SenderID: senderID, Content: frame.Content}
		delivered, err := s.hub.Push(frame.ReceiverID, relay)
		switch {
		case err != nil:
			log.Warn("video chunk relay failed", "receiver_id", frame.ReceiverID, "error", err)
		case !delivered:
			log.Info("video chunk receiver offline", "receiver_id", frame.ReceiverID)
		}
	default:
		log.Warn("unknown chat frame type", "type", frame.Type)
	}
}

func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.voiceLive.Add(1)
	defer s.voiceLive.Add(-1)

	log := s.logger.With("socket", "voice")
	conn.SetReadLimit(32 << 20)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			reply, err := s.responder.Respond(r.Context(), data)
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err != nil {
				log.Warn("voice reply failed", "error", err)
				if werr := conn.WriteMessage(websocket.TextMessage, []byte("Error: "+err.Error())); werr != nil {
					return
				}
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
				return
			}
		case websocket.TextMessage:
			var chunk protocol.VideoChunk
			if err := json.Unmarshal(data, &chunk); err != nil || chunk.Type != protocol.FrameVideoChunk {
				log.Warn("unexpected voice text frame", "bytes", len(data))
				continue
			}
			s.videoChunks.Add(1)
			log.Debug("video chunk received", "bytes", len(chunk.Content))
		}
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "id must be an integer")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail})
}
