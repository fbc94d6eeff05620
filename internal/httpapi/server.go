package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/matheus3301/wpphook/internal/archive"
	"github.com/matheus3301/wpphook/internal/bus"
	"github.com/matheus3301/wpphook/internal/manager"
	"github.com/matheus3301/wpphook/internal/status"
	"go.uber.org/zap"
)

const defaultLimit = 50

// SessionManager is the slice of the connection manager the HTTP
// surface needs.
type SessionManager interface {
	Status() (status.State, string)
	Send(ctx context.Context, number, text string) (string, error)
	CheckNumber(ctx context.Context, number string) (bool, error)
	Recent(number string, limit int) ([]archive.Message, error)
	Conversations(limit int) ([]archive.Conversation, error)
	MarkRead(ctx context.Context, number string) error
	Disconnect(ctx context.Context) error
}

// Server is the REST and WebSocket surface over one WhatsApp session.
type Server struct {
	sm     SessionManager
	bus    *bus.Bus
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewServer wires the route table.
func NewServer(sm SessionManager, b *bus.Bus, logger *zap.Logger) *Server {
	s := &Server{
		sm:     sm,
		bus:    b,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	s.mux.HandleFunc("POST /send", s.handleSend)
	s.mux.HandleFunc("GET /check/{number}", s.handleCheck)
	s.mux.HandleFunc("GET /messages/{number}", s.handleMessages)
	s.mux.HandleFunc("GET /conversations", s.handleConversations)
	s.mux.HandleFunc("POST /mark-read", s.handleMarkRead)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

// ServeHTTP delegates to the internal mux behind the CORS and access
// log middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withCORS(s.accessLog(s.mux)).ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse always carries both keys; qr is empty outside the
// scan-pending state.
type statusResponse struct {
	Status string `json:"status"`
	QR     string `json:"qr"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, qr := s.sm.Status()
	writeJSON(w, http.StatusOK, statusResponse{Status: string(st), QR: qr})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.sm.Disconnect(r.Context()); err != nil {
		if errors.Is(err, manager.ErrNotConnected) {
			writeError(w, http.StatusBadRequest, "Not connected")
			return
		}
		s.logger.Error("disconnect failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Disconnected successfully"})
}

type sendRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Number == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "number and message are required")
		return
	}

	id, err := s.sm.Send(r.Context(), req.Number, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrNotConnected):
			writeError(w, http.StatusBadRequest, "Not connected")
		case errors.Is(err, manager.ErrInvalidNumber):
			writeError(w, http.StatusBadRequest, "Invalid number")
		default:
			s.logger.Error("send failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to send message")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": id})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	exists, err := s.sm.CheckNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, manager.ErrNotConnected) {
			writeError(w, http.StatusBadRequest, "Not connected")
			return
		}
		s.logger.Error("number check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to check number")
		return
	}

	msg := "Number is not on WhatsApp"
	if exists {
		msg = "Number is on WhatsApp"
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists, "number": number, "message": msg})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	limit := parseLimit(r.URL.Query().Get("limit"))

	msgs, err := s.sm.Recent(number, limit)
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrNotConnected):
			writeError(w, http.StatusBadRequest, "Not connected")
		case errors.Is(err, manager.ErrUnknownChat):
			writeError(w, http.StatusBadRequest, "No message history for this number")
		default:
			s.logger.Error("message lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to get messages")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "number": number, "messages": msgs})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	convs, err := s.sm.Conversations(limit)
	if err != nil {
		if errors.Is(err, manager.ErrNotConnected) {
			writeError(w, http.StatusBadRequest, "Not connected")
			return
		}
		s.logger.Error("conversation listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": convs})
}

type markReadRequest struct {
	Number string `json:"number"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == "" {
		writeError(w, http.StatusBadRequest, "number is required")
		return
	}

	if err := s.sm.MarkRead(r.Context(), req.Number); err != nil {
		switch {
		case errors.Is(err, manager.ErrNotConnected):
			writeError(w, http.StatusBadRequest, "Not connected")
		case errors.Is(err, manager.ErrUnknownChat):
			writeError(w, http.StatusBadRequest, "No message history for this number")
		default:
			s.logger.Error("mark read failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to mark messages as read")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Messages marked as read"})
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return n
}
