package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.DebugCF("server", "Response write failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.broker.SessionCount(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

type inboundRequest struct {
	Channel   string     `json:"channel"`
	ChannelID string     `json:"channel_id"`
	Author    bus.Author `json:"author"`
	Content   string     `json:"content"`
	SourceID  string     `json:"id"`
	Timestamp time.Time  `json:"timestamp,omitzero"`
}

// handleInbound accepts a pushed platform event, for deployments where a
// platform webhook posts directly instead of running an in-process channel.
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidJSON")
		return
	}
	if req.ChannelID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "MissingFields")
		return
	}
	if req.Channel == "" {
		req.Channel = "webhook"
	}

	res, err := s.broker.Ingest(bus.InboundEvent{
		Channel:         req.Channel,
		ChannelID:       req.ChannelID,
		Author:          req.Author,
		Content:         req.Content,
		SourceID:        req.SourceID,
		SourceTimestamp: req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, relay.ErrNoActiveSession) {
			writeError(w, http.StatusNotFound, "NoActiveSession")
			return
		}
		writeError(w, http.StatusInternalServerError, "IngestFailed")
		return
	}
	if res.Ignored {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message_id":   res.MessageID,
		"session_id":   res.SessionID,
		"queue_length": res.QueueLength,
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	batch := s.opts.DefaultBatch
	if v := r.URL.Query().Get("batch"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidBatch")
			return
		}
		batch = n
	}

	res := s.broker.Poll(sessionID, batch, r.URL.Query().Get("since"))
	if len(res.Messages) > 0 {
		if err := s.archiver.ArchiveMessages(r.Context(), res.Messages); err != nil {
			logger.WarnCF("server", "Archive of drained batch failed", map[string]any{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}

	writeJSON(w, http.StatusOK, res)
}

type ackRequest struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// handleAck records a delivery acknowledgment. Acks never fail: unknown
// message ids are recorded anyway so late or replayed acks stay harmless.
func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("messageId")

	// Body is optional.
	var req ackRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Status == "" {
		req.Status = "delivered"
	}

	rec := s.broker.Ack(messageID, req.SessionID, req.Status)
	if err := s.archiver.ArchiveAck(r.Context(), rec); err != nil {
		logger.WarnCF("server", "Archive of ack failed", map[string]any{
			"message_id": messageID,
			"error":      err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type sessionStartRequest struct {
	ChannelID string `json:"channel_id"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if err := relay.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidSessionID")
		return
	}

	var req sessionStartRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	session, created := s.broker.StartSession(sessionID, req.ChannelID)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"success":       true,
		"session_id":    session.ID,
		"created":       created,
		"created_at":    session.CreatedAt,
		"last_activity": session.LastActivity,
	})
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	s.broker.StopSession(r.PathValue("sessionId"))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !s.broker.Heartbeat(sessionID) {
		writeError(w, http.StatusNotFound, "SessionNotFound")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "MissingChannelID")
		return
	}
	if _, ok := s.broker.Registry().Get(sessionID); !ok {
		writeError(w, http.StatusNotFound, "SessionNotFound")
		return
	}

	s.broker.Bindings().Bind(req.ChannelID, sessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sessionID,
		"channel_id": req.ChannelID,
	})
}

func (s *Server) handleClearReplies(w http.ResponseWriter, r *http.Request) {
	cleared := s.broker.ClearQueue(r.PathValue("sessionId"))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cleared": cleared,
	})
}
