package serve

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jimshare/bae-ai/internal/chat"
	"github.com/jimshare/bae-ai/internal/config"
	"github.com/jimshare/bae-ai/internal/store"
	"github.com/jimshare/bae-ai/internal/twilio"
)

// APIResponse is the base envelope for JSON responses.
type APIResponse struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

// APIError represents a structured error response.
type APIError struct {
	APIResponse
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

const maxListLimit = 500

// handleSMS is the Twilio incoming-message webhook.
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	log := s.logger.With(zap.String("request_id", reqID))

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		log.Warn("bad webhook form", zap.Error(err))
		writePlain(w, http.StatusBadRequest, "Bad request")
		return
	}

	if s.cfg.ValidateSignature && !s.validator.ValidateRequest(r, s.cfg.PublicBaseURL) {
		log.Warn("invalid twilio signature",
			zap.String("url", twilio.RequestURL(r, s.cfg.PublicBaseURL)),
			zap.String("remote", r.RemoteAddr),
		)
		writePlain(w, http.StatusForbidden, "Invalid request")
		return
	}

	msg, err := twilio.ParseInbound(r)
	if err != nil {
		log.Warn("bad webhook payload", zap.Error(err))
		writePlain(w, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}
	log.Debug("inbound sms", zap.String("from", msg.From), zap.Int("length", len(msg.Body)))

	switch s.cfg.ReplyMode {
	case config.ReplyModeREST:
		s.replyREST(w, msg)
	case config.ReplyModeTwiML:
		reply, _ := s.cfg.Chat.Reply(r.Context(), msg)
		writeTwiML(w, new(twilio.MessagingResponse).Message(reply.Text))
	default:
		reply, err := s.cfg.Chat.Reply(r.Context(), msg)
		status := http.StatusOK
		if err != nil && !errors.Is(err, chat.ErrRateLimited) {
			status = http.StatusInternalServerError
		}
		writePlain(w, status, reply.Text)
	}
}

// replyREST acknowledges the webhook with empty TwiML and delivers the
// reply through the Messages API once it is ready.
func (s *Server) replyREST(w http.ResponseWriter, msg twilio.InboundMessage) {
	select {
	case s.deliverySlots <- struct{}{}:
	default:
		s.logger.Warn("rest delivery queue full, answering inline", zap.String("from", msg.From))
		writeTwiML(w, new(twilio.MessagingResponse).Message(chat.ErrorReply))
		return
	}

	writeTwiML(w, &twilio.MessagingResponse{})

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		defer func() { <-s.deliverySlots }()

		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		s.deliver(ctx, msg)
	}()
}

func (s *Server) deliver(ctx context.Context, msg twilio.InboundMessage) {
	reply, _ := s.cfg.Chat.Reply(ctx, msg)

	from := s.cfg.FromNumber
	if from == "" {
		from = msg.To
	}
	resource, err := s.cfg.Sender.SendMessage(ctx, from, msg.From, reply.Text)
	s.cfg.Chat.MarkDelivered(reply.ID, err)
	if err != nil {
		s.logger.Error("rest delivery failed", zap.String("to", msg.From), zap.Error(err))
		return
	}
	s.logger.Info("rest reply sent", zap.String("to", msg.From), zap.String("sid", resource.SID))
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"status":     "healthy",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"version":    s.cfg.Version,
		"reply_mode": s.cfg.ReplyMode,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	filter := store.Filter{From: r.URL.Query().Get("from")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			writeErrorResponse(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 1 and 500", reqID)
			return
		}
		filter.Limit = n
	}

	messages, err := s.cfg.Store.List(filter)
	if err != nil {
		s.logger.Error("list messages", zap.Error(err))
		writeErrorResponse(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list messages", reqID)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	}, reqID)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	stats, err := s.cfg.Store.Stats()
	if err != nil {
		s.logger.Error("message stats", zap.Error(err))
		writeErrorResponse(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to compute stats", reqID)
		return
	}
	writeSuccessResponse(w, http.StatusOK, map[string]interface{}{"stats": stats}, reqID)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func writeTwiML(w http.ResponseWriter, resp *twilio.MessagingResponse) {
	w.Header().Set("Content-Type", twilio.ContentTypeXML)
	w.WriteHeader(http.StatusOK)
	resp.WriteTo(w)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, APIError{
		APIResponse: APIResponse{
			Success:   false,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RequestID: requestID,
		},
		Error:     message,
		ErrorCode: code,
	})
}

func writeSuccessResponse(w http.ResponseWriter, status int, data map[string]interface{}, requestID string) {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["success"] = true
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	if requestID != "" {
		data["request_id"] = requestID
	}
	writeJSON(w, status, data)
}
