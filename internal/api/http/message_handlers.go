package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	appEVE "github.com/maverika/maverika/internal/application/eve"
	"github.com/maverika/maverika/internal/domain/message"
)

type sendMessageRequest struct {
	ToEVEID  string            `json:"to_eve_id"`
	Content  string            `json:"content"`
	Type     message.Type      `json:"type"`
	Priority message.Priority  `json:"priority"`
	Metadata *message.Metadata `json:"metadata,omitempty"`
}

type broadcastRequest struct {
	Content  string           `json:"content"`
	Priority message.Priority `json:"priority"`
	Filter   string           `json:"filter"`
}

type messageStatusRequest struct {
	Status   message.Status    `json:"status"`
	Metadata *message.Metadata `json:"metadata,omitempty"`
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
		return
	}
	var opts message.ListOptions
	q := r.URL.Query()
	if st := q.Get("status"); st != "" {
		status := message.Status(st)
		opts.Status = &status
	}
	if opts.Limit, err = intQuery(q.Get("limit")); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid limit")
		return
	}
	if opts.Offset, err = intQuery(q.Get("offset")); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid offset")
		return
	}
	msgs, err := s.commSvc.GetMessages(r.Context(), eveID, opts)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": msgs})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
		return
	}
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	to, _ := uuid.Parse(req.ToEVEID)
	if req.Type == "" {
		req.Type = message.TypeDirect
	}
	if req.Priority == "" {
		req.Priority = message.PriorityMedium
	}
	m := message.NewMessage(eveID, to, req.Type, req.Priority, req.Content)
	if req.Metadata != nil {
		m.Metadata = *req.Metadata
	}
	sent, err := s.commSvc.SendMessage(r.Context(), m)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sent)
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
		return
	}
	var req broadcastRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	filter, err := appEVE.ExpressionFilter(req.Filter)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	sent, err := s.eveSvc.BroadcastMessage(r.Context(), eveID, req.Content, req.Priority, filter)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": sent})
}

func (s *Server) updateMessageStatus(w http.ResponseWriter, r *http.Request) {
	messageID, err := parseUUIDParam(r, "messageId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid message id")
		return
	}
	var req messageStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	m, err := s.commSvc.UpdateMessageStatus(r.Context(), messageID, req.Status, req.Metadata)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// streamMessages pushes new messages addressed to the EVE as server-sent
// events until the client disconnects.
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	events := make(chan *message.Message, 16)
	unsubscribe := s.commSvc.SubscribeToMessages(eveID, func(m *message.Message) {
		select {
		case events <- m:
		default:
			s.logger.Warn().Str("eve_id", eveID.String()).Msg("stream client too slow; message dropped")
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case m := <-events:
			payload, _ := json.Marshal(m)
			_, _ = w.Write([]byte("event: message\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func intQuery(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
