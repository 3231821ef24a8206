package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
	"github.com/AnshRaj112/salvioris-chat/internal/services"
)

type SendMessageRequest struct {
	TempID      string                     `json:"temp_id"`
	Content     string                     `json:"content"`
	ReplyTo     *string                    `json:"reply_to,omitempty"`
	Attachments []models.MessageAttachment `json:"attachments,omitempty"`
}

type SendMessageResponse struct {
	Success   bool                 `json:"success"`
	MessageID string               `json:"message_id"`
	Data      services.WireMessage `json:"data"`
	Duplicate bool                 `json:"duplicate,omitempty"`
	// Delivered is false when the message was stored but the broadcast failed;
	// clients should not retry the send in that case.
	Delivered bool `json:"delivered"`
}

// SendMessage stores a message and fans it out. A repeated temp_id answers 200 with
// the originally stored message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Messages.Send(r.Context(), services.SendCommand{
		ChatID:      chi.URLParam(r, "chatID"),
		AuthorID:    user.PublicID,
		Content:     req.Content,
		ReplyTo:     req.ReplyTo,
		Attachments: req.Attachments,
		TempID:      req.TempID,
	})
	if err != nil && (res == nil || !errors.Is(err, models.ErrTransportUnavailable)) {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, SendMessageResponse{
		Success:   true,
		MessageID: res.MessagePublicID,
		Data:      res.Message,
		Duplicate: res.Duplicate,
		Delivered: err == nil,
	})
}

// LoadChatHistoryResponse is returned when loading historical messages.
type LoadChatHistoryResponse struct {
	Success  bool                   `json:"success"`
	Messages []services.WireMessage `json:"messages"`
	HasMore  bool                   `json:"has_more"`
}

// LoadChatHistory loads paginated messages for a chat.
// Query params:
//
//	before (optional RFC3339 timestamp for pagination)
//	limit  (optional, default 50, max 100)
func (h *Handler) LoadChatHistory(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var limit int64
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		if parsed, err := strconv.ParseInt(lStr, 10, 64); err == nil {
			limit = parsed
		}
	}

	var before *time.Time
	if bStr := r.URL.Query().Get("before"); bStr != "" {
		t, err := time.Parse(time.RFC3339, bStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
			return
		}
		before = &t
	}

	msgs, hasMore, err := h.Messages.History(r.Context(), chi.URLParam(r, "chatID"), user.PublicID, before, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []services.WireMessage{}
	}
	writeJSON(w, http.StatusOK, LoadChatHistoryResponse{Success: true, Messages: msgs, HasMore: hasMore})
}

type MarkReadRequest struct {
	LastReadMessageID string `json:"last_read_message_id"`
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req MarkReadRequest
	if err := decodeJSON(w, r, &req); err != nil || req.LastReadMessageID == "" {
		writeError(w, http.StatusBadRequest, "last_read_message_id is required")
		return
	}

	if err := h.Receipts.MarkRead(r.Context(), chi.URLParam(r, "chatID"), user.PublicID, req.LastReadMessageID); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// NotifyTyping is fire-and-forget; it only fails on authorization.
func (h *Handler) NotifyTyping(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if err := h.Typing.NotifyTyping(r.Context(), chi.URLParam(r, "chatID"), user.PublicID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) KickMember(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	err := h.Members.KickMember(r.Context(), chi.URLParam(r, "chatID"), user.PublicID, chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
