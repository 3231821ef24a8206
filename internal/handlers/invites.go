package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
	"github.com/AnshRaj112/salvioris-chat/internal/services"
)

type SendInviteRequest struct {
	InviteeID string            `json:"invitee_id"`
	Kind      models.InviteKind `json:"kind,omitempty"`
	ChatID    *string           `json:"chat_id,omitempty"`
}

type InviteResponse struct {
	Success bool                `json:"success"`
	Invite  services.WireInvite `json:"invite"`
	Chat    *services.WireChat  `json:"chat,omitempty"`
}

func (h *Handler) SendInvite(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req SendInviteRequest
	if err := decodeJSON(w, r, &req); err != nil || req.InviteeID == "" {
		writeError(w, http.StatusBadRequest, "invitee_id is required")
		return
	}

	inv, err := h.Invites.SendInvite(r.Context(), services.SendInviteCommand{
		InviterID: user.PublicID,
		InviteeID: req.InviteeID,
		Kind:      req.Kind,
		ChatID:    req.ChatID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, InviteResponse{Success: true, Invite: services.NormalizeInvite(inv)})
}

func (h *Handler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	inv, chat, err := h.Invites.AcceptInvite(r.Context(), chi.URLParam(r, "inviteID"), user.PublicID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	wireChat := services.NormalizeChat(chat)
	writeJSON(w, http.StatusOK, InviteResponse{Success: true, Invite: services.NormalizeInvite(inv), Chat: &wireChat})
}

func (h *Handler) DeclineInvite(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	inv, err := h.Invites.DeclineInvite(r.Context(), chi.URLParam(r, "inviteID"), user.PublicID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, InviteResponse{Success: true, Invite: services.NormalizeInvite(inv)})
}
