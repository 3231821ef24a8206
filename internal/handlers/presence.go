package handlers

import (
	"context"
	"net/http"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
	"github.com/AnshRaj112/salvioris-chat/internal/services"
)

type SetPresenceRequest struct {
	Status models.PresenceStatus `json:"status"`
}

type OnlineMember struct {
	services.WireUser
	Status   models.PresenceStatus `json:"status"`
	LastSeen int64                 `json:"last_seen"`
}

type OnlineResponse struct {
	Success bool           `json:"success"`
	Members []OnlineMember `json:"members"`
}

// SetPresence applies an explicit online/away/busy change for the caller.
func (h *Handler) SetPresence(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req SetPresenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Presence.SetStatus(r.Context(), *user, req.Status); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": req.Status})
}

func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	members, err := h.onlineMembers(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OnlineResponse{Success: true, Members: members})
}

func (h *Handler) onlineMembers(ctx context.Context) ([]OnlineMember, error) {
	states, err := h.Presence.Online(ctx)
	if err != nil {
		return nil, err
	}
	members := make([]OnlineMember, 0, len(states))
	for _, st := range states {
		members = append(members, OnlineMember{
			WireUser: services.NormalizeUser(st.User),
			Status:   st.Status,
			LastSeen: st.LastSeen.Unix(),
		})
	}
	return members, nil
}
