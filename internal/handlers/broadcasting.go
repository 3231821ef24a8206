package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/AnshRaj112/salvioris-chat/internal/services"
	"github.com/AnshRaj112/salvioris-chat/pkg/realtime"
)

type ChannelAuthRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

// BroadcastingAuth authorizes one subscription attempt and answers with a signed grant
// the gateway accepts on subscribe. Accepts JSON or form bodies.
func (h *Handler) BroadcastingAuth(w http.ResponseWriter, r *http.Request) {
	var req ChannelAuthRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.SocketID = r.FormValue("socket_id")
		req.ChannelName = r.FormValue("channel_name")
	}
	if req.SocketID == "" || req.ChannelName == "" {
		writeError(w, http.StatusBadRequest, "socket_id and channel_name are required")
		return
	}

	user := CurrentUser(r.Context())
	ref, err := h.ChannelAuth.Authorize(r.Context(), user, req.ChannelName)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	grant, err := h.Tokens.Issue(req.SocketID, ref.Name, user)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := realtime.AuthResponse{Auth: grant}
	if ref.Kind == services.ChannelOnlineUsers {
		data, err := json.Marshal(map[string]interface{}{
			"user_id":   user.PublicID,
			"user_info": services.NormalizeUser(*user),
		})
		if err == nil {
			resp.ChannelData = data
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
