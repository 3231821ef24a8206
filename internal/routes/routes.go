package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/salvioris-chat/internal/handlers"
)

// Limits groups the per-route middleware built from configuration.
type Limits struct {
	Commands func(http.Handler) http.Handler // per-user command throttle
	Connects func(http.Handler) http.Handler // per-IP gateway upgrade throttle
}

func SetupRoutes(r chi.Router, h *handlers.Handler, limits Limits) {
	// Channel authorization (guests reach the authorizer and are denied there)
	r.With(h.Authenticate(false)).Post("/api/broadcasting/auth", h.BroadcastingAuth)

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate(true))

		// Reads
		r.Get("/api/chats/{chatID}/messages", h.LoadChatHistory)
		r.Get("/api/presence/online", h.OnlineUsers)

		// Commands
		r.Group(func(r chi.Router) {
			if limits.Commands != nil {
				r.Use(limits.Commands)
			}
			r.Post("/api/chats/{chatID}/messages", h.SendMessage)
			r.Post("/api/chats/{chatID}/read", h.MarkRead)
			r.Post("/api/chats/{chatID}/typing", h.NotifyTyping)
			r.Delete("/api/chats/{chatID}/members/{userID}", h.KickMember)

			r.Post("/api/chat/invites", h.SendInvite)
			r.Post("/api/chat/invites/{inviteID}/accept", h.AcceptInvite)
			r.Post("/api/chat/invites/{inviteID}/decline", h.DeclineInvite)

			r.Put("/api/presence", h.SetPresence)
			r.Post("/api/chat/attachments", h.UploadAttachment)
		})
	})

	// WebSocket gateway (many channels over one socket)
	ws := r.With(h.Authenticate(false))
	if limits.Connects != nil {
		ws = ws.With(limits.Connects)
	}
	ws.Get("/ws", h.ChatWebSocket)
}
