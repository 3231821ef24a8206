package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
	"github.com/AnshRaj112/salvioris-chat/internal/services"
	"github.com/AnshRaj112/salvioris-chat/pkg/realtime"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 90 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsMaxMessageSize = 64 * 1024
	wsCleanupTimeout = 5 * time.Second
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ChatWebSocket is the realtime gateway. Guests may connect but every subscription
// they attempt is refused. Authenticated sockets drive presence: connect on open,
// disconnect on close.
func (h *Handler) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sock := h.Hub.Register(user)
	log := h.Log.With(zap.String("socket", sock.ID))
	if user != nil {
		log = log.With(zap.String("user", user.PublicID))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go h.writePump(conn, sock, writerDone)

	h.sendControl(sock.ID, realtime.EventConnectionEstablished, "", realtime.ConnectionEstablished{
		SocketID:        sock.ID,
		ActivityTimeout: int(wsPingPeriod.Seconds()),
	})

	if user != nil {
		if err := h.Presence.Connect(ctx, *user); err != nil {
			log.Warn("presence connect failed", zap.Error(err))
		} else if err := h.Presence.MarkOnline(ctx, *user); err != nil {
			log.Warn("presence online failed", zap.Error(err))
		}
	}
	log.Debug("socket connected")

	h.readPump(ctx, conn, sock, log)

	h.Hub.Unregister(sock.ID)
	<-writerDone

	if user != nil {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), wsCleanupTimeout)
		if err := h.Presence.Disconnect(cleanupCtx, *user); err != nil {
			log.Warn("presence disconnect failed", zap.Error(err))
		}
		cleanupCancel()
	}
	log.Debug("socket closed")
}

// writePump is the only writer on conn. It exits when the hub closes the socket's
// outbound queue or a write fails.
func (h *Handler) writePump(conn *websocket.Conn, sock *services.Socket, done chan<- struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		close(done)
	}()

	out := sock.Outbound()
	for {
		select {
		case frame, ok := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				// Unblock the reader; Unregister then closes out.
				conn.Close()
				for range out {
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				for range out {
				}
				return
			}
		}
	}
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, sock *services.Socket, log *zap.Logger) {
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("socket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Event {
		case realtime.EventSubscribe:
			h.handleSubscribe(ctx, sock, frame, log)
		case realtime.EventUnsubscribe:
			if ref, err := services.ParseChannel(frame.Channel); err == nil {
				h.Hub.Unsubscribe(sock.ID, ref.Name)
			}
		case realtime.EventPing:
			h.sendControl(sock.ID, realtime.EventPong, "", nil)
			if sock.User != nil {
				if err := h.Presence.Heartbeat(ctx, *sock.User); err != nil {
					log.Debug("presence heartbeat failed", zap.Error(err))
				}
			}
		default:
			// Ignore unknown events
		}
	}
}

// handleSubscribe accepts a subscription only with a grant from the auth endpoint
// issued to this socket, this channel and this socket's user.
func (h *Handler) handleSubscribe(ctx context.Context, sock *services.Socket, frame realtime.Frame, log *zap.Logger) {
	ref, err := services.ParseChannel(frame.Channel)
	if err != nil {
		h.subscriptionError(sock.ID, frame.Channel, http.StatusBadRequest, err)
		return
	}
	if sock.User == nil {
		h.subscriptionError(sock.ID, ref.Name, http.StatusForbidden, models.ErrChannelAuthDenied)
		return
	}

	subject, err := h.Tokens.Verify(frame.Auth, sock.ID, ref.Name)
	if err == nil && subject != sock.User.PublicID {
		err = models.ErrChannelAuthDenied
	}
	if err != nil {
		log.Info("subscription refused", zap.String("channel", ref.Name), zap.Error(err))
		h.subscriptionError(sock.ID, ref.Name, http.StatusForbidden, err)
		return
	}

	if !h.Hub.Subscribe(sock.ID, ref.Name) {
		return
	}

	var data interface{}
	if ref.Kind == services.ChannelOnlineUsers {
		members, err := h.onlineMembers(ctx)
		if err != nil {
			log.Warn("online members lookup failed", zap.Error(err))
			members = []OnlineMember{}
		}
		data = map[string]interface{}{"members": members}
	}
	h.sendControl(sock.ID, realtime.EventSubscriptionSucceeded, ref.Name, data)
}

func (h *Handler) subscriptionError(socketID, channel string, status int, err error) {
	h.sendControl(socketID, realtime.EventSubscriptionError, channel, realtime.SubscriptionError{
		Status: status,
		Error:  err.Error(),
	})
}

func (h *Handler) sendControl(socketID, event, channel string, data interface{}) {
	frame, err := realtime.NewFrame(event, channel, data)
	if err != nil {
		h.Log.Error("encode control frame", zap.String("event", event), zap.Error(err))
		return
	}
	if !h.Hub.SendTo(socketID, frame) {
		h.Log.Debug("control frame dropped", zap.String("socket", socketID), zap.String("event", event))
	}
}
