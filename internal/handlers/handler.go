package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
	"github.com/AnshRaj112/salvioris-chat/internal/services"
)

// SessionValidator resolves a bearer token to a user public id.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, bool, error)
}

// AttachmentUploader stores an uploaded file and describes it for a send command.
type AttachmentUploader interface {
	UploadFromHeader(ctx context.Context, fileHeader *multipart.FileHeader) (*models.MessageAttachment, error)
}

// Handler serves the chat HTTP API and the websocket gateway.
type Handler struct {
	Sessions    SessionValidator
	Users       services.UserDirectory
	Messages    *services.MessageService
	Typing      *services.TypingService
	Receipts    *services.ReceiptService
	Members     *services.MemberService
	Invites     *services.InviteService
	Presence    *services.PresenceTracker
	ChannelAuth *services.ChannelAuthorizer
	Tokens      *services.ChannelTokens
	Hub         *services.Hub
	Attachments AttachmentUploader // nil when uploads are not configured
	Log         *zap.Logger
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotAParticipant),
		errors.Is(err, models.ErrChannelAuthDenied),
		errors.Is(err, models.ErrInviteForbidden),
		errors.Is(err, models.ErrInsufficientRole):
		return http.StatusForbidden
	case errors.Is(err, models.ErrChatNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrMessageNotFound),
		errors.Is(err, models.ErrInviteNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicatePendingInvite),
		errors.Is(err, models.ErrInviteNotPending):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidMessage),
		errors.Is(err, models.ErrSelfInvite),
		errors.Is(err, models.ErrInvalidPresenceTransition),
		errors.Is(err, models.ErrUnknownChannel):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			writeError(w, status, "internal server error")
			return
		}
	} else {
		h.Log.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

type ctxKey struct{}

// CurrentUser returns the authenticated caller, or nil for guests.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxKey{}).(*models.User)
	return u
}

func withUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// RateKey keys command rate limits by the authenticated caller.
func RateKey(r *http.Request) string {
	if u := CurrentUser(r.Context()); u != nil {
		return "user:" + u.PublicID
	}
	return ""
}

func extractBearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// Authenticate resolves the session token (Authorization: Bearer, or the token query
// parameter for browser websockets). With required set, requests without a valid
// session get 401; otherwise they continue as guests.
func (h *Handler) Authenticate(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := h.resolveUser(r)
			if err != nil {
				h.Log.Warn("session lookup failed", zap.Error(err))
			}
			if user == nil {
				if required {
					writeError(w, http.StatusUnauthorized, "invalid or missing session token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

func (h *Handler) resolveUser(r *http.Request) (*models.User, error) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, nil
	}

	userID, ok, err := h.Sessions.Validate(r.Context(), token)
	if err != nil || !ok {
		return nil, err
	}
	user, err := h.Users.GetUser(r.Context(), userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}
