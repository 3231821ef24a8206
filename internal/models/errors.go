package models

import "errors"

var (
	ErrNotAParticipant        = errors.New("user is not a participant of the chat")
	ErrChatNotFound           = errors.New("chat not found")
	ErrDuplicatePendingInvite = errors.New("a pending invite already exists for this pair")
	ErrInviteNotPending       = errors.New("invite is not pending")
	ErrChannelAuthDenied      = errors.New("channel authorization denied")
	ErrTransportUnavailable   = errors.New("transport unavailable")

	ErrUserNotFound              = errors.New("user not found")
	ErrMessageNotFound           = errors.New("message not found")
	ErrInviteNotFound            = errors.New("invite not found")
	ErrInviteForbidden           = errors.New("user may not act on this invite")
	ErrInsufficientRole          = errors.New("participant role does not allow this action")
	ErrSelfInvite                = errors.New("cannot invite yourself")
	ErrInvalidMessage            = errors.New("message needs a temp id and content or attachments")
	ErrDuplicateMessage          = errors.New("message with this temp id already stored")
	ErrInvalidPresenceTransition = errors.New("invalid presence transition")
	ErrUnknownChannel            = errors.New("unknown channel")
)
