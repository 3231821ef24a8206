package services

import (
	"context"
	"time"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// Collaborator interfaces. Persistence and authorization live behind these; the
// engine only drives state transitions and broadcasts.

type ChatStore interface {
	// GetChat returns models.ErrChatNotFound for unknown chats.
	GetChat(ctx context.Context, chatPublicID string) (*models.Chat, error)
	// FindOrCreateDirectChat returns the direct chat between a and b, creating it on
	// first use. It is idempotent.
	FindOrCreateDirectChat(ctx context.Context, a, b models.User) (*models.Chat, error)
	AddParticipant(ctx context.Context, chatPublicID string, user models.User, role models.ParticipantRole) (*models.Chat, error)
	RemoveParticipant(ctx context.Context, chatPublicID string, userPublicID string) error
	UpdateLastMessage(ctx context.Context, chatPublicID string, summary models.MessageSummary) error
}

type MessageStore interface {
	// CreateMessage assigns the public id and returns the stored message. A second
	// message with the same author and temp id returns the first one together with
	// models.ErrDuplicateMessage.
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	// GetMessage returns models.ErrMessageNotFound for unknown messages.
	GetMessage(ctx context.Context, publicID string) (*models.Message, error)
	// ListMessages returns up to limit messages older than before, oldest first.
	ListMessages(ctx context.Context, chatID int64, before *time.Time, limit int64) ([]models.Message, bool, error)
	UpdateReadWatermark(ctx context.Context, chatID, readerID int64, upTo *models.Message) (moved bool, err error)
}

type InviteStore interface {
	HasPendingInvite(ctx context.Context, inviterID, inviteeID int64, kind models.InviteKind, chatPublicID *string) (bool, error)
	// CreateInvite returns models.ErrDuplicatePendingInvite when a pending invite for
	// the pair already exists.
	CreateInvite(ctx context.Context, inv *models.ChatInvite) (*models.ChatInvite, error)
	// GetInvite reports expired invites with status expired.
	GetInvite(ctx context.Context, publicID string) (*models.ChatInvite, error)
	// TransitionInvite moves a pending invite to a terminal status, returning
	// models.ErrInviteNotPending when it is no longer pending.
	TransitionInvite(ctx context.Context, publicID string, to models.InviteStatus) (*models.ChatInvite, error)
}

type UserDirectory interface {
	// GetUser returns models.ErrUserNotFound for unknown users.
	GetUser(ctx context.Context, publicID string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error)
}

// Authorizer is the membership capability check.
type Authorizer interface {
	IsParticipant(ctx context.Context, userPublicID, chatPublicID string) (bool, error)
}
