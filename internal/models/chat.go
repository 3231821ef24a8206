package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatKind is the kind of a chat. It decides which broadcast channel prefix the chat uses.
type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
	ChatKindTeam   ChatKind = "team"
)

// Valid reports whether k is one of the known chat kinds.
func (k ChatKind) Valid() bool {
	switch k {
	case ChatKindDirect, ChatKindGroup, ChatKindTeam:
		return true
	}
	return false
}

// ParticipantRole is a participant's role inside a chat.
type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "owner"
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

// Chat is stored in PostgreSQL. ID is internal and never leaves the process;
// everything on the wire uses PublicID.
type Chat struct {
	ID                  int64             `json:"-"`
	PublicID            string            `json:"id"`
	Kind                ChatKind          `json:"kind"`
	Name                *string           `json:"name"` // nil for direct chats
	Participants        []ChatParticipant `json:"participants"`
	LastMessage         *MessageSummary   `json:"last_message,omitempty"`
	MarkedForDeletionAt *time.Time        `json:"-"`
	CreatedAt           time.Time         `json:"created_at"`
}

// Deleted reports whether the chat has been soft-deleted.
func (c *Chat) Deleted() bool {
	return c.MarkedForDeletionAt != nil
}

// Participant returns the participant entry for the given user public id.
func (c *Chat) Participant(userPublicID string) (ChatParticipant, bool) {
	for _, p := range c.Participants {
		if p.User.PublicID == userPublicID {
			return p, true
		}
	}
	return ChatParticipant{}, false
}

// ChatParticipant links a user to a chat. Status is derived from presence and is not
// authoritative here.
type ChatParticipant struct {
	User   User            `json:"user"`
	Role   ParticipantRole `json:"role"`
	Status PresenceStatus  `json:"status,omitempty"`
}

// MessageSummary is the denormalized last-message preview used by chat list views.
type MessageSummary struct {
	MessagePublicID string    `json:"message_id"`
	AuthorPublicID  string    `json:"author_id,omitempty"`
	Preview         string    `json:"preview"`
	CreatedAt       time.Time `json:"created_at"`
}

// Message is stored in MongoDB, one document per message. The ObjectID gives the
// insertion order used for history and read watermarks.
type Message struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty"`
	PublicID    string              `bson:"public_id"`
	ChatID      int64               `bson:"chat_id"`
	AuthorID    *int64              `bson:"author_id,omitempty"` // nil for system messages
	TempID      string              `bson:"temp_id,omitempty"`
	Content     string              `bson:"content"`
	ReplyTo     *string             `bson:"reply_to,omitempty"` // public id of the replied message
	Attachments []MessageAttachment `bson:"attachments,omitempty"`
	CreatedAt   time.Time           `bson:"created_at"`
	SeenBy      []int64             `bson:"seen_by,omitempty"`
}

// MessageAttachment points at an already uploaded object.
type MessageAttachment struct {
	Name      string `bson:"name" json:"name"`
	Size      int64  `bson:"size" json:"size"`
	MimeType  string `bson:"mime_type" json:"mime_type"`
	URL       string `bson:"url" json:"url"`
	Thumbnail string `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
}

// ReadWatermark records the last message a user has read in a chat.
type ReadWatermark struct {
	ChatID            int64     `bson:"chat_id"`
	UserID            int64     `bson:"user_id"`
	LastReadMessageID string    `bson:"last_read_message_id"`
	UpdatedAt         time.Time `bson:"updated_at"`
}
