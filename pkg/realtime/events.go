package realtime

import "time"

// Broadcast event names clients bind to.
const (
	EventMessageCreated   = "MessageCreated"
	EventMessageConfirmed = "MessageConfirmed"
	EventMessageRead      = "MessageRead"
	EventTypingStarted    = "TypingStarted"
	EventChatMemberKicked = "ChatMemberKicked"
	EventInviteSent       = "invite.sent"
	EventInviteAccepted   = "invite.accepted"
	EventInviteDeclined   = "invite.declined"
	EventPresenceChanged  = "presence.changed"
)

type User struct {
	PublicID string `json:"public_id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
}

type Attachment struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Message is a normalized chat message as broadcast by the gateway.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chat_id"`
	Author      *User        `json:"author"`
	Content     string       `json:"content"`
	ReplyTo     *string      `json:"reply_to"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"created_at"`
}

// MessageCreated arrives on the chat channel for every stored message.
type MessageCreated struct {
	Message Message `json:"message"`
}

// MessageConfirmed arrives on the sender's user channel only.
type MessageConfirmed struct {
	Message Message `json:"message"`
	TempID  string  `json:"temp_id"`
}

type MessageRead struct {
	ChatID            string `json:"chat_id"`
	LastReadMessageID string `json:"last_read_message_id"`
	ReaderPublicID    string `json:"reader_public_id"`
}

type TypingStarted struct {
	UserPublicID string `json:"user_public_id"`
}

type PresenceChanged struct {
	PublicID string `json:"public_id"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}
