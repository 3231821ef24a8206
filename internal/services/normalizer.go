package services

import (
	"time"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// Wire types. Only public identifiers appear here; internal numeric ids and Mongo
// ObjectIDs are dropped during normalization.

type WireUser struct {
	PublicID string `json:"public_id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
}

type WireAttachment struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type WireMessage struct {
	ID          string           `json:"id"`
	ChatID      string           `json:"chat_id"`
	Author      *WireUser        `json:"author"`
	Content     string           `json:"content"`
	ReplyTo     *string          `json:"reply_to"`
	Attachments []WireAttachment `json:"attachments"`
	CreatedAt   time.Time        `json:"created_at"`
}

type WireParticipant struct {
	WireUser
	Role models.ParticipantRole `json:"role"`
}

type WireChat struct {
	ID           string                 `json:"id"`
	Kind         models.ChatKind        `json:"kind"`
	Name         *string                `json:"name"`
	Participants []WireParticipant      `json:"participants"`
	LastMessage  *models.MessageSummary `json:"last_message,omitempty"`
}

type WireInvite struct {
	ID        string              `json:"id"`
	Kind      models.InviteKind   `json:"kind"`
	Status    models.InviteStatus `json:"status"`
	Inviter   WireUser            `json:"inviter"`
	Invitee   WireUser            `json:"invitee"`
	ChatID    *string             `json:"chat_id,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func NormalizeUser(u models.User) WireUser {
	return WireUser{PublicID: u.PublicID, Name: u.Name, Avatar: u.Avatar}
}

// NormalizeMessage shapes a persisted message for broadcast. author is nil for system
// messages and for authors that no longer resolve.
func NormalizeMessage(msg *models.Message, chat *models.Chat, author *models.User) WireMessage {
	out := WireMessage{
		ID:          msg.PublicID,
		ChatID:      chat.PublicID,
		Content:     msg.Content,
		ReplyTo:     msg.ReplyTo,
		Attachments: make([]WireAttachment, 0, len(msg.Attachments)),
		CreatedAt:   msg.CreatedAt.UTC(),
	}
	if author != nil {
		u := NormalizeUser(*author)
		out.Author = &u
	}
	for _, a := range msg.Attachments {
		out.Attachments = append(out.Attachments, WireAttachment{
			Name:      a.Name,
			Size:      a.Size,
			MimeType:  a.MimeType,
			URL:       a.URL,
			Thumbnail: a.Thumbnail,
		})
	}
	return out
}

func NormalizeChat(chat *models.Chat) WireChat {
	out := WireChat{
		ID:           chat.PublicID,
		Kind:         chat.Kind,
		Name:         chat.Name,
		Participants: make([]WireParticipant, 0, len(chat.Participants)),
		LastMessage:  chat.LastMessage,
	}
	for _, p := range chat.Participants {
		out.Participants = append(out.Participants, WireParticipant{
			WireUser: NormalizeUser(p.User),
			Role:     p.Role,
		})
	}
	return out
}

func NormalizeInvite(inv *models.ChatInvite) WireInvite {
	return WireInvite{
		ID:        inv.PublicID,
		Kind:      inv.Kind,
		Status:    inv.Status,
		Inviter:   NormalizeUser(inv.Inviter),
		Invitee:   NormalizeUser(inv.Invitee),
		ChatID:    inv.ChatPublicID,
		CreatedAt: inv.CreatedAt.UTC(),
	}
}

// summarize builds the denormalized last-message preview for chat list views.
func summarize(msg WireMessage) models.MessageSummary {
	preview := msg.Content
	if r := []rune(preview); len(r) > 120 {
		preview = string(r[:120])
	}
	if preview == "" && len(msg.Attachments) > 0 {
		preview = msg.Attachments[0].Name
	}
	s := models.MessageSummary{
		MessagePublicID: msg.ID,
		Preview:         preview,
		CreatedAt:       msg.CreatedAt,
	}
	if msg.Author != nil {
		s.AuthorPublicID = msg.Author.PublicID
	}
	return s
}
