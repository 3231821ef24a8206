package models

import "time"

type InviteKind string

const (
	InviteKindDirect InviteKind = "direct"
	InviteKindGroup  InviteKind = "group"
)

// InviteStatus values. Everything except pending is terminal.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusExpired  InviteStatus = "expired"
)

// ChatInvite is stored in PostgreSQL. For group invites ChatPublicID names the chat
// the invitee joins on acceptance.
type ChatInvite struct {
	ID           int64        `json:"-"`
	PublicID     string       `json:"id"`
	Kind         InviteKind   `json:"kind"`
	Status       InviteStatus `json:"status"`
	Inviter      User         `json:"inviter"`
	Invitee      User         `json:"invitee"`
	ChatPublicID *string      `json:"chat_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// IsParty reports whether the user is the inviter or the invitee.
func (i *ChatInvite) IsParty(userPublicID string) bool {
	return i.Inviter.PublicID == userPublicID || i.Invitee.PublicID == userPublicID
}
