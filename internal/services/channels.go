package services

import (
	"fmt"
	"strings"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// Channel name prefixes. These are part of the wire contract.
const (
	directChannelPrefix   = "dm."
	groupChannelPrefix    = "group."
	userChannelPrefix     = "user."
	presenceChannelPrefix = "presence."
	ticketChannelPrefix   = "tickets."

	// OnlineUsersChannel is the membership-tracked presence channel shared by everyone.
	OnlineUsersChannel = "online-users"
)

// Pusher-style clients prefix channel names with their visibility when asking for
// authorization. We accept and strip them.
var clientChannelPrefixes = []string{"private-", "presence-"}

// ChannelKind classifies a parsed channel name.
type ChannelKind int

const (
	ChannelDirect ChannelKind = iota + 1
	ChannelGroup
	ChannelUser
	ChannelPresence
	ChannelOnlineUsers
	ChannelTicket
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelDirect:
		return "direct"
	case ChannelGroup:
		return "group"
	case ChannelUser:
		return "user"
	case ChannelPresence:
		return "presence"
	case ChannelOnlineUsers:
		return "online-users"
	case ChannelTicket:
		return "ticket"
	}
	return "unknown"
}

// ChannelRef is a parsed channel name. ID is the public id embedded in the name and
// is empty for OnlineUsersChannel.
type ChannelRef struct {
	Kind ChannelKind
	ID   string
	Name string
}

// ChatChannel maps a chat kind and public id to the chat's shared channel.
// Team chats share the group prefix.
func ChatChannel(kind models.ChatKind, chatPublicID string) (string, error) {
	switch kind {
	case models.ChatKindDirect:
		return directChannelPrefix + chatPublicID, nil
	case models.ChatKindGroup, models.ChatKindTeam:
		return groupChannelPrefix + chatPublicID, nil
	}
	return "", fmt.Errorf("%w: chat kind %q", models.ErrUnknownChannel, kind)
}

// ChannelForChat is ChatChannel for a loaded chat.
func ChannelForChat(chat *models.Chat) (string, error) {
	return ChatChannel(chat.Kind, chat.PublicID)
}

// UserChannel is the private channel of a single user.
func UserChannel(userPublicID string) string {
	return userChannelPrefix + userPublicID
}

// PresenceChannel is the private presence channel of a single user, used by the
// user's other devices.
func PresenceChannel(userPublicID string) string {
	return presenceChannelPrefix + userPublicID
}

func TicketChannel(ticketPublicID string) string {
	return ticketChannelPrefix + ticketPublicID
}

// ParseChannel is the inverse of the naming functions above.
func ParseChannel(name string) (ChannelRef, error) {
	name = strings.TrimSpace(name)
	for _, p := range clientChannelPrefixes {
		name = strings.TrimPrefix(name, p)
	}

	if name == OnlineUsersChannel {
		return ChannelRef{Kind: ChannelOnlineUsers, Name: name}, nil
	}

	prefixes := []struct {
		prefix string
		kind   ChannelKind
	}{
		{directChannelPrefix, ChannelDirect},
		{groupChannelPrefix, ChannelGroup},
		{userChannelPrefix, ChannelUser},
		{presenceChannelPrefix, ChannelPresence},
		{ticketChannelPrefix, ChannelTicket},
	}
	for _, p := range prefixes {
		if id, ok := strings.CutPrefix(name, p.prefix); ok && id != "" && !strings.Contains(id, ".") {
			return ChannelRef{Kind: p.kind, ID: id, Name: name}, nil
		}
	}
	return ChannelRef{}, fmt.Errorf("%w: %q", models.ErrUnknownChannel, name)
}
