package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

func TestChatChannel(t *testing.T) {
	tests := []struct {
		kind models.ChatKind
		want string
	}{
		{models.ChatKindDirect, "dm.c1"},
		{models.ChatKindGroup, "group.c1"},
		{models.ChatKindTeam, "group.c1"},
	}
	for _, tt := range tests {
		got, err := ChatChannel(tt.kind, "c1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ChatChannel("broadcast", "c1")
	assert.ErrorIs(t, err, models.ErrUnknownChannel)
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in   string
		kind ChannelKind
		id   string
		name string
	}{
		{"dm.c1", ChannelDirect, "c1", "dm.c1"},
		{"private-dm.c1", ChannelDirect, "c1", "dm.c1"},
		{"private-group.g1", ChannelGroup, "g1", "group.g1"},
		{"private-user.u1", ChannelUser, "u1", "user.u1"},
		{"presence.u1", ChannelPresence, "u1", "presence.u1"},
		{"presence-online-users", ChannelOnlineUsers, "", "online-users"},
		{"tickets.t1", ChannelTicket, "t1", "tickets.t1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseChannel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, ChannelRef{Kind: tt.kind, ID: tt.id, Name: tt.name}, ref)
		})
	}

	for _, bad := range []string{"", "dm.", "chat.c1", "dm.a.b", "private-"} {
		_, err := ParseChannel(bad)
		assert.ErrorIs(t, err, models.ErrUnknownChannel, bad)
	}
}

func TestChannelNamesRoundTrip(t *testing.T) {
	for _, name := range []string{UserChannel("u1"), PresenceChannel("u1"), TicketChannel("t1"), OnlineUsersChannel} {
		ref, err := ParseChannel(name)
		require.NoError(t, err)
		assert.Equal(t, name, ref.Name)
	}
	assert.Equal(t, "online-users", ChannelOnlineUsers.String())
	assert.Equal(t, "unknown", ChannelKind(0).String())
}
