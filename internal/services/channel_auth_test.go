package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

func TestChannelAuthorizer(t *testing.T) {
	f := newFixture(t)
	f.directChat()
	f.groupChat()
	auth := NewChannelAuthorizer(f.chats, zaptest.NewLogger(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  *models.User
		channel string
		allowed bool
	}{
		{"own user channel", &f.alice, "private-user.u-alice", true},
		{"other user channel", &f.alice, "private-user.u-bob", false},
		{"own presence channel", &f.bob, "presence.u-bob", true},
		{"other presence channel", &f.bob, "presence.u-alice", false},
		{"direct participant", &f.bob, "private-dm.dm-42", true},
		{"direct outsider", &f.carol, "private-dm.dm-42", false},
		{"group participant", &f.carol, "group.grp-7", true},
		{"unknown chat", &f.alice, "group.nope", false},
		{"online users", &f.carol, "presence-online-users", true},
		{"tickets", &f.alice, "tickets.t1", false},
		{"malformed", &f.alice, "foo", false},
		{"guest", nil, "presence-online-users", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := auth.Authorize(ctx, tt.caller, tt.channel)
			if tt.allowed {
				require.NoError(t, err)
				assert.NotEmpty(t, ref.Name)
				return
			}
			assert.ErrorIs(t, err, models.ErrChannelAuthDenied)
		})
	}
}

func TestChannelAuthorizerFollowsMembership(t *testing.T) {
	f := newFixture(t)
	chat := f.groupChat()
	auth := NewChannelAuthorizer(f.chats, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := auth.Authorize(ctx, &f.carol, "group.grp-7")
	require.NoError(t, err)

	require.NoError(t, f.chats.RemoveParticipant(ctx, chat.PublicID, f.carol.PublicID))
	_, err = auth.Authorize(ctx, &f.carol, "group.grp-7")
	assert.ErrorIs(t, err, models.ErrChannelAuthDenied)
}

func TestChannelTokens(t *testing.T) {
	alice := &models.User{PublicID: "u-alice"}
	tokens := NewChannelTokens("secret", time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	grant, err := tokens.Issue("sock-1", "dm.dm-42", alice)
	require.NoError(t, err)

	subject, err := tokens.Verify(grant, "sock-1", "dm.dm-42")
	require.NoError(t, err)
	assert.Equal(t, "u-alice", subject)

	_, err = tokens.Verify(grant, "sock-2", "dm.dm-42")
	assert.ErrorIs(t, err, models.ErrChannelAuthDenied)
	_, err = tokens.Verify(grant, "sock-1", "dm.other")
	assert.ErrorIs(t, err, models.ErrChannelAuthDenied)

	other := NewChannelTokens("another-secret", time.Minute)
	_, err = other.Verify(grant, "sock-1", "dm.dm-42")
	assert.ErrorIs(t, err, models.ErrChannelAuthDenied)

	now = now.Add(2 * time.Minute)
	_, err = tokens.Verify(grant, "sock-1", "dm.dm-42")
	assert.ErrorIs(t, err, models.ErrChannelAuthDenied)

	_, err = tokens.Verify("not-a-jwt", "sock-1", "dm.dm-42")
	assert.ErrorIs(t, err, models.ErrChannelAuthDenied)
}
