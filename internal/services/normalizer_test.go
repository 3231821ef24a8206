package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

func TestNormalizeMessageUsesPublicIDsOnly(t *testing.T) {
	authorID := int64(7)
	chat := &models.Chat{ID: 99, PublicID: "dm-42", Kind: models.ChatKindDirect}
	msg := &models.Message{
		ID:        primitive.NewObjectID(),
		PublicID:  "m-99",
		ChatID:    99,
		AuthorID:  &authorID,
		TempID:    "t1",
		Content:   "hello",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)),
		SeenBy:    []int64{7},
	}
	author := &models.User{ID: 7, PublicID: "u-alice", Name: "Alice"}

	wire := NormalizeMessage(msg, chat, author)
	assert.Equal(t, "m-99", wire.ID)
	assert.Equal(t, "dm-42", wire.ChatID)
	assert.Equal(t, time.UTC, wire.CreatedAt.Location())
	assert.NotNil(t, wire.Attachments)

	data, err := json.Marshal(MessageConfirmed{Message: wire, TempID: "t1"})
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, `"temp_id":"t1"`)
	assert.Contains(t, body, `"public_id":"u-alice"`)
	assert.NotContains(t, body, msg.ID.Hex())
	assert.NotContains(t, body, "seen_by")

	system := NormalizeMessage(&models.Message{PublicID: "m-1"}, chat, nil)
	assert.Nil(t, system.Author)
}

func TestNormalizeChatAndInvite(t *testing.T) {
	name := "Team"
	chat := &models.Chat{
		ID:       3,
		PublicID: "grp-7",
		Kind:     models.ChatKindGroup,
		Name:     &name,
		Participants: []models.ChatParticipant{
			{User: models.User{ID: 1, PublicID: "u-alice", Name: "Alice"}, Role: models.RoleOwner},
		},
	}
	wc := NormalizeChat(chat)
	assert.Equal(t, "grp-7", wc.ID)
	require.Len(t, wc.Participants, 1)
	assert.Equal(t, models.RoleOwner, wc.Participants[0].Role)
	assert.Equal(t, "u-alice", wc.Participants[0].PublicID)

	inv := NormalizeInvite(&models.ChatInvite{
		ID:       12,
		PublicID: "invite-1",
		Kind:     models.InviteKindDirect,
		Status:   models.InviteStatusPending,
		Inviter:  models.User{PublicID: "u-bob"},
		Invitee:  models.User{PublicID: "u-carol"},
	})
	assert.Equal(t, "invite-1", inv.ID)
	assert.Equal(t, "u-carol", inv.Invitee.PublicID)
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("é", 130)
	s := summarize(WireMessage{ID: "m-1", Content: long, Author: &WireUser{PublicID: "u-a"}})
	assert.Equal(t, 120, len([]rune(s.Preview)))
	assert.Equal(t, "u-a", s.AuthorPublicID)

	s = summarize(WireMessage{ID: "m-2", Attachments: []WireAttachment{{Name: "doc.pdf"}}})
	assert.Equal(t, "doc.pdf", s.Preview)
	assert.Empty(t, s.AuthorPublicID)
}

func TestEncodeEnvelope(t *testing.T) {
	data, err := EncodeEnvelope("user.u-bob", MessageRead{ChatID: "dm-42", LastReadMessageID: "m-1", ReaderPublicID: "u-alice"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventMessageRead, env.Event)
	assert.Equal(t, "user.u-bob", env.Channel)
	assert.JSONEq(t, `{"chat_id":"dm-42","last_read_message_id":"m-1","reader_public_id":"u-alice"}`, string(env.Data))
}

func TestEncodeEnvelopePresenceUsesNameKey(t *testing.T) {
	data, err := EncodeEnvelope(OnlineUsersChannel, PresenceChanged{
		PublicID:    "u-alice",
		Status:      "online",
		LastSeen:    1700000000,
		DisplayName: "Alice",
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventPresenceChanged, env.Event)
	assert.JSONEq(t, `{"public_id":"u-alice","status":"online","last_seen":1700000000,"name":"Alice","avatar":""}`, string(env.Data))
}
