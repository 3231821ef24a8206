package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

func TestSendPublishesConfirmedAndCreated(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	svc := NewMessageService(f.deps)

	res, err := svc.Send(context.Background(), SendCommand{
		ChatID:   chat.PublicID,
		AuthorID: f.alice.PublicID,
		Content:  "hello",
		TempID:   "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "m-1", res.MessagePublicID)
	assert.False(t, res.Duplicate)

	confirmed := f.pub.on(UserChannel(f.alice.PublicID))
	require.Len(t, confirmed, 1)
	c := confirmed[0].(MessageConfirmed)
	assert.Equal(t, "t1", c.TempID)
	assert.Equal(t, "m-1", c.Message.ID)

	created := f.pub.on("dm.dm-42")
	require.Len(t, created, 1)
	assert.Equal(t, c.Message.ID, created[0].(MessageCreated).Message.ID)
	assert.Equal(t, "dm-42", created[0].(MessageCreated).Message.ChatID)
	assert.Equal(t, f.alice.PublicID, created[0].(MessageCreated).Message.Author.PublicID)

	// Nothing reaches the recipient's private channel.
	assert.Empty(t, f.pub.on(UserChannel(f.bob.PublicID)))
	assert.Len(t, f.pub.all(), 2)
}

func TestSendUsesGroupChannelForTeamChats(t *testing.T) {
	f := newFixture(t)
	f.chats.put(models.ChatKindTeam, "team-1", member(f.alice, models.RoleOwner))
	svc := NewMessageService(f.deps)

	_, err := svc.Send(context.Background(), SendCommand{ChatID: "team-1", AuthorID: f.alice.PublicID, Content: "hi", TempID: "t1"})
	require.NoError(t, err)
	assert.Len(t, f.pub.on("group.team-1"), 1)
}

func TestSendRejectsNonParticipant(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	svc := NewMessageService(f.deps)

	_, err := svc.Send(context.Background(), SendCommand{ChatID: chat.PublicID, AuthorID: f.carol.PublicID, Content: "hi", TempID: "t1"})
	assert.ErrorIs(t, err, models.ErrNotAParticipant)
	assert.Empty(t, f.pub.all())
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	svc := NewMessageService(f.deps)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  SendCommand
		want error
	}{
		{"missing temp id", SendCommand{ChatID: chat.PublicID, AuthorID: f.alice.PublicID, Content: "hi"}, models.ErrInvalidMessage},
		{"blank content", SendCommand{ChatID: chat.PublicID, AuthorID: f.alice.PublicID, Content: "   ", TempID: "t"}, models.ErrInvalidMessage},
		{"unknown chat", SendCommand{ChatID: "nope", AuthorID: f.alice.PublicID, Content: "hi", TempID: "t"}, models.ErrChatNotFound},
		{"unknown author", SendCommand{ChatID: chat.PublicID, AuthorID: "ghost", Content: "hi", TempID: "t"}, models.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.pub.all())
}

func TestSendAllowsAttachmentOnlyMessages(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	svc := NewMessageService(f.deps)

	res, err := svc.Send(context.Background(), SendCommand{
		ChatID:      chat.PublicID,
		AuthorID:    f.alice.PublicID,
		TempID:      "t1",
		Attachments: []models.MessageAttachment{{Name: "cat.png", Size: 10, MimeType: "image/png", URL: "https://cdn/cat.png"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Message.Attachments, 1)
	assert.Equal(t, "cat.png", res.Message.Attachments[0].Name)

	stored, err := f.chats.GetChat(context.Background(), chat.PublicID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "cat.png", stored.LastMessage.Preview)
}

func TestSendDuplicateTempIDIsIdempotent(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	svc := NewMessageService(f.deps)
	cmd := SendCommand{ChatID: chat.PublicID, AuthorID: f.alice.PublicID, Content: "hello", TempID: "t1"}

	first, err := svc.Send(context.Background(), cmd)
	require.NoError(t, err)
	second, err := svc.Send(context.Background(), cmd)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.MessagePublicID, second.MessagePublicID)
	assert.Len(t, f.pub.all(), 2)
}

func TestSendToDeletedChat(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	f.chats.markDeleted(chat.PublicID)
	svc := NewMessageService(f.deps)

	_, err := svc.Send(context.Background(), SendCommand{ChatID: chat.PublicID, AuthorID: f.alice.PublicID, Content: "hi", TempID: "t1"})
	assert.ErrorIs(t, err, models.ErrChatNotFound)
}

func TestSendReplyMustBeInSameChat(t *testing.T) {
	f := newFixture(t)
	dm := f.directChat()
	group := f.groupChat()
	svc := NewMessageService(f.deps)
	ctx := context.Background()

	parent, err := svc.Send(ctx, SendCommand{ChatID: group.PublicID, AuthorID: f.alice.PublicID, Content: "root", TempID: "t1"})
	require.NoError(t, err)

	_, err = svc.Send(ctx, SendCommand{ChatID: dm.PublicID, AuthorID: f.alice.PublicID, Content: "re", TempID: "t2", ReplyTo: &parent.MessagePublicID})
	assert.ErrorIs(t, err, models.ErrMessageNotFound)

	res, err := svc.Send(ctx, SendCommand{ChatID: group.PublicID, AuthorID: f.bob.PublicID, Content: "re", TempID: "t3", ReplyTo: &parent.MessagePublicID})
	require.NoError(t, err)
	require.NotNil(t, res.Message.ReplyTo)
	assert.Equal(t, parent.MessagePublicID, *res.Message.ReplyTo)
}

func TestSendReportsBroadcastFailureAfterPersisting(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	f.pub.fail("dm.dm-42", fmt.Errorf("%w: redis down", models.ErrTransportUnavailable))
	svc := NewMessageService(f.deps)

	res, err := svc.Send(context.Background(), SendCommand{ChatID: chat.PublicID, AuthorID: f.alice.PublicID, Content: "hi", TempID: "t1"})
	assert.ErrorIs(t, err, models.ErrTransportUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, "m-1", res.MessagePublicID)

	_, getErr := f.messages.GetMessage(context.Background(), "m-1")
	assert.NoError(t, getErr)
}

func TestHistoryPaginates(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	svc := NewMessageService(f.deps)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := f.messages.CreateMessage(ctx, &models.Message{
			ChatID:    chat.ID,
			AuthorID:  &f.bob.ID,
			TempID:    fmt.Sprintf("t%d", i),
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page, hasMore, err := svc.History(ctx, chat.PublicID, f.alice.PublicID, nil, 3)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page, 3)
	assert.Equal(t, "msg 2", page[0].Content)
	assert.Equal(t, "msg 4", page[2].Content)
	assert.Equal(t, f.bob.PublicID, page[0].Author.PublicID)

	before := page[0].CreatedAt
	older, hasMore, err := svc.History(ctx, chat.PublicID, f.alice.PublicID, &before, 3)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, older, 2)
	assert.Equal(t, "msg 0", older[0].Content)

	_, _, err = svc.History(ctx, chat.PublicID, f.carol.PublicID, nil, 3)
	assert.ErrorIs(t, err, models.ErrNotAParticipant)
}

type stubCache struct {
	cached         []WireMessage
	complete       bool
	warmed         []WireMessage
	warmedComplete bool
	pushed         []WireMessage
}

func (c *stubCache) Push(ctx context.Context, msg WireMessage) { c.pushed = append(c.pushed, msg) }
func (c *stubCache) Get(ctx context.Context, chatPublicID string) ([]WireMessage, bool, bool) {
	return c.cached, c.complete, c.cached != nil
}
func (c *stubCache) Warm(ctx context.Context, chatPublicID string, msgs []WireMessage, complete bool) {
	c.warmed = msgs
	c.warmedComplete = complete
}

func TestHistoryServedFromRecentCache(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	cache := &stubCache{cached: []WireMessage{{ID: "m-a"}, {ID: "m-b"}, {ID: "m-c"}}}
	f.deps.Recent = cache
	svc := NewMessageService(f.deps)

	page, hasMore, err := svc.History(context.Background(), chat.PublicID, f.alice.PublicID, nil, 2)
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Equal(t, []WireMessage{{ID: "m-b"}, {ID: "m-c"}}, page)

	_, err = svc.Send(context.Background(), SendCommand{ChatID: chat.PublicID, AuthorID: f.alice.PublicID, Content: "hi", TempID: "t1"})
	require.NoError(t, err)
	require.Len(t, cache.pushed, 1)
}

func TestHistoryWarmsCacheOnMiss(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	cache := &stubCache{}
	f.deps.Recent = cache
	svc := NewMessageService(f.deps)

	_, err := f.messages.CreateMessage(context.Background(), &models.Message{ChatID: chat.ID, AuthorID: &f.alice.ID, TempID: "t", Content: "x", CreatedAt: time.Now()})
	require.NoError(t, err)

	_, _, err = svc.History(context.Background(), chat.PublicID, f.alice.PublicID, nil, 0)
	require.NoError(t, err)
	require.Len(t, cache.warmed, 1)
	assert.Equal(t, "x", cache.warmed[0].Content)
	assert.True(t, cache.warmedComplete)
}

func seedMessages(t *testing.T, f *fixture, chat *models.Chat, n int) {
	t.Helper()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, err := f.messages.CreateMessage(context.Background(), &models.Message{
			ChatID:    chat.ID,
			AuthorID:  &f.bob.ID,
			TempID:    fmt.Sprintf("seed-%d", i),
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestHistorySmallFirstPageDoesNotShrinkCache(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	_, rdb := newTestRedis(t)
	f.deps.Recent = NewRecentCache(rdb, f.deps.Log)
	svc := NewMessageService(f.deps)
	ctx := context.Background()
	seedMessages(t, f, chat, 30)

	page, hasMore, err := svc.History(ctx, chat.PublicID, f.alice.PublicID, nil, 5)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page, 5)
	assert.Equal(t, "msg 25", page[0].Content)

	page, hasMore, err = svc.History(ctx, chat.PublicID, f.alice.PublicID, nil, 50)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page, 30)
	assert.Equal(t, "msg 0", page[0].Content)
}

func TestHistoryExactPageHasNoMore(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	_, rdb := newTestRedis(t)
	f.deps.Recent = NewRecentCache(rdb, f.deps.Log)
	svc := NewMessageService(f.deps)
	seedMessages(t, f, chat, 5)

	for i := 0; i < 2; i++ { // cold, then from the cache
		page, hasMore, err := svc.History(context.Background(), chat.PublicID, f.alice.PublicID, nil, 5)
		require.NoError(t, err)
		assert.Len(t, page, 5)
		assert.False(t, hasMore)
	}
}

func TestHistoryPartialCacheFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat()
	_, rdb := newTestRedis(t)
	f.deps.Recent = NewRecentCache(rdb, f.deps.Log)
	svc := NewMessageService(f.deps)
	ctx := context.Background()
	seedMessages(t, f, chat, 60)

	page, hasMore, err := svc.History(ctx, chat.PublicID, f.alice.PublicID, nil, 50)
	require.NoError(t, err)
	assert.Len(t, page, 50)
	assert.True(t, hasMore)

	page, hasMore, err = svc.History(ctx, chat.PublicID, f.alice.PublicID, nil, 50)
	require.NoError(t, err)
	assert.Len(t, page, 50)
	assert.True(t, hasMore)

	page, hasMore, err = svc.History(ctx, chat.PublicID, f.alice.PublicID, nil, 100)
	require.NoError(t, err)
	assert.Len(t, page, 60)
	assert.False(t, hasMore)
}
