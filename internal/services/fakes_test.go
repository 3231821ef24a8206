package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

type published struct {
	Channel string
	Event   BroadcastEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	failOn map[string]error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, event BroadcastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[channel]; err != nil {
		return err
	}
	p.events = append(p.events, published{Channel: channel, Event: event})
	return nil
}

func (p *recordingPublisher) fail(channel string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn == nil {
		p.failOn = make(map[string]error)
	}
	p.failOn[channel] = err
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func (p *recordingPublisher) on(channel string) []BroadcastEvent {
	var out []BroadcastEvent
	for _, e := range p.all() {
		if e.Channel == channel {
			out = append(out, e.Event)
		}
	}
	return out
}

func (p *recordingPublisher) channels() []string {
	var out []string
	for _, e := range p.all() {
		out = append(out, e.Channel)
	}
	return out
}

type memUsers struct {
	byPublic map[string]models.User
}

func (d *memUsers) GetUser(ctx context.Context, publicID string) (*models.User, error) {
	u, ok := d.byPublic[publicID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

func (d *memUsers) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	out := make(map[int64]models.User)
	for _, u := range d.byPublic {
		for _, id := range ids {
			if u.ID == id {
				out[id] = u
			}
		}
	}
	return out, nil
}

type memChats struct {
	mu     sync.Mutex
	chats  map[string]*models.Chat
	nextID int64
}

func newMemChats() *memChats {
	return &memChats{chats: make(map[string]*models.Chat)}
}

func copyChat(c *models.Chat) *models.Chat {
	cp := *c
	cp.Participants = append([]models.ChatParticipant(nil), c.Participants...)
	return &cp
}

func (s *memChats) put(kind models.ChatKind, publicID string, participants ...models.ChatParticipant) *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := &models.Chat{
		ID:           s.nextID,
		PublicID:     publicID,
		Kind:         kind,
		Participants: participants,
		CreatedAt:    time.Now().UTC(),
	}
	s.chats[publicID] = c
	return copyChat(c)
}

func (s *memChats) GetChat(ctx context.Context, chatPublicID string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatPublicID]
	if !ok {
		return nil, models.ErrChatNotFound
	}
	return copyChat(c), nil
}

func (s *memChats) FindOrCreateDirectChat(ctx context.Context, a, b models.User) (*models.Chat, error) {
	s.mu.Lock()
	for _, c := range s.chats {
		if c.Kind != models.ChatKindDirect {
			continue
		}
		_, hasA := c.Participant(a.PublicID)
		_, hasB := c.Participant(b.PublicID)
		if hasA && hasB {
			c.MarkedForDeletionAt = nil
			s.mu.Unlock()
			return copyChat(c), nil
		}
	}
	s.mu.Unlock()
	return s.put(models.ChatKindDirect, fmt.Sprintf("dm-%d-%d", a.ID, b.ID),
		models.ChatParticipant{User: a, Role: models.RoleMember},
		models.ChatParticipant{User: b, Role: models.RoleMember}), nil
}

func (s *memChats) AddParticipant(ctx context.Context, chatPublicID string, user models.User, role models.ParticipantRole) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatPublicID]
	if !ok || c.Deleted() {
		return nil, models.ErrChatNotFound
	}
	if _, ok := c.Participant(user.PublicID); !ok {
		c.Participants = append(c.Participants, models.ChatParticipant{User: user, Role: role})
	}
	return copyChat(c), nil
}

func (s *memChats) RemoveParticipant(ctx context.Context, chatPublicID string, userPublicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatPublicID]
	if !ok {
		return models.ErrChatNotFound
	}
	for i, p := range c.Participants {
		if p.User.PublicID == userPublicID {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
			return nil
		}
	}
	return models.ErrNotAParticipant
}

func (s *memChats) UpdateLastMessage(ctx context.Context, chatPublicID string, summary models.MessageSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatPublicID]
	if !ok {
		return models.ErrChatNotFound
	}
	c.LastMessage = &summary
	return nil
}

func (s *memChats) IsParticipant(ctx context.Context, userPublicID, chatPublicID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatPublicID]
	if !ok || c.Deleted() {
		return false, nil
	}
	_, ok = c.Participant(userPublicID)
	return ok, nil
}

func (s *memChats) markDeleted(chatPublicID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.chats[chatPublicID].MarkedForDeletionAt = &now
}

type memMessages struct {
	mu         sync.Mutex
	ordered    []*models.Message
	seq        int
	watermarks map[[2]int64]primitive.ObjectID
}

func newMemMessages() *memMessages {
	return &memMessages{watermarks: make(map[[2]int64]primitive.ObjectID)}
}

func (s *memMessages) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.ordered {
		if msg.TempID != "" && m.TempID == msg.TempID && m.AuthorID != nil && msg.AuthorID != nil && *m.AuthorID == *msg.AuthorID {
			cp := *m
			return &cp, models.ErrDuplicateMessage
		}
	}
	s.seq++
	stored := *msg
	stored.ID = primitive.NewObjectID()
	stored.PublicID = fmt.Sprintf("m-%d", s.seq)
	s.ordered = append(s.ordered, &stored)
	cp := stored
	return &cp, nil
}

func (s *memMessages) GetMessage(ctx context.Context, publicID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.ordered {
		if m.PublicID == publicID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, models.ErrMessageNotFound
}

func (s *memMessages) ListMessages(ctx context.Context, chatID int64, before *time.Time, limit int64) ([]models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match []models.Message
	for _, m := range s.ordered {
		if m.ChatID != chatID || (before != nil && !m.CreatedAt.Before(*before)) {
			continue
		}
		match = append(match, *m)
	}
	sort.SliceStable(match, func(i, j int) bool { return match[i].CreatedAt.Before(match[j].CreatedAt) })
	hasMore := int64(len(match)) > limit
	if hasMore {
		match = match[int64(len(match))-limit:]
	}
	return match, hasMore, nil
}

func (s *memMessages) UpdateReadWatermark(ctx context.Context, chatID, readerID int64, upTo *models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{chatID, readerID}
	if cur, ok := s.watermarks[key]; ok && cur.Hex() >= upTo.ID.Hex() {
		return false, nil
	}
	s.watermarks[key] = upTo.ID
	return true, nil
}

type memInvites struct {
	mu      sync.Mutex
	invites map[string]*models.ChatInvite
	seq     int64
}

func newMemInvites() *memInvites {
	return &memInvites{invites: make(map[string]*models.ChatInvite)}
}

func samePendingTarget(inv *models.ChatInvite, inviterID, inviteeID int64, kind models.InviteKind, chat *string) bool {
	if inv.Status != models.InviteStatusPending || inv.Inviter.ID != inviterID || inv.Invitee.ID != inviteeID || inv.Kind != kind {
		return false
	}
	if inv.ChatPublicID == nil || chat == nil {
		return inv.ChatPublicID == nil && chat == nil
	}
	return *inv.ChatPublicID == *chat
}

func (s *memInvites) HasPendingInvite(ctx context.Context, inviterID, inviteeID int64, kind models.InviteKind, chatPublicID *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if samePendingTarget(inv, inviterID, inviteeID, kind, chatPublicID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memInvites) CreateInvite(ctx context.Context, inv *models.ChatInvite) (*models.ChatInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.invites {
		if samePendingTarget(cur, inv.Inviter.ID, inv.Invitee.ID, inv.Kind, inv.ChatPublicID) {
			return nil, models.ErrDuplicatePendingInvite
		}
	}
	s.seq++
	stored := *inv
	stored.ID = s.seq
	stored.PublicID = fmt.Sprintf("invite-%d", s.seq)
	s.invites[stored.PublicID] = &stored
	cp := stored
	return &cp, nil
}

func (s *memInvites) GetInvite(ctx context.Context, publicID string) (*models.ChatInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[publicID]
	if !ok {
		return nil, models.ErrInviteNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *memInvites) TransitionInvite(ctx context.Context, publicID string, to models.InviteStatus) (*models.ChatInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[publicID]
	if !ok {
		return nil, models.ErrInviteNotFound
	}
	if inv.Status != models.InviteStatusPending {
		return nil, models.ErrInviteNotPending
	}
	inv.Status = to
	cp := *inv
	return &cp, nil
}

func (s *memInvites) expire(publicID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[publicID].Status = models.InviteStatusExpired
}

type fixture struct {
	alice, bob, carol models.User

	users    *memUsers
	chats    *memChats
	messages *memMessages
	invites  *memInvites
	pub      *recordingPublisher
	deps     Deps
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		alice:    models.User{ID: 1, PublicID: "u-alice", Name: "Alice"},
		bob:      models.User{ID: 2, PublicID: "u-bob", Name: "Bob"},
		carol:    models.User{ID: 3, PublicID: "u-carol", Name: "Carol"},
		chats:    newMemChats(),
		messages: newMemMessages(),
		invites:  newMemInvites(),
		pub:      &recordingPublisher{},
	}
	f.users = &memUsers{byPublic: map[string]models.User{
		f.alice.PublicID: f.alice,
		f.bob.PublicID:   f.bob,
		f.carol.PublicID: f.carol,
	}}
	f.deps = Deps{
		Chats:     f.chats,
		Messages:  f.messages,
		Invites:   f.invites,
		Users:     f.users,
		Authz:     f.chats,
		Publisher: f.pub,
		Log:       zaptest.NewLogger(t),
	}
	return f
}

func member(u models.User, role models.ParticipantRole) models.ChatParticipant {
	return models.ChatParticipant{User: u, Role: role}
}

// directChat seeds dm-42 between alice and bob.
func (f *fixture) directChat() *models.Chat {
	return f.chats.put(models.ChatKindDirect, "dm-42",
		member(f.alice, models.RoleMember),
		member(f.bob, models.RoleMember))
}

// groupChat seeds grp-7 owned by alice with bob and carol as members.
func (f *fixture) groupChat() *models.Chat {
	return f.chats.put(models.ChatKindGroup, "grp-7",
		member(f.alice, models.RoleOwner),
		member(f.bob, models.RoleMember),
		member(f.carol, models.RoleMember))
}
