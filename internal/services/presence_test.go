package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

type memPresence struct {
	mu      sync.Mutex
	states  map[string]models.PresenceState
	conns   map[string]int64
	touched int
}

func newMemPresence() *memPresence {
	return &memPresence{states: make(map[string]models.PresenceState), conns: make(map[string]int64)}
}

func (c *memPresence) Load(ctx context.Context, id string) (*models.PresenceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (c *memPresence) Save(ctx context.Context, st models.PresenceState, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[st.User.PublicID] = st
	return nil
}

func (c *memPresence) AddConnection(ctx context.Context, id string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[id]++
	return c.conns[id], nil
}

func (c *memPresence) RemoveConnection(ctx context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[id] > 0 {
		c.conns[id]--
	}
	return c.conns[id], nil
}

func (c *memPresence) Touch(ctx context.Context, id string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched++
	return nil
}

func (c *memPresence) Online(ctx context.Context) ([]models.PresenceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.PresenceState
	for _, st := range c.states {
		if st.Status != models.PresenceOffline {
			out = append(out, st)
		}
	}
	return out, nil
}

func newTestTracker(t *testing.T) (*PresenceTracker, *memPresence, *recordingPublisher) {
	cache := newMemPresence()
	pub := &recordingPublisher{}
	tr := NewPresenceTracker(cache, pub, zaptest.NewLogger(t), 0)
	tr.now = func() time.Time { return time.Unix(1700000000, 0) }
	return tr, cache, pub
}

func statuses(events []BroadcastEvent) []string {
	var out []string
	for _, e := range events {
		out = append(out, e.(PresenceChanged).Status)
	}
	return out
}

func TestPresenceLifecyclePublishesTwicePerTransition(t *testing.T) {
	tr, _, pub := newTestTracker(t)
	ctx := context.Background()
	alice := models.User{ID: 1, PublicID: "u-alice", Name: "Alice", Avatar: "https://cdn/a.png"}

	require.NoError(t, tr.Connect(ctx, alice))
	require.NoError(t, tr.MarkOnline(ctx, alice))
	require.NoError(t, tr.SetStatus(ctx, alice, models.PresenceAway))
	require.NoError(t, tr.Disconnect(ctx, alice))

	want := []string{"connecting", "online", "away", "offline"}
	assert.Equal(t, want, statuses(pub.on(PresenceChannel("u-alice"))))
	assert.Equal(t, want, statuses(pub.on(OnlineUsersChannel)))
	assert.Len(t, pub.all(), 8)

	ev := pub.all()[0].Event.(PresenceChanged)
	assert.Equal(t, "Alice", ev.DisplayName)
	assert.Equal(t, "https://cdn/a.png", ev.Avatar)
	assert.Equal(t, int64(1700000000), ev.LastSeen)
}

func TestPresenceSecondDeviceDoesNotPublish(t *testing.T) {
	tr, cache, pub := newTestTracker(t)
	ctx := context.Background()
	alice := models.User{ID: 1, PublicID: "u-alice"}

	require.NoError(t, tr.Connect(ctx, alice))
	require.NoError(t, tr.MarkOnline(ctx, alice))
	n := len(pub.all())

	require.NoError(t, tr.Connect(ctx, alice))
	require.NoError(t, tr.MarkOnline(ctx, alice))
	assert.Len(t, pub.all(), n)
	assert.Equal(t, 1, cache.touched)

	// First disconnect leaves one device online.
	require.NoError(t, tr.Disconnect(ctx, alice))
	assert.Len(t, pub.all(), n)

	require.NoError(t, tr.Disconnect(ctx, alice))
	assert.Len(t, pub.all(), n+2)

	st, err := tr.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOffline, st.Status)
}

func TestPresenceSetStatusRules(t *testing.T) {
	tr, _, pub := newTestTracker(t)
	ctx := context.Background()
	alice := models.User{ID: 1, PublicID: "u-alice"}

	// Offline users cannot jump straight to away.
	assert.ErrorIs(t, tr.SetStatus(ctx, alice, models.PresenceAway), models.ErrInvalidPresenceTransition)
	assert.ErrorIs(t, tr.SetStatus(ctx, alice, models.PresenceOffline), models.ErrInvalidPresenceTransition)
	assert.Empty(t, pub.all())

	require.NoError(t, tr.Connect(ctx, alice))
	require.NoError(t, tr.MarkOnline(ctx, alice))
	n := len(pub.all())
	require.NoError(t, tr.SetStatus(ctx, alice, models.PresenceOnline))
	assert.Len(t, pub.all(), n)

	require.NoError(t, tr.SetStatus(ctx, alice, models.PresenceBusy))
	online, err := tr.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, models.PresenceBusy, online[0].Status)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.PresenceStatus
		want     bool
	}{
		{models.PresenceOffline, models.PresenceConnecting, true},
		{models.PresenceOffline, models.PresenceOnline, false},
		{models.PresenceOffline, models.PresenceOffline, false},
		{models.PresenceConnecting, models.PresenceOnline, true},
		{models.PresenceConnecting, models.PresenceOffline, true},
		{models.PresenceOnline, models.PresenceAway, true},
		{models.PresenceAway, models.PresenceBusy, true},
		{models.PresenceBusy, models.PresenceConnecting, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
