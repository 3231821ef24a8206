package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// DefaultPresenceTTL bounds how long a presence entry survives without a heartbeat.
const DefaultPresenceTTL = 90 * time.Second

// PresenceCache holds transient presence state and per-user live connection counts.
type PresenceCache interface {
	Load(ctx context.Context, userPublicID string) (*models.PresenceState, error) // nil when absent
	Save(ctx context.Context, state models.PresenceState, ttl time.Duration) error
	AddConnection(ctx context.Context, userPublicID string, ttl time.Duration) (int64, error)
	RemoveConnection(ctx context.Context, userPublicID string) (int64, error)
	Touch(ctx context.Context, userPublicID string, ttl time.Duration) error
	Online(ctx context.Context) ([]models.PresenceState, error)
}

// allowed presence transitions; any status may also go offline.
var presenceTransitions = map[models.PresenceStatus][]models.PresenceStatus{
	models.PresenceOffline:    {models.PresenceConnecting},
	models.PresenceConnecting: {models.PresenceOnline},
	models.PresenceOnline:     {models.PresenceAway, models.PresenceBusy},
	models.PresenceAway:       {models.PresenceOnline, models.PresenceBusy},
	models.PresenceBusy:       {models.PresenceOnline, models.PresenceAway},
}

func canTransition(from, to models.PresenceStatus) bool {
	if to == models.PresenceOffline {
		return from != models.PresenceOffline
	}
	for _, s := range presenceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PresenceTracker is the only writer of presence state. Every transition publishes
// exactly twice: to the user's presence channel and to OnlineUsersChannel.
type PresenceTracker struct {
	cache PresenceCache
	pub   Publisher
	log   *zap.Logger
	ttl   time.Duration
	now   func() time.Time
}

func NewPresenceTracker(cache PresenceCache, pub Publisher, log *zap.Logger, ttl time.Duration) *PresenceTracker {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceTracker{cache: cache, pub: pub, log: log, ttl: ttl, now: time.Now}
}

// Get returns the user's current state, offline when nothing is cached.
func (t *PresenceTracker) Get(ctx context.Context, user models.User) (models.PresenceState, error) {
	st, err := t.cache.Load(ctx, user.PublicID)
	if err != nil {
		return models.PresenceState{}, err
	}
	if st == nil {
		return models.PresenceState{User: user, Status: models.PresenceOffline}, nil
	}
	st.User = user
	return *st, nil
}

// Connect registers a live connection. The first connection moves an offline user to
// connecting; later devices only bump the connection count.
func (t *PresenceTracker) Connect(ctx context.Context, user models.User) error {
	if _, err := t.cache.AddConnection(ctx, user.PublicID, t.ttl); err != nil {
		return fmt.Errorf("add presence connection: %w", err)
	}
	cur, err := t.Get(ctx, user)
	if err != nil {
		return err
	}
	if cur.Status != models.PresenceOffline {
		return t.Heartbeat(ctx, user)
	}
	return t.transition(ctx, cur, models.PresenceConnecting)
}

// MarkOnline completes the handshake started by Connect.
func (t *PresenceTracker) MarkOnline(ctx context.Context, user models.User) error {
	cur, err := t.Get(ctx, user)
	if err != nil {
		return err
	}
	if cur.Status != models.PresenceConnecting {
		return nil
	}
	return t.transition(ctx, cur, models.PresenceOnline)
}

// SetStatus applies an explicit status change. Setting the current status again is
// a no-op and publishes nothing.
func (t *PresenceTracker) SetStatus(ctx context.Context, user models.User, status models.PresenceStatus) error {
	switch status {
	case models.PresenceOnline, models.PresenceAway, models.PresenceBusy:
	default:
		return models.ErrInvalidPresenceTransition
	}
	cur, err := t.Get(ctx, user)
	if err != nil {
		return err
	}
	if cur.Status == status {
		return nil
	}
	return t.transition(ctx, cur, status)
}

// Disconnect drops one live connection; the last one takes the user offline.
func (t *PresenceTracker) Disconnect(ctx context.Context, user models.User) error {
	remaining, err := t.cache.RemoveConnection(ctx, user.PublicID)
	if err != nil {
		return fmt.Errorf("remove presence connection: %w", err)
	}
	if remaining > 0 {
		return nil
	}
	cur, err := t.Get(ctx, user)
	if err != nil {
		return err
	}
	if cur.Status == models.PresenceOffline {
		return nil
	}
	return t.transition(ctx, cur, models.PresenceOffline)
}

// Heartbeat refreshes the TTL of the current state without publishing.
func (t *PresenceTracker) Heartbeat(ctx context.Context, user models.User) error {
	return t.cache.Touch(ctx, user.PublicID, t.ttl)
}

// Online lists everyone currently in the membership-tracked presence channel.
func (t *PresenceTracker) Online(ctx context.Context) ([]models.PresenceState, error) {
	return t.cache.Online(ctx)
}

func (t *PresenceTracker) transition(ctx context.Context, cur models.PresenceState, to models.PresenceStatus) error {
	if !canTransition(cur.Status, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidPresenceTransition, cur.Status, to)
	}

	next := models.PresenceState{User: cur.User, Status: to, LastSeen: t.now().UTC()}
	if err := t.cache.Save(ctx, next, t.ttl); err != nil {
		return fmt.Errorf("save presence: %w", err)
	}

	event := PresenceChanged{
		PublicID:    next.User.PublicID,
		Status:      string(next.Status),
		LastSeen:    next.LastSeen.Unix(),
		DisplayName: next.User.Name,
		Avatar:      next.User.Avatar,
	}
	// Presence broadcasts are never retried.
	for _, channel := range []string{PresenceChannel(next.User.PublicID), OnlineUsersChannel} {
		if err := t.pub.Publish(ctx, channel, event); err != nil {
			t.log.Debug("presence broadcast dropped",
				zap.String("channel", channel),
				zap.String("user", next.User.PublicID),
				zap.Error(err))
		}
	}
	return nil
}
