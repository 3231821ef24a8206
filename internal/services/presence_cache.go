package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

const (
	presenceStateKeyPrefix = "presence:state:"
	presenceConnKeyPrefix  = "presence:conns:"
	// presenceOnlineKey is a sorted set of user public ids scored by expiry time.
	presenceOnlineKey = "presence:online"
)

// RedisPresenceCache keeps presence in Redis with short TTLs so a crashed instance
// cannot leave users online forever.
type RedisPresenceCache struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisPresenceCache(rdb *redis.Client) *RedisPresenceCache {
	return &RedisPresenceCache{rdb: rdb, now: time.Now}
}

func (c *RedisPresenceCache) Load(ctx context.Context, userPublicID string) (*models.PresenceState, error) {
	raw, err := c.rdb.Get(ctx, presenceStateKeyPrefix+userPublicID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st models.PresenceState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *RedisPresenceCache) Save(ctx context.Context, state models.PresenceState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	id := state.User.PublicID

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, presenceStateKeyPrefix+id, data, ttl)
	if state.Status == models.PresenceOffline {
		pipe.ZRem(ctx, presenceOnlineKey, id)
	} else {
		pipe.ZAdd(ctx, presenceOnlineKey, redis.Z{Score: c.expiry(ttl), Member: id})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisPresenceCache) AddConnection(ctx context.Context, userPublicID string, ttl time.Duration) (int64, error) {
	key := presenceConnKeyPrefix + userPublicID
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisPresenceCache) RemoveConnection(ctx context.Context, userPublicID string) (int64, error) {
	key := presenceConnKeyPrefix + userPublicID
	n, err := c.rdb.Decr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return n, nil
}

// Touch extends the TTLs of a user's live entries. Absent users are left alone.
func (c *RedisPresenceCache) Touch(ctx context.Context, userPublicID string, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.Expire(ctx, presenceStateKeyPrefix+userPublicID, ttl)
	pipe.Expire(ctx, presenceConnKeyPrefix+userPublicID, ttl)
	pipe.ZAddXX(ctx, presenceOnlineKey, redis.Z{Score: c.expiry(ttl), Member: userPublicID})
	_, err := pipe.Exec(ctx)
	return err
}

// Online returns every non-offline state whose entry has not expired.
func (c *RedisPresenceCache) Online(ctx context.Context) ([]models.PresenceState, error) {
	now := strconv.FormatFloat(float64(c.now().Unix()), 'f', 0, 64)
	if err := c.rdb.ZRemRangeByScore(ctx, presenceOnlineKey, "-inf", "("+now).Err(); err != nil {
		return nil, err
	}
	ids, err := c.rdb.ZRange(ctx, presenceOnlineKey, 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = presenceStateKeyPrefix + id
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.PresenceState, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var st models.PresenceState
		if json.Unmarshal([]byte(s), &st) != nil || st.Status == models.PresenceOffline {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (c *RedisPresenceCache) expiry(ttl time.Duration) float64 {
	return float64(c.now().Add(ttl).Unix())
}
