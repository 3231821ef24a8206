package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	chatRecentKeyPrefix = "chat:recent:"
	chatRecentMaxLen    = 50
	chatRecentTTL       = 1 * time.Hour
)

func chatRecentKey(chatPublicID string) string {
	return chatRecentKeyPrefix + chatPublicID
}

// chatCompleteKey marks a recent list that holds the whole chat history.
func chatCompleteKey(chatPublicID string) string {
	return chatRecentKeyPrefix + chatPublicID + ":complete"
}

// RecentCache keeps the last normalized messages of each chat in a Redis list,
// newest at the head.
type RecentCache struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRecentCache(rdb *redis.Client, log *zap.Logger) *RecentCache {
	return &RecentCache{rdb: rdb, log: log}
}

// Push adds a message after it has been persisted. LPUSH + LTRIM keeps the last 50;
// once the trim drops a message the list no longer holds the whole chat.
func (c *RecentCache) Push(ctx context.Context, msg WireMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	key := chatRecentKey(msg.ChatID)

	// Only extend a list that is already warm; a partial list would hide older history.
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return
	}

	pipe := c.rdb.Pipeline()
	length := pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, chatRecentMaxLen-1)
	pipe.Expire(ctx, key, chatRecentTTL)
	pipe.Expire(ctx, chatCompleteKey(msg.ChatID), chatRecentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("recent cache push failed", zap.String("chat", msg.ChatID), zap.Error(err))
		return
	}
	if length.Val() > chatRecentMaxLen {
		if err := c.rdb.Del(ctx, chatCompleteKey(msg.ChatID)).Err(); err != nil {
			c.log.Warn("recent cache mark failed", zap.String("chat", msg.ChatID), zap.Error(err))
		}
	}
}

// Get returns the cached messages oldest-first. complete reports that no older
// messages exist; ok is false on a miss.
func (c *RecentCache) Get(ctx context.Context, chatPublicID string) (msgs []WireMessage, complete, ok bool) {
	pipe := c.rdb.Pipeline()
	rangeCmd := pipe.LRange(ctx, chatRecentKey(chatPublicID), 0, -1)
	completeCmd := pipe.Exists(ctx, chatCompleteKey(chatPublicID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, false
	}
	raw := rangeCmd.Val()
	if len(raw) == 0 {
		return nil, false, false
	}

	msgs = make([]WireMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m WireMessage
		if json.Unmarshal([]byte(raw[i]), &m) != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, completeCmd.Val() > 0, true
}

// Warm stores the newest oldest-first page fetched from the message store. complete
// is set when the store has nothing older than msgs.
func (c *RecentCache) Warm(ctx context.Context, chatPublicID string, msgs []WireMessage, complete bool) {
	if len(msgs) == 0 {
		return
	}
	key := chatRecentKey(chatPublicID)
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, key, chatCompleteKey(chatPublicID))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, err := json.Marshal(msgs[i])
		if err != nil {
			continue
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.LTrim(ctx, key, 0, chatRecentMaxLen-1)
	pipe.Expire(ctx, key, chatRecentTTL)
	if complete && len(msgs) <= chatRecentMaxLen {
		pipe.Set(ctx, chatCompleteKey(chatPublicID), "1", chatRecentTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("recent cache warm failed", zap.String("chat", chatPublicID), zap.Error(err))
	}
}
