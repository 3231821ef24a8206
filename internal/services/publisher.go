package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
)

// RedisChannelPrefix namespaces broadcast channels inside Redis pub/sub.
const RedisChannelPrefix = "rt:"

// RedisPublisher publishes envelopes over Redis pub/sub. Redis keeps publish order
// per channel, which is the only ordering the engine promises.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, event BroadcastEvent) error {
	data, err := EncodeEnvelope(channel, event)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, RedisChannelPrefix+channel, data).Err(); err != nil {
		return fmt.Errorf("%w: publish %s to %s: %v", models.ErrTransportUnavailable, event.Name(), channel, err)
	}
	return nil
}

// MirroredPublisher publishes to a primary transport and copies every event to
// mirrors. Only primary failures are returned.
type MirroredPublisher struct {
	primary Publisher
	mirrors []Publisher
	log     *zap.Logger
}

func NewMirroredPublisher(log *zap.Logger, primary Publisher, mirrors ...Publisher) *MirroredPublisher {
	return &MirroredPublisher{primary: primary, mirrors: mirrors, log: log}
}

func (p *MirroredPublisher) Publish(ctx context.Context, channel string, event BroadcastEvent) error {
	err := p.primary.Publish(ctx, channel, event)
	for _, m := range p.mirrors {
		if mErr := m.Publish(ctx, channel, event); mErr != nil {
			p.log.Warn("mirror publish failed",
				zap.String("channel", channel),
				zap.String("event", string(event.Name())),
				zap.Error(mErr))
		}
	}
	return err
}
