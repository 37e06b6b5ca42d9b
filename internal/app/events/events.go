// Package events publishes timeline changes for the real-time transport,
// which lives outside this service and subscribes to one Redis channel per
// group.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dalemusser/groupchat/internal/domain/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event types.
const (
	MessageCreated = "message.created"
	MessageUpdated = "message.updated"
	MessageDeleted = "message.deleted"
)

// ChannelPrefix is prepended to the group id to form the channel name.
const ChannelPrefix = "chat:group:"

// MessageEvent is the payload published for every message change.
type MessageEvent struct {
	Type    string              `json:"type"`
	GroupID string              `json:"group_id"`
	Message models.GroupMessage `json:"message"`
	At      time.Time           `json:"at"`
}

// Publisher delivers message events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev MessageEvent) error
}

// Channel returns the pub/sub channel for a group.
func Channel(groupID string) string {
	return ChannelPrefix + groupID
}

// redisPublisher is the part of *redis.Client used here.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes JSON-encoded events with PUBLISH.
type RedisPublisher struct {
	rdb redisPublisher
	log *zap.Logger
}

// NewRedisPublisher wraps a connected client.
func NewRedisPublisher(rdb redisPublisher, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, log: logger}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, ev MessageEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if ev.GroupID == "" {
		ev.GroupID = ev.Message.GroupID
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	receivers, err := p.rdb.Publish(ctx, Channel(ev.GroupID), payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	p.log.Debug("message event published",
		zap.String("type", ev.Type),
		zap.String("group_id", ev.GroupID),
		zap.String("message_id", ev.Message.MessageID),
		zap.Int64("receivers", receivers))
	return nil
}

// Nop discards events. Used when no Redis URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, MessageEvent) error { return nil }

// Connect parses a redis:// URL, applies pool settings and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
