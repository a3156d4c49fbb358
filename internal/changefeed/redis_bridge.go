package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisChannelPrefix = "changes"

var errMissingRedisClient = errors.New("changefeed: redis client required")

// RedisBridgeConfig configures a RedisBridge.
type RedisBridgeConfig struct {
	Client        redis.UniversalClient
	ChannelPrefix string
	Local         Publisher
	Logger        *zap.Logger
}

// RedisBridge relays change events between server instances over Redis pub/sub.
// Publish sends to Redis; Run forwards everything received from Redis to the local publisher,
// so an instance also sees its own writes through the same path.
type RedisBridge struct {
	client redis.UniversalClient
	prefix string
	local  Publisher
	logger *zap.Logger
}

// NewRedisBridge constructs a RedisBridge.
func NewRedisBridge(cfg RedisBridgeConfig) (*RedisBridge, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		prefix = defaultRedisChannelPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{
		client: cfg.Client,
		prefix: prefix,
		local:  cfg.Local,
		logger: logger,
	}, nil
}

// Publish implements Publisher.
func (b *RedisBridge) Publish(ctx context.Context, event Event) error {
	if err := event.validate(); err != nil {
		return err
	}
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel(event.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Run subscribes to the channels of the given tables and blocks until ctx is done.
func (b *RedisBridge) Run(ctx context.Context, tables ...string) error {
	channels := make([]string, 0, len(tables))
	for _, table := range tables {
		channels = append(channels, b.channel(table))
	}
	pubsub := b.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe change channels: %w", err)
	}
	b.logger.Info("redis change bridge subscribed", zap.Strings("channels", channels))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}
			b.forward(ctx, message.Payload)
		}
	}
}

func (b *RedisBridge) forward(ctx context.Context, payload string) {
	event, err := decodeEvent(payload)
	if err != nil {
		b.logger.Warn("dropping malformed change event", zap.Error(err))
		return
	}
	if b.local == nil {
		return
	}
	if err := b.local.Publish(ctx, event); err != nil {
		b.logger.Warn("local change dispatch failed", zap.Error(err))
	}
}

func (b *RedisBridge) channel(table string) string {
	return b.prefix + ":" + table
}
