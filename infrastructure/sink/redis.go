package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink 使用 PUBLISH 发布，不保证送达（没有订阅者时消息直接丢弃）。
type RedisSink struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisSink(rawURL string, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 10 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	// 只有一个发布者
	opts.PoolSize = 4
	opts.MinIdleConns = 1

	logger.Info("redis sink configured", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return &RedisSink{client: redis.NewClient(opts), logger: logger}, nil
}

func (s *RedisSink) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
