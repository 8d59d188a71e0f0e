package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"serverstats/internal/config"
	"serverstats/internal/logger"
	"serverstats/internal/network"
	"serverstats/internal/stats"
)

// RedisSink publishes each snapshot on a pub/sub channel and keeps the most
// recent one under a key with a TTL.
type RedisSink struct {
	client    *redis.Client
	channel   string
	latestKey string
	cfg       config.RedisConfig
	meta      Meta

	mu     sync.RWMutex
	closed bool
}

// NewRedisSink creates a client for cfg.Address. No connection is made
// until the first Publish.
func NewRedisSink(cfg config.RedisConfig, socks config.SOCKSConfig, meta Meta) (*RedisSink, error) {
	if cfg.Channel == "" && cfg.LatestKey == "" {
		return nil, fmt.Errorf("redis sink needs a Channel or a LatestKey")
	}
	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	dial, err := network.DialFunc(socks.Host, socks.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for Redis: %w", err)
	}
	if dial != nil {
		opts.Dialer = dial
	}

	log := logger.WithComponent("redis-sink")
	log.Info().
		Str("address", cfg.Address).
		Int("db", cfg.DB).
		Str("channel", cfg.Channel).
		Str("latest_key", cfg.LatestKey).
		Msg("Redis sink initialized")

	return &RedisSink{
		client:    redis.NewClient(opts),
		channel:   cfg.Channel,
		latestKey: cfg.LatestKey,
		cfg:       cfg,
		meta:      meta,
	}, nil
}

// Publish sends snap in one pipelined round trip.
func (s *RedisSink) Publish(ctx context.Context, snap stats.Snapshot) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	data, err := encode(s.meta, snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if s.channel != "" {
			pipe.Publish(ctx, s.channel, data)
		}
		if s.latestKey != "" {
			pipe.Set(ctx, s.latestKey, data, s.cfg.LatestTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish to %s failed: %w", s.cfg.Address, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
