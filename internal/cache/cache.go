// Package cache mirrors live bot state into Redis so a restarted process
// (or an external dashboard) can see open positions and session status
// without replaying events. Degrades gracefully: when Redis is down, writes
// are dropped after a few failures and retried later instead of stalling
// the engine.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/position"
)

const (
	keyPositions = "bot:positions" // hash: coin -> position JSON
	keyStatus    = "bot:status"    // session status JSON
	keyLastSeen  = "bot:last_seen" // heartbeat timestamp
	statusTTL    = 24 * time.Hour

	maxFailures     = 3
	recoveryBackoff = 30 * time.Second
)

// Store mirrors state into Redis.
type Store struct {
	client *redis.Client
	logger zerolog.Logger

	mu        sync.Mutex
	healthy   bool
	failures  int
	downSince time.Time
}

// NewStore connects to Redis and verifies connectivity.
func NewStore(cfg config.RedisConfig, logger zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	s := &Store{
		client:  client,
		logger:  logger.With().Str("component", "cache").Logger(),
		healthy: true,
	}
	s.logger.Info().Str("addr", cfg.Address).Msg("Connected to Redis")
	return s, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// available reports whether writes should be attempted right now.
func (s *Store) available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.healthy {
		return true
	}
	if time.Since(s.downSince) > recoveryBackoff {
		s.healthy = true
		s.failures = 0
		return true
	}
	return false
}

func (s *Store) recordOutcome(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.failures = 0
		s.healthy = true
		return
	}
	s.failures++
	if s.failures >= maxFailures && s.healthy {
		s.healthy = false
		s.downSince = time.Now()
		s.logger.Warn().Err(err).Msg("Redis unavailable, pausing state mirroring")
	}
}

// SyncPositions replaces the mirrored position set with the given snapshot.
func (s *Store) SyncPositions(ctx context.Context, positions []position.Position) error {
	if !s.available() {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPositions)
	for i := range positions {
		data, err := json.Marshal(&positions[i])
		if err != nil {
			return fmt.Errorf("marshaling position %s: %w", positions[i].Coin, err)
		}
		pipe.HSet(ctx, keyPositions, positions[i].Coin, data)
	}
	pipe.Set(ctx, keyLastSeen, time.Now().Format(time.RFC3339), statusTTL)

	_, err := pipe.Exec(ctx)
	s.recordOutcome(err)
	if err != nil {
		return fmt.Errorf("syncing positions: %w", err)
	}
	return nil
}

// LoadPositions reads the mirrored position set, e.g. after a restart.
func (s *Store) LoadPositions(ctx context.Context) ([]position.Position, error) {
	entries, err := s.client.HGetAll(ctx, keyPositions).Result()
	s.recordOutcome(err)
	if err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}

	out := make([]position.Position, 0, len(entries))
	for coin, raw := range entries {
		var p position.Position
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.Warn().Err(err).Str("coin", coin).Msg("Skipping corrupt cached position")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SetStatus mirrors the session status document.
func (s *Store) SetStatus(ctx context.Context, status map[string]interface{}) error {
	if !s.available() {
		return nil
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	err = s.client.Set(ctx, keyStatus, data, statusTTL).Err()
	s.recordOutcome(err)
	if err != nil {
		return fmt.Errorf("setting status: %w", err)
	}
	return nil
}
