// Package cache keeps a short-lived redis snapshot of the leaderboard so
// the hot /leaderboard paths do not hit postgres on every press.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mhdcoin-bot/internal/ledger"
)

type Leaderboard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLeaderboard wraps rdb. A nil client yields a cache that always misses,
// which keeps tests and redis-less deployments working.
func NewLeaderboard(rdb *redis.Client, ttl time.Duration) *Leaderboard {
	return &Leaderboard{rdb: rdb, ttl: ttl}
}

func key(limit int) string {
	return fmt.Sprintf("leaderboard:top:%d", limit)
}

func (l *Leaderboard) Get(ctx context.Context, limit int) ([]ledger.LeaderboardEntry, bool) {
	if l == nil || l.rdb == nil {
		return nil, false
	}
	raw, err := l.rdb.Get(ctx, key(limit)).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []ledger.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (l *Leaderboard) Set(ctx context.Context, limit int, entries []ledger.LeaderboardEntry) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return l.rdb.Set(ctx, key(limit), raw, l.ttl).Err()
}
