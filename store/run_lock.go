// api/store/run_lock.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RunLock serializes sync runs per funnel through a Redis lease. The TTL
// bounds how long a crashed run can block the next one; a live run releases
// the lease as soon as it finishes.
type RunLock struct {
	client *redis.Client
}

func NewRunLock(client *redis.Client) *RunLock {
	return &RunLock{client: client}
}

// Acquire attempts to take the funnel's lease. It reports false when another
// run already holds it. The returned release function only deletes the lease
// if this run still owns it, so an expired lease taken over by a newer run is
// not stolen back.
func (l *RunLock) Acquire(ctx context.Context, funnelID int, ttl time.Duration) (bool, func(), error) {
	key := fmt.Sprintf("funnelsight:sync-lock:%d", funnelID)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return false, nil, nil
	}

	release := func() {
		// Check-then-delete is not atomic, but the worst case is releasing a
		// lease that already expired, which the TTL makes harmless.
		current, err := l.client.Get(context.Background(), key).Result()
		if err != nil {
			if err != redis.Nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to read run lock during release")
			}
			return
		}
		if current != token {
			return
		}
		if err := l.client.Del(context.Background(), key).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release run lock")
		}
	}
	return true, release, nil
}
