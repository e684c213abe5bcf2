package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	domainerrors "governor/contexts/treasury-governance/governance-engine/domain/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "governor:proposal-lock:"

// releaseScript deletes the key only when it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes proposal mutations across replicas with SET NX PX.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

func NewLocker(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		logger: logger,
	}
}

// Connect parses a redis:// URL and verifies the server answers PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *Locker) Lock(ctx context.Context, proposalID uint64) (func(), error) {
	key := lockKey(proposalID)
	token := uuid.NewString()
	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", domainerrors.ErrLockUnavailable, ctxErr)
			}
			l.logger.Error("proposal lock acquire failed",
				"event", "governance_redis_lock_failed",
				"module", "treasury-governance/governance-engine",
				"layer", "adapter",
				"proposal_id", proposalID,
				"error", err.Error(),
			)
			return nil, fmt.Errorf("%w: %w", domainerrors.ErrLockUnavailable, err)
		}
		if acquired {
			return l.unlockFunc(key, token, proposalID), nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", domainerrors.ErrLockUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *Locker) unlockFunc(key string, token string, proposalID uint64) func() {
	return func() {
		// The caller's context may already be cancelled; release regardless.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("proposal lock release failed; key expires by ttl",
				"event", "governance_redis_unlock_failed",
				"module", "treasury-governance/governance-engine",
				"layer", "adapter",
				"proposal_id", proposalID,
				"error", err.Error(),
			)
		}
	}
}

func lockKey(proposalID uint64) string {
	return lockPrefix + strconv.FormatUint(proposalID, 10)
}
