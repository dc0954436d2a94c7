package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"caseline/internal/domain"
)

// StatusCache holds derived overall statuses keyed by report id. Entries
// are dropped whenever an action linked to the report changes.
//
// Every Invalidate bumps the report's generation. A reader takes the
// generation before deriving and passes it to Set, which refuses to store
// once the generation has moved, so a derivation that raced a mutation is
// never cached.
type StatusCache interface {
	Get(ctx context.Context, reportID string) (domain.CaseStatus, bool, error)
	Generation(ctx context.Context, reportID string) (int64, error)
	// Set reports whether status was stored.
	Set(ctx context.Context, reportID string, status domain.CaseStatus, gen int64) (bool, error)
	Invalidate(ctx context.Context, reportID string) error
}

// Nop never caches.
type Nop struct{}

func (Nop) Get(context.Context, string) (domain.CaseStatus, bool, error) { return "", false, nil }
func (Nop) Generation(context.Context, string) (int64, error) { return 0, nil }
func (Nop) Set(context.Context, string, domain.CaseStatus, int64) (bool, error) {
	return false, nil
}
func (Nop) Invalidate(context.Context, string) error { return nil }

type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

var errStale = errors.New("status generation moved")

func (r *Redis) key(reportID string) string {
	return r.prefix + reportID
}

func (r *Redis) genKey(reportID string) string {
	return r.prefix + "gen:" + reportID
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, g getter, key string) (int64, error) {
	n, err := g.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *Redis) Get(ctx context.Context, reportID string) (domain.CaseStatus, bool, error) {
	val, err := r.client.Get(ctx, r.key(reportID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached status: %w", err)
	}
	return domain.CaseStatus(val), true, nil
}

func (r *Redis) Generation(ctx context.Context, reportID string) (int64, error) {
	n, err := readGeneration(ctx, r.client, r.genKey(reportID))
	if err != nil {
		return 0, fmt.Errorf("get status generation: %w", err)
	}
	return n, nil
}

// Set writes under WATCH on the generation key, so an Invalidate landing
// between the check and the write aborts the transaction.
func (r *Redis) Set(ctx context.Context, reportID string, status domain.CaseStatus, gen int64) (bool, error) {
	genKey := r.genKey(reportID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.key(reportID), string(status), r.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		return false, nil
	}
	return false, fmt.Errorf("set cached status: %w", err)
}

func (r *Redis) Invalidate(ctx context.Context, reportID string) error {
	genKey := r.genKey(reportID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		// outlive any entry written under the previous generation
		if r.ttl > 0 {
			p.Expire(ctx, genKey, 2*r.ttl)
		}
		p.Del(ctx, r.key(reportID))
		return nil
	})
	return err
}
