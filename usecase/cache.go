package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReadModelCache stores derived read models. It is never a correctness dependency:
// failures are logged and the value is recomputed from the store.
//
// Keys live in scopes. Invalidate bumps the generation of a scope, and cached keys
// embed the generation they were computed under, so a value computed before an
// invalidation is never served after it.
type ReadModelCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Generation(ctx context.Context, scope string) (int64, error)
	Invalidate(ctx context.Context, scope string) error
}

type NoCache struct{}

func (NoCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NoCache) Set(context.Context, string, any) error { return nil }
func (NoCache) Generation(context.Context, string) (int64, error) { return 0, nil }
func (NoCache) Invalidate(context.Context, string) error { return nil }

const (
	summaryScopePrefix = "scorecards:summary:"
	statsScope         = "placements:stats"
)

func summaryScope(pipelineID uint) string {
	return fmt.Sprintf("%s%d", summaryScopePrefix, pipelineID)
}

// cacheKey is the key of suffix within scope at generation gen.
func cacheKey(scope string, gen int64, suffix string) string {
	return fmt.Sprintf("%s#%d:%s", scope, gen, suffix)
}

func statsSuffix(from, to *time.Time) string {
	return dayKey(from) + ":" + dayKey(to)
}

func dayKey(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.Format(time.DateOnly)
}

// readThrough returns the cached read model of scope and suffix, computing it with load
// on a miss. A nil result from load is returned but not cached.
func readThrough[T any](ctx context.Context, b *base, scope, suffix string, load func() (*T, error)) (*T, error) {
	gen, err := b.cache.Generation(ctx, scope)
	if err != nil {
		b.logger.Warn("read model generation lookup failed", zap.String("scope", scope), zap.Error(err))
		return load()
	}

	key := cacheKey(scope, gen, suffix)
	cached := new(T)
	if ok, err := b.cache.Get(ctx, key, cached); err != nil {
		b.logger.Warn("read model lookup failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	value, err := load()
	if err != nil || value == nil {
		return value, err
	}
	if err := b.cache.Set(ctx, key, value); err != nil {
		b.logger.Warn("read model store failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
