// Package usecase holds the candidate pipeline engine: stage transitions, the activity
// log, interview scorecards and the placement ledger. Every mutation commits its domain
// write, its activity record and its outbox event in one store transaction.
package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

type Clock func() time.Time

type Option func(*base)

func WithClock(clock Clock) Option {
	return func(b *base) { b.now = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *base) { b.logger = logger }
}

func WithCache(cache ReadModelCache) Option {
	return func(b *base) { b.cache = cache }
}

// WithTimeout bounds every operation that the caller did not already bound.
func WithTimeout(d time.Duration) Option {
	return func(b *base) { b.timeout = d }
}

func WithStrictTransitions(strict bool) Option {
	return func(b *base) { b.strict = strict }
}

// WithStaleRetries sets how many times a conflicting entry update is retried.
func WithStaleRetries(n int) Option {
	return func(b *base) { b.staleRetries = n }
}

func WithDefaultGuaranteeDays(days int) Option {
	return func(b *base) { b.guaranteeDays = days }
}

type base struct {
	store         domain.Store
	logger        *zap.Logger
	now           Clock
	cache         ReadModelCache
	timeout       time.Duration
	strict        bool
	staleRetries  int
	guaranteeDays int
	activity      *ActivityLog
}

func newBase(store domain.Store, opts ...Option) base {
	b := base{
		store:         store,
		logger:        zap.NewNop(),
		now:           time.Now,
		cache:         NoCache{},
		staleRetries:  3,
		guaranteeDays: domain.DefaultGuaranteeDays,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.activity = &ActivityLog{store: store, now: b.now}
	return b
}

func (b *base) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *base) invalidate(ctx context.Context, scope string) {
	if err := b.cache.Invalidate(ctx, scope); err != nil {
		b.logger.Warn("read model invalidation failed", zap.String("scope", scope), zap.Error(err))
	}
}

func requireActor(actor string) error {
	if actor == "" {
		return domain.Validation("actor is required")
	}
	return nil
}

func stagePtr(s domain.Stage) *domain.Stage {
	return &s
}
