package usecase_test

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recruit-pipeline/domain"
	"recruit-pipeline/infrastructure"
	"recruit-pipeline/usecase"
)

const recruiter = "user-42"

// stepClock advances by one second on every call so records have distinct times.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{now: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store      *infrastructure.MemoryStore
	backend    domain.Store
	clock      *stepClock
	stages     *usecase.StageEngine
	activity   *usecase.ActivityLog
	scorecards *usecase.ScorecardAggregator
	placements *usecase.PlacementLedger
}

func newFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()
	store := infrastructure.NewMemoryStore()
	f := newFixtureOn(t, store, opts...)
	f.store = store
	return f
}

// newSQLFixture runs the engines on the gorm store over an in-memory SQLite database.
func newSQLFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()
	store, err := infrastructure.NewStore(infrastructure.DatabaseConfig{Driver: "sqlite", AutoMigrate: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.(io.Closer).Close() })
	return newFixtureOn(t, store, opts...)
}

// eachBackend runs test once on the memory store and once on SQLite.
func eachBackend(t *testing.T, test func(t *testing.T, f *fixture), opts ...usecase.Option) {
	t.Run("memory", func(t *testing.T) { test(t, newFixture(t, opts...)) })
	t.Run("sqlite", func(t *testing.T) { test(t, newSQLFixture(t, opts...)) })
}

func newFixtureOn(t *testing.T, store domain.Store, opts ...usecase.Option) *fixture {
	t.Helper()
	clock := newStepClock(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	opts = append([]usecase.Option{usecase.WithClock(clock.Now)}, opts...)

	return &fixture{
		backend:    store,
		clock:      clock,
		stages:     usecase.NewStageEngine(store, opts...),
		activity:   usecase.NewActivityLog(store, opts...),
		scorecards: usecase.NewScorecardAggregator(store, opts...),
		placements: usecase.NewPlacementLedger(store, opts...),
	}
}

func (f *fixture) addCandidate(t *testing.T, cv, job uint) *domain.PipelineEntry {
	t.Helper()
	entry, err := f.stages.AddCandidate(context.Background(), recruiter, usecase.AddCandidateInput{
		CVSubmissionID: cv,
		JobID:          job,
	})
	require.NoError(t, err)
	return entry
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

// mapCache is an in-process ReadModelCache that round-trips values through JSON like
// the Redis cache does. beforeSet, when set, runs once ahead of the next Set.
type mapCache struct {
	mu        sync.Mutex
	values    map[string][]byte
	gens      map[string]int64
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string][]byte{}, gens: map[string]int64{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any) error {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *mapCache) Generation(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[scope], nil
}

func (c *mapCache) Invalidate(_ context.Context, scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[scope]++
	for key := range c.values {
		if strings.HasPrefix(key, scope+"#") {
			delete(c.values, key)
		}
	}
	return nil
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
