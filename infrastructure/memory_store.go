package infrastructure

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"recruit-pipeline/domain"
)

type memoryState struct {
	entries    map[uint]domain.PipelineEntry
	activity   []domain.ActivityRecord
	scorecards []domain.InterviewScorecard
	placements map[uint]domain.Placement
	outbox     []domain.OutboxEvent
	nextID     map[string]uint
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		entries:    make(map[uint]domain.PipelineEntry, len(s.entries)),
		activity:   slices.Clone(s.activity),
		scorecards: slices.Clone(s.scorecards),
		placements: make(map[uint]domain.Placement, len(s.placements)),
		outbox:     slices.Clone(s.outbox),
		nextID:     make(map[string]uint, len(s.nextID)),
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.placements {
		c.placements[k] = v
	}
	for k, v := range s.nextID {
		c.nextID[k] = v
	}
	return c
}

func (s *memoryState) id(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

// MemoryStore keeps every table in process memory. It backs the "memory" database
// driver and the tests. Transactions are serialised and roll back by restoring a
// snapshot.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState

	// failAppend makes AppendActivity fail, to exercise rollback.
	failAppend error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		entries:    map[uint]domain.PipelineEntry{},
		placements: map[uint]domain.Placement{},
		nextID:     map[string]uint{},
	}}
}

// FailActivityAppends makes every following AppendActivity return err. Pass nil to reset.
func (m *MemoryStore) FailActivityAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAppend = err
}

func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx domain.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.state.clone()
	m.mu.RUnlock()

	err := fn(memoryTx{m})
	if err == nil {
		err = ctxErr(ctx)
	}
	if err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
	}
	return err
}

// memoryTx runs nested transactions inline in the enclosing one.
type memoryTx struct {
	*MemoryStore
}

func (t memoryTx) Transaction(_ context.Context, fn func(tx domain.Store) error) error {
	return fn(t)
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return translateError(err, "operation")
	}
	return nil
}

func (m *MemoryStore) CreateEntry(ctx context.Context, entry *domain.PipelineEntry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.state.entries {
		if e.CVSubmissionID == entry.CVSubmissionID && e.JobID == entry.JobID {
			return domain.NewError(domain.ErrDuplicateEntry, "pipeline entry for cv %d and job %d exists", entry.CVSubmissionID, entry.JobID)
		}
	}
	entry.ID = m.state.id("pipeline_entries")
	if entry.Version == 0 {
		entry.Version = 1
	}
	m.state.entries[entry.ID] = *entry
	return nil
}

func (m *MemoryStore) GetEntry(ctx context.Context, id uint) (*domain.PipelineEntry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.state.entries[id]
	if !ok {
		return nil, domain.NotFound("pipeline entry", id)
	}
	return &e, nil
}

func (m *MemoryStore) ListEntries(ctx context.Context, filter domain.PipelineFilter) ([]domain.PipelineEntry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.PipelineEntry{}
	for _, e := range m.state.entries {
		if filter.Matches(&e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateEntry(ctx context.Context, entry *domain.PipelineEntry, expectedVersion uint) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.state.entries[entry.ID]
	if !ok {
		return domain.NotFound("pipeline entry", entry.ID)
	}
	if current.Version != expectedVersion {
		return domain.NewError(domain.ErrStaleEntry, "pipeline entry %d was changed concurrently", entry.ID)
	}

	entry.Version = expectedVersion + 1
	entry.CVSubmissionID = current.CVSubmissionID
	entry.JobID = current.JobID
	entry.CreatedAt = current.CreatedAt
	m.state.entries[entry.ID] = *entry
	return nil
}

func (m *MemoryStore) DeleteEntry(ctx context.Context, id uint) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.entries[id]; !ok {
		return domain.NotFound("pipeline entry", id)
	}
	delete(m.state.entries, id)
	return nil
}

func (m *MemoryStore) CountByStage(ctx context.Context, jobID uint) (map[domain.Stage]int, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[domain.Stage]int{}
	for _, e := range m.state.entries {
		if e.JobID == jobID {
			counts[e.Stage]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) AppendActivity(ctx context.Context, record *domain.ActivityRecord) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAppend != nil {
		return translateError(m.failAppend, "append activity")
	}
	record.ID = m.state.id("pipeline_activity")
	m.state.activity = append(m.state.activity, *record)
	return nil
}

func (m *MemoryStore) ListActivity(ctx context.Context, pipelineID uint, order domain.SortOrder) ([]domain.ActivityRecord, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.ActivityRecord{}
	for _, r := range m.state.activity {
		if r.PipelineID == pipelineID {
			out = append(out, r)
		}
	}
	// Ties on created_at fall back to insertion order.
	sort.SliceStable(out, func(i, j int) bool {
		if order == domain.Descending {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID > out[j].ID
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateScorecard(ctx context.Context, card *domain.InterviewScorecard) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	card.ID = m.state.id("interview_scorecards")
	m.state.scorecards = append(m.state.scorecards, *card)
	return nil
}

func (m *MemoryStore) GetScorecard(ctx context.Context, id uint) (*domain.InterviewScorecard, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.state.scorecards {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, domain.NotFound("scorecard", id)
}

func (m *MemoryStore) UpdateScorecard(ctx context.Context, card *domain.InterviewScorecard) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.state.scorecards {
		if c.ID == card.ID {
			m.state.scorecards[i] = *card
			return nil
		}
	}
	return domain.NotFound("scorecard", card.ID)
}

func (m *MemoryStore) ListScorecards(ctx context.Context, pipelineID uint) ([]domain.InterviewScorecard, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.InterviewScorecard{}
	for _, c := range m.state.scorecards {
		if c.PipelineID == pipelineID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) ScorecardExists(ctx context.Context, pipelineID uint, stage domain.Stage) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.state.scorecards {
		if c.PipelineID == pipelineID && c.Stage == stage {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CreatePlacement(ctx context.Context, placement *domain.Placement) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.state.placements {
		if p.PipelineID == placement.PipelineID {
			return domain.NewError(domain.ErrDuplicateEntry, "placement for pipeline entry %d exists", placement.PipelineID)
		}
	}
	placement.ID = m.state.id("placements")
	m.state.placements[placement.ID] = *placement
	return nil
}

func (m *MemoryStore) GetPlacement(ctx context.Context, id uint) (*domain.Placement, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.state.placements[id]
	if !ok {
		return nil, domain.NotFound("placement", id)
	}
	return &p, nil
}

func (m *MemoryStore) GetPlacementByPipeline(ctx context.Context, pipelineID uint) (*domain.Placement, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.state.placements {
		if p.PipelineID == pipelineID {
			return &p, nil
		}
	}
	return nil, domain.NewError(domain.ErrNotFound, "no placement for pipeline entry %d", pipelineID)
}

func (m *MemoryStore) SavePlacement(ctx context.Context, placement *domain.Placement) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.placements[placement.ID]; !ok {
		return domain.NotFound("placement", placement.ID)
	}
	m.state.placements[placement.ID] = *placement
	return nil
}

func (m *MemoryStore) ListPlacements(ctx context.Context, filter domain.PlacementFilter) ([]domain.Placement, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Placement{}
	for _, p := range m.state.placements {
		if filter.Matches(&p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) EnqueueEvent(ctx context.Context, event *domain.OutboxEvent) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	event.ID = m.state.id("pipeline_outbox")
	m.state.outbox = append(m.state.outbox, *event)
	return nil
}

func (m *MemoryStore) PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.OutboxEvent{}
	for _, e := range m.state.outbox {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkPublished(ctx context.Context, ids []uint, at time.Time) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.state.outbox {
		if slices.Contains(ids, m.state.outbox[i].ID) {
			published := at
			m.state.outbox[i].PublishedAt = &published
		}
	}
	return nil
}
