package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"recruit-pipeline/domain"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewStore(DatabaseConfig{Driver: "sqlite", AutoMigrate: true}, zap.NewNop())
	require.NoError(t, err)
	gs, ok := store.(*GormStore)
	require.True(t, ok)
	t.Cleanup(func() { gs.Close() })
	return gs
}

func TestGormStoreEntryVersioning(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	entry := &domain.PipelineEntry{CVSubmissionID: 1, JobID: 1, Stage: domain.StageSourced}
	require.NoError(t, store.CreateEntry(ctx, entry))
	assert.Equal(t, uint(1), entry.Version)

	err := store.CreateEntry(ctx, &domain.PipelineEntry{CVSubmissionID: 1, JobID: 1, Stage: domain.StageSourced})
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)

	first, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	second, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)

	first.Stage = domain.StageScreening
	require.NoError(t, store.UpdateEntry(ctx, first, 1))
	assert.Equal(t, uint(2), first.Version)

	second.Stage = domain.StageRejected
	err = store.UpdateEntry(ctx, second, 1)
	assert.ErrorIs(t, err, domain.ErrStaleEntry)

	stored, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageScreening, stored.Stage)
	assert.Equal(t, uint(2), stored.Version)

	err = store.UpdateEntry(ctx, &domain.PipelineEntry{ID: 42}, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.GetEntry(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGormStoreListAndCount(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for i, e := range []domain.PipelineEntry{
		{CVSubmissionID: 1, JobID: 7, Stage: domain.StageSourced},
		{CVSubmissionID: 2, JobID: 7, Stage: domain.StageInterview, Priority: 5},
		{CVSubmissionID: 3, JobID: 7, Stage: domain.StageInterview},
		{CVSubmissionID: 4, JobID: 8, Stage: domain.StageOffer},
	} {
		e.CreatedAt = time.Date(2025, 1, 1, 9, i, 0, 0, time.UTC)
		require.NoError(t, store.CreateEntry(ctx, &e))
	}

	job := uint(7)
	entries, err := store.ListEntries(ctx, domain.PipelineFilter{JobID: &job})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint(2), entries[0].CVSubmissionID)
	assert.Equal(t, uint(1), entries[1].CVSubmissionID)

	counts, err := store.CountByStage(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Stage]int{domain.StageSourced: 1, domain.StageInterview: 2}, counts)

	require.NoError(t, store.DeleteEntry(ctx, entries[0].ID))
	assert.ErrorIs(t, store.DeleteEntry(ctx, entries[0].ID), domain.ErrNotFound)
}

func TestGormStoreTransactionRollsBack(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx domain.Store) error {
		if err := tx.CreateEntry(ctx, &domain.PipelineEntry{CVSubmissionID: 1, JobID: 1, Stage: domain.StageSourced}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	entries, err := store.ListEntries(ctx, domain.PipelineFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGormStoreActivityOrdering(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, created := range []time.Time{at, at.Add(time.Minute), at} {
		require.NoError(t, store.AppendActivity(ctx, &domain.ActivityRecord{
			PipelineID: 5,
			Action:     domain.ActionNoteAdded,
			Note:       fmt.Sprint(i),
			CreatedBy:  "user-1",
			CreatedAt:  created,
		}))
	}
	require.NoError(t, store.AppendActivity(ctx, &domain.ActivityRecord{PipelineID: 6, Action: domain.ActionNoteAdded, CreatedBy: "user-1", CreatedAt: at}))

	asc, err := store.ListActivity(ctx, 5, domain.Ascending)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "2", "1"}, notes(asc))

	desc, err := store.ListActivity(ctx, 5, domain.Descending)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "0"}, notes(desc))
}

func TestGormStoreScorecards(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	four := 4

	card := &domain.InterviewScorecard{
		PipelineID: 3,
		Stage:      domain.StageInterview,
		Ratings:    domain.Ratings{TechnicalSkills: &four},
		CreatedBy:  "user-1",
	}
	require.NoError(t, store.CreateScorecard(ctx, card))

	exists, err := store.ScorecardExists(ctx, 3, domain.StageInterview)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.ScorecardExists(ctx, 3, domain.StageOffer)
	require.NoError(t, err)
	assert.False(t, exists)

	card.CreatedBy = "someone-else"
	card.Notes = "strong on systems design"
	card.UpdatedAt = time.Now()
	require.NoError(t, store.UpdateScorecard(ctx, card))

	cards, err := store.ListScorecards(ctx, 3)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "user-1", cards[0].CreatedBy)
	assert.Equal(t, "strong on systems design", cards[0].Notes)
	assert.Equal(t, 4, *cards[0].Ratings.TechnicalSkills)

	_, err = store.GetScorecard(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGormStorePlacements(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	jan := &domain.Placement{
		PipelineID:      1,
		StartDate:       time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		JobType:         domain.JobTypePermanent,
		SplitPercentage: 100,
		Status:          domain.PlacementConfirmed,
	}
	mar := &domain.Placement{
		PipelineID:      2,
		StartDate:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		JobType:         domain.JobTypeContract,
		SplitPercentage: 100,
		Status:          domain.PlacementStarted,
	}
	require.NoError(t, store.CreatePlacement(ctx, jan))
	require.NoError(t, store.CreatePlacement(ctx, mar))

	err := store.CreatePlacement(ctx, &domain.Placement{PipelineID: 1, JobType: domain.JobTypePermanent, SplitPercentage: 100})
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)

	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	bounded, err := store.ListPlacements(ctx, domain.PlacementFilter{To: &to})
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, jan.ID, bounded[0].ID)

	started := domain.PlacementStarted
	filtered, err := store.ListPlacements(ctx, domain.PlacementFilter{Status: &started})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, mar.ID, filtered[0].ID)

	loaded, err := store.GetPlacement(ctx, jan.ID)
	require.NoError(t, err)
	loaded.PipelineID = 99
	loaded.InvoiceRaised = true
	loaded.UpdatedAt = time.Now()
	require.NoError(t, store.SavePlacement(ctx, loaded))

	byPipeline, err := store.GetPlacementByPipeline(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, jan.ID, byPipeline.ID)
	assert.True(t, byPipeline.InvoiceRaised)
	assert.WithinDuration(t, jan.StartDate, byPipeline.StartDate, 0)

	_, err = store.GetPlacementByPipeline(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.SavePlacement(ctx, &domain.Placement{ID: 404, UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGormStoreLocksRowsReadInTransaction(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	p := &domain.Placement{PipelineID: 1, StartDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), JobType: domain.JobTypePermanent, SplitPercentage: 100, Status: domain.PlacementConfirmed}
	require.NoError(t, store.CreatePlacement(ctx, p))

	var locked []bool
	require.NoError(t, store.db.Callback().Query().Before("gorm:query").Register("test:locking", func(tx *gorm.DB) {
		if tx.Statement.Table == "placements" {
			_, ok := tx.Statement.Clauses["FOR"]
			locked = append(locked, ok)
		}
	}))

	_, err := store.GetPlacement(ctx, p.ID)
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx domain.Store) error {
		loaded, err := tx.GetPlacement(ctx, p.ID)
		if err != nil {
			return err
		}
		loaded.InvoicePaid = true
		loaded.UpdatedAt = time.Now()
		return tx.SavePlacement(ctx, loaded)
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, locked)

	stored, err := store.GetPlacement(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.InvoicePaid)
}

func TestGormStoreOutbox(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.EnqueueEvent(ctx, &domain.OutboxEvent{EventID: id, Type: domain.ActionNoteAdded, Payload: []byte(`{}`)}))
	}
	err := store.EnqueueEvent(ctx, &domain.OutboxEvent{EventID: "a", Type: domain.ActionNoteAdded, Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)

	pending, err := store.PendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, store.MarkPublished(ctx, []uint{pending[0].ID}, time.Now()))

	pending, err = store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].EventID)
}

func TestGormStoreClose(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Close())

	_, err := store.GetEntry(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrStorage)
}
