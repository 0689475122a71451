package domain

import (
	"context"
	"time"
)

type PipelineRepository interface {
	// CreateEntry fails with ErrDuplicateEntry when the (cv_submission_id, job_id) pair exists.
	CreateEntry(ctx context.Context, entry *PipelineEntry) error
	GetEntry(ctx context.Context, id uint) (*PipelineEntry, error)
	ListEntries(ctx context.Context, filter PipelineFilter) ([]PipelineEntry, error)
	// UpdateEntry writes entry only if its stored version still equals expectedVersion,
	// failing with ErrStaleEntry otherwise. On success entry.Version is advanced.
	UpdateEntry(ctx context.Context, entry *PipelineEntry, expectedVersion uint) error
	DeleteEntry(ctx context.Context, id uint) error
	CountByStage(ctx context.Context, jobID uint) (map[Stage]int, error)
}

type ActivityRepository interface {
	AppendActivity(ctx context.Context, record *ActivityRecord) error
	ListActivity(ctx context.Context, pipelineID uint, order SortOrder) ([]ActivityRecord, error)
}

type ScorecardRepository interface {
	CreateScorecard(ctx context.Context, card *InterviewScorecard) error
	GetScorecard(ctx context.Context, id uint) (*InterviewScorecard, error)
	UpdateScorecard(ctx context.Context, card *InterviewScorecard) error
	// ListScorecards returns scorecards in insertion order.
	ListScorecards(ctx context.Context, pipelineID uint) ([]InterviewScorecard, error)
	ScorecardExists(ctx context.Context, pipelineID uint, stage Stage) (bool, error)
}

type PlacementRepository interface {
	// CreatePlacement fails with ErrDuplicateEntry when the pipeline already has a placement.
	CreatePlacement(ctx context.Context, placement *Placement) error
	GetPlacement(ctx context.Context, id uint) (*Placement, error)
	GetPlacementByPipeline(ctx context.Context, pipelineID uint) (*Placement, error)
	SavePlacement(ctx context.Context, placement *Placement) error
	ListPlacements(ctx context.Context, filter PlacementFilter) ([]Placement, error)
}

type Outbox interface {
	EnqueueEvent(ctx context.Context, event *OutboxEvent) error
	PendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []uint, at time.Time) error
}

// Store is the persistence boundary of the engine. Every single write is atomic;
// Transaction makes a sequence of writes atomic.
type Store interface {
	PipelineRepository
	ActivityRepository
	ScorecardRepository
	PlacementRepository
	Outbox

	Transaction(ctx context.Context, fn func(tx Store) error) error
}
