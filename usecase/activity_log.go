package usecase

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"recruit-pipeline/domain"
)

// ActivityLog is the append-only audit trail of pipeline entries and their placements.
type ActivityLog struct {
	store domain.Store
	now   Clock
}

func NewActivityLog(store domain.Store, opts ...Option) *ActivityLog {
	b := newBase(store, opts...)
	return b.activity
}

type eventPayload struct {
	Activity *domain.ActivityRecord `json:"activity"`
	Data     any                    `json:"data,omitempty"`
}

// record appends rec and its outbox event inside tx. Records about a placement carry
// its id in their metadata.
func (l *ActivityLog) record(ctx context.Context, tx domain.Store, rec *domain.ActivityRecord, placementID *uint, data any) error {
	rec.CreatedAt = l.now()
	if placementID != nil && rec.Metadata == nil {
		meta, err := json.Marshal(map[string]uint{"placement_id": *placementID})
		if err != nil {
			return domain.Wrap(domain.ErrStorage, err, "encode activity metadata")
		}
		rec.Metadata = datatypes.JSON(meta)
	}
	if err := tx.AppendActivity(ctx, rec); err != nil {
		return err
	}

	body, err := json.Marshal(eventPayload{Activity: rec, Data: data})
	if err != nil {
		return domain.Wrap(domain.ErrStorage, err, "encode %s event", rec.Action)
	}

	return tx.EnqueueEvent(ctx, &domain.OutboxEvent{
		EventID:     uuid.NewString(),
		Type:        rec.Action,
		PipelineID:  rec.PipelineID,
		PlacementID: placementID,
		Payload:     datatypes.JSON(body),
		CreatedAt:   rec.CreatedAt,
	})
}

// Timeline returns the records of a pipeline entry, newest first.
func (l *ActivityLog) Timeline(ctx context.Context, pipelineID uint) ([]domain.ActivityRecord, error) {
	return l.store.ListActivity(ctx, pipelineID, domain.Descending)
}

// Chronology returns the records of a pipeline entry, oldest first.
func (l *ActivityLog) Chronology(ctx context.Context, pipelineID uint) ([]domain.ActivityRecord, error) {
	return l.store.ListActivity(ctx, pipelineID, domain.Ascending)
}
