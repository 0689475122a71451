package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

// StageEngine moves candidates through a job's funnel and records every change.
type StageEngine struct {
	base
}

func NewStageEngine(store domain.Store, opts ...Option) *StageEngine {
	return &StageEngine{base: newBase(store, opts...)}
}

type AddCandidateInput struct {
	CVSubmissionID uint         `json:"cv_submission_id"`
	JobID          uint         `json:"job_id"`
	Stage          domain.Stage `json:"stage"`
	Priority       int          `json:"priority"`
	Notes          string       `json:"notes"`
	AssignedTo     *string      `json:"assigned_to"`
}

type ChangeStageInput struct {
	Stage           domain.Stage `json:"stage"`
	Note            string       `json:"note"`
	RejectionReason string       `json:"rejection_reason"`
}

func (e *StageEngine) AddCandidate(ctx context.Context, actor string, in AddCandidateInput) (*domain.PipelineEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if in.CVSubmissionID == 0 || in.JobID == 0 {
		return nil, domain.Validation("cv_submission_id and job_id are required")
	}
	if in.Stage == "" {
		in.Stage = domain.StageSourced
	}
	if !in.Stage.Valid() {
		return nil, domain.Validation("unknown stage %q", in.Stage)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	now := e.now()
	entry := &domain.PipelineEntry{
		CVSubmissionID: in.CVSubmissionID,
		JobID:          in.JobID,
		Stage:          in.Stage,
		Priority:       in.Priority,
		Notes:          in.Notes,
		AssignedTo:     in.AssignedTo,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := e.store.Transaction(ctx, func(tx domain.Store) error {
		if err := tx.CreateEntry(ctx, entry); err != nil {
			return err
		}
		return e.activity.record(ctx, tx, &domain.ActivityRecord{
			PipelineID: entry.ID,
			Action:     domain.ActionCreated,
			ToStage:    stagePtr(entry.Stage),
			Note:       "Added to pipeline",
			CreatedBy:  actor,
		}, nil, entry)
	})
	if errors.Is(err, domain.ErrDuplicateEntry) {
		return nil, &domain.Error{
			Kind:    domain.ErrDuplicateEntry,
			Message: fmt.Sprintf("Candidate %d is already in this job's pipeline (job %d)", in.CVSubmissionID, in.JobID),
			Cause:   err,
		}
	}
	if err != nil {
		e.logger.Warn("add candidate failed", zap.Uint("cv_submission_id", in.CVSubmissionID), zap.Uint("job_id", in.JobID), zap.Error(err))
		return nil, err
	}

	e.logger.Debug("candidate added", zap.Uint("pipeline_id", entry.ID), zap.String("stage", string(entry.Stage)))
	return entry, nil
}

// ChangeStage moves an entry to in.Stage. The logged from_stage is always the stage the
// committed write replaced: the write is conditional on the version read with it and is
// retried on conflict.
func (e *StageEngine) ChangeStage(ctx context.Context, actor string, id uint, in ChangeStageInput) (*domain.PipelineEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !in.Stage.Valid() {
		return nil, domain.Validation("unknown stage %q", in.Stage)
	}

	return e.mutate(ctx, id, func(entry *domain.PipelineEntry) (*domain.ActivityRecord, error) {
		from := entry.Stage
		if !domain.CanTransition(from, in.Stage, e.strict) {
			return nil, domain.NewError(domain.ErrInvalidTransition, "cannot move from %s to %s", from, in.Stage)
		}

		entry.Stage = in.Stage
		if in.Stage == domain.StageRejected && in.RejectionReason != "" {
			reason := in.RejectionReason
			entry.RejectionReason = &reason
		}

		note := in.Note
		if note == "" {
			note = in.RejectionReason
		}
		return &domain.ActivityRecord{
			Action:    in.Stage.ActivityAction(),
			FromStage: stagePtr(from),
			ToStage:   stagePtr(in.Stage),
			Note:      note,
			CreatedBy: actor,
		}, nil
	})
}

func (e *StageEngine) UpdatePriority(ctx context.Context, actor string, id uint, priority int) (*domain.PipelineEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	return e.mutate(ctx, id, func(entry *domain.PipelineEntry) (*domain.ActivityRecord, error) {
		previous := entry.Priority
		entry.Priority = priority
		return &domain.ActivityRecord{
			Action:    domain.ActionPriorityChanged,
			Note:      fmt.Sprintf("Priority changed from %d to %d", previous, priority),
			CreatedBy: actor,
		}, nil
	})
}

// Assign sets the recruiter responsible for the entry. A nil assignee unassigns it.
func (e *StageEngine) Assign(ctx context.Context, actor string, id uint, assignee *string) (*domain.PipelineEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if assignee != nil && strings.TrimSpace(*assignee) == "" {
		assignee = nil
	}

	return e.mutate(ctx, id, func(entry *domain.PipelineEntry) (*domain.ActivityRecord, error) {
		entry.AssignedTo = assignee
		note := "Unassigned"
		if assignee != nil {
			note = "Assigned to " + *assignee
		}
		return &domain.ActivityRecord{
			Action:    domain.ActionAssigned,
			Note:      note,
			CreatedBy: actor,
		}, nil
	})
}

func (e *StageEngine) AddNote(ctx context.Context, actor string, id uint, note string) (*domain.PipelineEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, domain.Validation("note is required")
	}

	return e.mutate(ctx, id, func(entry *domain.PipelineEntry) (*domain.ActivityRecord, error) {
		if entry.Notes == "" {
			entry.Notes = note
		} else {
			entry.Notes += "\n" + note
		}
		return &domain.ActivityRecord{
			Action:    domain.ActionNoteAdded,
			Note:      note,
			CreatedBy: actor,
		}, nil
	})
}

// RemoveCandidate hard-deletes the entry. The removal is logged under the deleted id.
func (e *StageEngine) RemoveCandidate(ctx context.Context, actor string, id uint) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	err := e.store.Transaction(ctx, func(tx domain.Store) error {
		entry, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, id); err != nil {
			return err
		}
		return e.activity.record(ctx, tx, &domain.ActivityRecord{
			PipelineID: id,
			Action:     domain.ActionRemoved,
			FromStage:  stagePtr(entry.Stage),
			Note:       "Removed from pipeline",
			CreatedBy:  actor,
		}, nil, entry)
	})
	if err != nil {
		e.logger.Warn("remove candidate failed", zap.Uint("pipeline_id", id), zap.Error(err))
		return err
	}

	e.invalidate(ctx, summaryScope(id))
	e.logger.Debug("candidate removed", zap.Uint("pipeline_id", id))
	return nil
}

func (e *StageEngine) Get(ctx context.Context, id uint) (*domain.PipelineEntry, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	return e.store.GetEntry(ctx, id)
}

// List returns matching entries, most urgent first.
func (e *StageEngine) List(ctx context.Context, filter domain.PipelineFilter) ([]domain.PipelineEntry, error) {
	if filter.Stage != nil && !filter.Stage.Valid() {
		return nil, domain.Validation("unknown stage %q", *filter.Stage)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	return e.store.ListEntries(ctx, filter)
}

// StageCounts returns the number of entries of a job in every stage.
func (e *StageEngine) StageCounts(ctx context.Context, jobID uint) (map[domain.Stage]int, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	counts, err := e.store.CountByStage(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Stage]int, len(domain.Stages))
	for _, s := range domain.Stages {
		out[s] = counts[s]
	}
	return out, nil
}

// mutate runs apply against a fresh read of the entry and writes it back conditionally,
// together with the activity apply returns.
func (e *StageEngine) mutate(ctx context.Context, id uint, apply func(*domain.PipelineEntry) (*domain.ActivityRecord, error)) (*domain.PipelineEntry, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	var (
		entry *domain.PipelineEntry
		err   error
	)
	for attempt := 0; ; attempt++ {
		err = e.store.Transaction(ctx, func(tx domain.Store) error {
			current, err := tx.GetEntry(ctx, id)
			if err != nil {
				return err
			}

			expected := current.Version
			rec, err := apply(current)
			if err != nil {
				return err
			}
			current.UpdatedAt = e.now()
			if err := tx.UpdateEntry(ctx, current, expected); err != nil {
				return err
			}

			rec.PipelineID = current.ID
			entry = current
			return e.activity.record(ctx, tx, rec, nil, current)
		})
		if !errors.Is(err, domain.ErrStaleEntry) || attempt >= e.staleRetries {
			break
		}
		e.logger.Debug("pipeline entry changed concurrently, retrying", zap.Uint("pipeline_id", id), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		e.logger.Warn("pipeline update failed", zap.Uint("pipeline_id", id), zap.Error(err))
		return nil, err
	}

	e.logger.Debug("pipeline entry updated", zap.Uint("pipeline_id", id), zap.String("stage", string(entry.Stage)))
	return entry, nil
}
