package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

// ScorecardAggregator collects interview scorecards and summarises them per entry.
type ScorecardAggregator struct {
	base
}

func NewScorecardAggregator(store domain.Store, opts ...Option) *ScorecardAggregator {
	return &ScorecardAggregator{base: newBase(store, opts...)}
}

type ScorecardInput struct {
	PipelineID     uint                   `json:"pipeline_id"`
	Stage          domain.Stage           `json:"stage"`
	Ratings        domain.Ratings         `json:"ratings"`
	Recommendation *domain.Recommendation `json:"recommendation"`
	Notes          string                 `json:"notes"`
}

func validateRatings(r domain.Ratings) error {
	for name, v := range r.Fields() {
		if v != nil && (*v < domain.MinRating || *v > domain.MaxRating) {
			return domain.Validation("%s must be between %d and %d", name, domain.MinRating, domain.MaxRating)
		}
	}
	return nil
}

func validateRecommendation(r *domain.Recommendation) error {
	if r != nil && !r.Valid() {
		return domain.Validation("unknown recommendation %q", *r)
	}
	return nil
}

func recommendationNote(r *domain.Recommendation) string {
	if r == nil {
		return "no recommendation"
	}
	return "recommendation: " + string(*r)
}

func (a *ScorecardAggregator) AddScorecard(ctx context.Context, actor string, in ScorecardInput) (*domain.InterviewScorecard, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if in.PipelineID == 0 {
		return nil, domain.Validation("pipeline_id is required")
	}
	if !in.Stage.Valid() {
		return nil, domain.Validation("unknown stage %q", in.Stage)
	}
	if err := validateRatings(in.Ratings); err != nil {
		return nil, err
	}
	if err := validateRecommendation(in.Recommendation); err != nil {
		return nil, err
	}

	ctx, cancel := a.bound(ctx)
	defer cancel()

	now := a.now()
	card := &domain.InterviewScorecard{
		PipelineID:     in.PipelineID,
		Stage:          in.Stage,
		Ratings:        in.Ratings,
		Recommendation: in.Recommendation,
		Notes:          in.Notes,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := a.store.Transaction(ctx, func(tx domain.Store) error {
		if _, err := tx.GetEntry(ctx, in.PipelineID); err != nil {
			return err
		}
		if err := tx.CreateScorecard(ctx, card); err != nil {
			return err
		}
		return a.activity.record(ctx, tx, &domain.ActivityRecord{
			PipelineID: in.PipelineID,
			Action:     domain.ActionScorecardAdded,
			Note:       fmt.Sprintf("Scorecard added for %s stage (%s)", in.Stage, recommendationNote(in.Recommendation)),
			CreatedBy:  actor,
		}, nil, card)
	})
	if err != nil {
		a.logger.Warn("add scorecard failed", zap.Uint("pipeline_id", in.PipelineID), zap.Error(err))
		return nil, err
	}

	a.invalidate(ctx, summaryScope(in.PipelineID))
	return card, nil
}

// UpdateScorecard replaces the ratings, recommendation and notes of a scorecard.
func (a *ScorecardAggregator) UpdateScorecard(ctx context.Context, actor string, id uint, in ScorecardInput) (*domain.InterviewScorecard, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if in.Stage != "" && !in.Stage.Valid() {
		return nil, domain.Validation("unknown stage %q", in.Stage)
	}
	if err := validateRatings(in.Ratings); err != nil {
		return nil, err
	}
	if err := validateRecommendation(in.Recommendation); err != nil {
		return nil, err
	}

	ctx, cancel := a.bound(ctx)
	defer cancel()

	var card *domain.InterviewScorecard
	err := a.store.Transaction(ctx, func(tx domain.Store) error {
		current, err := tx.GetScorecard(ctx, id)
		if err != nil {
			return err
		}
		if in.Stage != "" {
			current.Stage = in.Stage
		}
		current.Ratings = in.Ratings
		current.Recommendation = in.Recommendation
		current.Notes = in.Notes
		current.UpdatedAt = a.now()
		if err := tx.UpdateScorecard(ctx, current); err != nil {
			return err
		}

		card = current
		return a.activity.record(ctx, tx, &domain.ActivityRecord{
			PipelineID: current.PipelineID,
			Action:     domain.ActionScorecardUpdated,
			Note:       fmt.Sprintf("Scorecard updated for %s stage (%s)", current.Stage, recommendationNote(current.Recommendation)),
			CreatedBy:  actor,
		}, nil, current)
	})
	if err != nil {
		a.logger.Warn("update scorecard failed", zap.Uint("scorecard_id", id), zap.Error(err))
		return nil, err
	}

	a.invalidate(ctx, summaryScope(card.PipelineID))
	return card, nil
}

// ExistsForStage reports whether the entry already has a scorecard for stage.
func (a *ScorecardAggregator) ExistsForStage(ctx context.Context, pipelineID uint, stage domain.Stage) (bool, error) {
	if !stage.Valid() {
		return false, domain.Validation("unknown stage %q", stage)
	}

	ctx, cancel := a.bound(ctx)
	defer cancel()

	return a.store.ScorecardExists(ctx, pipelineID, stage)
}

func (a *ScorecardAggregator) List(ctx context.Context, pipelineID uint) ([]domain.InterviewScorecard, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	return a.store.ListScorecards(ctx, pipelineID)
}

// Summarize returns nil when the entry has no scorecards.
func (a *ScorecardAggregator) Summarize(ctx context.Context, pipelineID uint) (*domain.ScorecardSummary, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()

	return readThrough(ctx, &a.base, summaryScope(pipelineID), "", func() (*domain.ScorecardSummary, error) {
		cards, err := a.store.ListScorecards(ctx, pipelineID)
		if err != nil {
			return nil, err
		}
		return Summarize(cards), nil
	})
}

// Summarize aggregates cards, which must be in insertion order. Each average is the
// mean of the non-nil ratings of that field.
func Summarize(cards []domain.InterviewScorecard) *domain.ScorecardSummary {
	if len(cards) == 0 {
		return nil
	}

	sums := map[string]int{}
	counts := map[string]int{}
	recommendations := []domain.Recommendation{}
	for _, card := range cards {
		for name, v := range card.Ratings.Fields() {
			if v == nil {
				continue
			}
			sums[name] += *v
			counts[name]++
		}
		if card.Recommendation != nil {
			recommendations = append(recommendations, *card.Recommendation)
		}
	}

	averages := map[string]*float64{}
	for name := range (domain.Ratings{}).Fields() {
		if counts[name] == 0 {
			averages[name] = nil
			continue
		}
		avg := float64(sums[name]) / float64(counts[name])
		averages[name] = &avg
	}

	return &domain.ScorecardSummary{
		Count:           len(cards),
		Averages:        averages,
		Recommendations: recommendations,
		LatestScorecard: cards[len(cards)-1],
	}
}
