package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-pipeline/domain"
	"recruit-pipeline/usecase"
)

func TestSummarizeAveragesOnlyRatedFields(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		entry := f.addCandidate(t, 1, 1)

		_, err := f.scorecards.AddScorecard(ctx, recruiter, usecase.ScorecardInput{
			PipelineID:     entry.ID,
			Stage:          domain.StageInterview,
			Ratings:        domain.Ratings{TechnicalSkills: ptr(4)},
			Recommendation: ptr(domain.RecommendYes),
		})
		require.NoError(t, err)
		second, err := f.scorecards.AddScorecard(ctx, recruiter, usecase.ScorecardInput{
			PipelineID:     entry.ID,
			Stage:          domain.StageInterview,
			Ratings:        domain.Ratings{TechnicalSkills: ptr(5)},
			Recommendation: ptr(domain.RecommendStrongYes),
		})
		require.NoError(t, err)

		summary, err := f.scorecards.Summarize(ctx, entry.ID)
		require.NoError(t, err)
		require.NotNil(t, summary)

		assert.Equal(t, 2, summary.Count)
		require.NotNil(t, summary.Averages["technical_skills"])
		assert.InDelta(t, 4.5, *summary.Averages["technical_skills"], 1e-9)
		assert.Nil(t, summary.Averages["communication"])
		assert.Len(t, summary.Averages, 6)
		assert.Equal(t, []domain.Recommendation{domain.RecommendYes, domain.RecommendStrongYes}, summary.Recommendations)
		assert.Equal(t, second.ID, summary.LatestScorecard.ID)
	})
}

func TestSummarizeWithoutScorecardsIsNil(t *testing.T) {
	f := newFixture(t)
	entry := f.addCandidate(t, 1, 1)

	summary, err := f.scorecards.Summarize(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Nil(t, summary)
	assert.Nil(t, usecase.Summarize(nil))
}

func TestSummarizeSkipsMissingRecommendations(t *testing.T) {
	summary := usecase.Summarize([]domain.InterviewScorecard{
		{ID: 1, Ratings: domain.Ratings{Communication: ptr(2)}},
		{ID: 2, Ratings: domain.Ratings{Communication: ptr(3)}, Recommendation: ptr(domain.RecommendNo)},
		{ID: 3},
	})

	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 2.5, *summary.Averages["communication"], 1e-9)
	assert.Equal(t, []domain.Recommendation{domain.RecommendNo}, summary.Recommendations)
	assert.Equal(t, uint(3), summary.LatestScorecard.ID)
}

func TestAddScorecardValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.addCandidate(t, 1, 1)

	tests := []struct {
		name string
		in   usecase.ScorecardInput
		kind error
	}{
		{
			name: "rating above range",
			in:   usecase.ScorecardInput{PipelineID: entry.ID, Stage: domain.StageInterview, Ratings: domain.Ratings{Motivation: ptr(6)}},
			kind: domain.ErrValidation,
		},
		{
			name: "rating below range",
			in:   usecase.ScorecardInput{PipelineID: entry.ID, Stage: domain.StageInterview, Ratings: domain.Ratings{CulturalFit: ptr(0)}},
			kind: domain.ErrValidation,
		},
		{
			name: "unknown recommendation",
			in:   usecase.ScorecardInput{PipelineID: entry.ID, Stage: domain.StageInterview, Recommendation: ptr(domain.Recommendation("meh"))},
			kind: domain.ErrValidation,
		},
		{
			name: "unknown stage",
			in:   usecase.ScorecardInput{PipelineID: entry.ID, Stage: "panel"},
			kind: domain.ErrValidation,
		},
		{
			name: "missing entry",
			in:   usecase.ScorecardInput{PipelineID: 404, Stage: domain.StageInterview},
			kind: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.scorecards.AddScorecard(ctx, recruiter, tt.in)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	cards, err := f.scorecards.List(ctx, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestAddScorecardLogsActivity(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		entry := f.addCandidate(t, 1, 1)

		_, err := f.scorecards.AddScorecard(ctx, recruiter, usecase.ScorecardInput{
			PipelineID:     entry.ID,
			Stage:          domain.StageInterview,
			Recommendation: ptr(domain.RecommendMaybe),
		})
		require.NoError(t, err)

		records, err := f.activity.Timeline(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionScorecardAdded, records[0].Action)
		assert.Equal(t, "Scorecard added for interview stage (recommendation: maybe)", records[0].Note)

		exists, err := f.scorecards.ExistsForStage(ctx, entry.ID, domain.StageInterview)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = f.scorecards.ExistsForStage(ctx, entry.ID, domain.StageOffer)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestUpdateScorecardRefreshesSummary(t *testing.T) {
	cache := newMapCache()
	f := newFixture(t, usecase.WithCache(cache))
	ctx := context.Background()
	entry := f.addCandidate(t, 1, 1)

	card, err := f.scorecards.AddScorecard(ctx, recruiter, usecase.ScorecardInput{
		PipelineID: entry.ID,
		Stage:      domain.StageInterview,
		Ratings:    domain.Ratings{OverallImpression: ptr(2)},
	})
	require.NoError(t, err)

	summary, err := f.scorecards.Summarize(ctx, entry.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, *summary.Averages["overall_impression"], 1e-9)
	assert.Equal(t, 1, cache.len())

	updated, err := f.scorecards.UpdateScorecard(ctx, recruiter, card.ID, usecase.ScorecardInput{
		Ratings:        domain.Ratings{OverallImpression: ptr(4)},
		Recommendation: ptr(domain.RecommendYes),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageInterview, updated.Stage)
	assert.Equal(t, recruiter, updated.CreatedBy)
	assert.Equal(t, 0, cache.len())

	summary, err = f.scorecards.Summarize(ctx, entry.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, *summary.Averages["overall_impression"], 1e-9)

	records, err := f.activity.Timeline(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionScorecardUpdated, records[0].Action)

	_, err = f.scorecards.UpdateScorecard(ctx, recruiter, 999, usecase.ScorecardInput{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummaryComputedBeforeAWriteIsNotServedAfterIt(t *testing.T) {
	cache := newMapCache()
	f := newFixture(t, usecase.WithCache(cache))
	ctx := context.Background()
	entry := f.addCandidate(t, 1, 1)

	_, err := f.scorecards.AddScorecard(ctx, recruiter, usecase.ScorecardInput{
		PipelineID: entry.ID,
		Stage:      domain.StageInterview,
		Ratings:    domain.Ratings{TechnicalSkills: ptr(4)},
	})
	require.NoError(t, err)

	cache.beforeSet = func() {
		_, err := f.scorecards.AddScorecard(ctx, recruiter, usecase.ScorecardInput{
			PipelineID: entry.ID,
			Stage:      domain.StageInterview,
			Ratings:    domain.Ratings{TechnicalSkills: ptr(2)},
		})
		require.NoError(t, err)
	}

	stale, err := f.scorecards.Summarize(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Count)

	fresh, err := f.scorecards.Summarize(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Count)
	assert.InDelta(t, 3.0, *fresh.Averages["technical_skills"], 1e-9)
}
