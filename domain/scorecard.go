package domain

import (
	"slices"
	"time"
)

type Recommendation string

const (
	RecommendStrongYes Recommendation = "strong_yes"
	RecommendYes       Recommendation = "yes"
	RecommendMaybe     Recommendation = "maybe"
	RecommendNo        Recommendation = "no"
	RecommendStrongNo  Recommendation = "strong_no"
)

var Recommendations = []Recommendation{
	RecommendStrongYes,
	RecommendYes,
	RecommendMaybe,
	RecommendNo,
	RecommendStrongNo,
}

func (r Recommendation) Valid() bool {
	return slices.Contains(Recommendations, r)
}

const (
	MinRating = 1
	MaxRating = 5
)

// Ratings holds the 1..5 interview ratings. A nil field was not rated.
type Ratings struct {
	TechnicalSkills     *int `gorm:"column:technical_skills" json:"technical_skills"`
	Communication       *int `gorm:"column:communication" json:"communication"`
	CulturalFit         *int `gorm:"column:cultural_fit" json:"cultural_fit"`
	Motivation          *int `gorm:"column:motivation" json:"motivation"`
	ExperienceRelevance *int `gorm:"column:experience_relevance" json:"experience_relevance"`
	OverallImpression   *int `gorm:"column:overall_impression" json:"overall_impression"`
}

// Fields returns the ratings keyed by their column name.
func (r Ratings) Fields() map[string]*int {
	return map[string]*int{
		"technical_skills":     r.TechnicalSkills,
		"communication":        r.Communication,
		"cultural_fit":         r.CulturalFit,
		"motivation":           r.Motivation,
		"experience_relevance": r.ExperienceRelevance,
		"overall_impression":   r.OverallImpression,
	}
}

type InterviewScorecard struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PipelineID     uint            `gorm:"not null;index:idx_scorecard_pipeline_stage" json:"pipeline_id"`
	Stage          Stage           `gorm:"type:varchar(32);not null;index:idx_scorecard_pipeline_stage" json:"stage"`
	Ratings        Ratings         `gorm:"embedded" json:"ratings"`
	Recommendation *Recommendation `gorm:"type:varchar(16)" json:"recommendation"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedBy      string          `gorm:"size:64;not null" json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (InterviewScorecard) TableName() string {
	return "interview_scorecards"
}

// ScorecardSummary aggregates every scorecard of one pipeline entry.
// An average is nil when no scorecard rated that field.
type ScorecardSummary struct {
	Count           int                 `json:"count"`
	Averages        map[string]*float64 `json:"averages"`
	Recommendations []Recommendation    `json:"recommendations"`
	LatestScorecard InterviewScorecard  `json:"latest_scorecard"`
}
