package domain

import "time"

// PipelineEntry tracks one candidate submission through one job's funnel.
type PipelineEntry struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	CVSubmissionID  uint    `gorm:"not null;uniqueIndex:idx_pipeline_cv_job" json:"cv_submission_id"`
	JobID           uint    `gorm:"not null;uniqueIndex:idx_pipeline_cv_job;index" json:"job_id"`
	Stage           Stage   `gorm:"type:varchar(32);not null;default:'sourced'" json:"stage"`
	Priority        int     `gorm:"not null;default:0" json:"priority"`
	Notes           string  `gorm:"type:text" json:"notes"`
	AssignedTo      *string `gorm:"size:64;index" json:"assigned_to"`
	RejectionReason *string `gorm:"type:text" json:"rejection_reason"`
	// Version guards conditional updates; it grows by one on every write.
	Version   uint      `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PipelineEntry) TableName() string {
	return "pipeline_entries"
}

type PipelineFilter struct {
	JobID          *uint
	CVSubmissionID *uint
	Stage          *Stage
	AssignedTo     *string
}

// Matches applies the filter in memory.
func (f PipelineFilter) Matches(e *PipelineEntry) bool {
	if f.JobID != nil && e.JobID != *f.JobID {
		return false
	}
	if f.CVSubmissionID != nil && e.CVSubmissionID != *f.CVSubmissionID {
		return false
	}
	if f.Stage != nil && e.Stage != *f.Stage {
		return false
	}
	if f.AssignedTo != nil && (e.AssignedTo == nil || *e.AssignedTo != *f.AssignedTo) {
		return false
	}
	return true
}
