package domain

import (
	"time"

	"gorm.io/datatypes"
)

type Action string

const (
	ActionCreated                Action = "created"
	ActionStageChange            Action = "stage_change"
	ActionRejected               Action = "rejected"
	ActionWithdrawn              Action = "withdrawn"
	ActionNoteAdded              Action = "note_added"
	ActionAssigned               Action = "assigned"
	ActionPriorityChanged        Action = "priority_changed"
	ActionRemoved                Action = "removed"
	ActionScorecardAdded         Action = "scorecard_added"
	ActionScorecardUpdated       Action = "scorecard_updated"
	ActionPlacementCreated       Action = "placement_created"
	ActionPlacementUpdated       Action = "placement_updated"
	ActionInvoiceRaised          Action = "invoice_raised"
	ActionInvoicePaid            Action = "invoice_paid"
	ActionRebateTriggered        Action = "rebate_triggered"
	ActionPlacementStatusChanged Action = "placement_status_changed"
)

// ActivityRecord is an immutable audit row. PipelineID is kept after the entry is
// removed, so there is no foreign key constraint on it.
type ActivityRecord struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	PipelineID uint           `gorm:"not null;index" json:"pipeline_id"`
	Action     Action         `gorm:"type:varchar(32);not null" json:"action"`
	FromStage  *Stage         `gorm:"type:varchar(32)" json:"from_stage"`
	ToStage    *Stage         `gorm:"type:varchar(32)" json:"to_stage"`
	Note       string         `gorm:"type:text" json:"note"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	CreatedBy  string         `gorm:"size:64;not null" json:"created_by"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (ActivityRecord) TableName() string {
	return "pipeline_activity"
}

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)
