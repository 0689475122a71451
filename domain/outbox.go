package domain

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxEvent is written in the same transaction as the mutation it describes and
// published later by the relay.
type OutboxEvent struct {
	ID          uint           `gorm:"primaryKey" json:"-"`
	EventID     string         `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	Type        Action         `gorm:"type:varchar(32);not null" json:"type"`
	PipelineID  uint           `gorm:"not null" json:"pipeline_id"`
	PlacementID *uint          `json:"placement_id,omitempty"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
	PublishedAt *time.Time     `gorm:"index" json:"-"`
}

func (OutboxEvent) TableName() string {
	return "pipeline_outbox"
}
