package domain

import (
	"slices"
	"time"
)

type PlacementStatus string

const (
	PlacementConfirmed PlacementStatus = "confirmed"
	PlacementStarted   PlacementStatus = "started"
	PlacementCompleted PlacementStatus = "completed"
	PlacementRebate    PlacementStatus = "rebate"
)

var PlacementStatuses = []PlacementStatus{
	PlacementConfirmed,
	PlacementStarted,
	PlacementCompleted,
	PlacementRebate,
}

func (s PlacementStatus) Valid() bool {
	return slices.Contains(PlacementStatuses, s)
}

// placementSuccessors applies to status updates under strict transitions only. Rebate is
// entered through TriggerRebate.
var placementSuccessors = map[PlacementStatus][]PlacementStatus{
	PlacementConfirmed: {PlacementStarted, PlacementCompleted},
	PlacementStarted:   {PlacementCompleted},
}

func (s PlacementStatus) CanMoveTo(next PlacementStatus) bool {
	if s == next {
		return true
	}
	return slices.Contains(placementSuccessors[s], next)
}

type JobType string

const (
	JobTypePermanent JobType = "permanent"
	JobTypeContract  JobType = "contract"
	JobTypeTemporary JobType = "temporary"
)

func (t JobType) Valid() bool {
	return t == JobTypePermanent || t == JobTypeContract || t == JobTypeTemporary
}

const (
	DefaultGuaranteeDays   = 90
	DefaultSplitPercentage = 100.0
)

// Placement is the financial record of a successful hire. One per pipeline entry.
type Placement struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	PipelineID          uint            `gorm:"not null;uniqueIndex" json:"pipeline_id"`
	StartDate           time.Time       `gorm:"type:date;not null;index" json:"start_date"`
	ActualStartDate     *time.Time      `gorm:"type:date" json:"actual_start_date"`
	JobType             JobType         `gorm:"type:varchar(16);not null" json:"job_type"`
	Salary              *float64        `json:"salary"`
	DayRate             *float64        `json:"day_rate"`
	FeePercentage       *float64        `json:"fee_percentage"`
	FeeValue            *float64        `json:"fee_value"`
	InvoiceDate         time.Time       `gorm:"type:date" json:"invoice_date"`
	GuaranteePeriodDays int             `gorm:"not null;default:90" json:"guarantee_period_days"`
	GuaranteeExpiresAt  time.Time       `gorm:"type:date" json:"guarantee_expires_at"`
	PlacedBy            string          `gorm:"size:64" json:"placed_by"`
	SourcedBy           *string         `gorm:"size:64" json:"sourced_by"`
	SplitWith           *string         `gorm:"size:64" json:"split_with"`
	SplitPercentage     float64         `gorm:"not null;default:100" json:"split_percentage"`
	InvoiceRaised       bool            `gorm:"not null;default:false" json:"invoice_raised"`
	InvoiceRaisedAt     *time.Time      `json:"invoice_raised_at"`
	InvoiceNumber       *string         `gorm:"size:64" json:"invoice_number"`
	InvoicePaid         bool            `gorm:"not null;default:false" json:"invoice_paid"`
	InvoicePaidAt       *time.Time      `json:"invoice_paid_at"`
	RebateTriggered     bool            `gorm:"not null;default:false" json:"rebate_triggered"`
	RebateTriggerDate   *time.Time      `gorm:"type:date" json:"rebate_trigger_date"`
	RebateReason        *string         `gorm:"type:text" json:"rebate_reason"`
	RebateAmount        *float64        `json:"rebate_amount"`
	RebatePercentage    *float64        `json:"rebate_percentage"`
	Status              PlacementStatus `gorm:"type:varchar(16);not null;default:'confirmed';index" json:"status"`
	StatusChangedAt     time.Time       `json:"status_changed_at"`
	Notes               string          `gorm:"type:text" json:"notes"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (Placement) TableName() string {
	return "placements"
}

// GuaranteeExpiry is start plus days, at day precision.
func GuaranteeExpiry(start time.Time, days int) time.Time {
	return TruncateDay(start).AddDate(0, 0, days)
}

// TruncateDay drops the clock part of t, keeping t's calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GuaranteeActive reports whether a rebate may still be claimed on today.
func (p *Placement) GuaranteeActive(today time.Time) bool {
	if p.RebateTriggered || p.Status == PlacementCompleted {
		return false
	}
	return !TruncateDay(today).After(p.GuaranteeExpiresAt)
}

type PlacementFilter struct {
	Status *PlacementStatus
	From   *time.Time
	To     *time.Time
}

// Matches applies the filter in memory. From and To are inclusive start_date bounds.
func (f PlacementFilter) Matches(p *Placement) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if f.From != nil && p.StartDate.Before(TruncateDay(*f.From)) {
		return false
	}
	if f.To != nil && p.StartDate.After(TruncateDay(*f.To)) {
		return false
	}
	return true
}

type PlacementStats struct {
	Total        int                     `json:"total"`
	ByStatus     map[PlacementStatus]int `json:"by_status"`
	RebateCount  int                     `json:"rebate_count"`
	TotalFees    float64                 `json:"total_fees"`
	InvoicedFees float64                 `json:"invoiced_fees"`
	PaidFees     float64                 `json:"paid_fees"`
}
