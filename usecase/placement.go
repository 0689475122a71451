package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

// PlacementLedger owns the financial lifecycle of a placed candidate.
type PlacementLedger struct {
	base
}

func NewPlacementLedger(store domain.Store, opts ...Option) *PlacementLedger {
	return &PlacementLedger{base: newBase(store, opts...)}
}

type CreatePlacementInput struct {
	PipelineID          uint           `json:"pipeline_id"`
	StartDate           time.Time      `json:"start_date"`
	JobType             domain.JobType `json:"job_type"`
	Salary              *float64       `json:"salary"`
	DayRate             *float64       `json:"day_rate"`
	FeePercentage       *float64       `json:"fee_percentage"`
	FeeValue            *float64       `json:"fee_value"`
	InvoiceDate         *time.Time     `json:"invoice_date"`
	GuaranteePeriodDays *int           `json:"guarantee_period_days"`
	PlacedBy            string         `json:"placed_by"`
	SourcedBy           *string        `json:"sourced_by"`
	SplitWith           *string        `json:"split_with"`
	SplitPercentage     *float64       `json:"split_percentage"`
	Notes               string         `json:"notes"`
}

// PlacementClear names the optional fields a patch sets back to null.
type PlacementClear struct {
	Salary        bool `json:"salary"`
	DayRate       bool `json:"day_rate"`
	FeePercentage bool `json:"fee_percentage"`
	FeeValue      bool `json:"fee_value"`
	SourcedBy     bool `json:"sourced_by"`
	SplitWith     bool `json:"split_with"`
}

// PlacementPatch holds the fields of a partial update. Nil fields are left untouched
// unless Clear names them.
type PlacementPatch struct {
	StartDate           *time.Time      `json:"start_date"`
	JobType             *domain.JobType `json:"job_type"`
	Salary              *float64        `json:"salary"`
	DayRate             *float64        `json:"day_rate"`
	FeePercentage       *float64        `json:"fee_percentage"`
	FeeValue            *float64        `json:"fee_value"`
	InvoiceDate         *time.Time      `json:"invoice_date"`
	GuaranteePeriodDays *int            `json:"guarantee_period_days"`
	PlacedBy            *string         `json:"placed_by"`
	SourcedBy           *string         `json:"sourced_by"`
	SplitWith           *string         `json:"split_with"`
	SplitPercentage     *float64        `json:"split_percentage"`
	Notes               *string         `json:"notes"`
	Clear               PlacementClear  `json:"clear"`
}

func (p PlacementPatch) empty() bool {
	return p == PlacementPatch{}
}

func (p PlacementPatch) conflicts() error {
	for name, both := range map[string]bool{
		"salary":         p.Clear.Salary && p.Salary != nil,
		"day_rate":       p.Clear.DayRate && p.DayRate != nil,
		"fee_percentage": p.Clear.FeePercentage && p.FeePercentage != nil,
		"fee_value":      p.Clear.FeeValue && p.FeeValue != nil,
		"sourced_by":     p.Clear.SourcedBy && p.SourcedBy != nil,
		"split_with":     p.Clear.SplitWith && p.SplitWith != nil,
	} {
		if both {
			return domain.Validation("%s cannot be set and cleared in one update", name)
		}
	}
	return nil
}

// feeInputsChanged reports whether the patch touches what fee_value is derived from
// without setting fee_value itself.
func (p PlacementPatch) feeInputsChanged() bool {
	if p.FeeValue != nil || p.Clear.FeeValue {
		return false
	}
	return p.Salary != nil || p.Clear.Salary || p.FeePercentage != nil || p.Clear.FeePercentage
}

type RebateInput struct {
	Reason     string   `json:"reason"`
	Amount     *float64 `json:"amount"`
	Percentage *float64 `json:"percentage"`
}

func validateMoney(name string, v *float64) error {
	if v != nil && *v < 0 {
		return domain.Validation("%s must not be negative", name)
	}
	return nil
}

func validatePercentage(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 100) {
		return domain.Validation("%s must be between 0 and 100", name)
	}
	return nil
}

func validateTerms(p *domain.Placement) error {
	if p.StartDate.IsZero() {
		return domain.Validation("start_date is required")
	}
	if !p.JobType.Valid() {
		return domain.Validation("unknown job_type %q", p.JobType)
	}
	if p.Salary != nil && p.DayRate != nil {
		return domain.Validation("salary and day_rate are mutually exclusive")
	}
	if p.GuaranteePeriodDays < 0 {
		return domain.Validation("guarantee_period_days must not be negative")
	}
	if p.SplitPercentage <= 0 || p.SplitPercentage > 100 {
		return domain.Validation("split_percentage must be greater than 0 and at most 100")
	}
	for name, v := range map[string]*float64{"salary": p.Salary, "day_rate": p.DayRate, "fee_value": p.FeeValue} {
		if err := validateMoney(name, v); err != nil {
			return err
		}
	}
	return validatePercentage("fee_percentage", p.FeePercentage)
}

// deriveFee fills fee_value from a permanent salary when only the percentage is known.
func deriveFee(p *domain.Placement) {
	if p.FeeValue != nil || p.Salary == nil || p.FeePercentage == nil {
		return
	}
	fee := *p.Salary * *p.FeePercentage / 100
	p.FeeValue = &fee
}

func (l *PlacementLedger) Create(ctx context.Context, actor string, in CreatePlacementInput) (*domain.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if in.PipelineID == 0 {
		return nil, domain.Validation("pipeline_id is required")
	}

	now := l.now()
	start := domain.TruncateDay(in.StartDate)
	p := &domain.Placement{
		PipelineID:          in.PipelineID,
		StartDate:           start,
		JobType:             in.JobType,
		Salary:              in.Salary,
		DayRate:             in.DayRate,
		FeePercentage:       in.FeePercentage,
		FeeValue:            in.FeeValue,
		InvoiceDate:         start,
		GuaranteePeriodDays: l.guaranteeDays,
		PlacedBy:            in.PlacedBy,
		SourcedBy:           in.SourcedBy,
		SplitWith:           in.SplitWith,
		SplitPercentage:     domain.DefaultSplitPercentage,
		Status:              domain.PlacementConfirmed,
		StatusChangedAt:     now,
		Notes:               in.Notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if p.JobType == "" {
		p.JobType = domain.JobTypePermanent
	}
	if in.InvoiceDate != nil {
		p.InvoiceDate = domain.TruncateDay(*in.InvoiceDate)
	}
	if in.GuaranteePeriodDays != nil {
		p.GuaranteePeriodDays = *in.GuaranteePeriodDays
	}
	if in.SplitPercentage != nil {
		p.SplitPercentage = *in.SplitPercentage
	}
	if p.PlacedBy == "" {
		p.PlacedBy = actor
	}
	if err := validateTerms(p); err != nil {
		return nil, err
	}
	deriveFee(p)
	p.GuaranteeExpiresAt = domain.GuaranteeExpiry(p.StartDate, p.GuaranteePeriodDays)

	ctx, cancel := l.bound(ctx)
	defer cancel()

	err := l.store.Transaction(ctx, func(tx domain.Store) error {
		if _, err := tx.GetEntry(ctx, in.PipelineID); err != nil {
			return err
		}
		if err := tx.CreatePlacement(ctx, p); err != nil {
			return err
		}
		return l.activity.record(ctx, tx, &domain.ActivityRecord{
			PipelineID: p.PipelineID,
			Action:     domain.ActionPlacementCreated,
			Note:       fmt.Sprintf("Placement confirmed, starting %s", p.StartDate.Format(time.DateOnly)),
			CreatedBy:  actor,
		}, &p.ID, p)
	})
	if errors.Is(err, domain.ErrDuplicateEntry) {
		return nil, &domain.Error{
			Kind:    domain.ErrDuplicateEntry,
			Message: fmt.Sprintf("A placement already exists for pipeline entry %d", in.PipelineID),
			Cause:   err,
		}
	}
	if err != nil {
		l.logger.Warn("create placement failed", zap.Uint("pipeline_id", in.PipelineID), zap.Error(err))
		return nil, err
	}

	l.invalidate(ctx, statsScope)
	l.logger.Debug("placement created", zap.Uint("placement_id", p.ID), zap.Uint("pipeline_id", p.PipelineID))
	return p, nil
}

// Update applies a partial update. The guarantee expiry is recomputed whenever the
// start date or the guarantee period changes, and fee_value is re-derived when salary or
// fee_percentage change and both are set.
func (l *PlacementLedger) Update(ctx context.Context, actor string, id uint, patch PlacementPatch) (*domain.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if patch.empty() {
		return nil, domain.Validation("no fields to update")
	}
	if err := validatePercentage("split_percentage", patch.SplitPercentage); err != nil {
		return nil, err
	}
	if err := patch.conflicts(); err != nil {
		return nil, err
	}

	return l.mutate(ctx, id, func(p *domain.Placement) (*domain.ActivityRecord, error) {
		var changed []string
		set := func(name string) { changed = append(changed, name) }

		for name, c := range map[string]struct {
			on    bool
			apply func()
		}{
			"salary":         {patch.Clear.Salary, func() { p.Salary = nil }},
			"day_rate":       {patch.Clear.DayRate, func() { p.DayRate = nil }},
			"fee_percentage": {patch.Clear.FeePercentage, func() { p.FeePercentage = nil }},
			"fee_value":      {patch.Clear.FeeValue, func() { p.FeeValue = nil }},
			"sourced_by":     {patch.Clear.SourcedBy, func() { p.SourcedBy = nil }},
			"split_with":     {patch.Clear.SplitWith, func() { p.SplitWith = nil }},
		} {
			if c.on {
				c.apply()
				set(name)
			}
		}

		if patch.StartDate != nil {
			p.StartDate = domain.TruncateDay(*patch.StartDate)
			set("start_date")
		}
		if patch.JobType != nil {
			p.JobType = *patch.JobType
			set("job_type")
		}
		if patch.Salary != nil {
			p.Salary = patch.Salary
			set("salary")
		}
		if patch.DayRate != nil {
			p.DayRate = patch.DayRate
			set("day_rate")
		}
		if patch.FeePercentage != nil {
			p.FeePercentage = patch.FeePercentage
			set("fee_percentage")
		}
		if patch.FeeValue != nil {
			p.FeeValue = patch.FeeValue
			set("fee_value")
		}
		if patch.InvoiceDate != nil {
			p.InvoiceDate = domain.TruncateDay(*patch.InvoiceDate)
			set("invoice_date")
		}
		if patch.GuaranteePeriodDays != nil {
			p.GuaranteePeriodDays = *patch.GuaranteePeriodDays
			set("guarantee_period_days")
		}
		if patch.PlacedBy != nil {
			p.PlacedBy = *patch.PlacedBy
			set("placed_by")
		}
		if patch.SourcedBy != nil {
			p.SourcedBy = patch.SourcedBy
			set("sourced_by")
		}
		if patch.SplitWith != nil {
			p.SplitWith = patch.SplitWith
			set("split_with")
		}
		if patch.SplitPercentage != nil {
			p.SplitPercentage = *patch.SplitPercentage
			set("split_percentage")
		}
		if patch.Notes != nil {
			p.Notes = *patch.Notes
			set("notes")
		}

		if err := validateTerms(p); err != nil {
			return nil, err
		}
		if patch.feeInputsChanged() && p.Salary != nil && p.FeePercentage != nil {
			p.FeeValue = nil
			deriveFee(p)
			set("fee_value")
		}
		// The expiry follows start_date as well as the period so that it always equals
		// start_date plus guarantee_period_days.
		if patch.StartDate != nil || patch.GuaranteePeriodDays != nil {
			p.GuaranteeExpiresAt = domain.GuaranteeExpiry(p.StartDate, p.GuaranteePeriodDays)
		}

		slices.Sort(changed)
		return &domain.ActivityRecord{
			Action: domain.ActionPlacementUpdated,
			Note:   "Placement updated: " + strings.Join(changed, ", "),
		}, nil
	}, actor)
}

// MarkInvoiceRaised may be called again; each call re-stamps the raise time.
func (l *PlacementLedger) MarkInvoiceRaised(ctx context.Context, actor string, id uint, invoiceNumber *string) (*domain.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	return l.mutate(ctx, id, func(p *domain.Placement) (*domain.ActivityRecord, error) {
		now := l.now()
		p.InvoiceRaised = true
		p.InvoiceRaisedAt = &now
		if invoiceNumber != nil && *invoiceNumber != "" {
			p.InvoiceNumber = invoiceNumber
		}

		note := "Invoice raised"
		if p.InvoiceNumber != nil {
			note += " (" + *p.InvoiceNumber + ")"
		}
		return &domain.ActivityRecord{Action: domain.ActionInvoiceRaised, Note: note}, nil
	}, actor)
}

// MarkInvoicePaid does not require the invoice to have been raised first.
func (l *PlacementLedger) MarkInvoicePaid(ctx context.Context, actor string, id uint) (*domain.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	return l.mutate(ctx, id, func(p *domain.Placement) (*domain.ActivityRecord, error) {
		now := l.now()
		p.InvoicePaid = true
		p.InvoicePaidAt = &now
		return &domain.ActivityRecord{Action: domain.ActionInvoicePaid, Note: "Invoice paid"}, nil
	}, actor)
}

// TriggerRebate forces the placement into rebate whatever its current status. Calling
// it again overwrites the trigger date and terms.
func (l *PlacementLedger) TriggerRebate(ctx context.Context, actor string, id uint, in RebateInput) (*domain.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		return nil, domain.Validation("rebate reason is required")
	}
	if err := validateMoney("rebate amount", in.Amount); err != nil {
		return nil, err
	}
	if err := validatePercentage("rebate percentage", in.Percentage); err != nil {
		return nil, err
	}

	return l.mutate(ctx, id, func(p *domain.Placement) (*domain.ActivityRecord, error) {
		now := l.now()
		today := domain.TruncateDay(now)
		reason := in.Reason
		p.RebateTriggered = true
		p.RebateTriggerDate = &today
		p.RebateReason = &reason
		p.RebateAmount = in.Amount
		p.RebatePercentage = in.Percentage
		if p.RebateAmount == nil && p.RebatePercentage != nil && p.FeeValue != nil {
			amount := *p.FeeValue * *p.RebatePercentage / 100
			p.RebateAmount = &amount
		}
		p.Status = domain.PlacementRebate
		p.StatusChangedAt = now

		return &domain.ActivityRecord{
			Action: domain.ActionRebateTriggered,
			Note:   "Rebate triggered: " + reason,
		}, nil
	}, actor)
}

// UpdateStatus sets the placement status directly. With strict transitions only the
// confirmed -> started -> completed moves are accepted. Starting a placement stamps its
// actual start date once.
func (l *PlacementLedger) UpdateStatus(ctx context.Context, actor string, id uint, status domain.PlacementStatus) (*domain.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domain.Validation("unknown placement status %q", status)
	}

	return l.mutate(ctx, id, func(p *domain.Placement) (*domain.ActivityRecord, error) {
		from := p.Status
		if l.strict && !from.CanMoveTo(status) {
			return nil, domain.NewError(domain.ErrInvalidTransition, "cannot move placement from %s to %s", from, status)
		}

		now := l.now()
		p.Status = status
		p.StatusChangedAt = now
		if status == domain.PlacementStarted && p.ActualStartDate == nil {
			today := domain.TruncateDay(now)
			p.ActualStartDate = &today
		}

		return &domain.ActivityRecord{
			Action: domain.ActionPlacementStatusChanged,
			Note:   fmt.Sprintf("Placement status changed from %s to %s", from, status),
		}, nil
	}, actor)
}

func (l *PlacementLedger) Get(ctx context.Context, id uint) (*domain.Placement, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	return l.store.GetPlacement(ctx, id)
}

func (l *PlacementLedger) GetByPipeline(ctx context.Context, pipelineID uint) (*domain.Placement, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	return l.store.GetPlacementByPipeline(ctx, pipelineID)
}

func (l *PlacementLedger) List(ctx context.Context, filter domain.PlacementFilter) ([]domain.Placement, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.Validation("unknown placement status %q", *filter.Status)
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	return l.store.ListPlacements(ctx, filter)
}

// Stats aggregates placements whose start date falls in [from, to]. Either bound may be nil.
func (l *PlacementLedger) Stats(ctx context.Context, from, to *time.Time) (*domain.PlacementStats, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, domain.Validation("from must not be after to")
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	return readThrough(ctx, &l.base, statsScope, statsSuffix(from, to), func() (*domain.PlacementStats, error) {
		placements, err := l.store.ListPlacements(ctx, domain.PlacementFilter{From: from, To: to})
		if err != nil {
			return nil, err
		}
		return ComputeStats(placements), nil
	})
}

func ComputeStats(placements []domain.Placement) *domain.PlacementStats {
	stats := &domain.PlacementStats{ByStatus: map[domain.PlacementStatus]int{}}
	for _, s := range domain.PlacementStatuses {
		stats.ByStatus[s] = 0
	}

	for _, p := range placements {
		stats.Total++
		stats.ByStatus[p.Status]++
		if p.RebateTriggered {
			stats.RebateCount++
		}
		if p.FeeValue == nil {
			continue
		}
		stats.TotalFees += *p.FeeValue
		if p.InvoiceRaised {
			stats.InvoicedFees += *p.FeeValue
		}
		if p.InvoicePaid {
			stats.PaidFees += *p.FeeValue
		}
	}
	return stats
}

// mutate reads the placement, applies change and saves it together with the activity
// change returns, recorded on the owning pipeline entry.
func (l *PlacementLedger) mutate(ctx context.Context, id uint, change func(*domain.Placement) (*domain.ActivityRecord, error), actor string) (*domain.Placement, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	var placement *domain.Placement
	err := l.store.Transaction(ctx, func(tx domain.Store) error {
		p, err := tx.GetPlacement(ctx, id)
		if err != nil {
			return err
		}

		rec, err := change(p)
		if err != nil {
			return err
		}
		p.UpdatedAt = l.now()
		if err := tx.SavePlacement(ctx, p); err != nil {
			return err
		}

		rec.PipelineID = p.PipelineID
		rec.CreatedBy = actor
		placement = p
		return l.activity.record(ctx, tx, rec, &p.ID, p)
	})
	if err != nil {
		l.logger.Warn("placement update failed", zap.Uint("placement_id", id), zap.Error(err))
		return nil, err
	}

	l.invalidate(ctx, statsScope)
	l.logger.Debug("placement updated", zap.Uint("placement_id", id), zap.String("status", string(placement.Status)))
	return placement, nil
}
