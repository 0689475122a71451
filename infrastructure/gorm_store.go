package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recruit-pipeline/domain"
)

// GormStore persists the pipeline tables through gorm.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// translateError maps driver and context errors onto the domain error kinds.
func translateError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicateEntry), errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrStaleEntry), errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrStorage):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.Wrap(domain.ErrDuplicateEntry, err, "%s: record already exists", op)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.Wrap(domain.ErrNotFound, err, "%s: record not found", op)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.Wrap(domain.ErrTimeout, err, "%s timed out", op)
	default:
		return domain.Wrap(domain.ErrStorage, err, "%s failed", op)
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx domain.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
	return translateError(err, "transaction")
}

// forUpdate row-locks reads made inside a transaction until it commits.
func (s *GormStore) forUpdate(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	if s.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) CreateEntry(ctx context.Context, entry *domain.PipelineEntry) error {
	if entry.Version == 0 {
		entry.Version = 1
	}
	return translateError(s.db.WithContext(ctx).Create(entry).Error, "create pipeline entry")
}

func (s *GormStore) GetEntry(ctx context.Context, id uint) (*domain.PipelineEntry, error) {
	var entry domain.PipelineEntry
	err := s.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("pipeline entry", id)
	}
	if err != nil {
		return nil, translateError(err, "load pipeline entry")
	}
	return &entry, nil
}

func (s *GormStore) ListEntries(ctx context.Context, filter domain.PipelineFilter) ([]domain.PipelineEntry, error) {
	q := s.db.WithContext(ctx).Model(&domain.PipelineEntry{})
	if filter.JobID != nil {
		q = q.Where("job_id = ?", *filter.JobID)
	}
	if filter.CVSubmissionID != nil {
		q = q.Where("cv_submission_id = ?", *filter.CVSubmissionID)
	}
	if filter.Stage != nil {
		q = q.Where("stage = ?", *filter.Stage)
	}
	if filter.AssignedTo != nil {
		q = q.Where("assigned_to = ?", *filter.AssignedTo)
	}

	entries := []domain.PipelineEntry{}
	err := q.Order("priority DESC").Order("created_at ASC").Order("id ASC").Find(&entries).Error
	return entries, translateError(err, "list pipeline entries")
}

func (s *GormStore) UpdateEntry(ctx context.Context, entry *domain.PipelineEntry, expectedVersion uint) error {
	result := s.db.WithContext(ctx).
		Model(&domain.PipelineEntry{}).
		Where("id = ? AND version = ?", entry.ID, expectedVersion).
		Updates(map[string]any{
			"stage":            entry.Stage,
			"priority":         entry.Priority,
			"notes":            entry.Notes,
			"assigned_to":      entry.AssignedTo,
			"rejection_reason": entry.RejectionReason,
			"version":          expectedVersion + 1,
			"updated_at":       entry.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, "update pipeline entry")
	}

	if result.RowsAffected == 0 {
		if _, err := s.GetEntry(ctx, entry.ID); err != nil {
			return err
		}
		return domain.NewError(domain.ErrStaleEntry, "pipeline entry %d was changed concurrently", entry.ID)
	}

	entry.Version = expectedVersion + 1
	return nil
}

func (s *GormStore) DeleteEntry(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&domain.PipelineEntry{}, id)
	if result.Error != nil {
		return translateError(result.Error, "delete pipeline entry")
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("pipeline entry", id)
	}
	return nil
}

func (s *GormStore) CountByStage(ctx context.Context, jobID uint) (map[domain.Stage]int, error) {
	var rows []struct {
		Stage domain.Stage
		Total int
	}
	err := s.db.WithContext(ctx).
		Model(&domain.PipelineEntry{}).
		Select("stage, COUNT(*) AS total").
		Where("job_id = ?", jobID).
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err, "count pipeline stages")
	}

	counts := make(map[domain.Stage]int, len(rows))
	for _, r := range rows {
		counts[r.Stage] = r.Total
	}
	return counts, nil
}

func (s *GormStore) AppendActivity(ctx context.Context, record *domain.ActivityRecord) error {
	return translateError(s.db.WithContext(ctx).Create(record).Error, "append activity")
}

func (s *GormStore) ListActivity(ctx context.Context, pipelineID uint, order domain.SortOrder) ([]domain.ActivityRecord, error) {
	direction := "ASC"
	if order == domain.Descending {
		direction = "DESC"
	}

	records := []domain.ActivityRecord{}
	err := s.db.WithContext(ctx).
		Where("pipeline_id = ?", pipelineID).
		Order("created_at " + direction).
		Order("id " + direction).
		Find(&records).Error
	return records, translateError(err, "list activity")
}

func (s *GormStore) CreateScorecard(ctx context.Context, card *domain.InterviewScorecard) error {
	return translateError(s.db.WithContext(ctx).Create(card).Error, "create scorecard")
}

func (s *GormStore) GetScorecard(ctx context.Context, id uint) (*domain.InterviewScorecard, error) {
	var card domain.InterviewScorecard
	err := s.forUpdate(ctx).First(&card, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("scorecard", id)
	}
	if err != nil {
		return nil, translateError(err, "load scorecard")
	}
	return &card, nil
}

func (s *GormStore) UpdateScorecard(ctx context.Context, card *domain.InterviewScorecard) error {
	result := s.db.WithContext(ctx).Select("*").Omit("created_at", "created_by", "pipeline_id").Save(card)
	if result.Error != nil {
		return translateError(result.Error, "update scorecard")
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("scorecard", card.ID)
	}
	return nil
}

func (s *GormStore) ListScorecards(ctx context.Context, pipelineID uint) ([]domain.InterviewScorecard, error) {
	cards := []domain.InterviewScorecard{}
	err := s.db.WithContext(ctx).Where("pipeline_id = ?", pipelineID).Order("id ASC").Find(&cards).Error
	return cards, translateError(err, "list scorecards")
}

func (s *GormStore) ScorecardExists(ctx context.Context, pipelineID uint, stage domain.Stage) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.InterviewScorecard{}).
		Where("pipeline_id = ? AND stage = ?", pipelineID, stage).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, "check scorecard")
	}
	return count > 0, nil
}

func (s *GormStore) CreatePlacement(ctx context.Context, placement *domain.Placement) error {
	return translateError(s.db.WithContext(ctx).Create(placement).Error, "create placement")
}

func (s *GormStore) GetPlacement(ctx context.Context, id uint) (*domain.Placement, error) {
	var p domain.Placement
	err := s.forUpdate(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("placement", id)
	}
	if err != nil {
		return nil, translateError(err, "load placement")
	}
	return &p, nil
}

func (s *GormStore) GetPlacementByPipeline(ctx context.Context, pipelineID uint) (*domain.Placement, error) {
	var p domain.Placement
	err := s.db.WithContext(ctx).Where("pipeline_id = ?", pipelineID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewError(domain.ErrNotFound, "no placement for pipeline entry %d", pipelineID)
	}
	if err != nil {
		return nil, translateError(err, "load placement")
	}
	return &p, nil
}

// SavePlacement writes every column except the immutable ones.
func (s *GormStore) SavePlacement(ctx context.Context, placement *domain.Placement) error {
	result := s.db.WithContext(ctx).Select("*").Omit("created_at", "pipeline_id").Save(placement)
	if result.Error != nil {
		return translateError(result.Error, "save placement")
	}
	if result.RowsAffected == 0 {
		return domain.NotFound("placement", placement.ID)
	}
	return nil
}

func (s *GormStore) ListPlacements(ctx context.Context, filter domain.PlacementFilter) ([]domain.Placement, error) {
	q := s.db.WithContext(ctx).Model(&domain.Placement{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		q = q.Where("start_date >= ?", domain.TruncateDay(*filter.From))
	}
	if filter.To != nil {
		q = q.Where("start_date <= ?", domain.TruncateDay(*filter.To))
	}

	placements := []domain.Placement{}
	err := q.Order("start_date DESC").Order("id DESC").Find(&placements).Error
	return placements, translateError(err, "list placements")
}

func (s *GormStore) EnqueueEvent(ctx context.Context, event *domain.OutboxEvent) error {
	return translateError(s.db.WithContext(ctx).Create(event).Error, "enqueue event")
}

// PendingEvents skips rows locked by another relay so several relays can run at once.
// A limit of zero returns every pending event.
func (s *GormStore) PendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	q := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	events := []domain.OutboxEvent{}
	err := q.Find(&events).Error
	return events, translateError(err, "load pending events")
}

func (s *GormStore) MarkPublished(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id IN ?", ids).
		Update("published_at", at).Error
	return translateError(err, "mark events published")
}
