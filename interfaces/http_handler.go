package interfaces

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recruit-pipeline/domain"
	"recruit-pipeline/infrastructure"
	"recruit-pipeline/usecase"
)

// ActorHeader carries the caller's user id, supplied by the identity provider in front
// of this service.
const ActorHeader = "X-User-ID"

type HTTPHandler struct {
	Stages     *usecase.StageEngine
	Activity   *usecase.ActivityLog
	Scorecards *usecase.ScorecardAggregator
	Placements *usecase.PlacementLedger
	Hub        *infrastructure.Hub
	Timeout    time.Duration
	Logger     *zap.Logger
}

func NewHTTPHandler(router *gin.Engine, h *HTTPHandler) {
	router.Use(h.requestLogger())

	v1 := router.Group("/v1")

	v1.GET("/pipelines", h.ListPipelines)
	v1.POST("/pipelines", h.AddCandidate)
	v1.GET("/pipelines/:id", h.GetPipeline)
	v1.DELETE("/pipelines/:id", h.RemoveCandidate)
	v1.POST("/pipelines/:id/stage", h.ChangeStage)
	v1.PATCH("/pipelines/:id/priority", h.UpdatePriority)
	v1.PATCH("/pipelines/:id/assignee", h.Assign)
	v1.POST("/pipelines/:id/notes", h.AddNote)
	v1.GET("/pipelines/:id/activity", h.GetActivity)
	v1.GET("/pipelines/:id/scorecards", h.ListScorecards)
	v1.POST("/pipelines/:id/scorecards", h.AddScorecard)
	v1.GET("/pipelines/:id/scorecards/summary", h.SummarizeScorecards)
	v1.GET("/pipelines/:id/scorecards/exists", h.ScorecardExists)
	v1.GET("/pipelines/:id/placement", h.GetPlacementByPipeline)
	v1.GET("/jobs/:id/stages", h.StageCounts)
	v1.PUT("/scorecards/:id", h.UpdateScorecard)

	v1.GET("/placements", h.ListPlacements)
	v1.POST("/placements", h.CreatePlacement)
	v1.GET("/placements/stats", h.PlacementStats)
	v1.GET("/placements/:id", h.GetPlacement)
	v1.PATCH("/placements/:id", h.UpdatePlacement)
	v1.POST("/placements/:id/invoice/raised", h.MarkInvoiceRaised)
	v1.POST("/placements/:id/invoice/paid", h.MarkInvoicePaid)
	v1.POST("/placements/:id/rebate", h.TriggerRebate)
	v1.PATCH("/placements/:id/status", h.UpdatePlacementStatus)

	if h.Hub != nil {
		v1.GET("/ws", h.Events)
	}
}

func (h *HTTPHandler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (h *HTTPHandler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return c.Request.Context(), func() {}
	}
	return context.WithTimeout(c.Request.Context(), h.Timeout)
}

// actor reads the caller id or aborts with 401.
func actor(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(ActorHeader))
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ActorHeader + " header is required"})
		return "", false
	}
	return id, true
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func bind(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStaleEntry):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": domain.Message(err)})
}

func parseDate(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, domain.Validation("%s must be a date (YYYY-MM-DD)", name)
}

func queryUint(c *gin.Context, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, domain.Validation("%s must be a positive integer", name)
	}
	id := uint(v)
	return &id, nil
}

// Pipeline entries

func (h *HTTPHandler) AddCandidate(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req usecase.AddCandidateInput
	if !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entry, err := h.Stages.AddCandidate(ctx, who, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *HTTPHandler) ListPipelines(c *gin.Context) {
	var filter domain.PipelineFilter
	var err error
	if filter.JobID, err = queryUint(c, "job_id"); err != nil {
		h.fail(c, err)
		return
	}
	if filter.CVSubmissionID, err = queryUint(c, "cv_submission_id"); err != nil {
		h.fail(c, err)
		return
	}
	if s := c.Query("stage"); s != "" {
		stage := domain.Stage(s)
		filter.Stage = &stage
	}
	if a := c.Query("assigned_to"); a != "" {
		filter.AssignedTo = &a
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entries, err := h.Stages.List(ctx, filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (h *HTTPHandler) GetPipeline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entry, err := h.Stages.Get(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) RemoveCandidate(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Stages.RemoveCandidate(ctx, who, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) ChangeStage(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req usecase.ChangeStageInput
	if !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entry, err := h.Stages.ChangeStage(ctx, who, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) UpdatePriority(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Priority *int `json:"priority"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Priority == nil {
		h.fail(c, domain.Validation("priority is required"))
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entry, err := h.Stages.UpdatePriority(ctx, who, id, *req.Priority)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) Assign(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		AssignedTo *string `json:"assigned_to"`
	}
	if !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entry, err := h.Stages.Assign(ctx, who, id, req.AssignedTo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) AddNote(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	entry, err := h.Stages.AddNote(ctx, who, id, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) GetActivity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	var (
		records []domain.ActivityRecord
		err     error
	)
	switch c.DefaultQuery("order", "desc") {
	case "asc":
		records, err = h.Activity.Chronology(ctx, id)
	case "desc":
		records, err = h.Activity.Timeline(ctx, id)
	default:
		err = domain.Validation("order must be asc or desc")
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (h *HTTPHandler) StageCounts(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	counts, err := h.Stages.StageCounts(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "stages": counts})
}

// Scorecards

func (h *HTTPHandler) AddScorecard(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req usecase.ScorecardInput
	if !bind(c, &req) {
		return
	}
	req.PipelineID = id

	ctx, cancel := h.ctx(c)
	defer cancel()

	card, err := h.Scorecards.AddScorecard(ctx, who, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *HTTPHandler) UpdateScorecard(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req usecase.ScorecardInput
	if !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	card, err := h.Scorecards.UpdateScorecard(ctx, who, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *HTTPHandler) ListScorecards(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	cards, err := h.Scorecards.List(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cards})
}

func (h *HTTPHandler) SummarizeScorecards(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	summary, err := h.Scorecards.Summarize(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (h *HTTPHandler) ScorecardExists(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	exists, err := h.Scorecards.ExistsForStage(ctx, id, domain.Stage(c.Query("stage")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// Placements

type createPlacementRequest struct {
	PipelineID          uint           `json:"pipeline_id"`
	StartDate           string         `json:"start_date"`
	JobType             domain.JobType `json:"job_type"`
	Salary              *float64       `json:"salary"`
	DayRate             *float64       `json:"day_rate"`
	FeePercentage       *float64       `json:"fee_percentage"`
	FeeValue            *float64       `json:"fee_value"`
	InvoiceDate         string         `json:"invoice_date"`
	GuaranteePeriodDays *int           `json:"guarantee_period_days"`
	PlacedBy            string         `json:"placed_by"`
	SourcedBy           *string        `json:"sourced_by"`
	SplitWith           *string        `json:"split_with"`
	SplitPercentage     *float64       `json:"split_percentage"`
	Notes               string         `json:"notes"`
}

func (r createPlacementRequest) input() (usecase.CreatePlacementInput, error) {
	in := usecase.CreatePlacementInput{
		PipelineID:          r.PipelineID,
		JobType:             r.JobType,
		Salary:              r.Salary,
		DayRate:             r.DayRate,
		FeePercentage:       r.FeePercentage,
		FeeValue:            r.FeeValue,
		GuaranteePeriodDays: r.GuaranteePeriodDays,
		PlacedBy:            r.PlacedBy,
		SourcedBy:           r.SourcedBy,
		SplitWith:           r.SplitWith,
		SplitPercentage:     r.SplitPercentage,
		Notes:               r.Notes,
	}
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return in, err
	}
	if start != nil {
		in.StartDate = *start
	}
	if in.InvoiceDate, err = parseDate("invoice_date", r.InvoiceDate); err != nil {
		return in, err
	}
	return in, nil
}

type updatePlacementRequest struct {
	StartDate           *string                `json:"start_date"`
	JobType             *domain.JobType        `json:"job_type"`
	Salary              *float64               `json:"salary"`
	DayRate             *float64               `json:"day_rate"`
	FeePercentage       *float64               `json:"fee_percentage"`
	FeeValue            *float64               `json:"fee_value"`
	InvoiceDate         *string                `json:"invoice_date"`
	GuaranteePeriodDays *int                   `json:"guarantee_period_days"`
	PlacedBy            *string                `json:"placed_by"`
	SourcedBy           *string                `json:"sourced_by"`
	SplitWith           *string                `json:"split_with"`
	SplitPercentage     *float64               `json:"split_percentage"`
	Notes               *string                `json:"notes"`
	Clear               usecase.PlacementClear `json:"clear"`
}

func (r updatePlacementRequest) patch() (usecase.PlacementPatch, error) {
	p := usecase.PlacementPatch{
		JobType:             r.JobType,
		Salary:              r.Salary,
		DayRate:             r.DayRate,
		FeePercentage:       r.FeePercentage,
		FeeValue:            r.FeeValue,
		GuaranteePeriodDays: r.GuaranteePeriodDays,
		PlacedBy:            r.PlacedBy,
		SourcedBy:           r.SourcedBy,
		SplitWith:           r.SplitWith,
		SplitPercentage:     r.SplitPercentage,
		Notes:               r.Notes,
		Clear:               r.Clear,
	}
	var err error
	if r.StartDate != nil {
		if p.StartDate, err = parseDate("start_date", *r.StartDate); err != nil {
			return p, err
		}
		if p.StartDate == nil {
			return p, domain.Validation("start_date cannot be cleared")
		}
	}
	if r.InvoiceDate != nil {
		if p.InvoiceDate, err = parseDate("invoice_date", *r.InvoiceDate); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (h *HTTPHandler) CreatePlacement(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req createPlacementRequest
	if !bind(c, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.Create(ctx, who, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, placement)
}

func (h *HTTPHandler) GetPlacement(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.Get(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *HTTPHandler) GetPlacementByPipeline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.GetByPipeline(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *HTTPHandler) ListPlacements(c *gin.Context) {
	var filter domain.PlacementFilter
	var err error
	if s := c.Query("status"); s != "" {
		status := domain.PlacementStatus(s)
		filter.Status = &status
	}
	if filter.From, err = parseDate("from", c.Query("from")); err != nil {
		h.fail(c, err)
		return
	}
	if filter.To, err = parseDate("to", c.Query("to")); err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placements, err := h.Placements.List(ctx, filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": placements})
}

func (h *HTTPHandler) UpdatePlacement(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updatePlacementRequest
	if !bind(c, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.Update(ctx, who, id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *HTTPHandler) MarkInvoiceRaised(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		InvoiceNumber *string `json:"invoice_number"`
	}
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.MarkInvoiceRaised(ctx, who, id, req.InvoiceNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *HTTPHandler) MarkInvoicePaid(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.MarkInvoicePaid(ctx, who, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *HTTPHandler) TriggerRebate(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req usecase.RebateInput
	if !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.TriggerRebate(ctx, who, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *HTTPHandler) UpdatePlacementStatus(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Status domain.PlacementStatus `json:"status"`
	}
	if !bind(c, &req) {
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	placement, err := h.Placements.UpdateStatus(ctx, who, id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, placement)
}

func (h *HTTPHandler) PlacementStats(c *gin.Context) {
	from, err := parseDate("from", c.Query("from"))
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := parseDate("to", c.Query("to"))
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	stats, err := h.Placements.Stats(ctx, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Events streams pipeline events over a websocket.
func (h *HTTPHandler) Events(c *gin.Context) {
	var pipelineID uint
	id, err := queryUint(c, "pipeline_id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if id != nil {
		pipelineID = *id
	}
	h.Hub.Serve(c.Writer, c.Request, pipelineID)
}
