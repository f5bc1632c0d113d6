package controllerImp

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"triage/entities"
	clsservice "triage/pkg/classify/service"
	ctirepo "triage/pkg/cti/repository"
	lsservice "triage/pkg/learning/service"
	"triage/pkg/logger"
	"triage/pkg/ticket/repository"
)

// needsAttentionBelow is the UI cutoff for flagging low-confidence tickets in
// stats. Looser than the classifier's own confidence gate on purpose.
const needsAttentionBelow = 0.5

type TicketCtrl struct {
	repo     repository.TicketRepository
	ctiRepo  ctirepo.CTIRepository
	classify clsservice.ClassifyService
	learning lsservice.LearningService
	// successThreshold is the confidence above which a fresh classification
	// is fed back into the few-shot store.
	successThreshold float64
	log              *logger.Logger
}

func New(
	repo repository.TicketRepository,
	ctiRepo ctirepo.CTIRepository,
	classify clsservice.ClassifyService,
	learning lsservice.LearningService,
	successThreshold float64,
	log *logger.Logger,
) *TicketCtrl {
	return &TicketCtrl{
		repo:             repo,
		ctiRepo:          ctiRepo,
		classify:         classify,
		learning:         learning,
		successThreshold: successThreshold,
		log:              log.With("controller", "TicketCtrl"),
	}
}

type createReq struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

func (h *TicketCtrl) Create(c echo.Context) error {
	uid, _ := c.Get("uid").(uint)

	var req createReq
	if err := c.Bind(&req); err != nil || req.Summary == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "summary required"})
	}
	if req.Priority == "" {
		req.Priority = "P3"
	}

	next, err := h.repo.NextTicketNumber()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	ticket := &entities.Ticket{
		TicketID:    fmt.Sprintf("TKT-%06d", next),
		Summary:     req.Summary,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      "open",
		CreatedByID: &uid,
	}
	if err := h.repo.Create(ticket); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// Reload so CreatedBy (and its department) rides along into the
	// learning loop.
	if loaded, err := h.repo.FindByID(ticket.ID); err == nil {
		ticket = loaded
	}
	h.classifyAndPersist(ticket)

	out, err := h.repo.FindByID(ticket.ID)
	if err != nil {
		out = ticket
	}
	return c.JSON(http.StatusCreated, out)
}

// classifyAndPersist runs the pipeline, stores the outcome on the ticket and
// feeds confident results back into the learning loop. Classification never
// fails ticket creation.
func (h *TicketCtrl) classifyAndPersist(ticket *entities.Ticket) {
	cti, confidence, justification := h.classify.ClassifyTicket(ticket)
	if cti == nil {
		h.log.Warn("could not classify ticket", "ticket_id", ticket.TicketID, "justification", justification)
		return
	}
	ticket.PredictedCTIID = &cti.ID
	ticket.PredictedCTI = cti
	ticket.PredictionConfidence = &confidence
	ticket.PredictionJustification = justification
	if err := h.repo.Save(ticket); err != nil {
		h.log.Error("failed to persist prediction", "ticket_id", ticket.TicketID, "err", err)
		return
	}
	h.log.Info("classified ticket", "ticket_id", ticket.TicketID, "cti_id", cti.ID, "confidence", confidence)

	if confidence > h.successThreshold {
		h.learning.RecordSuccessfulClassification(ticket, cti, "ai")
	}
}

func (h *TicketCtrl) List(c echo.Context) error {
	uid, _ := c.Get("uid").(uint)
	role, _ := c.Get("role").(string)

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	f := repository.ListFilter{
		Status: c.QueryParam("status"),
		Limit:  limit,
		Offset: offset,
	}
	if role == entities.RoleEndUser {
		f.CreatedByID = &uid
	}
	tickets, total, err := h.repo.List(f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"total": total, "results": tickets})
}

func (h *TicketCtrl) Get(c echo.Context) error {
	ticket, err := h.loadVisible(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	return c.JSON(http.StatusOK, ticket)
}

type updateReq struct {
	Summary         *string `json:"summary"`
	Description     *string `json:"description"`
	Status          *string `json:"status"`
	AssignedToID    *uint   `json:"assigned_to_id"`
	CorrectedCTIID  *uint   `json:"corrected_cti_id"`
	CorrectionNotes string  `json:"correction_notes"`
}

// Update handles status changes, CTI corrections (which feed the learning
// loop) and summary/description edits (which re-run classification).
func (h *TicketCtrl) Update(c echo.Context) error {
	uid, _ := c.Get("uid").(uint)
	username, _ := c.Get("username").(string)

	ticket, err := h.loadVisible(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	var req updateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}

	if req.Status != nil {
		ticket.Status = *req.Status
	}
	if req.AssignedToID != nil {
		ticket.AssignedToID = req.AssignedToID
	}

	switch {
	case req.CorrectedCTIID != nil && (ticket.PredictedCTIID == nil || *req.CorrectedCTIID != *ticket.PredictedCTIID):
		corrected, err := h.ctiRepo.FindByID(*req.CorrectedCTIID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid CTI record ID"})
		}
		now := time.Now()
		ticket.CorrectedCTIID = &corrected.ID
		ticket.CorrectedByID = &uid
		ticket.CorrectedAt = &now

		if ticket.PredictedCTI != nil {
			user := &entities.User{ID: uid, Username: username}
			if _, err := h.learning.RecordCorrection(ticket, ticket.PredictedCTI, corrected, user, req.CorrectionNotes); err != nil {
				h.log.Error("failed to record correction", "ticket_id", ticket.TicketID, "err", err)
			}
		} else {
			h.learning.RecordSuccessfulClassification(ticket, corrected, "manual")
		}

	case textChanged(ticket, req):
		if req.Summary != nil {
			ticket.Summary = *req.Summary
		}
		if req.Description != nil {
			ticket.Description = *req.Description
		}
		// Stale prediction; wipe it and classify the new text.
		ticket.PredictedCTIID = nil
		ticket.PredictedCTI = nil
		ticket.PredictionConfidence = nil
		ticket.PredictionJustification = ""
		ticket.SimilarCTIRecords = []entities.SimilarCTIRecord{}
		if err := h.repo.Save(ticket); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		h.classifyAndPersist(ticket)
	}

	if err := h.repo.Save(ticket); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	out, err := h.repo.FindByID(ticket.ID)
	if err != nil {
		out = ticket
	}
	return c.JSON(http.StatusOK, out)
}

func textChanged(t *entities.Ticket, req updateReq) bool {
	if req.Summary != nil && *req.Summary != t.Summary {
		return true
	}
	if req.Description != nil && *req.Description != t.Description {
		return true
	}
	return false
}

func (h *TicketCtrl) Delete(c echo.Context) error {
	ticket, err := h.loadVisible(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	if err := h.repo.Delete(ticket.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// loadVisible fetches the ticket and enforces that end users only see their
// own tickets.
func (h *TicketCtrl) loadVisible(c echo.Context) (*entities.Ticket, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, err
	}
	ticket, err := h.repo.FindByID(uint(id))
	if err != nil {
		return nil, err
	}
	role, _ := c.Get("role").(string)
	uid, _ := c.Get("uid").(uint)
	if role == entities.RoleEndUser && (ticket.CreatedByID == nil || *ticket.CreatedByID != uid) {
		return nil, echo.ErrNotFound
	}
	return ticket, nil
}

func (h *TicketCtrl) Stats(c echo.Context) error {
	stats, err := h.repo.Stats(needsAttentionBelow)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	accuracy := 0.0
	if stats.Classified > 0 {
		accuracy = float64(stats.Classified-stats.Corrected) / float64(stats.Classified)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total":          stats.Total,
		"classified":     stats.Classified,
		"corrected":      stats.Corrected,
		"low_confidence": stats.LowConfidence,
		"accuracy":       accuracy,
	})
}

// Export streams all visible tickets as an Excel workbook.
func (h *TicketCtrl) Export(c echo.Context) error {
	uid, _ := c.Get("uid").(uint)
	role, _ := c.Get("role").(string)

	f := repository.ListFilter{Limit: 10000}
	if role == entities.RoleEndUser {
		f.CreatedByID = &uid
	}
	tickets, _, err := h.repo.List(f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	wb := excelize.NewFile()
	defer wb.Close()
	sheet := "Tickets"
	idx, err := wb.NewSheet(sheet)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	wb.SetActiveSheet(idx)
	_ = wb.DeleteSheet("Sheet1")

	headers := []string{
		"Ticket ID", "Summary", "Description", "Status", "Priority",
		"Predicted Category", "Predicted Type", "Predicted Item",
		"Resolver Group", "Confidence", "Corrected", "Created At",
	}
	for i, hdr := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = wb.SetCellValue(sheet, cell, hdr)
	}
	for row, t := range tickets {
		values := []any{
			t.TicketID, t.Summary, t.Description, t.Status, t.Priority,
			"", "", "", "", nil, t.CorrectedCTIID != nil,
			t.CreatedAt.Format("2006-01-02 15:04"),
		}
		if t.PredictedCTI != nil {
			values[5] = t.PredictedCTI.Category
			values[6] = t.PredictedCTI.Type
			values[7] = t.PredictedCTI.Item
			values[8] = t.PredictedCTI.ResolverGroup
		}
		if t.PredictionConfidence != nil {
			values[9] = *t.PredictionConfidence
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = wb.SetCellValue(sheet, cell, v)
		}
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="tickets_export.xlsx"`)
	c.Response().WriteHeader(http.StatusOK)
	return wb.Write(c.Response().Writer)
}
