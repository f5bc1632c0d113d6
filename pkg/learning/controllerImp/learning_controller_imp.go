package controllerImp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"triage/entities"
	ctirepo "triage/pkg/cti/repository"
	"triage/pkg/learning/repository"
)

type LearningCtrl struct {
	repo    repository.LearningRepository
	ctiRepo ctirepo.CTIRepository
}

func New(repo repository.LearningRepository, ctiRepo ctirepo.CTIRepository) *LearningCtrl {
	return &LearningCtrl{repo: repo, ctiRepo: ctiRepo}
}

func (h *LearningCtrl) ListTrainingExamples(c echo.Context) error {
	limit, offset := pageParams(c)
	examples, total, err := h.repo.ListTrainingExamples(limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"total": total, "results": examples})
}

type trainingExampleReq struct {
	TicketContent string  `json:"ticket_content"`
	CorrectCTIID  uint    `json:"correct_cti_id"`
	Weight        float64 `json:"weight"`
}

// CreateTrainingExample adds a curated example by hand. Manual entries carry
// weight 1.0 unless the caller overrides it.
func (h *LearningCtrl) CreateTrainingExample(c echo.Context) error {
	var req trainingExampleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	req.TicketContent = strings.TrimSpace(req.TicketContent)
	if req.TicketContent == "" || req.CorrectCTIID == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "ticket_content and correct_cti_id are required"})
	}
	if _, err := h.ctiRepo.FindByID(req.CorrectCTIID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid CTI record ID"})
	}
	if req.Weight <= 0 {
		req.Weight = 1.0
	}
	example := &entities.TrainingExample{
		TicketContent: req.TicketContent,
		CorrectCTIID:  req.CorrectCTIID,
		Source:        "manual",
		Weight:        req.Weight,
	}
	if err := h.repo.CreateTrainingExample(example); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, example)
}

func (h *LearningCtrl) ListCorrections(c echo.Context) error {
	limit, offset := pageParams(c)
	corrections, total, err := h.repo.ListCorrections(limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"total": total, "results": corrections})
}

func pageParams(c echo.Context) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
