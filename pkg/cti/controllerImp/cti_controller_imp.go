package controllerImp

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"triage/entities"
	clsservice "triage/pkg/classify/service"
	"triage/pkg/cti/repository"
	fsrepo "triage/pkg/fewshot/repository"
	fsservice "triage/pkg/fewshot/service"
	"triage/pkg/logger"
)

type CTICtrl struct {
	repo     repository.CTIRepository
	fsRepo   fsrepo.FewShotRepository
	classify clsservice.ClassifyService
	fewShot  fsservice.FewShotService
	log      *logger.Logger
}

func New(
	repo repository.CTIRepository,
	fsRepo fsrepo.FewShotRepository,
	classify clsservice.ClassifyService,
	fewShot fsservice.FewShotService,
	log *logger.Logger,
) *CTICtrl {
	return &CTICtrl{
		repo:     repo,
		fsRepo:   fsRepo,
		classify: classify,
		fewShot:  fewShot,
		log:      log.With("controller", "CTICtrl"),
	}
}

func (h *CTICtrl) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	records, total, err := h.repo.List(c.QueryParam("search"), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"total": total, "results": records})
}

func (h *CTICtrl) Get(c echo.Context) error {
	record, err := h.load(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	return c.JSON(http.StatusOK, record)
}

type ctiReq struct {
	BUNumber                 *string `json:"bu_number"`
	Category                 *string `json:"category"`
	Type                     *string `json:"type"`
	Item                     *string `json:"item"`
	ResolverGroup            *string `json:"resolver_group"`
	RequestType              *string `json:"request_type"`
	SLA                      *string `json:"sla"`
	ServiceDescription       *string `json:"service_description"`
	BUDescription            *string `json:"bu_description"`
	ResolverGroupDescription *string `json:"resolver_group_description"`
}

func (h *CTICtrl) Create(c echo.Context) error {
	var req ctiReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	record := &entities.CTIRecord{}
	applyCTIFields(record, req)
	if record.Category == "" || record.Type == "" || record.Item == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "category, type and item are required"})
	}
	if err := h.repo.Create(record); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := h.classify.RegenerateRawEmbedding(record); err != nil {
		h.log.Error("failed to embed new CTI record", "id", record.ID, "err", err)
	}
	return c.JSON(http.StatusCreated, record)
}

// Update applies a partial edit; a change to any descriptive field re-derives
// the raw embedding so similarity search keeps up with the catalog.
func (h *CTICtrl) Update(c echo.Context) error {
	record, err := h.load(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	var req ctiReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad json"})
	}
	before := record.EmbeddingText()
	applyCTIFields(record, req)
	if err := h.repo.Save(record); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if record.EmbeddingText() != before {
		if err := h.classify.RegenerateRawEmbedding(record); err != nil {
			h.log.Error("failed to regenerate embedding", "id", record.ID, "err", err)
		}
	}
	return c.JSON(http.StatusOK, record)
}

func (h *CTICtrl) Delete(c echo.Context) error {
	record, err := h.load(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	referenced, err := h.repo.ReferencedByTickets(record.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if referenced {
		return c.JSON(http.StatusConflict, map[string]string{"error": "record is referenced by tickets"})
	}
	if err := h.repo.Delete(record.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// ImportCSV upserts records from a CSV upload keyed on
// (bu_number, category, type, item). Embeddings are left to precompute.
func (h *CTICtrl) ImportCSV(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file required"})
	}
	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	defer src.Close()

	reader := csv.NewReader(src)
	head, err := reader.Read()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "empty or unreadable CSV"})
	}
	col := map[string]int{}
	for i, name := range head {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	created, updated, skipped := 0, 0, 0
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		buNumber := field(row, "bu_number")
		category := field(row, "category")
		ctiType := field(row, "type")
		item := field(row, "item")
		if category == "" || ctiType == "" || item == "" {
			skipped++
			continue
		}

		record, err := h.repo.FindByKey(buNumber, category, ctiType, item)
		isNew := err == gorm.ErrRecordNotFound
		if err != nil && !isNew {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if isNew {
			record = &entities.CTIRecord{BUNumber: buNumber, Category: category, Type: ctiType, Item: item}
		}
		record.ResolverGroup = field(row, "resolver_group")
		record.RequestType = field(row, "request_type")
		record.SLA = field(row, "sla")
		record.ServiceDescription = field(row, "service_description")
		record.BUDescription = field(row, "bu_description")
		record.ResolverGroupDescription = field(row, "resolver_group_description")

		if isNew {
			if err := h.repo.Create(record); err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
			created++
		} else {
			if err := h.repo.Save(record); err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
			updated++
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"created": created, "updated": updated, "skipped": skipped})
}

func (h *CTICtrl) ExportCSV(c echo.Context) error {
	records, _, err := h.repo.List("", 100000, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="cti_records.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response().Writer)
	_ = w.Write([]string{
		"id", "bu_number", "category", "type", "item", "resolver_group",
		"request_type", "sla", "service_description", "bu_description",
		"resolver_group_description", "example_count",
	})
	for _, r := range records {
		_ = w.Write([]string{
			strconv.FormatUint(uint64(r.ID), 10), r.BUNumber, r.Category, r.Type, r.Item,
			r.ResolverGroup, r.RequestType, r.SLA, r.ServiceDescription,
			r.BUDescription, r.ResolverGroupDescription,
			strconv.Itoa(r.ExampleCount),
		})
	}
	w.Flush()
	return w.Error()
}

type ingestReq struct {
	URL string `json:"url"`
}

// IngestCatalog scrapes an HTML service-catalog page and stores its text as
// the record's service description, then re-derives the raw embedding.
func (h *CTICtrl) IngestCatalog(c echo.Context) error {
	record, err := h.load(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	var req ingestReq
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url required"})
	}

	httpc := &http.Client{Timeout: 15 * time.Second}
	resp, err := httpc.Get(req.URL)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("fetch: http %d", resp.StatusCode)})
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	var parts []string
	doc.Find("h1, h2, p, li").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	text := strings.Join(parts, "\n")
	if len(text) > 4000 {
		text = text[:4000]
	}
	if text == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "no text content found"})
	}

	record.ServiceDescription = text
	if err := h.repo.Save(record); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := h.classify.RegenerateRawEmbedding(record); err != nil {
		h.log.Error("failed to regenerate embedding after ingest", "id", record.ID, "err", err)
	}
	return c.JSON(http.StatusOK, record)
}

// RegenerateEmbedding re-derives the record's example-based embedding.
func (h *CTICtrl) RegenerateEmbedding(c echo.Context) error {
	record, err := h.load(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	vec, err := h.fewShot.RegenerateCTIEmbedding(record)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":         record.ID,
		"dimensions": len(vec),
		"sufficient": record.HasSufficientExamples(),
	})
}

// PrecomputeEmbeddings derives raw embeddings for records missing one.
func (h *CTICtrl) PrecomputeEmbeddings(c echo.Context) error {
	computed, err := h.classify.PrecomputeCTIEmbeddings()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]int{"computed": computed})
}

func (h *CTICtrl) Examples(c echo.Context) error {
	record, err := h.load(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	examples, err := h.fsRepo.TopRanked(record.ID, 10)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"cti_id": record.ID, "examples": examples})
}

func (h *CTICtrl) load(c echo.Context) (*entities.CTIRecord, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, err
	}
	return h.repo.FindByID(uint(id))
}

func applyCTIFields(record *entities.CTIRecord, req ctiReq) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&record.BUNumber, req.BUNumber)
	set(&record.Category, req.Category)
	set(&record.Type, req.Type)
	set(&record.Item, req.Item)
	set(&record.ResolverGroup, req.ResolverGroup)
	set(&record.RequestType, req.RequestType)
	set(&record.SLA, req.SLA)
	set(&record.ServiceDescription, req.ServiceDescription)
	set(&record.BUDescription, req.BUDescription)
	set(&record.ResolverGroupDescription, req.ResolverGroupDescription)
}
