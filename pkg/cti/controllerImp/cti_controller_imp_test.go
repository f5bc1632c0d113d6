package controllerImp

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"triage/database"
	"triage/entities"
	clsservice "triage/pkg/classify/service"
	ctiRepoImp "triage/pkg/cti/repositoryImp"
	fewshotRepoImp "triage/pkg/fewshot/repositoryImp"
	fsservice "triage/pkg/fewshot/service"
	"triage/pkg/logger"
)

type stubClassify struct {
	regenerated []uint
	precomputed int
}

func (s *stubClassify) ClassifyTicket(ticket *entities.Ticket) (*entities.CTIRecord, float64, string) {
	return nil, 0, ""
}

func (s *stubClassify) FindSimilarCTIRecords(ticketText string, topK int, saveToTicket *entities.Ticket) []clsservice.Candidate {
	return nil
}

func (s *stubClassify) PrecomputeCTIEmbeddings() (int, error) { return s.precomputed, nil }

func (s *stubClassify) RegenerateRawEmbedding(cti *entities.CTIRecord) error {
	s.regenerated = append(s.regenerated, cti.ID)
	return nil
}

type stubFewShot struct{ regenerated []uint }

func (s *stubFewShot) AddSuccessfulExample(ticket *entities.Ticket, cti *entities.CTIRecord, source string) (*entities.FewShotExample, error) {
	return nil, nil
}

func (s *stubFewShot) RegenerateCTIEmbedding(cti *entities.CTIRecord) ([]float32, error) {
	s.regenerated = append(s.regenerated, cti.ID)
	return []float32{1, 0}, nil
}

func (s *stubFewShot) GetExamplesForPrompt(cti *entities.CTIRecord, maxExamples int) ([]fsservice.PromptExample, error) {
	return nil, nil
}

type ctiEnv struct {
	db       *gorm.DB
	ctrl     *CTICtrl
	classify *stubClassify
	fewShot  *stubFewShot
	e        *echo.Echo
}

func newCTIEnv(t *testing.T) *ctiEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	classify := &stubClassify{}
	fewShot := &stubFewShot{}
	ctrl := New(ctiRepoImp.New(db), fewshotRepoImp.New(db), classify, fewShot, logger.NewNop())
	return &ctiEnv{db: db, ctrl: ctrl, classify: classify, fewShot: fewShot, e: echo.New()}
}

func (env *ctiEnv) jsonRequest(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return env.e.NewContext(req, rec), rec
}

func (env *ctiEnv) seed(t *testing.T, category, item string) *entities.CTIRecord {
	t.Helper()
	rec := &entities.CTIRecord{Category: category, Type: "Service", Item: item}
	require.NoError(t, env.db.Create(rec).Error)
	return rec
}

func TestCreateCTIRecordEmbedsImmediately(t *testing.T) {
	env := newCTIEnv(t)
	c, rec := env.jsonRequest(http.MethodPost, "/api/cti", `{"category":"Network","type":"VPN","item":"Access","resolver_group":"NetOps"}`)
	require.NoError(t, env.ctrl.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var out entities.CTIRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotZero(t, out.ID)
	assert.Equal(t, []uint{out.ID}, env.classify.regenerated)
}

func TestCreateCTIRecordRequiresKeyFields(t *testing.T) {
	env := newCTIEnv(t)
	c, rec := env.jsonRequest(http.MethodPost, "/api/cti", `{"category":"Network"}`)
	require.NoError(t, env.ctrl.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateReembedsOnlyOnDescriptiveChange(t *testing.T) {
	env := newCTIEnv(t)
	record := env.seed(t, "Network", "VPN Access")

	// Resolver group is not part of the embedding text; no re-embed.
	c, rec := env.jsonRequest(http.MethodPatch, "/api/cti/1", `{"resolver_group":"NetOps L2"}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(record.ID)))
	require.NoError(t, env.ctrl.Update(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.classify.regenerated)

	c2, _ := env.jsonRequest(http.MethodPatch, "/api/cti/1", `{"service_description":"remote access over corporate VPN"}`)
	c2.SetParamNames("id")
	c2.SetParamValues(strconv.Itoa(int(record.ID)))
	require.NoError(t, env.ctrl.Update(c2))
	assert.Equal(t, []uint{record.ID}, env.classify.regenerated)
}

func TestDeleteGuardsReferencedRecords(t *testing.T) {
	env := newCTIEnv(t)
	record := env.seed(t, "Network", "VPN Access")
	require.NoError(t, env.db.Create(&entities.Ticket{TicketID: "TKT-000001", Summary: "x", Status: "open", PredictedCTIID: &record.ID}).Error)

	c, rec := env.jsonRequest(http.MethodDelete, "/api/cti/1", "")
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(record.ID)))
	require.NoError(t, env.ctrl.Delete(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unreferenced records delete cleanly, taking owned examples along.
	other := env.seed(t, "Messaging", "Email Delivery")
	require.NoError(t, env.db.Create(&entities.FewShotExample{CTIRecordID: other.ID, TicketContent: "x"}).Error)
	c2, rec2 := env.jsonRequest(http.MethodDelete, "/api/cti/2", "")
	c2.SetParamNames("id")
	c2.SetParamValues(strconv.Itoa(int(other.ID)))
	require.NoError(t, env.ctrl.Delete(c2))
	assert.Equal(t, http.StatusNoContent, rec2.Code)

	var examples int64
	require.NoError(t, env.db.Model(&entities.FewShotExample{}).Where("cti_record_id = ?", other.ID).Count(&examples).Error)
	assert.Zero(t, examples)
}

func multipartCSV(t *testing.T, csv string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", "records.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestImportCSVUpserts(t *testing.T) {
	env := newCTIEnv(t)
	existing := env.seed(t, "Network", "VPN Access")

	csv := "bu_number,category,type,item,resolver_group,request_type,sla\n" +
		",Network,Service,VPN Access,NetOps L2,incident,4h\n" +
		",Messaging,Service,Email Delivery,MsgOps,incident,8h\n" +
		",,Service,missing category,x,incident,1h\n"
	body, contentType := multipartCSV(t, csv)

	req := httptest.NewRequest(http.MethodPost, "/api/cti/import", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)

	require.NoError(t, env.ctrl.ImportCSV(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out["created"])
	assert.Equal(t, 1, out["updated"])
	assert.Equal(t, 1, out["skipped"])

	var reloaded entities.CTIRecord
	require.NoError(t, env.db.First(&reloaded, existing.ID).Error)
	assert.Equal(t, "NetOps L2", reloaded.ResolverGroup)
	assert.Equal(t, "4h", reloaded.SLA)
}

func TestExportCSV(t *testing.T) {
	env := newCTIEnv(t)
	env.seed(t, "Network", "VPN Access")

	c, rec := env.jsonRequest(http.MethodGet, "/api/cti/export", "")
	require.NoError(t, env.ctrl.ExportCSV(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "category")
	assert.Contains(t, lines[1], "VPN Access")
}

func TestIngestCatalogScrapesText(t *testing.T) {
	env := newCTIEnv(t)
	record := env.seed(t, "Network", "VPN Access")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>VPN Service</h1><p>Remote access for employees.</p><script>ignored()</script></body></html>`))
	}))
	defer srv.Close()

	c, rec := env.jsonRequest(http.MethodPost, "/api/cti/1/ingest", `{"url":"`+srv.URL+`"}`)
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(record.ID)))
	require.NoError(t, env.ctrl.IngestCatalog(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var reloaded entities.CTIRecord
	require.NoError(t, env.db.First(&reloaded, record.ID).Error)
	assert.Contains(t, reloaded.ServiceDescription, "VPN Service")
	assert.Contains(t, reloaded.ServiceDescription, "Remote access for employees.")
	assert.NotContains(t, reloaded.ServiceDescription, "ignored")
	assert.Equal(t, []uint{record.ID}, env.classify.regenerated)
}

func TestRegenerateEmbeddingEndpoint(t *testing.T) {
	env := newCTIEnv(t)
	record := env.seed(t, "Network", "VPN Access")

	c, rec := env.jsonRequest(http.MethodPost, "/api/cti/1/regenerate", "")
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(record.ID)))
	require.NoError(t, env.ctrl.RegenerateEmbedding(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint{record.ID}, env.fewShot.regenerated)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.EqualValues(t, 2, out["dimensions"])
}
