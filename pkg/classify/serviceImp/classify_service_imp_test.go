package serviceImp

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"triage/database"
	"triage/entities"
	"triage/pkg/ai/embedder"
	ctirepo "triage/pkg/cti/repository"
	ctiRepoImp "triage/pkg/cti/repositoryImp"
	fewshotRepoImp "triage/pkg/fewshot/repositoryImp"
	fewshotImp "triage/pkg/fewshot/serviceImp"
	learningRepoImp "triage/pkg/learning/repositoryImp"
	learningImp "triage/pkg/learning/serviceImp"
	"triage/pkg/logger"
	ticketrepo "triage/pkg/ticket/repository"
	ticketRepoImp "triage/pkg/ticket/repositoryImp"
)

type fakeEmbedder struct {
	vecs map[string][]float32
	def  []float32
	err  error
}

func (f *fakeEmbedder) EmbedOne(text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return f.def, nil
}

func (f *fakeEmbedder) Embed(texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.EmbedOne(t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type fakeLLM struct {
	resp       string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Complete(system, user string, temperature float64, maxTokens int) (string, error) {
	f.lastPrompt = user
	if f.err != nil {
		return "", f.err
	}
	return f.resp, nil
}

type pipelineEnv struct {
	db         *gorm.DB
	svc        *Svc
	ctiRepo    ctirepo.CTIRepository
	ticketRepo ticketrepo.TicketRepository
}

func newPipeline(t *testing.T, emb *fakeEmbedder, llm *fakeLLM, cfg Config) *pipelineEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	log := logger.NewNop()
	ctiRepo := ctiRepoImp.New(db)
	ticketRepo := ticketRepoImp.New(db)
	fsRepo := fewshotRepoImp.New(db)
	learnRepo := learningRepoImp.New(db)
	fewShot := fewshotImp.New(fsRepo, ctiRepo, emb, log)
	learning := learningImp.New(learnRepo, fewShot, t.TempDir(), log)

	svc := New(emb, llm, ctiRepo, ticketRepo, learnRepo, fewShot, learning, cfg, log)
	return &pipelineEnv{db: db, svc: svc, ctiRepo: ctiRepo, ticketRepo: ticketRepo}
}

func (e *pipelineEnv) addCTI(t *testing.T, category string, vec []float32) *entities.CTIRecord {
	t.Helper()
	rec := &entities.CTIRecord{
		Category: category,
		Type:     "Service",
		Item:     category + " Item",
	}
	if vec != nil {
		rec.EmbeddingVector = embedder.FloatsToBytes(vec)
	}
	require.NoError(t, e.ctiRepo.Create(rec))
	return rec
}

func (e *pipelineEnv) addTicket(t *testing.T, summary, description string) *entities.Ticket {
	t.Helper()
	ticket := &entities.Ticket{
		TicketID:    fmt.Sprintf("TKT-%06d", 1),
		Summary:     summary,
		Description: description,
		Status:      "open",
	}
	require.NoError(t, e.ticketRepo.Create(ticket))
	return ticket
}

func TestClassifyTicketNoCandidates(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	env := newPipeline(t, emb, &fakeLLM{}, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	ticket := env.addTicket(t, "printer jam", "paper stuck in tray 2")

	cti, conf, just := env.svc.ClassifyTicket(ticket)
	assert.Nil(t, cti)
	assert.Zero(t, conf)
	assert.Equal(t, "No similar CTI records found", just)

	reloaded, err := env.ticketRepo.FindByID(ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.SimilarCTIRecords)
}

func TestClassifyTicketBelowThreshold(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	env := newPipeline(t, emb, &fakeLLM{}, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	env.addCTI(t, "Network", []float32{0, 1}) // orthogonal, similarity 0
	ticket := env.addTicket(t, "printer jam", "paper stuck")

	cti, conf, just := env.svc.ClassifyTicket(ticket)
	assert.Nil(t, cti)
	assert.Zero(t, conf)
	assert.Contains(t, just, "below threshold")

	// The snapshot still records what was considered.
	reloaded, err := env.ticketRepo.FindByID(ticket.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.SimilarCTIRecords, 1)
}

func TestClassifyTicketThresholdBoundaryPasses(t *testing.T) {
	// Identical vectors give exactly 1.0; a threshold of 1.0 must still pass.
	emb := &fakeEmbedder{def: []float32{1, 0}}
	llm := &fakeLLM{}
	env := newPipeline(t, emb, llm, Config{SimilarityThreshold: 1.0, MinConfidenceThreshold: 0.3})
	target := env.addCTI(t, "Hardware", []float32{1, 0})
	llm.resp = fmt.Sprintf(`{"selected_id": %d, "confidence": 0.9, "justification": "clear hardware fault"}`, target.ID)
	ticket := env.addTicket(t, "laptop dead", "no power at all")

	cti, conf, just := env.svc.ClassifyTicket(ticket)
	require.NotNil(t, cti)
	assert.Equal(t, target.ID, cti.ID)
	assert.Equal(t, 0.9, conf)
	assert.Equal(t, "clear hardware fault", just)
	assert.Contains(t, llm.lastPrompt, "laptop dead. no power at all")
}

func TestClassifyTicketSelectedRecordNotFound(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	llm := &fakeLLM{resp: `{"selected_id": 9999, "confidence": 0.9, "justification": "x"}`}
	env := newPipeline(t, emb, llm, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	env.addCTI(t, "Hardware", []float32{1, 0})
	ticket := env.addTicket(t, "laptop dead", "no power")

	cti, conf, just := env.svc.ClassifyTicket(ticket)
	assert.Nil(t, cti)
	assert.Zero(t, conf)
	assert.Equal(t, "Selected CTI record not found", just)
}

func TestClassifyTicketConfidenceBoundaryAccepted(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	llm := &fakeLLM{}
	env := newPipeline(t, emb, llm, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	target := env.addCTI(t, "Hardware", []float32{1, 0})
	llm.resp = fmt.Sprintf(`{"selected_id": %d, "confidence": 0.3, "justification": "borderline"}`, target.ID)
	ticket := env.addTicket(t, "screen flicker", "intermittent")

	cti, conf, _ := env.svc.ClassifyTicket(ticket)
	require.NotNil(t, cti)
	assert.Equal(t, target.ID, cti.ID)
	assert.Equal(t, 0.3, conf)
}

func TestClassifyTicketLowConfidenceFallsBackToDefault(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	llm := &fakeLLM{}
	env := newPipeline(t, emb, llm, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	target := env.addCTI(t, "Hardware", []float32{1, 0})
	fallback := env.addCTI(t, "General", []float32{0.5, 0.5})
	env.svc.cfg.DefaultCTIID = fallback.ID
	llm.resp = fmt.Sprintf(`{"selected_id": %d, "confidence": 0.2, "justification": "weak guess"}`, target.ID)
	ticket := env.addTicket(t, "something odd", "hard to say")

	cti, conf, just := env.svc.ClassifyTicket(ticket)
	require.NotNil(t, cti)
	assert.Equal(t, fallback.ID, cti.ID)
	assert.Equal(t, 0.5, conf)
	assert.Equal(t, fmt.Sprintf("Using default CTI (ID: %d) - weak guess", fallback.ID), just)

	// The substitution leaves a system correction behind.
	var corrections []entities.ClassificationCorrection
	require.NoError(t, env.db.Find(&corrections).Error)
	require.Len(t, corrections, 1)
	assert.Nil(t, corrections[0].CorrectedByID)
	require.NotNil(t, corrections[0].OriginalPredictionID)
	assert.Equal(t, target.ID, *corrections[0].OriginalPredictionID)
	assert.Equal(t, fallback.ID, corrections[0].CorrectedToID)
	assert.Equal(t, "Auto-corrected to default CTI due to low confidence (0.20)", corrections[0].Notes)
}

func TestClassifyTicketLowConfidenceWithoutDefault(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	llm := &fakeLLM{}
	env := newPipeline(t, emb, llm, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	target := env.addCTI(t, "Hardware", []float32{1, 0})
	llm.resp = fmt.Sprintf(`{"selected_id": %d, "confidence": 0.1, "justification": "weak"}`, target.ID)
	ticket := env.addTicket(t, "odd", "unclear")

	cti, conf, just := env.svc.ClassifyTicket(ticket)
	assert.Nil(t, cti)
	assert.Zero(t, conf)
	assert.Equal(t, "No valid prediction and default CTI not available", just)
}

func TestClassifyTicketNullDecisionFallsBackToDefault(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	llm := &fakeLLM{resp: `{"selected_id": null, "confidence": 0.0, "justification": "No suitable category found among candidates"}`}
	env := newPipeline(t, emb, llm, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	env.addCTI(t, "Hardware", []float32{1, 0})
	fallback := env.addCTI(t, "General", []float32{0.5, 0.5})
	env.svc.cfg.DefaultCTIID = fallback.ID
	ticket := env.addTicket(t, "odd", "unclear")

	cti, conf, _ := env.svc.ClassifyTicket(ticket)
	require.NotNil(t, cti)
	assert.Equal(t, fallback.ID, cti.ID)
	assert.Equal(t, 0.5, conf)

	// No prior prediction existed, so nothing to audit.
	var count int64
	require.NoError(t, env.db.Model(&entities.ClassificationCorrection{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestClassifyTicketEmbedFailureClearsSnapshot(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("embeddings down")}
	env := newPipeline(t, emb, &fakeLLM{}, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	ticket := env.addTicket(t, "anything", "at all")

	cti, _, just := env.svc.ClassifyTicket(ticket)
	assert.Nil(t, cti)
	assert.Equal(t, "No similar CTI records found", just)

	reloaded, err := env.ticketRepo.FindByID(ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.SimilarCTIRecords)
}

func TestFindSimilarCTIRecordsSnapshotTopFive(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	llm := &fakeLLM{}
	env := newPipeline(t, emb, llm, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3})
	for i := 0; i < 7; i++ {
		env.addCTI(t, fmt.Sprintf("Cat%d", i), []float32{1, float32(i) * 0.3})
	}
	ticket := env.addTicket(t, "summary", "description")

	ranked := env.svc.FindSimilarCTIRecords(ticket.Content(), 8, ticket)
	require.Len(t, ranked, 7)

	reloaded, err := env.ticketRepo.FindByID(ticket.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.SimilarCTIRecords, 5)
	for i := 1; i < len(reloaded.SimilarCTIRecords); i++ {
		assert.GreaterOrEqual(t,
			reloaded.SimilarCTIRecords[i-1].SimilarityScore,
			reloaded.SimilarCTIRecords[i].SimilarityScore)
	}
}

func TestDefaultCTICacheRetriesAfterMiss(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	env := newPipeline(t, emb, &fakeLLM{}, Config{SimilarityThreshold: 0.2, MinConfidenceThreshold: 0.3, DefaultCTIID: 12345})
	assert.Nil(t, env.svc.defaultCTIRecord())

	// The record appears later; the next lookup must find it.
	rec := &entities.CTIRecord{ID: 12345, Category: "General", Type: "Service", Item: "Catch All"}
	require.NoError(t, env.ctiRepo.Create(rec))
	got := env.svc.defaultCTIRecord()
	require.NotNil(t, got)
	assert.Equal(t, uint(12345), got.ID)

	// And is served from cache afterwards.
	require.NoError(t, env.db.Delete(&entities.CTIRecord{}, rec.ID).Error)
	assert.NotNil(t, env.svc.defaultCTIRecord())
}
