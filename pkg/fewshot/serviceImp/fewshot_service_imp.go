package serviceImp

import (
	"math"
	"time"

	"triage/entities"
	"triage/pkg/ai/embedder"
	ctirepo "triage/pkg/cti/repository"
	"triage/pkg/fewshot/repository"
	"triage/pkg/fewshot/service"
	"triage/pkg/logger"
)

const (
	// MaxExamplesPerCTI caps the example population per record; the cap keeps
	// the O(n) duplicate check affordable.
	MaxExamplesPerCTI = 10
	// DuplicateThreshold is the cosine similarity at or above which a new
	// example is considered a duplicate and skipped.
	DuplicateThreshold = 0.9

	regenerateSampleSize = 8
	minExamplesForRegen  = 3
	recencyHalfLifeDays  = 90.0
)

type Svc struct {
	repo    repository.FewShotRepository
	ctiRepo ctirepo.CTIRepository
	emb     service.Embedder
	log     *logger.Logger
	now     func() time.Time
}

func New(repo repository.FewShotRepository, ctiRepo ctirepo.CTIRepository, emb service.Embedder, log *logger.Logger) *Svc {
	return &Svc{
		repo:    repo,
		ctiRepo: ctiRepo,
		emb:     emb,
		log:     log.With("service", "FewShotService"),
		now:     time.Now,
	}
}

func (s *Svc) AddSuccessfulExample(ticket *entities.Ticket, cti *entities.CTIRecord, source string) (*entities.FewShotExample, error) {
	content := ticket.Content()

	dup, err := s.isDuplicateExample(content, cti.ID)
	if err != nil {
		return nil, err
	}
	if dup {
		s.log.Info("skipping duplicate example", "cti_id", cti.ID)
		return nil, nil
	}

	confidence := 1.0
	if ticket.PredictionConfidence != nil {
		confidence = *ticket.PredictionConfidence
	}
	department := ""
	if ticket.CreatedBy != nil {
		department = ticket.CreatedBy.Department
	}

	example := &entities.FewShotExample{
		CTIRecordID:          cti.ID,
		TicketContent:        content,
		OriginalSummary:      ticket.Summary,
		OriginalDescription:  ticket.Description,
		ClassificationSource: source,
		ConfidenceScore:      confidence,
		CreatedByID:          ticket.CreatedByID,
		UserDepartment:       department,
	}
	if err := s.repo.Create(example); err != nil {
		return nil, err
	}

	// Trim lowest-ranked examples past the cap, then refresh the counters.
	count, err := s.repo.CountByCTI(cti.ID)
	if err != nil {
		return nil, err
	}
	if count > MaxExamplesPerCTI {
		excess, err := s.repo.LowestRanked(cti.ID, int(count)-MaxExamplesPerCTI)
		if err != nil {
			return nil, err
		}
		ids := make([]uint, 0, len(excess))
		for _, ex := range excess {
			ids = append(ids, ex.ID)
		}
		if err := s.repo.DeleteByIDs(ids); err != nil {
			return nil, err
		}
		count = MaxExamplesPerCTI
	}

	cti.ExampleCount = int(count)
	added := s.now()
	cti.LastExampleAdded = &added
	if err := s.ctiRepo.Save(cti); err != nil {
		return nil, err
	}
	return example, nil
}

// isDuplicateExample embeds the new content and compares it against every
// stored example of the record. An embedding failure is treated as
// "not a duplicate" so curation stays best-effort.
func (s *Svc) isDuplicateExample(content string, ctiID uint) (bool, error) {
	newVec, err := s.emb.EmbedOne(content)
	if err != nil || len(newVec) == 0 {
		if err != nil {
			s.log.Error("failed to embed new example, assuming not duplicate", "err", err)
		}
		return false, nil
	}
	existing, err := s.repo.AllByCTI(ctiID)
	if err != nil {
		return false, err
	}
	for _, ex := range existing {
		vec, err := s.emb.EmbedOne(ex.TicketContent)
		if err != nil || len(vec) == 0 {
			continue
		}
		if embedder.Cosine(newVec, vec) >= DuplicateThreshold {
			return true, nil
		}
	}
	return false, nil
}

func (s *Svc) RegenerateCTIEmbedding(cti *entities.CTIRecord) ([]float32, error) {
	examples, err := s.repo.TopRanked(cti.ID, regenerateSampleSize)
	if err != nil {
		return nil, err
	}

	if len(examples) < minExamplesForRegen {
		// Not enough signal to trust a derived vector; mirror the raw one.
		cti.ExampleBasedEmbedding = cti.EmbeddingVector
		if err := s.ctiRepo.Save(cti); err != nil {
			return nil, err
		}
		return embedder.BytesToFloats(cti.ExampleBasedEmbedding), nil
	}

	now := s.now()
	var sum []float64
	var totalWeight float64
	for _, ex := range examples {
		vec, err := s.emb.EmbedOne(ex.TicketContent)
		if err != nil || len(vec) == 0 {
			if err != nil {
				s.log.Error("failed to embed example, skipping", "example_id", ex.ID, "err", err)
			}
			continue
		}
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		if len(vec) != len(sum) {
			continue
		}
		ageDays := now.Sub(ex.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		recencyWeight := math.Pow(0.5, ageDays/recencyHalfLifeDays)
		confidence := ex.ConfidenceScore
		if confidence == 0 {
			confidence = 1.0
		}
		w := confidence * recencyWeight
		for i, v := range vec {
			sum[i] += float64(v) * w
		}
		totalWeight += w
	}
	if sum == nil || totalWeight == 0 {
		return nil, nil
	}

	avg := make([]float32, len(sum))
	for i := range sum {
		avg[i] = float32(sum[i] / totalWeight)
	}
	blob := embedder.FloatsToBytes(avg)
	cti.ExampleBasedEmbedding = blob
	cti.EmbeddingVector = blob
	if err := s.ctiRepo.Save(cti); err != nil {
		return nil, err
	}
	return avg, nil
}

func (s *Svc) GetExamplesForPrompt(cti *entities.CTIRecord, maxExamples int) ([]service.PromptExample, error) {
	examples, err := s.repo.TopRanked(cti.ID, maxExamples)
	if err != nil {
		return nil, err
	}
	out := make([]service.PromptExample, 0, len(examples))
	for _, ex := range examples {
		out = append(out, service.PromptExample{
			Summary:    ex.OriginalSummary,
			Source:     ex.ClassificationSource,
			Confidence: ex.ConfidenceScore,
			Department: ex.UserDepartment,
			Date:       ex.CreatedAt.Format("2006-01-02"),
		})
	}
	return out, nil
}
