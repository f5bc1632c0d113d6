package serviceImp

import (
	"fmt"
	"sync"

	"triage/entities"
	"triage/pkg/ai"
	"triage/pkg/ai/embedder"
	"triage/pkg/classify/service"
	ctirepo "triage/pkg/cti/repository"
	fsservice "triage/pkg/fewshot/service"
	learnrepo "triage/pkg/learning/repository"
	lsservice "triage/pkg/learning/service"
	"triage/pkg/logger"
	ticketrepo "triage/pkg/ticket/repository"
)

const (
	topKCandidates = 8
	snapshotSize   = 5

	// defaultFallbackConfidence is pinned on predictions substituted by the
	// default CTI record.
	defaultFallbackConfidence = 0.5
)

// Config carries the classifier policy knobs.
type Config struct {
	// SimilarityThreshold gates the LLM call: no candidate at or above it
	// means no rerank is paid for. Best score equal to the threshold passes.
	SimilarityThreshold float64
	// MinConfidenceThreshold gates the final prediction; below it the default
	// CTI record is substituted. Equal to the threshold is accepted.
	MinConfidenceThreshold float64
	// DefaultCTIID is the configured fallback record. Zero disables fallback.
	DefaultCTIID uint
}

type Svc struct {
	log          *logger.Logger
	emb          service.Embedder
	llm          ai.Client
	ctiRepo      ctirepo.CTIRepository
	ticketRepo   ticketrepo.TicketRepository
	learningRepo learnrepo.LearningRepository
	fewShot      fsservice.FewShotService
	learning     lsservice.LearningService
	cfg          Config

	// Default record cache. Guarded lookup that only caches success, so a
	// transiently misconfigured default is retried on the next call instead
	// of poisoning the pipeline for its lifetime.
	defaultMu  sync.Mutex
	defaultCTI *entities.CTIRecord
}

func New(
	emb service.Embedder,
	llm ai.Client,
	ctiRepo ctirepo.CTIRepository,
	ticketRepo ticketrepo.TicketRepository,
	learningRepo learnrepo.LearningRepository,
	fewShot fsservice.FewShotService,
	learning lsservice.LearningService,
	cfg Config,
	log *logger.Logger,
) *Svc {
	return &Svc{
		log:          log.With("service", "ClassifyService"),
		emb:          emb,
		llm:          llm,
		ctiRepo:      ctiRepo,
		ticketRepo:   ticketRepo,
		learningRepo: learningRepo,
		fewShot:      fewShot,
		learning:     learning,
		cfg:          cfg,
	}
}

// ClassifyTicket is the classification pipeline. Terminal on the first
// applicable branch; failures come back as (nil, 0, justification).
func (s *Svc) ClassifyTicket(ticket *entities.Ticket) (*entities.CTIRecord, float64, string) {
	ticketText := ticket.Content()

	candidates := s.FindSimilarCTIRecords(ticketText, topKCandidates, ticket)
	if len(candidates) == 0 {
		return nil, 0, "No similar CTI records found"
	}

	best := candidates[0].Score
	if best < s.cfg.SimilarityThreshold {
		return nil, 0, fmt.Sprintf("Best similarity (%.3f) below threshold (%.2f)", best, s.cfg.SimilarityThreshold)
	}

	decision := s.rerank(ticketText, candidates)

	var predicted *entities.CTIRecord
	if decision.SelectedID != nil {
		record, err := s.ctiRepo.FindByID(*decision.SelectedID)
		if err != nil {
			// Stale or hallucinated identifier.
			s.log.Error("selected CTI record not found", "id", *decision.SelectedID, "err", err)
			return nil, 0, "Selected CTI record not found"
		}
		predicted = record
	}

	return s.ensureValidPrediction(ticket, predicted, decision.Confidence, decision.Justification)
}

// ensureValidPrediction is the confidence gate. A missing or low-confidence
// prediction is replaced by the default CTI record; replacing a real
// prediction also leaves a system-correction audit trail.
func (s *Svc) ensureValidPrediction(ticket *entities.Ticket, predicted *entities.CTIRecord, confidence float64, justification string) (*entities.CTIRecord, float64, string) {
	if predicted != nil && confidence >= s.cfg.MinConfidenceThreshold {
		return predicted, confidence, justification
	}

	defaultCTI := s.defaultCTIRecord()
	if defaultCTI == nil {
		return nil, 0, "No valid prediction and default CTI not available"
	}

	if predicted != nil && ticket.ID != 0 {
		notes := fmt.Sprintf("Auto-corrected to default CTI due to low confidence (%.2f)", confidence)
		if _, err := s.learning.RecordCorrection(ticket, predicted, defaultCTI, nil, notes); err != nil {
			s.log.Error("failed to record system correction", "ticket_id", ticket.TicketID, "err", err)
		}
	}

	return defaultCTI, defaultFallbackConfidence, fmt.Sprintf("Using default CTI (ID: %d) - %s", defaultCTI.ID, justification)
}

func (s *Svc) defaultCTIRecord() *entities.CTIRecord {
	s.defaultMu.Lock()
	defer s.defaultMu.Unlock()
	if s.defaultCTI != nil {
		return s.defaultCTI
	}
	if s.cfg.DefaultCTIID == 0 {
		return nil
	}
	record, err := s.ctiRepo.FindByID(s.cfg.DefaultCTIID)
	if err != nil {
		// Not cached: a transient miss is retried on the next call.
		s.log.Error("default CTI record not found", "id", s.cfg.DefaultCTIID, "err", err)
		return nil
	}
	s.defaultCTI = record
	return record
}

func (s *Svc) FindSimilarCTIRecords(ticketText string, topK int, saveToTicket *entities.Ticket) []service.Candidate {
	queryVec, err := s.emb.EmbedOne(ticketText)
	if err != nil || len(queryVec) == 0 {
		if err != nil {
			s.log.Error("failed to embed ticket text", "err", err)
		}
		s.saveSnapshot(saveToTicket, nil)
		return nil
	}

	records, err := s.ctiRepo.AllWithEmbeddings()
	if err != nil {
		s.log.Error("failed to load CTI records", "err", err)
		s.saveSnapshot(saveToTicket, nil)
		return nil
	}

	ranked := rankCandidates(queryVec, records, topK)
	s.saveSnapshot(saveToTicket, ranked)
	return ranked
}

// saveSnapshot persists the top candidates onto the ticket as a UI aid. It
// runs on every path, including failures, and its own failure never affects
// the classification result.
func (s *Svc) saveSnapshot(ticket *entities.Ticket, ranked []service.Candidate) {
	if ticket == nil || ticket.ID == 0 {
		return
	}
	snap := make([]entities.SimilarCTIRecord, 0, snapshotSize)
	for i, cand := range ranked {
		if i >= snapshotSize {
			break
		}
		snap = append(snap, entities.SimilarCTIRecord{
			CTIID:           cand.CTI.ID,
			BUNumber:        cand.CTI.BUNumber,
			Category:        cand.CTI.Category,
			Type:            cand.CTI.Type,
			Item:            cand.CTI.Item,
			ResolverGroup:   cand.CTI.ResolverGroup,
			RequestType:     cand.CTI.RequestType,
			SLA:             cand.CTI.SLA,
			SimilarityScore: cand.Score,
		})
	}
	if err := s.ticketRepo.SaveSimilarRecords(ticket.ID, snap); err != nil {
		s.log.Error("failed to save similarity snapshot", "ticket_id", ticket.TicketID, "err", err)
		return
	}
	ticket.SimilarCTIRecords = snap
}

func (s *Svc) PrecomputeCTIEmbeddings() (int, error) {
	records, err := s.ctiRepo.MissingEmbeddings()
	if err != nil {
		return 0, err
	}
	computed := 0
	for i := range records {
		record := &records[i]
		vec, err := s.emb.EmbedOne(record.EmbeddingText())
		if err != nil || len(vec) == 0 {
			if err != nil {
				s.log.Error("failed to embed CTI record", "id", record.ID, "err", err)
			}
			continue
		}
		record.EmbeddingVector = embedder.FloatsToBytes(vec)
		if err := s.ctiRepo.Save(record); err != nil {
			return computed, err
		}
		s.log.Info("computed embedding for CTI record", "id", record.ID)
		computed++
	}
	return computed, nil
}

func (s *Svc) RegenerateRawEmbedding(cti *entities.CTIRecord) error {
	vec, err := s.emb.EmbedOne(cti.EmbeddingText())
	if err != nil {
		return err
	}
	cti.EmbeddingVector = embedder.FloatsToBytes(vec)
	return s.ctiRepo.Save(cti)
}
