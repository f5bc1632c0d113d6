package serviceImp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"triage/entities"
	fsservice "triage/pkg/fewshot/service"
	"triage/pkg/learning/repository"
	"triage/pkg/logger"
)

// correctionWeight biases corrected examples in future few-shot selection.
const correctionWeight = 1.5

type Svc struct {
	repo    repository.LearningRepository
	fewShot fsservice.FewShotService
	dataDir string
	log     *logger.Logger
	now     func() time.Time
}

func New(repo repository.LearningRepository, fewShot fsservice.FewShotService, dataDir string, log *logger.Logger) *Svc {
	return &Svc{
		repo:    repo,
		fewShot: fewShot,
		dataDir: dataDir,
		log:     log.With("service", "LearningService"),
		now:     time.Now,
	}
}

func (s *Svc) RecordCorrection(ticket *entities.Ticket, original, corrected *entities.CTIRecord, correctedBy *entities.User, notes string) (*entities.ClassificationCorrection, error) {
	correction := &entities.ClassificationCorrection{
		TicketID:          ticket.ID,
		CorrectedToID:     corrected.ID,
		TicketSummary:     ticket.Summary,
		TicketDescription: ticket.Description,
		ConfidenceBefore:  ticket.PredictionConfidence,
		Notes:             notes,
		CorrectedAt:       s.now(),
	}
	if original != nil {
		correction.OriginalPredictionID = &original.ID
	}
	if correctedBy != nil {
		correction.CorrectedByID = &correctedBy.ID
	}
	if err := s.repo.CreateCorrection(correction); err != nil {
		return nil, err
	}

	example := &entities.TrainingExample{
		TicketContent: ticket.Content(),
		CorrectCTIID:  corrected.ID,
		Source:        "correction",
		Weight:        correctionWeight,
	}
	if err := s.repo.CreateTrainingExample(example); err != nil {
		return nil, err
	}

	// Offline-analysis trail; must never block the correction itself.
	if err := s.appendToLearningFile(ticket, original, corrected, correctedBy); err != nil {
		s.log.Error("failed to append learning file", "ticket_id", ticket.TicketID, "err", err)
	}

	if _, err := s.fewShot.AddSuccessfulExample(ticket, corrected, "corrected"); err != nil {
		s.log.Error("failed to add few-shot example", "ticket_id", ticket.TicketID, "err", err)
	}

	s.log.Info("recorded correction", "ticket_id", ticket.TicketID, "corrected_to", corrected.ID)
	return correction, nil
}

func (s *Svc) RecordSuccessfulClassification(ticket *entities.Ticket, cti *entities.CTIRecord, source string) {
	if _, err := s.fewShot.AddSuccessfulExample(ticket, cti, source); err != nil {
		s.log.Error("failed to store few-shot example", "ticket_id", ticket.TicketID, "err", err)
	}
}

type ctiSnapshot struct {
	ID                       uint   `json:"id"`
	BUNumber                 string `json:"bu_number"`
	Category                 string `json:"category"`
	Type                     string `json:"type"`
	Item                     string `json:"item"`
	ResolverGroup            string `json:"resolver_group"`
	ResolverGroupDescription string `json:"resolver_group_description"`
	RequestType              string `json:"request_type"`
	SLA                      string `json:"sla"`
	ServiceDescription       string `json:"service_description"`
	BUDescription            string `json:"bu_description"`
}

func snapshot(c *entities.CTIRecord) *ctiSnapshot {
	if c == nil {
		return nil
	}
	return &ctiSnapshot{
		ID:                       c.ID,
		BUNumber:                 c.BUNumber,
		Category:                 c.Category,
		Type:                     c.Type,
		Item:                     c.Item,
		ResolverGroup:            c.ResolverGroup,
		ResolverGroupDescription: c.ResolverGroupDescription,
		RequestType:              c.RequestType,
		SLA:                      c.SLA,
		ServiceDescription:       c.ServiceDescription,
		BUDescription:            c.BUDescription,
	}
}

// appendToLearningFile writes one JSON line per correction to a monthly file,
// carrying the full before/after taxonomy snapshot.
func (s *Svc) appendToLearningFile(ticket *entities.Ticket, original, corrected *entities.CTIRecord, correctedBy *entities.User) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return err
	}
	now := s.now()
	path := filepath.Join(s.dataDir, fmt.Sprintf("corrections_%s.jsonl", now.Format("2006_01")))

	correctedByName := ""
	if correctedBy != nil {
		correctedByName = correctedBy.Username
	}
	record := map[string]any{
		"timestamp":           now.Format(time.RFC3339),
		"ticket_id":           ticket.TicketID,
		"ticket_content":      ticket.Content(),
		"original_prediction": snapshot(original),
		"corrected_to":        snapshot(corrected),
		"corrected_by":        correctedByName,
		"confidence_before":   ticket.PredictionConfidence,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}
