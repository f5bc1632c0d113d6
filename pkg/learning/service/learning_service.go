package service

import "triage/entities"

type LearningService interface {
	// RecordCorrection writes the audit row and training example, appends the
	// durable JSONL log entry, and forwards the ticket to the few-shot store.
	// correctedBy == nil marks a system correction. Only the primary store
	// writes can fail the call; the log append and few-shot forward are
	// best-effort.
	RecordCorrection(ticket *entities.Ticket, original, corrected *entities.CTIRecord, correctedBy *entities.User, notes string) (*entities.ClassificationCorrection, error)
	// RecordSuccessfulClassification stores the ticket as a few-shot example
	// for the record. Best-effort: failures are logged, never returned.
	RecordSuccessfulClassification(ticket *entities.Ticket, cti *entities.CTIRecord, source string)
}
