package service

import "triage/entities"

// Embedder is the slice of the embeddings client the classifier needs.
type Embedder interface {
	Embed(texts []string) ([][]float32, error)
	EmbedOne(text string) ([]float32, error)
}

// Candidate is one ranked CTI record with its (boosted) similarity score.
type Candidate struct {
	CTI   *entities.CTIRecord
	Score float64
}

type ClassifyService interface {
	// ClassifyTicket runs the full pipeline: embed, retrieve, threshold gate,
	// rerank, resolve, confidence gate with default fallback. Every failure
	// path comes back as (nil, 0, justification), never an error.
	ClassifyTicket(ticket *entities.Ticket) (*entities.CTIRecord, float64, string)
	// FindSimilarCTIRecords ranks taxonomy records against the ticket text.
	// When saveToTicket is non-nil the top five are persisted onto the
	// ticket's snapshot column regardless of how classification ends.
	FindSimilarCTIRecords(ticketText string, topK int, saveToTicket *entities.Ticket) []Candidate
	// PrecomputeCTIEmbeddings derives raw embeddings for records missing one.
	// Returns how many records were embedded.
	PrecomputeCTIEmbeddings() (int, error)
	// RegenerateRawEmbedding re-derives the description embedding, e.g. after
	// an admin edits the record's descriptive fields.
	RegenerateRawEmbedding(cti *entities.CTIRecord) error
}
