package service

import "triage/entities"

// Embedder is the slice of the embeddings client this service needs.
type Embedder interface {
	EmbedOne(text string) ([]float32, error)
}

// PromptExample is the projection of a stored example handed to the reranker
// prompt. Raw stored structure stays inside the service.
type PromptExample struct {
	Summary    string  `json:"summary"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Department string  `json:"department"`
	Date       string  `json:"date"`
}

type FewShotService interface {
	// AddSuccessfulExample stores the ticket as a few-shot example for the CTI
	// record. Returns (nil, nil) when the text duplicates an existing example
	// (cosine >= 0.9). Enforces the per-record population cap.
	AddSuccessfulExample(ticket *entities.Ticket, cti *entities.CTIRecord, source string) (*entities.FewShotExample, error)
	// RegenerateCTIEmbedding re-derives the record's example-based embedding
	// from its best examples. With fewer than three examples it degrades to
	// copying the raw description embedding.
	RegenerateCTIEmbedding(cti *entities.CTIRecord) ([]float32, error)
	GetExamplesForPrompt(cti *entities.CTIRecord, maxExamples int) ([]PromptExample, error)
}
