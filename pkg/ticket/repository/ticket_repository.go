package repository

import "triage/entities"

type ListFilter struct {
	Status       string
	AssignedToID *uint
	CreatedByID  *uint
	Limit        int
	Offset       int
}

type Stats struct {
	Total         int64 `json:"total"`
	Classified    int64 `json:"classified"`
	Corrected     int64 `json:"corrected"`
	LowConfidence int64 `json:"low_confidence"`
}

type TicketRepository interface {
	Create(*entities.Ticket) error
	Save(*entities.Ticket) error
	FindByID(id uint) (*entities.Ticket, error)
	List(f ListFilter) ([]entities.Ticket, int64, error)
	Delete(id uint) error
	// NextTicketNumber returns the next sequence number for TKT-%06d ids.
	NextTicketNumber() (int, error)
	// SaveSimilarRecords persists only the similarity snapshot column.
	SaveSimilarRecords(id uint, records []entities.SimilarCTIRecord) error
	// Stats aggregates classification counters; lowConfidenceBelow is the UI
	// "needs attention" cutoff, a looser policy than the classifier gate.
	Stats(lowConfidenceBelow float64) (*Stats, error)
}
