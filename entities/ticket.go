package entities

import (
	"fmt"
	"time"
)

// SimilarCTIRecord is one row of the top-5 similarity snapshot persisted on a
// ticket at classification time. Denormalized on purpose: it is a point-in-time
// UI aid, not a live relation.
type SimilarCTIRecord struct {
	CTIID           uint    `json:"cti_id"`
	BUNumber        string  `json:"bu_number"`
	Category        string  `json:"category"`
	Type            string  `json:"type"`
	Item            string  `json:"item"`
	ResolverGroup   string  `json:"resolver_group"`
	RequestType     string  `json:"request_type"`
	SLA             string  `json:"sla"`
	SimilarityScore float64 `json:"similarity_score"`
}

type Ticket struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TicketID    string `gorm:"uniqueIndex" json:"ticket_id"` // TKT-000001
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Status      string `gorm:"index" json:"status"` // open|in_progress|resolved|closed
	Priority    string `json:"priority"`            // P1|P2|P3|P4

	CreatedByID *uint `gorm:"index" json:"created_by_id"`
	CreatedBy   *User `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`

	PredictedCTIID          *uint      `gorm:"index" json:"predicted_cti_id"`
	PredictedCTI            *CTIRecord `gorm:"foreignKey:PredictedCTIID" json:"predicted_cti,omitempty"`
	PredictionConfidence    *float64   `gorm:"index" json:"prediction_confidence"`
	PredictionJustification string     `json:"prediction_justification"`

	AssignedToID *uint `gorm:"index" json:"assigned_to_id"`

	CorrectedCTIID *uint      `json:"corrected_cti_id"`
	CorrectedCTI   *CTIRecord `gorm:"foreignKey:CorrectedCTIID" json:"corrected_cti,omitempty"`
	CorrectedByID  *uint      `json:"corrected_by_id"`
	CorrectedAt    *time.Time `json:"corrected_at"`

	SimilarCTIRecords []SimilarCTIRecord `gorm:"serializer:json" json:"similar_cti_records"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Content is the text the classifier sees: summary and description joined.
func (t *Ticket) Content() string {
	return fmt.Sprintf("%s. %s", t.Summary, t.Description)
}

// FinalCTIID is the corrected CTI when present, otherwise the prediction.
func (t *Ticket) FinalCTIID() *uint {
	if t.CorrectedCTIID != nil {
		return t.CorrectedCTIID
	}
	return t.PredictedCTIID
}
