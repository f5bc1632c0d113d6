package entities

import "time"

// TrainingExample is an append-only record feeding global few-shot selection.
type TrainingExample struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	TicketContent string     `json:"ticket_content"` // summary + description
	CorrectCTIID  uint       `gorm:"index" json:"correct_cti_id"`
	CorrectCTI    *CTIRecord `gorm:"foreignKey:CorrectCTIID" json:"correct_cti,omitempty"`
	Source        string     `json:"source"` // initial|correction|manual
	Weight        float64    `json:"weight"` // corrections carry 1.5
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
}

// ClassificationCorrection is the audit row written once per correction event.
type ClassificationCorrection struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	TicketID             uint       `gorm:"index" json:"ticket_id"`
	OriginalPredictionID *uint      `json:"original_prediction_id"`
	OriginalPrediction   *CTIRecord `gorm:"foreignKey:OriginalPredictionID" json:"original_prediction,omitempty"`
	CorrectedToID        uint       `json:"corrected_to_id"`
	CorrectedTo          *CTIRecord `gorm:"foreignKey:CorrectedToID" json:"corrected_to,omitempty"`
	// Nil means a system correction (e.g. low-confidence default fallback).
	CorrectedByID *uint `json:"corrected_by_id"`

	TicketSummary     string `json:"ticket_summary"`
	TicketDescription string `json:"ticket_description"`

	ConfidenceBefore *float64  `json:"confidence_before"`
	Notes            string    `json:"notes"`
	CorrectedAt      time.Time `gorm:"index" json:"corrected_at"`
}

// FewShotExample is a real ticket stored as a positive example for one CTI
// record. Owned exclusively by that record; population capped by the few-shot
// service.
type FewShotExample struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	CTIRecordID          uint      `gorm:"index" json:"cti_record_id"`
	TicketContent        string    `json:"ticket_content"`
	OriginalSummary      string    `json:"original_summary"`
	OriginalDescription  string    `json:"original_description"`
	ClassificationSource string    `gorm:"index" json:"classification_source"` // ai|confirmed|corrected
	ConfidenceScore      float64   `gorm:"index" json:"confidence_score"`
	CreatedByID          *uint     `json:"created_by_id"`
	UserDepartment       string    `json:"user_department"`
	UsageCount           int       `json:"usage_count"`
	CreatedAt            time.Time `gorm:"index" json:"created_at"`
}
