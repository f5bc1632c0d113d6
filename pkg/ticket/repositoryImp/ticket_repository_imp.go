package repositoryImp

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"triage/entities"
	"triage/pkg/ticket/repository"
)

type ticketRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.TicketRepository { return &ticketRepo{db} }

func (r *ticketRepo) Create(t *entities.Ticket) error { return r.db.Create(t).Error }

// Save skips associations: tickets are often saved with preloaded CTI
// records attached, and those must never be written back through a ticket.
func (r *ticketRepo) Save(t *entities.Ticket) error {
	return r.db.Omit(clause.Associations).Save(t).Error
}

func (r *ticketRepo) FindByID(id uint) (*entities.Ticket, error) {
	var t entities.Ticket
	err := r.db.
		Preload("PredictedCTI").
		Preload("CorrectedCTI").
		Preload("CreatedBy").
		First(&t, id).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepo) List(f repository.ListFilter) ([]entities.Ticket, int64, error) {
	q := r.db.Model(&entities.Ticket{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AssignedToID != nil {
		q = q.Where("assigned_to_id = ?", *f.AssignedToID)
	}
	if f.CreatedByID != nil {
		q = q.Where("created_by_id = ?", *f.CreatedByID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entities.Ticket
	err := q.Preload("PredictedCTI").Preload("CorrectedCTI").
		Order("created_at DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ticketRepo) Delete(id uint) error {
	return r.db.Delete(&entities.Ticket{}, id).Error
}

func (r *ticketRepo) NextTicketNumber() (int, error) {
	var maxID *int
	err := r.db.Model(&entities.Ticket{}).
		Select("MAX(CAST(SUBSTR(ticket_id, 5) AS INTEGER))").
		Scan(&maxID).Error
	if err != nil {
		return 0, err
	}
	if maxID == nil {
		return 1, nil
	}
	return *maxID + 1, nil
}

func (r *ticketRepo) SaveSimilarRecords(id uint, records []entities.SimilarCTIRecord) error {
	if records == nil {
		records = []entities.SimilarCTIRecord{}
	}
	return r.db.Model(&entities.Ticket{}).
		Where("id = ?", id).
		Update("similar_cti_records", records).Error
}

func (r *ticketRepo) Stats(lowConfidenceBelow float64) (*repository.Stats, error) {
	var s repository.Stats
	m := r.db.Model(&entities.Ticket{})
	if err := m.Count(&s.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&entities.Ticket{}).
		Where("predicted_cti_id IS NOT NULL").
		Count(&s.Classified).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&entities.Ticket{}).
		Where("corrected_cti_id IS NOT NULL").
		Count(&s.Corrected).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&entities.Ticket{}).
		Where("prediction_confidence IS NOT NULL AND prediction_confidence < ?", lowConfidenceBelow).
		Count(&s.LowConfidence).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
