package repositoryImp

import (
	"gorm.io/gorm"

	"triage/entities"
	"triage/pkg/cti/repository"
)

type ctiRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.CTIRepository { return &ctiRepo{db} }

func (r *ctiRepo) Create(c *entities.CTIRecord) error { return r.db.Create(c).Error }

func (r *ctiRepo) Save(c *entities.CTIRecord) error { return r.db.Save(c).Error }

func (r *ctiRepo) FindByID(id uint) (*entities.CTIRecord, error) {
	var c entities.CTIRecord
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ctiRepo) FindByKey(buNumber, category, ctiType, item string) (*entities.CTIRecord, error) {
	var c entities.CTIRecord
	err := r.db.
		Where("bu_number = ? AND category = ? AND type = ? AND item = ?", buNumber, category, ctiType, item).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ctiRepo) List(search string, limit, offset int) ([]entities.CTIRecord, int64, error) {
	q := r.db.Model(&entities.CTIRecord{})
	if search != "" {
		like := "%" + search + "%"
		q = q.Where(
			"category LIKE ? OR type LIKE ? OR item LIKE ? OR resolver_group LIKE ?",
			like, like, like, like,
		)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entities.CTIRecord
	if err := q.Order("category, type, item").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ctiRepo) AllWithEmbeddings() ([]entities.CTIRecord, error) {
	var out []entities.CTIRecord
	err := r.db.
		Where("embedding_vector IS NOT NULL AND length(embedding_vector) > 0").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *ctiRepo) MissingEmbeddings() ([]entities.CTIRecord, error) {
	var out []entities.CTIRecord
	err := r.db.
		Where("embedding_vector IS NULL OR length(embedding_vector) = 0").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *ctiRepo) ReferencedByTickets(id uint) (bool, error) {
	var n int64
	err := r.db.Model(&entities.Ticket{}).
		Where("predicted_cti_id = ? OR corrected_cti_id = ?", id, id).
		Count(&n).Error
	return n > 0, err
}

func (r *ctiRepo) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// Few-shot examples are owned by the record and go with it.
		if err := tx.Where("cti_record_id = ?", id).Delete(&entities.FewShotExample{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entities.CTIRecord{}, id).Error
	})
}
