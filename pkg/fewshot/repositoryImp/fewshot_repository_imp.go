package repositoryImp

import (
	"gorm.io/gorm"

	"triage/entities"
	"triage/pkg/fewshot/repository"
)

type fewShotRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.FewShotRepository { return &fewShotRepo{db} }

func (r *fewShotRepo) Create(e *entities.FewShotExample) error { return r.db.Create(e).Error }

func (r *fewShotRepo) AllByCTI(ctiID uint) ([]entities.FewShotExample, error) {
	var out []entities.FewShotExample
	err := r.db.Where("cti_record_id = ?", ctiID).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (r *fewShotRepo) CountByCTI(ctiID uint) (int64, error) {
	var n int64
	err := r.db.Model(&entities.FewShotExample{}).Where("cti_record_id = ?", ctiID).Count(&n).Error
	return n, err
}

func (r *fewShotRepo) TopRanked(ctiID uint, n int) ([]entities.FewShotExample, error) {
	var out []entities.FewShotExample
	err := r.db.Where("cti_record_id = ?", ctiID).
		Order("confidence_score DESC, created_at DESC").
		Limit(n).
		Find(&out).Error
	return out, err
}

func (r *fewShotRepo) LowestRanked(ctiID uint, n int) ([]entities.FewShotExample, error) {
	var out []entities.FewShotExample
	err := r.db.Where("cti_record_id = ?", ctiID).
		Order("confidence_score ASC, created_at ASC").
		Limit(n).
		Find(&out).Error
	return out, err
}

func (r *fewShotRepo) DeleteByIDs(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Delete(&entities.FewShotExample{}, ids).Error
}
