package repositoryImp

import (
	"gorm.io/gorm"

	"triage/entities"
	"triage/pkg/learning/repository"
)

type learningRepo struct{ db *gorm.DB }

func New(db *gorm.DB) repository.LearningRepository { return &learningRepo{db} }

func (r *learningRepo) CreateTrainingExample(e *entities.TrainingExample) error {
	return r.db.Create(e).Error
}

func (r *learningRepo) TopWeighted(n int) ([]entities.TrainingExample, error) {
	var out []entities.TrainingExample
	err := r.db.Preload("CorrectCTI").
		Order("weight DESC, created_at DESC").
		Limit(n).
		Find(&out).Error
	return out, err
}

func (r *learningRepo) ListTrainingExamples(limit, offset int) ([]entities.TrainingExample, int64, error) {
	var total int64
	if err := r.db.Model(&entities.TrainingExample{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entities.TrainingExample
	err := r.db.Preload("CorrectCTI").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, total, err
}

func (r *learningRepo) CreateCorrection(c *entities.ClassificationCorrection) error {
	return r.db.Create(c).Error
}

func (r *learningRepo) ListCorrections(limit, offset int) ([]entities.ClassificationCorrection, int64, error) {
	var total int64
	if err := r.db.Model(&entities.ClassificationCorrection{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entities.ClassificationCorrection
	err := r.db.Preload("OriginalPrediction").Preload("CorrectedTo").
		Order("corrected_at DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, total, err
}
