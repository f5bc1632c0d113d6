package repository

import "triage/entities"

type LearningRepository interface {
	CreateTrainingExample(*entities.TrainingExample) error
	// TopWeighted returns training examples by weight descending, then recency
	// descending, with the correct CTI preloaded. Feeds the global few-shot
	// section of the reranker prompt.
	TopWeighted(n int) ([]entities.TrainingExample, error)
	ListTrainingExamples(limit, offset int) ([]entities.TrainingExample, int64, error)
	CreateCorrection(*entities.ClassificationCorrection) error
	ListCorrections(limit, offset int) ([]entities.ClassificationCorrection, int64, error)
}
