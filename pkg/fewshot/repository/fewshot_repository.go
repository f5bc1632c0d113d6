package repository

import "triage/entities"

type FewShotRepository interface {
	Create(*entities.FewShotExample) error
	// AllByCTI returns every example owned by the record, oldest first.
	AllByCTI(ctiID uint) ([]entities.FewShotExample, error)
	CountByCTI(ctiID uint) (int64, error)
	// TopRanked orders by confidence descending, then recency descending.
	TopRanked(ctiID uint, n int) ([]entities.FewShotExample, error)
	// LowestRanked orders by confidence ascending, then created_at ascending;
	// these are the eviction candidates when the population cap is exceeded.
	LowestRanked(ctiID uint, n int) ([]entities.FewShotExample, error)
	DeleteByIDs(ids []uint) error
}
