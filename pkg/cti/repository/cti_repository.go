package repository

import "triage/entities"

type CTIRepository interface {
	Create(*entities.CTIRecord) error
	Save(*entities.CTIRecord) error
	FindByID(id uint) (*entities.CTIRecord, error)
	FindByKey(buNumber, category, ctiType, item string) (*entities.CTIRecord, error)
	List(search string, limit, offset int) ([]entities.CTIRecord, int64, error)
	// AllWithEmbeddings returns every record carrying at least a raw embedding.
	AllWithEmbeddings() ([]entities.CTIRecord, error)
	// MissingEmbeddings returns records whose raw embedding was never derived.
	MissingEmbeddings() ([]entities.CTIRecord, error)
	// ReferencedByTickets reports whether any ticket points at the record;
	// deletion is rejected while it does.
	ReferencedByTickets(id uint) (bool, error)
	Delete(id uint) error
}
