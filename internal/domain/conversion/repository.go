package conversion

import (
	"context"

	"invcore/internal/core/id"
)

// RecordRepository persists conversion records.
type RecordRepository interface {
	Insert(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, recordID id.ID) (*Record, error)
	GetByReference(ctx context.Context, referenceCode string) (*Record, error)
	List(ctx context.Context, filter RecordFilter) ([]*Record, error)
}

// TemplateRepository reads conversion templates. Template master-data CRUD
// belongs to external collaborators; the coordinator only reads.
type TemplateRepository interface {
	GetByID(ctx context.Context, templateID id.ID) (*Template, error)
	List(ctx context.Context, filter TemplateFilter) ([]*Template, error)
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	Status     *RecordStatus
	TemplateID *id.ID
	Limit      int
	Offset     int
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	Status *TemplateStatus
	Limit  int
	Offset int
}
