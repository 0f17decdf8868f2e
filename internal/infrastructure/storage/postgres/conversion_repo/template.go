package conversion_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"invcore/internal/core/id"
	"invcore/internal/domain/conversion"
	"invcore/internal/infrastructure/storage/postgres"
)

const templatesTable = "conversion_templates"

var templateColumns = []string{
	"id", "code", "name", "inputs", "outputs", "status",
	"created_at", "updated_at",
}

// TemplateRepo implements conversion.TemplateRepository.
type TemplateRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewTemplateRepo creates a new conversion template repository.
func NewTemplateRepo(txManager *postgres.TxManager) *TemplateRepo {
	return &TemplateRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ conversion.TemplateRepository = (*TemplateRepo)(nil)

// GetByID retrieves one template.
func (r *TemplateRepo) GetByID(ctx context.Context, templateID id.ID) (*conversion.Template, error) {
	q := r.builder.Select(templateColumns...).
		From(templatesTable).
		Where(squirrel.Eq{"id": templateID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var tmpl conversion.Template
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &tmpl, sql, args...); err != nil {
		return nil, postgres.MapError(err, "conversion template", "get template")
	}
	return &tmpl, nil
}

// List returns templates matching the filter.
func (r *TemplateRepo) List(ctx context.Context, filter conversion.TemplateFilter) ([]*conversion.Template, error) {
	q := r.builder.Select(templateColumns...).From(templatesTable)

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}

	q = q.OrderBy("code")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var templates []*conversion.Template
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &templates, sql, args...); err != nil {
		return nil, postgres.MapError(err, "conversion template", "select templates")
	}
	return templates, nil
}
