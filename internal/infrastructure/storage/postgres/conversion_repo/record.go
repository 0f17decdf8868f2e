// Package conversion_repo provides PostgreSQL implementations for conversion
// records and templates.
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

const recordsTable = "conversion_records"

var recordColumns = []string{
	"id", "reference_code", "template_id",
	"inputs", "outputs", "total_input_cost",
	"status", "notes",
	"created_at", "created_by", "deleted_at", "deleted_by",
}

// RecordRepo implements conversion.RecordRepository.
type RecordRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRecordRepo creates a new conversion record repository.
func NewRecordRepo(txManager *postgres.TxManager) *RecordRepo {
	return &RecordRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ conversion.RecordRepository = (*RecordRepo)(nil)

// Insert persists a conversion record.
func (r *RecordRepo) Insert(ctx context.Context, record *conversion.Record) error {
	q := r.builder.Insert(recordsTable).
		Columns(recordColumns...).
		Values(
			record.ID, record.ReferenceCode, record.TemplateID,
			record.Inputs, record.Outputs, record.TotalInputCost,
			record.Status, record.Notes,
			record.CreatedAt, record.CreatedBy, record.DeletedAt, record.DeletedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "conversion record", "insert record")
	}
	return nil
}

// GetByID retrieves one record.
func (r *RecordRepo) GetByID(ctx context.Context, recordID id.ID) (*conversion.Record, error) {
	return r.getOne(ctx, squirrel.Eq{"id": recordID})
}

// GetByReference retrieves one record by its unique reference code.
func (r *RecordRepo) GetByReference(ctx context.Context, referenceCode string) (*conversion.Record, error) {
	return r.getOne(ctx, squirrel.Eq{"reference_code": referenceCode})
}

func (r *RecordRepo) getOne(ctx context.Context, cond squirrel.Sqlizer) (*conversion.Record, error) {
	q := r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(cond).
		Where(squirrel.Eq{"deleted_at": nil}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var record conversion.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &record, sql, args...); err != nil {
		return nil, postgres.MapError(err, "conversion record", "get record")
	}
	return &record, nil
}

// List returns records matching the filter, newest first.
func (r *RecordRepo) List(ctx context.Context, filter conversion.RecordFilter) ([]*conversion.Record, error) {
	q := r.builder.Select(recordColumns...).
		From(recordsTable).
		Where(squirrel.Eq{"deleted_at": nil})

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.TemplateID != nil {
		q = q.Where(squirrel.Eq{"template_id": *filter.TemplateID})
	}

	q = q.OrderBy("created_at DESC", "id DESC")
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

	var records []*conversion.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &records, sql, args...); err != nil {
		return nil, postgres.MapError(err, "conversion record", "select records")
	}
	return records, nil
}
