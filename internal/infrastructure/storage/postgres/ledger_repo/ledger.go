// Package ledger_repo provides the PostgreSQL implementation of the movement
// ledger repository.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"invcore/internal/core/id"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
	"invcore/internal/infrastructure/storage/postgres"
)

const movementsTable = "ledger_movements"

var movementColumns = []string{
	"id", "item_type", "fk_id", "sku", "variant_id",
	"batch_number", "movement_type", "source",
	"quantity", "remaining_qty", "unit_cost",
	"effective_date", "status", "notes",
	"created_at", "created_by", "updated_at", "updated_by",
	"deleted_at", "deleted_by",
}

// Repo implements ledger.Repository.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRepo creates a new ledger repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ ledger.Repository = (*Repo)(nil)

func movementValues(e *ledger.MovementEntry) []any {
	return []any{
		e.ID, e.ItemType, e.FkID, e.SKU, e.VariantID,
		e.BatchNumber, e.MovementType, e.Source,
		e.Quantity, e.RemainingQty, e.UnitCost,
		e.EffectiveDate, e.Status, e.Notes,
		e.CreatedAt, e.CreatedBy, e.UpdatedAt, e.UpdatedBy,
		e.DeletedAt, e.DeletedBy,
	}
}

// Insert appends a single entry.
func (r *Repo) Insert(ctx context.Context, entry *ledger.MovementEntry) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(movementValues(entry)...)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "ledger entry", "insert movement")
	}
	return nil
}

// InsertBatch appends entries in bulk. Uses COPY when inside a transaction.
func (r *Repo) InsertBatch(ctx context.Context, entries []*ledger.MovementEntry) error {
	if len(entries) == 0 {
		return nil
	}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, movementValues(e))
		}
		if _, err := inserter.CopyFromSlice(ctx, movementsTable, movementColumns, rows); err != nil {
			return postgres.MapError(err, "ledger entry", "copy movements")
		}
		return nil
	}

	// Fallback: non-transactional multi-row insert. Prefer calling
	// InsertBatch within a transaction.
	q := r.builder.Insert(movementsTable).Columns(movementColumns...)
	for _, e := range entries {
		q = q.Values(movementValues(e)...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "ledger entry", "insert movements")
	}
	return nil
}

// GetByID retrieves one entry.
func (r *Repo) GetByID(ctx context.Context, entryID id.ID) (*ledger.MovementEntry, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"id": entryID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entry ledger.MovementEntry
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &entry, sql, args...); err != nil {
		return nil, postgres.MapError(err, "ledger entry", "get movement")
	}
	return &entry, nil
}

// List retrieves entries matching the filter, newest first.
func (r *Repo) List(ctx context.Context, filter ledger.Filter, page ledger.Page) (ledger.EntryPage, error) {
	result := ledger.EntryPage{Limit: page.Limit, Offset: page.Offset}

	where := r.filterConditions(filter)

	countQ := r.builder.Select("COUNT(*)").From(movementsTable)
	for _, cond := range where {
		countQ = countQ.Where(cond)
	}
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.Total); err != nil {
		return result, postgres.MapError(err, "ledger entry", "count movements")
	}

	q := r.builder.Select(movementColumns...).From(movementsTable)
	for _, cond := range where {
		q = q.Where(cond)
	}
	q = q.OrderBy("effective_date DESC", "created_at DESC", "id DESC")
	if page.Limit > 0 {
		q = q.Limit(uint64(page.Limit))
	}
	if page.Offset > 0 {
		q = q.Offset(uint64(page.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Entries, sql, args...); err != nil {
		return result, postgres.MapError(err, "ledger entry", "select movements")
	}
	return result, nil
}

func (r *Repo) filterConditions(filter ledger.Filter) []squirrel.Sqlizer {
	var conds []squirrel.Sqlizer
	if filter.ItemType != nil {
		conds = append(conds, squirrel.Eq{"item_type": *filter.ItemType})
	}
	if filter.FkID != nil {
		conds = append(conds, squirrel.Eq{"fk_id": *filter.FkID})
	}
	if filter.SKU != "" {
		conds = append(conds, squirrel.Eq{"sku": filter.SKU})
	}
	if filter.VariantID != nil {
		conds = append(conds, squirrel.Eq{"variant_id": *filter.VariantID})
	}
	if filter.BatchNumber != "" {
		conds = append(conds, squirrel.Eq{"batch_number": filter.BatchNumber})
	}
	if filter.MovementType != nil {
		conds = append(conds, squirrel.Eq{"movement_type": *filter.MovementType})
	}
	if filter.Source != nil {
		conds = append(conds, squirrel.Eq{"source": *filter.Source})
	}
	if filter.Status != nil {
		conds = append(conds, squirrel.Eq{"status": *filter.Status})
	} else {
		conds = append(conds, squirrel.NotEq{"status": ledger.StatusDeleted})
	}
	if filter.FromDate != nil {
		conds = append(conds, squirrel.GtOrEq{"effective_date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		conds = append(conds, squirrel.Lt{"effective_date": *filter.ToDate})
	}
	return conds
}

// SoftDelete marks an entry DELETED, preserving it for audit.
func (r *Repo) SoftDelete(ctx context.Context, entryID id.ID, deletedBy string, at time.Time) error {
	q := r.builder.Update(movementsTable).
		Set("status", ledger.StatusDeleted).
		Set("deleted_at", at).
		Set("deleted_by", deletedBy).
		Set("updated_at", at).
		Set("updated_by", deletedBy).
		Where(squirrel.Eq{"id": entryID}).
		Where(squirrel.NotEq{"status": ledger.StatusDeleted})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "ledger entry", "soft delete movement")
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "ledger entry", "soft delete movement")
	}
	return nil
}

// ActiveBatchesForUpdate returns the item's ACTIVE IN batches with remaining
// quantity, oldest first, locked until transaction end.
func (r *Repo) ActiveBatchesForUpdate(ctx context.Context, item ledger.ItemRef) ([]*ledger.MovementEntry, error) {
	if r.txManager.GetTx(ctx) == nil {
		return nil, fmt.Errorf("ActiveBatchesForUpdate requires transaction context")
	}

	sql := `
		SELECT id, item_type, fk_id, sku, variant_id,
		       batch_number, movement_type, source,
		       quantity, remaining_qty, unit_cost,
		       effective_date, status, notes,
		       created_at, created_by, updated_at, updated_by,
		       deleted_at, deleted_by
		FROM ledger_movements
		WHERE item_type = $1
		  AND fk_id = $2
		  AND variant_id IS NOT DISTINCT FROM $3
		  AND movement_type = 'IN'
		  AND status = 'ACTIVE'
		  AND remaining_qty > 0
		ORDER BY effective_date, id
		FOR UPDATE
	`

	var batches []*ledger.MovementEntry
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, item.ItemType, item.FkID, item.VariantID); err != nil {
		return nil, postgres.MapError(err, "ledger batch", "lock active batches")
	}
	return batches, nil
}

// UpdateBatchConsumption sets a batch's remaining quantity and status.
func (r *Repo) UpdateBatchConsumption(ctx context.Context, batchID id.ID, remaining types.Quantity, status ledger.EntryStatus, at time.Time) error {
	q := r.builder.Update(movementsTable).
		Set("remaining_qty", remaining).
		Set("status", status).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": batchID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "ledger batch", "update batch consumption")
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "ledger batch", "update batch consumption")
	}
	return nil
}

// AvailableQuantity returns the sum of remaining quantity over the item's
// ACTIVE IN batches.
func (r *Repo) AvailableQuantity(ctx context.Context, item ledger.ItemRef) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(remaining_qty), 0)
		FROM ledger_movements
		WHERE item_type = $1
		  AND fk_id = $2
		  AND variant_id IS NOT DISTINCT FROM $3
		  AND movement_type = 'IN'
		  AND status = 'ACTIVE'
	`

	var scaled int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, item.ItemType, item.FkID, item.VariantID).Scan(&scaled); err != nil {
		return 0, postgres.MapError(err, "ledger entry", "available quantity")
	}
	return types.NewQuantityFromInt64Scaled(scaled), nil
}
