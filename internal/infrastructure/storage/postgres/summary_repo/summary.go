// Package summary_repo provides the PostgreSQL implementation of the monthly
// summary repository.
package summary_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
	"invcore/internal/domain/summary"
	"invcore/internal/infrastructure/storage/postgres"
)

const summariesTable = "monthly_summaries"

var summaryColumns = []string{
	"id", "item_type", "fk_id", "sku", "variant_id",
	"year", "month",
	"opening_qty", "in_qty", "out_qty", "closing_qty",
	"opening_value", "in_value", "out_value", "closing_value",
	"generated_at",
}

// Repo implements summary.Repository.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRepo creates a new summary repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ summary.Repository = (*Repo)(nil)

func itemConditions(item ledger.ItemRef) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Eq{"item_type": item.ItemType},
		squirrel.Eq{"fk_id": item.FkID},
		squirrel.Expr("variant_id IS NOT DISTINCT FROM ?", item.VariantID),
	}
}

// Get returns the summary for (item, period), or NOT_FOUND.
func (r *Repo) Get(ctx context.Context, item ledger.ItemRef, period summary.Period) (*summary.MonthlySummary, error) {
	q := r.builder.Select(summaryColumns...).
		From(summariesTable).
		Where(itemConditions(item)).
		Where(squirrel.Eq{"year": period.Year, "month": int(period.Month)}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s summary.MonthlySummary
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &s, sql, args...); err != nil {
		return nil, postgres.MapError(err, "monthly summary", "get summary")
	}
	return &s, nil
}

// Exists reports whether a summary row exists for (item, period).
func (r *Repo) Exists(ctx context.Context, item ledger.ItemRef, period summary.Period) (bool, error) {
	q := r.builder.Select("1").
		From(summariesTable).
		Where(itemConditions(item)).
		Where(squirrel.Eq{"year": period.Year, "month": int(period.Month)}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	querier := r.txManager.GetQuerier(ctx)
	err = querier.QueryRow(ctx, sql, args...).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, postgres.MapError(err, "monthly summary", "check summary exists")
	}
	return true, nil
}

// Upsert persists a summary keyed by its natural composite key.
func (r *Repo) Upsert(ctx context.Context, s *summary.MonthlySummary) error {
	sql := `
		INSERT INTO monthly_summaries (
			id, item_type, fk_id, sku, variant_id,
			year, month,
			opening_qty, in_qty, out_qty, closing_qty,
			opening_value, in_value, out_value, closing_value,
			generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (item_type, fk_id, variant_key, year, month) DO UPDATE SET
			opening_qty = EXCLUDED.opening_qty,
			in_qty = EXCLUDED.in_qty,
			out_qty = EXCLUDED.out_qty,
			closing_qty = EXCLUDED.closing_qty,
			opening_value = EXCLUDED.opening_value,
			in_value = EXCLUDED.in_value,
			out_value = EXCLUDED.out_value,
			closing_value = EXCLUDED.closing_value,
			generated_at = EXCLUDED.generated_at
	`

	querier := r.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		s.ID, s.ItemType, s.FkID, s.SKU, s.VariantID,
		s.Year, s.Month,
		s.OpeningQty, s.InQty, s.OutQty, s.ClosingQty,
		s.OpeningValue, s.InValue, s.OutValue, s.ClosingValue,
		s.GeneratedAt,
	)
	if err != nil {
		return postgres.MapError(err, "monthly summary", "upsert summary")
	}
	return nil
}

// List returns summaries matching the filter.
func (r *Repo) List(ctx context.Context, filter summary.ListFilter) ([]*summary.MonthlySummary, error) {
	q := r.builder.Select(summaryColumns...).From(summariesTable)

	if filter.ItemType != nil {
		q = q.Where(squirrel.Eq{"item_type": *filter.ItemType})
	}
	if filter.SKU != "" {
		q = q.Where(squirrel.Eq{"sku": filter.SKU})
	}
	if filter.Year > 0 {
		q = q.Where(squirrel.Eq{"year": filter.Year})
	}
	if filter.Month > 0 {
		q = q.Where(squirrel.Eq{"month": filter.Month})
	}

	q = q.OrderBy("year DESC", "month DESC", "sku")
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

	var summaries []*summary.MonthlySummary
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &summaries, sql, args...); err != nil {
		return nil, postgres.MapError(err, "monthly summary", "select summaries")
	}
	return summaries, nil
}

// HasHistoryBefore reports whether any non-deleted ledger entry for the item
// has an effective date strictly before the instant.
func (r *Repo) HasHistoryBefore(ctx context.Context, item ledger.ItemRef, before time.Time) (bool, error) {
	sql := `
		SELECT 1
		FROM ledger_movements
		WHERE item_type = $1
		  AND fk_id = $2
		  AND variant_id IS NOT DISTINCT FROM $3
		  AND status <> 'DELETED'
		  AND effective_date < $4
		LIMIT 1
	`

	var one int
	querier := r.txManager.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, item.ItemType, item.FkID, item.VariantID, before).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, postgres.MapError(err, "ledger entry", "check history")
	}
	return true, nil
}

// AggregateRange folds the item's entries with effective_date in [from, to)
// into in/out quantity and value totals. DELETED entries are excluded;
// INACTIVE batches still count.
func (r *Repo) AggregateRange(ctx context.Context, item ledger.ItemRef, from, to time.Time) (summary.Flows, error) {
	sql := `
		SELECT
			COALESCE(SUM(CASE WHEN movement_type = 'IN' THEN quantity ELSE 0 END), 0) AS in_qty,
			COALESCE(SUM(CASE WHEN movement_type = 'OUT' THEN quantity ELSE 0 END), 0) AS out_qty,
			COALESCE(SUM(CASE WHEN movement_type = 'IN' THEN (quantity::numeric / 10000) * unit_cost ELSE 0 END), 0) AS in_value,
			COALESCE(SUM(CASE WHEN movement_type = 'OUT' THEN (quantity::numeric / 10000) * unit_cost ELSE 0 END), 0) AS out_value
		FROM ledger_movements
		WHERE item_type = $1
		  AND fk_id = $2
		  AND variant_id IS NOT DISTINCT FROM $3
		  AND status <> 'DELETED'
		  AND effective_date >= $4
		  AND effective_date < $5
	`

	var (
		inScaled, outScaled int64
		flows               summary.Flows
	)
	querier := r.txManager.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, item.ItemType, item.FkID, item.VariantID, from, to).
		Scan(&inScaled, &outScaled, &flows.InValue, &flows.OutValue)
	if err != nil && err != pgx.ErrNoRows {
		return summary.Flows{}, postgres.MapError(err, "ledger entry", "aggregate range")
	}
	flows.InQty = types.NewQuantityFromInt64Scaled(inScaled)
	flows.OutQty = types.NewQuantityFromInt64Scaled(outScaled)
	return flows, nil
}

// OpeningBefore computes the item's balance over all entries with
// effective_date strictly before the instant.
func (r *Repo) OpeningBefore(ctx context.Context, item ledger.ItemRef, before time.Time) (summary.Opening, error) {
	sql := `
		SELECT
			COALESCE(SUM(CASE WHEN movement_type = 'IN' THEN quantity ELSE -quantity END), 0) AS qty,
			COALESCE(SUM(CASE WHEN movement_type = 'IN'
				THEN (quantity::numeric / 10000) * unit_cost
				ELSE -(quantity::numeric / 10000) * unit_cost END), 0) AS value
		FROM ledger_movements
		WHERE item_type = $1
		  AND fk_id = $2
		  AND variant_id IS NOT DISTINCT FROM $3
		  AND status <> 'DELETED'
		  AND effective_date < $4
	`

	var (
		scaled  int64
		opening summary.Opening
	)
	querier := r.txManager.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, item.ItemType, item.FkID, item.VariantID, before).
		Scan(&scaled, &opening.Value)
	if err != nil && err != pgx.ErrNoRows {
		return summary.Opening{}, postgres.MapError(err, "ledger entry", "opening balance")
	}
	opening.Qty = types.NewQuantityFromInt64Scaled(scaled)
	return opening, nil
}

// DistinctItems enumerates every item identity present in the ledger.
func (r *Repo) DistinctItems(ctx context.Context) ([]ledger.ItemRef, error) {
	sql := `
		SELECT DISTINCT item_type, fk_id, sku, variant_id
		FROM ledger_movements
		WHERE status <> 'DELETED'
		ORDER BY item_type, sku
	`

	var items []ledger.ItemRef
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql); err != nil {
		return nil, postgres.MapError(err, "ledger entry", "distinct items")
	}
	return items, nil
}

// FirstEntryDate returns the item's earliest effective date, or NOT_FOUND.
func (r *Repo) FirstEntryDate(ctx context.Context, item ledger.ItemRef) (time.Time, error) {
	sql := `
		SELECT MIN(effective_date)
		FROM ledger_movements
		WHERE item_type = $1
		  AND fk_id = $2
		  AND variant_id IS NOT DISTINCT FROM $3
		  AND status <> 'DELETED'
	`

	var first *time.Time
	querier := r.txManager.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, item.ItemType, item.FkID, item.VariantID).Scan(&first)
	if err != nil && err != pgx.ErrNoRows {
		return time.Time{}, postgres.MapError(err, "ledger entry", "first entry date")
	}
	if first == nil {
		return time.Time{}, postgres.MapError(pgx.ErrNoRows, "ledger entry", "first entry date")
	}
	return *first, nil
}
