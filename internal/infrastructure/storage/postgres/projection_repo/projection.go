// Package projection_repo provides the PostgreSQL implementation of the
// current-value projection repository.
package projection_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"invcore/internal/core/id"
	"invcore/internal/domain/ledger"
	"invcore/internal/domain/projection"
	"invcore/internal/infrastructure/storage/postgres"
)

const currentValuesTable = "current_values"

var currentValueColumns = []string{
	"item_type", "fk_id", "sku", "variant_id",
	"current_qty", "current_value", "refreshed_at",
}

// Repo implements projection.Repository.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRepo creates a new projection repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ projection.Repository = (*Repo)(nil)

// RefreshItem recomputes one item's row from the ledger in a single aggregate
// pass and upserts it. Items with no active batches get a zero row.
func (r *Repo) RefreshItem(ctx context.Context, item ledger.ItemRef, at time.Time) error {
	sql := `
		INSERT INTO current_values (item_type, fk_id, sku, variant_id, current_qty, current_value, refreshed_at)
		SELECT $1, $2, $4, $3,
		       COALESCE(SUM(remaining_qty), 0),
		       COALESCE(SUM((remaining_qty::numeric / 10000) * unit_cost), 0),
		       $5
		FROM ledger_movements
		WHERE item_type = $1
		  AND fk_id = $2
		  AND variant_id IS NOT DISTINCT FROM $3
		  AND movement_type = 'IN'
		  AND status = 'ACTIVE'
		ON CONFLICT (item_type, fk_id, variant_key) DO UPDATE SET
			sku = EXCLUDED.sku,
			current_qty = EXCLUDED.current_qty,
			current_value = EXCLUDED.current_value,
			refreshed_at = EXCLUDED.refreshed_at
	`

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, item.ItemType, item.FkID, item.VariantID, item.SKU, at); err != nil {
		return postgres.MapError(err, "current value", "refresh item")
	}
	return nil
}

// RefreshAll recomputes every item present in the ledger.
func (r *Repo) RefreshAll(ctx context.Context, at time.Time) error {
	sql := `
		INSERT INTO current_values (item_type, fk_id, sku, variant_id, current_qty, current_value, refreshed_at)
		SELECT item_type, fk_id, MAX(sku), variant_id,
		       COALESCE(SUM(CASE WHEN movement_type = 'IN' AND status = 'ACTIVE' THEN remaining_qty ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN movement_type = 'IN' AND status = 'ACTIVE'
		           THEN (remaining_qty::numeric / 10000) * unit_cost ELSE 0 END), 0),
		       $1
		FROM ledger_movements
		WHERE status <> 'DELETED'
		GROUP BY item_type, fk_id, variant_id
		ON CONFLICT (item_type, fk_id, variant_key) DO UPDATE SET
			sku = EXCLUDED.sku,
			current_qty = EXCLUDED.current_qty,
			current_value = EXCLUDED.current_value,
			refreshed_at = EXCLUDED.refreshed_at
	`

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, at); err != nil {
		return postgres.MapError(err, "current value", "refresh all")
	}
	return nil
}

// Get returns the cached row for an item, or NOT_FOUND.
func (r *Repo) Get(ctx context.Context, itemType ledger.ItemType, fkID id.ID) (*projection.CurrentValue, error) {
	q := r.builder.Select(currentValueColumns...).
		From(currentValuesTable).
		Where(squirrel.Eq{"item_type": itemType, "fk_id": fkID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var cv projection.CurrentValue
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &cv, sql, args...); err != nil {
		return nil, postgres.MapError(err, "current value", "get current value")
	}
	return &cv, nil
}

// List returns cached rows ordered by item.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]*projection.CurrentValue, error) {
	q := r.builder.Select(currentValueColumns...).
		From(currentValuesTable).
		OrderBy("item_type", "sku")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var values []*projection.CurrentValue
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &values, sql, args...); err != nil {
		return nil, postgres.MapError(err, "current value", "select current values")
	}
	return values, nil
}

// TruncateAll drops every cached row.
func (r *Repo) TruncateAll(ctx context.Context) error {
	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, "DELETE FROM current_values"); err != nil {
		return postgres.MapError(err, "current value", "truncate projection")
	}
	return nil
}
