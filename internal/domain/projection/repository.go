package projection

import (
	"context"
	"time"

	"invcore/internal/core/id"
	"invcore/internal/domain/ledger"
)

// Repository persists the current-value projection. Rows are only ever
// written by refresh operations, never hand-edited.
type Repository interface {
	// RefreshItem recomputes one item's row from the ledger in a single
	// aggregate pass and upserts it.
	RefreshItem(ctx context.Context, item ledger.ItemRef, at time.Time) error

	// RefreshAll recomputes every item present in the ledger.
	RefreshAll(ctx context.Context, at time.Time) error

	// Get returns the cached row for an item, or NOT_FOUND.
	Get(ctx context.Context, itemType ledger.ItemType, fkID id.ID) (*CurrentValue, error)

	// List returns all cached rows.
	List(ctx context.Context, limit, offset int) ([]*CurrentValue, error)

	// TruncateAll drops every cached row. The projection is disposable.
	TruncateAll(ctx context.Context) error
}
