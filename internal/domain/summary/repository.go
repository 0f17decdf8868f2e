package summary

import (
	"context"
	"time"

	"invcore/internal/domain/ledger"
)

// Repository persists monthly summaries and provides the ledger aggregates
// the reconciler folds. The reconciler owns summary rows exclusively.
//
// All ledger aggregates exclude DELETED entries; INACTIVE batches still count
// (they were real receipts, only fully consumed since).
type Repository interface {
	// Get returns the summary for (item, period), or NOT_FOUND.
	Get(ctx context.Context, item ledger.ItemRef, period Period) (*MonthlySummary, error)

	// Exists reports whether a summary row exists for (item, period).
	Exists(ctx context.Context, item ledger.ItemRef, period Period) (bool, error)

	// Upsert persists a summary keyed by its natural composite key.
	Upsert(ctx context.Context, s *MonthlySummary) error

	// List returns summaries matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*MonthlySummary, error)

	// HasHistoryBefore reports whether any ledger entry for the item has an
	// effective date strictly before the given instant.
	HasHistoryBefore(ctx context.Context, item ledger.ItemRef, before time.Time) (bool, error)

	// AggregateRange folds the item's entries with effective_date in
	// [from, to) into in/out quantity and value totals.
	AggregateRange(ctx context.Context, item ledger.ItemRef, from, to time.Time) (Flows, error)

	// OpeningBefore computes the item's balance (sum IN - sum OUT, quantity
	// and value) over all entries with effective_date strictly before the
	// instant.
	OpeningBefore(ctx context.Context, item ledger.ItemRef, before time.Time) (Opening, error)

	// DistinctItems enumerates every item identity present in the ledger.
	DistinctItems(ctx context.Context) ([]ledger.ItemRef, error)

	// FirstEntryDate returns the item's earliest effective date, or
	// NOT_FOUND when the item has no ledger history.
	FirstEntryDate(ctx context.Context, item ledger.ItemRef) (time.Time, error)
}

// ListFilter narrows summary listings.
type ListFilter struct {
	ItemType *ledger.ItemType
	SKU      string
	Year     int
	Month    int
	Limit    int
	Offset   int
}
