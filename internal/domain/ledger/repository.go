package ledger

import (
	"context"
	"time"

	"invcore/internal/core/id"
	"invcore/internal/core/types"
)

// Repository defines persistence operations for the movement ledger.
type Repository interface {
	// Insert appends a single entry.
	Insert(ctx context.Context, entry *MovementEntry) error

	// InsertBatch appends entries in bulk (used by batch commands and the
	// conversion coordinator, always within a transaction).
	InsertBatch(ctx context.Context, entries []*MovementEntry) error

	// GetByID retrieves one entry.
	GetByID(ctx context.Context, entryID id.ID) (*MovementEntry, error)

	// List retrieves entries matching the filter, newest first.
	List(ctx context.Context, filter Filter, page Page) (EntryPage, error)

	// SoftDelete marks an entry DELETED, preserving it for audit.
	SoftDelete(ctx context.Context, entryID id.ID, deletedBy string, at time.Time) error

	// ActiveBatchesForUpdate returns the item's ACTIVE IN batches with
	// remaining quantity, ordered by effective_date then id, with row locks
	// held to transaction end. Requires a transaction in context.
	ActiveBatchesForUpdate(ctx context.Context, item ItemRef) ([]*MovementEntry, error)

	// UpdateBatchConsumption sets a batch's remaining quantity and status.
	// Only called by the FIFO engine under the locks taken by
	// ActiveBatchesForUpdate.
	UpdateBatchConsumption(ctx context.Context, batchID id.ID, remaining types.Quantity, status EntryStatus, at time.Time) error

	// AvailableQuantity returns the canonical availability: the sum of
	// remaining quantity over the item's ACTIVE IN batches.
	AvailableQuantity(ctx context.Context, item ItemRef) (types.Quantity, error)
}

// Filter narrows ledger queries.
type Filter struct {
	ItemType     *ItemType
	FkID         *id.ID
	SKU          string
	VariantID    *id.ID
	BatchNumber  string
	MovementType *MovementType
	Source       *Source
	Status       *EntryStatus
	FromDate     *time.Time
	ToDate       *time.Time
}

// Page controls result pagination.
type Page struct {
	Limit  int
	Offset int
}

// EntryPage is one page of query results.
type EntryPage struct {
	Entries []*MovementEntry `json:"entries"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}
