package ledger

import (
	"context"
	"fmt"

	"invcore/internal/core/apperror"
	"invcore/internal/core/clock"
	"invcore/internal/core/id"
	"invcore/internal/core/tx"
	"invcore/internal/core/types"
	"invcore/pkg/logger"
)

// Refresher schedules current-value projection refreshes for items touched by
// a ledger mutation. Scheduling is fire-and-forget: implementations never
// block and never surface failures into the caller's error path.
type Refresher interface {
	Schedule(items ...ItemRef)
}

// NopRefresher discards refresh requests. Used by CLIs that rebuild the
// projection explicitly.
type NopRefresher struct{}

func (NopRefresher) Schedule(...ItemRef) {}

// Service is the movement ledger store.
type Service struct {
	repo      Repository
	txManager tx.Manager
	refresher Refresher
	clk       clock.Clock
}

// NewService creates the ledger store service.
func NewService(repo Repository, txManager tx.Manager, refresher Refresher, clk clock.Clock) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		refresher: refresher,
		clk:       clk,
	}
}

// Append validates and persists one movement entry, then schedules a
// best-effort projection refresh for the touched item.
func (s *Service) Append(ctx context.Context, entry *MovementEntry) (id.ID, error) {
	if err := s.prepare(ctx, entry); err != nil {
		return id.Nil(), err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Insert(ctx, entry)
	})
	if err != nil {
		return id.Nil(), err
	}

	logger.Info(ctx, "movement appended",
		"id", entry.ID,
		"sku", entry.SKU,
		"movement_type", entry.MovementType,
		"quantity", entry.Quantity,
	)

	s.refresher.Schedule(entry.Item())
	return entry.ID, nil
}

// AppendBatch persists entries atomically. All entries share one batch number
// when none is supplied.
func (s *Service) AppendBatch(ctx context.Context, entries []*MovementEntry) ([]id.ID, error) {
	if len(entries) == 0 {
		return nil, apperror.NewValidation("at least one entry is required")
	}

	sharedBatch := fmt.Sprintf("MOV-%s", id.New())
	for i, entry := range entries {
		if entry.BatchNumber == "" {
			entry.BatchNumber = sharedBatch
		}
		if err := s.prepare(ctx, entry); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("index", i)
			}
			return nil, err
		}
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.InsertBatch(ctx, entries)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]id.ID, len(entries))
	items := make([]ItemRef, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
		item := entry.Item()
		if _, ok := seen[item.Key()]; !ok {
			seen[item.Key()] = struct{}{}
			items = append(items, item)
		}
	}

	logger.Info(ctx, "movement batch appended", "count", len(entries), "items", len(items))

	s.refresher.Schedule(items...)
	return ids, nil
}

// Query retrieves ledger entries for external callers.
func (s *Service) Query(ctx context.Context, filter Filter, page Page) (EntryPage, error) {
	if page.Limit <= 0 || page.Limit > 500 {
		page.Limit = 100
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return s.repo.List(ctx, filter, page)
}

// GetByID retrieves one entry.
func (s *Service) GetByID(ctx context.Context, entryID id.ID) (*MovementEntry, error) {
	return s.repo.GetByID(ctx, entryID)
}

// Delete soft-deletes an entry, preserving FIFO/audit history, and schedules
// a projection refresh for the touched item.
func (s *Service) Delete(ctx context.Context, entryID id.ID, deletedBy string) error {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.SoftDelete(ctx, entryID, deletedBy, s.clk.Now())
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "movement soft-deleted", "id", entryID, "deleted_by", deletedBy)

	s.refresher.Schedule(entry.Item())
	return nil
}

// Availability returns the canonical available quantity for an item.
func (s *Service) Availability(ctx context.Context, item ItemRef) (types.Quantity, error) {
	if err := item.Validate(); err != nil {
		return 0, err
	}
	return s.repo.AvailableQuantity(ctx, item)
}

// prepare validates the entry and fills in defaults prior to insert.
func (s *Service) prepare(ctx context.Context, entry *MovementEntry) error {
	if entry == nil {
		return apperror.NewValidation("entry is required")
	}
	if err := entry.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.EffectiveDate.IsZero() {
		entry.EffectiveDate = clock.Today(s.clk)
	} else {
		entry.EffectiveDate = clock.Truncate(entry.EffectiveDate)
	}
	if entry.Status == "" {
		entry.Status = StatusActive
	}
	if entry.MovementType == MovementIn {
		entry.RemainingQty = entry.Quantity
	} else {
		entry.RemainingQty = 0
	}
	if entry.CreatedBy == "" {
		entry.CreatedBy = "system"
	}

	now := s.clk.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}
