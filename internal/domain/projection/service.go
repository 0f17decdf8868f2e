package projection

import (
	"context"

	"invcore/internal/core/clock"
	"invcore/internal/core/id"
	"invcore/internal/core/tx"
	"invcore/internal/domain/ledger"
	"invcore/pkg/logger"
)

// Service refreshes and serves the current-value projection.
type Service struct {
	repo      Repository
	txManager tx.Manager
	clk       clock.Clock
}

// NewService creates the projection service.
func NewService(repo Repository, txManager tx.Manager, clk clock.Clock) *Service {
	return &Service{repo: repo, txManager: txManager, clk: clk}
}

// Refresh recomputes one item's cached value from the ledger.
func (s *Service) Refresh(ctx context.Context, item ledger.ItemRef) error {
	if err := item.Validate(); err != nil {
		return err
	}
	return s.repo.RefreshItem(ctx, item, s.clk.Now())
}

// RefreshBulk refreshes a set of items, deduplicated by identity.
func (s *Service) RefreshBulk(ctx context.Context, items []ledger.ItemRef) error {
	seen := make(map[string]struct{}, len(items))
	now := s.clk.Now()
	for _, item := range items {
		if _, ok := seen[item.Key()]; ok {
			continue
		}
		seen[item.Key()] = struct{}{}
		if err := s.repo.RefreshItem(ctx, item, now); err != nil {
			return err
		}
	}
	return nil
}

// RefreshAll recomputes the whole projection in one aggregate pass.
func (s *Service) RefreshAll(ctx context.Context) error {
	return s.repo.RefreshAll(ctx, s.clk.Now())
}

// Rebuild drops and fully recomputes the projection.
func (s *Service) Rebuild(ctx context.Context) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.TruncateAll(ctx); err != nil {
			return err
		}
		return s.repo.RefreshAll(ctx, s.clk.Now())
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "projection rebuilt")
	return nil
}

// Get returns the cached row for an item.
func (s *Service) Get(ctx context.Context, itemType ledger.ItemType, fkID id.ID) (*CurrentValue, error) {
	return s.repo.Get(ctx, itemType, fkID)
}

// List returns cached rows.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*CurrentValue, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
