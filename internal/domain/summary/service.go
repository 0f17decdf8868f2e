package summary

import (
	"context"
	"fmt"

	"invcore/internal/core/apperror"
	"invcore/internal/core/clock"
	"invcore/internal/core/id"
	"invcore/internal/core/tx"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
	"invcore/pkg/logger"
)

// Service is the monthly summary reconciler.
//
// Generation for one item is strictly sequential by month: each month's
// opening balance is the previous month's closing balance. Different items
// are independent of one another.
type Service struct {
	repo      Repository
	txManager tx.Manager
	clk       clock.Clock
}

// NewService creates the reconciler.
func NewService(repo Repository, txManager tx.Manager, clk clock.Clock) *Service {
	return &Service{repo: repo, txManager: txManager, clk: clk}
}

// Generate computes and persists the summary for (item, period).
//
// Fails with ALREADY_EXISTS when the row exists (the existing row is left
// untouched) and with NO_HISTORY when no ledger entries exist for the item up
// to the end of the period.
func (s *Service) Generate(ctx context.Context, item ledger.ItemRef, period Period) (*MonthlySummary, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var result *MonthlySummary
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.repo.Exists(ctx, item, period)
		if err != nil {
			return err
		}
		if exists {
			return apperror.NewAlreadyExists("monthly summary",
				fmt.Sprintf("%s %s", item.SKU, period))
		}

		hasHistory, err := s.repo.HasHistoryBefore(ctx, item, period.End())
		if err != nil {
			return err
		}
		if !hasHistory {
			return apperror.NewNoHistory(item.SKU, period.String())
		}

		opening, err := s.openingBalance(ctx, item, period)
		if err != nil {
			return err
		}

		flows, err := s.repo.AggregateRange(ctx, item, period.Start(), period.End())
		if err != nil {
			return err
		}

		result = s.build(item, period, opening, flows)
		return s.repo.Upsert(ctx, result)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "monthly summary generated",
		"sku", item.SKU,
		"period", period.String(),
		"closing_qty", result.ClosingQty,
	)
	return result, nil
}

// openingBalance carries forward the prior month's closing when a summary
// exists (O(1)), otherwise recomputes from raw ledger history before the
// period's first day, clamped at zero.
func (s *Service) openingBalance(ctx context.Context, item ledger.ItemRef, period Period) (Opening, error) {
	prev, err := s.repo.Get(ctx, item, period.Prev())
	if err == nil {
		return Opening{Qty: prev.ClosingQty, Value: prev.ClosingValue}, nil
	}
	if !apperror.IsNotFound(err) {
		return Opening{}, err
	}

	opening, err := s.repo.OpeningBefore(ctx, item, period.Start())
	if err != nil {
		return Opening{}, err
	}
	if opening.Qty.IsNegative() {
		opening.Qty = 0
	}
	if opening.Value.IsNegative() {
		opening.Value = types.ZeroMoney()
	}
	return opening, nil
}

func (s *Service) build(item ledger.ItemRef, period Period, opening Opening, flows Flows) *MonthlySummary {
	closingQty := opening.Qty + flows.InQty - flows.OutQty

	// The closing value is derived from the rounded components so the
	// persisted row satisfies closing = opening + in - out exactly, and
	// the carried-forward opening agrees with what the row shows.
	openingValue := types.RoundMoney(opening.Value)
	inValue := types.RoundMoney(flows.InValue)
	outValue := types.RoundMoney(flows.OutValue)
	closingValue := openingValue.Add(inValue).Sub(outValue)

	return &MonthlySummary{
		ID:           id.New(),
		ItemType:     item.ItemType,
		FkID:         item.FkID,
		SKU:          item.SKU,
		VariantID:    item.VariantID,
		Year:         period.Year,
		Month:        int(period.Month),
		OpeningQty:   opening.Qty,
		InQty:        flows.InQty,
		OutQty:       flows.OutQty,
		ClosingQty:   closingQty,
		OpeningValue: openingValue,
		InValue:      inValue,
		OutValue:     outValue,
		ClosingValue: closingValue,
		GeneratedAt:  s.clk.Now(),
	}
}

// UnitStatus classifies the outcome of one (item, period) generation.
type UnitStatus string

const (
	UnitGenerated     UnitStatus = "GENERATED"
	UnitSkippedExists UnitStatus = "SKIPPED_EXISTS"
	UnitNoHistory     UnitStatus = "NO_HISTORY"
	UnitFailed        UnitStatus = "FAILED"
)

// UnitResult is the outcome of one (item, period) generation attempt.
type UnitResult struct {
	Item   ledger.ItemRef `json:"item"`
	Period string         `json:"period"`
	Status UnitStatus     `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// BulkResult is the structured multi-result of a bulk generation.
type BulkResult struct {
	Results   []UnitResult `json:"results"`
	Generated int          `json:"generated"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
}

// GenerateAll generates summaries for every ledger item, walking each item
// month-by-month from its first ledger record to the target period.
//
// Failures are isolated per (item, period): one failing unit never aborts the
// rest. Months of one item stay sequential; a failed month stops that item's
// walk because the next month's opening would be unreliable.
func (s *Service) GenerateAll(ctx context.Context, target Period) (BulkResult, error) {
	if err := target.Validate(); err != nil {
		return BulkResult{}, err
	}

	items, err := s.repo.DistinctItems(ctx)
	if err != nil {
		return BulkResult{}, err
	}

	var result BulkResult
	for _, item := range items {
		first, err := s.repo.FirstEntryDate(ctx, item)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			result.record(UnitResult{Item: item, Period: target.String(), Status: UnitFailed, Error: err.Error()})
			continue
		}

		for p := PeriodOf(first); !target.Before(p); p = p.Next() {
			unit := s.generateUnit(ctx, item, p)
			result.record(unit)
			if unit.Status == UnitFailed {
				break
			}
		}
	}

	logger.Info(ctx, "bulk summary generation finished",
		"target", target.String(),
		"generated", result.Generated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *Service) generateUnit(ctx context.Context, item ledger.ItemRef, period Period) UnitResult {
	unit := UnitResult{Item: item, Period: period.String()}
	_, err := s.Generate(ctx, item, period)
	switch {
	case err == nil:
		unit.Status = UnitGenerated
	case apperror.IsAlreadyExists(err):
		unit.Status = UnitSkippedExists
	case apperror.IsNoHistory(err):
		unit.Status = UnitNoHistory
	default:
		unit.Status = UnitFailed
		unit.Error = err.Error()
	}
	return unit
}

// Get retrieves one summary.
func (s *Service) Get(ctx context.Context, item ledger.ItemRef, period Period) (*MonthlySummary, error) {
	return s.repo.Get(ctx, item, period)
}

// List retrieves summaries for external callers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*MonthlySummary, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

func (r *BulkResult) record(unit UnitResult) {
	r.Results = append(r.Results, unit)
	switch unit.Status {
	case UnitGenerated:
		r.Generated++
	case UnitFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}
