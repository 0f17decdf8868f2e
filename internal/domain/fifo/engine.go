// Package fifo provides the FIFO consumption engine: oldest-first batch
// allocation with per-batch cost tracking.
package fifo

import (
	"context"

	"invcore/internal/core/apperror"
	"invcore/internal/core/clock"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
)

// Allocation records quantity taken from one batch during a consumption.
type Allocation struct {
	// Batch is the IN entry the quantity was taken from.
	Batch *ledger.MovementEntry `json:"batch"`

	QtyTaken types.Quantity `json:"qtyTaken"`
	UnitCost types.Money    `json:"unitCost"`

	// Cost = QtyTaken x UnitCost.
	Cost types.Money `json:"cost"`
}

// Consumption is the result of satisfying a required quantity from an item's
// batches. TotalCost is the weighted sum across the batches actually touched,
// not a blended rate: FIFO costing accuracy depends on it.
type Consumption struct {
	Item        ledger.ItemRef `json:"item"`
	Required    types.Quantity `json:"required"`
	Allocations []Allocation   `json:"allocations"`
	TotalCost   types.Money    `json:"totalCost"`
}

// Engine selects and consumes ledger batches oldest-first.
//
// Concurrency: the batch scan locks the rows it reads (SELECT ... FOR UPDATE)
// for the duration of the enclosing transaction, so two concurrent consumers
// serialize on the same batches and can never both take the same unit of
// remaining quantity. Consume must therefore run inside a transaction.
type Engine struct {
	repo ledger.Repository
	clk  clock.Clock
}

// NewEngine creates a FIFO consumption engine.
func NewEngine(repo ledger.Repository, clk clock.Clock) *Engine {
	return &Engine{repo: repo, clk: clk}
}

// Consume allocates requiredQty from the item's ACTIVE batches in
// effective-date order (entry id as tie-break). Partially consumed batches
// have their remaining quantity decremented in place; exhausted batches are
// marked INACTIVE. All-or-nothing per item: if the summed availability is
// short, no batch is mutated and an INSUFFICIENT_STOCK error carrying
// required vs available is returned.
func (e *Engine) Consume(ctx context.Context, item ledger.ItemRef, requiredQty types.Quantity) (Consumption, error) {
	result := Consumption{Item: item, Required: requiredQty, TotalCost: types.ZeroMoney()}

	if err := item.Validate(); err != nil {
		return result, err
	}
	if !requiredQty.IsPositive() {
		return result, apperror.NewValidation("required quantity must be positive").
			WithDetail("required", requiredQty.String())
	}

	batches, err := e.repo.ActiveBatchesForUpdate(ctx, item)
	if err != nil {
		return result, err
	}

	var available types.Quantity
	for _, b := range batches {
		available += b.RemainingQty
	}
	if available < requiredQty {
		return result, apperror.NewInsufficientStock(item.SKU, requiredQty.String(), available.String())
	}

	needed := requiredQty
	now := e.clk.Now()
	for _, batch := range batches {
		if needed.IsZero() {
			break
		}

		take := batch.RemainingQty.Min(needed)
		remaining := batch.RemainingQty - take

		status := ledger.StatusActive
		if remaining.IsZero() {
			status = ledger.StatusInactive
		}
		if err := e.repo.UpdateBatchConsumption(ctx, batch.ID, remaining, status, now); err != nil {
			return result, err
		}
		batch.RemainingQty = remaining
		batch.Status = status

		cost := batch.UnitCost.Mul(take.Decimal())
		result.Allocations = append(result.Allocations, Allocation{
			Batch:    batch,
			QtyTaken: take,
			UnitCost: batch.UnitCost,
			Cost:     cost,
		})
		result.TotalCost = result.TotalCost.Add(cost)
		needed -= take
	}

	return result, nil
}

// Availability returns the canonical available quantity: the sum of remaining
// quantity over the item's ACTIVE batches. Takes no locks.
func (e *Engine) Availability(ctx context.Context, item ledger.ItemRef) (types.Quantity, error) {
	return e.repo.AvailableQuantity(ctx, item)
}
