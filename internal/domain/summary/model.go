// Package summary provides the monthly opening/closing balance reconciler.
package summary

import (
	"fmt"
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
)

// Period identifies one calendar month.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the period (UTC midnight, day 1).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following period. Aggregation ranges
// are half-open: [Start, End).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Prev returns the immediately preceding period.
func (p Period) Prev() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// Next returns the immediately following period.
func (p Period) Next() Period {
	return PeriodOf(p.End())
}

// Before reports whether p precedes other.
func (p Period) Before(other Period) bool {
	return p.Start().Before(other.Start())
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Validate checks the period is a real calendar month.
func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December {
		return apperror.NewValidation("month must be 1..12").WithDetail("month", int(p.Month))
	}
	if p.Year < 1970 || p.Year > 9999 {
		return apperror.NewValidation("year out of range").WithDetail("year", p.Year)
	}
	return nil
}

// MonthlySummary is the per-item, per-month rollup. One row per
// (item, period); generated once, never silently overwritten.
//
// Invariant: ClosingQty = OpeningQty + InQty - OutQty, and the value identity
// holds exactly (2-decimal precision on persisted values).
type MonthlySummary struct {
	ID        id.ID           `db:"id" json:"id"`
	ItemType  ledger.ItemType `db:"item_type" json:"itemType"`
	FkID      id.ID           `db:"fk_id" json:"fkId"`
	SKU       string          `db:"sku" json:"sku"`
	VariantID *id.ID          `db:"variant_id" json:"variantId,omitempty"`

	Year  int `db:"year" json:"year"`
	Month int `db:"month" json:"month"`

	OpeningQty types.Quantity `db:"opening_qty" json:"openingQty"`
	InQty      types.Quantity `db:"in_qty" json:"inQty"`
	OutQty     types.Quantity `db:"out_qty" json:"outQty"`
	ClosingQty types.Quantity `db:"closing_qty" json:"closingQty"`

	OpeningValue types.Money `db:"opening_value" json:"openingValue"`
	InValue      types.Money `db:"in_value" json:"inValue"`
	OutValue     types.Money `db:"out_value" json:"outValue"`
	ClosingValue types.Money `db:"closing_value" json:"closingValue"`

	GeneratedAt time.Time `db:"generated_at" json:"generatedAt"`
}

// Item returns the summary's item identity.
func (s *MonthlySummary) Item() ledger.ItemRef {
	return ledger.ItemRef{ItemType: s.ItemType, FkID: s.FkID, SKU: s.SKU, VariantID: s.VariantID}
}

// Period returns the summary's period.
func (s *MonthlySummary) Period() Period {
	return Period{Year: s.Year, Month: time.Month(s.Month)}
}

// Flows holds in/out aggregates for one item over a date range.
type Flows struct {
	InQty    types.Quantity
	OutQty   types.Quantity
	InValue  types.Money
	OutValue types.Money
}

// Opening holds a computed opening balance.
type Opening struct {
	Qty   types.Quantity
	Value types.Money
}
