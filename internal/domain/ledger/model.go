// Package ledger provides the movement ledger, the single source of truth
// for stock. Entries are append-mostly: once committed they are immutable
// except for the remaining-quantity/status mutation performed by the FIFO
// engine and soft deletion.
package ledger

import (
	"context"
	"fmt"
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
	"invcore/internal/core/types"
)

// ItemType classifies the owning item record.
type ItemType string

const (
	ItemTypeMaterial ItemType = "MATERIAL"
	ItemTypeProduct  ItemType = "PRODUCT"
)

// Valid reports whether the item type is a recognized enum value.
func (t ItemType) Valid() bool {
	return t == ItemTypeMaterial || t == ItemTypeProduct
}

// MovementType defines the direction of a movement.
// Quantity is always non-negative; direction is given by the movement type.
type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// Source identifies the business operation that produced a movement.
type Source string

const (
	SourcePurchase       Source = "PURCHASE"
	SourceProduction     Source = "PRODUCTION"
	SourceSales          Source = "SALES"
	SourceAdjustment     Source = "ADJUSTMENT"
	SourceCustomerReturn Source = "CUSTOMER_RETURN"
	SourceVendorReturn   Source = "VENDOR_RETURN"
	SourceOpeningStock   Source = "OPENING_STOCK"
)

func (s Source) Valid() bool {
	switch s {
	case SourcePurchase, SourceProduction, SourceSales, SourceAdjustment,
		SourceCustomerReturn, SourceVendorReturn, SourceOpeningStock:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of a ledger entry.
// INACTIVE marks fully consumed batches: excluded from FIFO scans and
// availability, retained for audit and period aggregation.
type EntryStatus string

const (
	StatusActive   EntryStatus = "ACTIVE"
	StatusInactive EntryStatus = "INACTIVE"
	StatusDeleted  EntryStatus = "DELETED"
)

// ItemRef identifies one inventory item (SKU or variant) across all components.
type ItemRef struct {
	ItemType  ItemType `db:"item_type" json:"itemType"`
	FkID      id.ID    `db:"fk_id" json:"fkId"`
	SKU       string   `db:"sku" json:"sku"`
	VariantID *id.ID   `db:"variant_id" json:"variantId,omitempty"`
}

// Key returns a stable grouping key for the item.
func (r ItemRef) Key() string {
	v := ""
	if r.VariantID != nil {
		v = r.VariantID.String()
	}
	return fmt.Sprintf("%s/%s/%s", r.ItemType, r.FkID, v)
}

// Validate checks the identity invariants.
func (r ItemRef) Validate() error {
	if !r.ItemType.Valid() {
		return apperror.NewValidation("item_type must be MATERIAL or PRODUCT").
			WithDetail("item_type", string(r.ItemType))
	}
	if id.IsNil(r.FkID) {
		return apperror.NewValidation("fk_id is required")
	}
	if r.SKU == "" {
		return apperror.NewValidation("sku is required")
	}
	return nil
}

// MovementEntry is one row of the movement ledger.
type MovementEntry struct {
	ID        id.ID    `db:"id" json:"id"`
	ItemType  ItemType `db:"item_type" json:"itemType"`
	FkID      id.ID    `db:"fk_id" json:"fkId"`
	SKU       string   `db:"sku" json:"sku"`
	VariantID *id.ID   `db:"variant_id" json:"variantId,omitempty"`

	// BatchNumber groups entries created by one transaction. Not unique.
	BatchNumber string `db:"batch_number" json:"batchNumber"`

	MovementType MovementType `db:"movement_type" json:"movementType"`
	Source       Source       `db:"source" json:"source"`

	// Quantity is the original movement magnitude, always >= 0.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// RemainingQty is the unconsumed portion of an IN batch, materialized on
	// the row and guarded by the row lock held during FIFO consumption.
	// Always zero for OUT entries.
	RemainingQty types.Quantity `db:"remaining_qty" json:"remainingQty"`

	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// EffectiveDate is the business date (date-only, UTC midnight), distinct
	// from the creation timestamp.
	EffectiveDate time.Time `db:"effective_date" json:"effectiveDate"`

	Status EntryStatus `db:"status" json:"status"`
	Notes  string      `db:"notes" json:"notes,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	CreatedBy string     `db:"created_by" json:"createdBy,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	UpdatedBy string     `db:"updated_by" json:"updatedBy,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeletedBy string     `db:"deleted_by" json:"deletedBy,omitempty"`
}

// Item returns the entry's item identity.
func (e *MovementEntry) Item() ItemRef {
	return ItemRef{ItemType: e.ItemType, FkID: e.FkID, SKU: e.SKU, VariantID: e.VariantID}
}

// SignedQuantity returns quantity with sign based on movement type.
// IN = positive, OUT = negative.
func (e *MovementEntry) SignedQuantity() types.Quantity {
	if e.MovementType == MovementOut {
		return e.Quantity.Neg()
	}
	return e.Quantity
}

// Value returns quantity x unit cost for the original movement magnitude.
func (e *MovementEntry) Value() types.Money {
	return e.UnitCost.Mul(e.Quantity.Decimal())
}

// RemainingValue returns remaining quantity x unit cost for an IN batch.
func (e *MovementEntry) RemainingValue() types.Money {
	return e.UnitCost.Mul(e.RemainingQty.Decimal())
}

// Validate checks entry invariants. Does not touch the database.
func (e *MovementEntry) Validate(ctx context.Context) error {
	if err := e.Item().Validate(); err != nil {
		return err
	}
	if !e.MovementType.Valid() {
		return apperror.NewValidation("movement_type must be IN or OUT").
			WithDetail("movement_type", string(e.MovementType))
	}
	if !e.Source.Valid() {
		return apperror.NewValidation("unrecognized movement source").
			WithDetail("source", string(e.Source))
	}
	if e.Quantity.IsNegative() {
		return apperror.NewValidation("quantity must be non-negative").
			WithDetail("quantity", e.Quantity.String())
	}
	if e.UnitCost.IsNegative() {
		return apperror.NewValidation("unit_cost must be non-negative").
			WithDetail("unit_cost", e.UnitCost.String())
	}
	return nil
}
