// Package projection provides the derived current-value cache: quantity and
// value on hand per item, rebuilt from the ledger after mutations. Never
// authoritative; safe to drop and fully rebuild at any time.
package projection

import (
	"time"

	"invcore/internal/core/id"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
)

// CurrentValue is the cached projection row for one item.
//
// CurrentQty is the canonical availability (sum of remaining quantity over
// ACTIVE batches); CurrentValue is the same sum weighted by batch unit cost.
type CurrentValue struct {
	ItemType  ledger.ItemType `db:"item_type" json:"itemType"`
	FkID      id.ID           `db:"fk_id" json:"fkId"`
	SKU       string          `db:"sku" json:"sku"`
	VariantID *id.ID          `db:"variant_id" json:"variantId,omitempty"`

	CurrentQty   types.Quantity `db:"current_qty" json:"currentQty"`
	CurrentValue types.Money    `db:"current_value" json:"currentValue"`

	RefreshedAt time.Time `db:"refreshed_at" json:"refreshedAt"`
}
