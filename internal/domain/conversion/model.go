// Package conversion provides the conversion/production transaction
// coordinator: atomic transformation of input items into output items.
package conversion

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
)

// ItemLine is one input or output of a conversion. Fixed shape, validated at
// the coordinator boundary rather than deep in storage.
type ItemLine struct {
	SKU      string          `json:"sku"`
	Quantity types.Quantity  `json:"quantity"`
	Unit     string          `json:"unit"`
	ItemType ledger.ItemType `json:"itemType"`
	FkID     id.ID           `json:"fkId"`

	// VariantID narrows the item identity when the SKU has variants.
	VariantID *id.ID `json:"variantId,omitempty"`

	// UnitCost is honored on outputs when provided; otherwise the output cost
	// is derived from the total input cost.
	UnitCost *types.Money `json:"unitCost,omitempty"`
}

// Item returns the line's item identity.
func (l ItemLine) Item() ledger.ItemRef {
	return ledger.ItemRef{ItemType: l.ItemType, FkID: l.FkID, SKU: l.SKU, VariantID: l.VariantID}
}

// Validate checks the line shape.
func (l ItemLine) Validate() error {
	if err := l.Item().Validate(); err != nil {
		return err
	}
	if !l.Quantity.IsPositive() {
		return apperror.NewValidation("line quantity must be positive").
			WithDetail("sku", l.SKU).
			WithDetail("quantity", l.Quantity.String())
	}
	if l.UnitCost != nil && l.UnitCost.IsNegative() {
		return apperror.NewValidation("line unit cost must be non-negative").
			WithDetail("sku", l.SKU)
	}
	return nil
}

// Lines is a JSONB-persisted list of item lines.
type Lines []ItemLine

// Value implements driver.Valuer for JSONB storage.
func (l Lines) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (l *Lines) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into conversion.Lines", src)
	}
}

// Validate checks every line and requires at least one.
func (l Lines) Validate(kind string) error {
	if len(l) == 0 {
		return apperror.NewValidation(fmt.Sprintf("at least one %s is required", kind))
	}
	for i, line := range l {
		if err := line.Validate(); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return appErr.WithDetail("line", i)
			}
			return err
		}
	}
	return nil
}

// RecordStatus is the lifecycle state of a conversion record.
type RecordStatus string

const (
	RecordPending    RecordStatus = "PENDING"
	RecordCompleted  RecordStatus = "COMPLETED"
	RecordRejected   RecordStatus = "REJECTED"
	RecordRolledBack RecordStatus = "ROLLED_BACK"
)

// Record is the auditable result of one conversion/production execution.
// Created exactly once per successful execution; immutable thereafter except
// soft delete.
type Record struct {
	ID id.ID `db:"id" json:"id"`

	// ReferenceCode is the unique, human-readable code shared by every ledger
	// entry the conversion produced.
	ReferenceCode string `db:"reference_code" json:"referenceCode"`

	TemplateID *id.ID `db:"template_id" json:"templateId,omitempty"`

	// Inputs/Outputs snapshot the resolved lines at execution time.
	Inputs  Lines `db:"inputs" json:"inputs"`
	Outputs Lines `db:"outputs" json:"outputs"`

	TotalInputCost types.Money  `db:"total_input_cost" json:"totalInputCost"`
	Status         RecordStatus `db:"status" json:"status"`
	Notes          string       `db:"notes" json:"notes,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	CreatedBy string     `db:"created_by" json:"createdBy,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeletedBy string     `db:"deleted_by" json:"deletedBy,omitempty"`
}

// TemplateStatus is the lifecycle state of a conversion template.
type TemplateStatus string

const (
	TemplateActive   TemplateStatus = "ACTIVE"
	TemplateInactive TemplateStatus = "INACTIVE"
	TemplateArchived TemplateStatus = "ARCHIVED"
)

// Template is a named, reusable inputs/outputs recipe. Read-only input to the
// coordinator.
type Template struct {
	ID     id.ID  `db:"id" json:"id"`
	Code   string `db:"code" json:"code"`
	Name   string `db:"name" json:"name"`
	Inputs Lines  `db:"inputs" json:"inputs"`

	Outputs Lines          `db:"outputs" json:"outputs"`
	Status  TemplateStatus `db:"status" json:"status"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate checks template invariants.
func (t *Template) Validate(ctx context.Context) error {
	if t.Name == "" {
		return apperror.NewValidation("template name is required")
	}
	if err := t.Inputs.Validate("input"); err != nil {
		return err
	}
	return t.Outputs.Validate("output")
}
