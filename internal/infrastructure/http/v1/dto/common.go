// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"invcore/internal/core/apperror"
	"invcore/internal/core/id"
	"invcore/internal/domain/ledger"
)

// Envelope is the standard response wrapper.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items  any   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// ItemRefRequest identifies an item in requests, by query or body.
type ItemRefRequest struct {
	ItemType  string `json:"itemType" form:"itemType" binding:"required"`
	FkID      string `json:"fkId" form:"fkId" binding:"required"`
	SKU       string `json:"sku" form:"sku" binding:"required"`
	VariantID string `json:"variantId" form:"variantId"`
}

// ToItemRef parses and validates the request into a domain ItemRef.
func (r ItemRefRequest) ToItemRef() (ledger.ItemRef, error) {
	fkID, err := id.Parse(r.FkID)
	if err != nil {
		return ledger.ItemRef{}, apperror.NewValidation("invalid fkId").WithDetail("fkId", r.FkID)
	}

	item := ledger.ItemRef{
		ItemType: ledger.ItemType(r.ItemType),
		FkID:     fkID,
		SKU:      r.SKU,
	}
	if r.VariantID != "" {
		variantID, err := id.Parse(r.VariantID)
		if err != nil {
			return ledger.ItemRef{}, apperror.NewValidation("invalid variantId").WithDetail("variantId", r.VariantID)
		}
		item.VariantID = &variantID
	}

	if err := item.Validate(); err != nil {
		return ledger.ItemRef{}, err
	}
	return item, nil
}
