package dto

import (
	"time"

	"invcore/internal/core/apperror"
	"invcore/internal/core/types"
	"invcore/internal/domain/ledger"
)

// AppendMovementRequest creates one ledger movement.
type AppendMovementRequest struct {
	ItemRefRequest
	BatchNumber   string         `json:"batchNumber"`
	MovementType  string         `json:"movementType" binding:"required"`
	Source        string         `json:"source" binding:"required"`
	Quantity      types.Quantity `json:"quantity" binding:"required"`
	UnitCost      string         `json:"unitCost"`
	EffectiveDate string         `json:"effectiveDate"`
	Notes         string         `json:"notes"`
}

// ToEntry converts the request into a domain movement entry.
func (r AppendMovementRequest) ToEntry(actor string) (*ledger.MovementEntry, error) {
	item, err := r.ToItemRef()
	if err != nil {
		return nil, err
	}

	unitCost := types.ZeroMoney()
	if r.UnitCost != "" {
		unitCost, err = types.NewMoneyFromString(r.UnitCost)
		if err != nil {
			return nil, apperror.NewValidation("invalid unitCost").WithDetail("unitCost", r.UnitCost)
		}
	}

	var effectiveDate time.Time
	if r.EffectiveDate != "" {
		effectiveDate, err = time.Parse("2006-01-02", r.EffectiveDate)
		if err != nil {
			return nil, apperror.NewValidation("effectiveDate must be YYYY-MM-DD").
				WithDetail("effectiveDate", r.EffectiveDate)
		}
	}

	return &ledger.MovementEntry{
		ItemType:      item.ItemType,
		FkID:          item.FkID,
		SKU:           item.SKU,
		VariantID:     item.VariantID,
		BatchNumber:   r.BatchNumber,
		MovementType:  ledger.MovementType(r.MovementType),
		Source:        ledger.Source(r.Source),
		Quantity:      r.Quantity,
		UnitCost:      unitCost,
		EffectiveDate: effectiveDate,
		Notes:         r.Notes,
		CreatedBy:     actor,
	}, nil
}

// AppendBatchRequest creates several movements atomically.
type AppendBatchRequest struct {
	Entries []AppendMovementRequest `json:"entries" binding:"required"`
}

// MovementFilterRequest narrows ledger queries.
type MovementFilterRequest struct {
	ItemType     string `form:"itemType"`
	FkID         string `form:"fkId"`
	SKU          string `form:"sku"`
	VariantID    string `form:"variantId"`
	BatchNumber  string `form:"batchNumber"`
	MovementType string `form:"movementType"`
	Source       string `form:"source"`
	Status       string `form:"status"`
	FromDate     string `form:"fromDate"`
	ToDate       string `form:"toDate"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// ToFilter converts the query into a domain filter and page.
func (r MovementFilterRequest) ToFilter() (ledger.Filter, ledger.Page, error) {
	var filter ledger.Filter

	if r.ItemType != "" {
		t := ledger.ItemType(r.ItemType)
		filter.ItemType = &t
	}
	if r.FkID != "" {
		fkID, err := parseID(r.FkID, "fkId")
		if err != nil {
			return filter, ledger.Page{}, err
		}
		filter.FkID = &fkID
	}
	filter.SKU = r.SKU
	if r.VariantID != "" {
		variantID, err := parseID(r.VariantID, "variantId")
		if err != nil {
			return filter, ledger.Page{}, err
		}
		filter.VariantID = &variantID
	}
	filter.BatchNumber = r.BatchNumber
	if r.MovementType != "" {
		t := ledger.MovementType(r.MovementType)
		filter.MovementType = &t
	}
	if r.Source != "" {
		s := ledger.Source(r.Source)
		filter.Source = &s
	}
	if r.Status != "" {
		s := ledger.EntryStatus(r.Status)
		filter.Status = &s
	}
	if r.FromDate != "" {
		from, err := parseDate(r.FromDate, "fromDate")
		if err != nil {
			return filter, ledger.Page{}, err
		}
		filter.FromDate = &from
	}
	if r.ToDate != "" {
		to, err := parseDate(r.ToDate, "toDate")
		if err != nil {
			return filter, ledger.Page{}, err
		}
		filter.ToDate = &to
	}

	return filter, ledger.Page{Limit: r.Limit, Offset: r.Offset}, nil
}

// AvailabilityResponse reports the canonical available quantity for an item.
type AvailabilityResponse struct {
	Item      ledger.ItemRef `json:"item"`
	Available types.Quantity `json:"available"`
}
