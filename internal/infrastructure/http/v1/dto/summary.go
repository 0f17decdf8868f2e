package dto

import (
	"time"

	"invcore/internal/domain/ledger"
	"invcore/internal/domain/summary"
)

// GenerateSummaryRequest generates one (item, period) summary.
type GenerateSummaryRequest struct {
	ItemRefRequest
	Year  int `json:"year" binding:"required"`
	Month int `json:"month" binding:"required"`
}

// Period returns the requested period.
func (r GenerateSummaryRequest) Period() summary.Period {
	return summary.Period{Year: r.Year, Month: time.Month(r.Month)}
}

// GenerateAllRequest generates summaries for every ledger item up to the
// target period.
type GenerateAllRequest struct {
	Year  int `json:"year" binding:"required"`
	Month int `json:"month" binding:"required"`
}

// Period returns the target period.
func (r GenerateAllRequest) Period() summary.Period {
	return summary.Period{Year: r.Year, Month: time.Month(r.Month)}
}

// SummaryFilterRequest narrows summary listings.
type SummaryFilterRequest struct {
	ItemType string `form:"itemType"`
	SKU      string `form:"sku"`
	Year     int    `form:"year"`
	Month    int    `form:"month"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// ToFilter converts the query into a domain filter.
func (r SummaryFilterRequest) ToFilter() summary.ListFilter {
	filter := summary.ListFilter{
		SKU:    r.SKU,
		Year:   r.Year,
		Month:  r.Month,
		Limit:  r.Limit,
		Offset: r.Offset,
	}
	if r.ItemType != "" {
		t := ledger.ItemType(r.ItemType)
		filter.ItemType = &t
	}
	return filter
}
