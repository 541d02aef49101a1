package dto

import (
	"time"

	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

// CoverageSummary aggregates line coverage for one order.
type CoverageSummary struct {
	TotalLines     int  `json:"totalLines"`
	FullLines      int  `json:"fullLines"`
	PartialLines   int  `json:"partialLines"`
	MissingLines   int  `json:"missingLines"`
	CoveredPercent int  `json:"coveredPercent"`
	StockUnknown   bool `json:"stockUnknown"`
}

// NewCoverageSummary maps a domain summary.
func NewCoverageSummary(s fulfillment.CoverageSummary) CoverageSummary {
	return CoverageSummary(s)
}

// Detail is the single-order view.
type Detail struct {
	Order            *OrderHeader             `json:"order,omitempty"`
	Workflow         Workflow                 `json:"workflow"`
	Lines            []Line                   `json:"lines"`
	Coverage         CoverageSummary          `json:"coverage"`
	Drift            *fulfillment.DriftReport `json:"drift,omitempty"`
	OrderUnavailable bool                     `json:"orderUnavailable,omitempty"`
}

// OrderSummary is one order row in the overview.
type OrderSummary struct {
	OrderNumber          string                     `json:"orderNumber"`
	Series               string                     `json:"series"`
	Sequence             int                        `json:"sequence"`
	CustomerCode         string                     `json:"customerCode"`
	CustomerName         string                     `json:"customerName"`
	Status               fulfillment.WorkflowStatus `json:"status"`
	AssignedPickerUserID *string                    `json:"assignedPickerUserId,omitempty"`
	LastActionAt         *time.Time                 `json:"lastActionAt,omitempty"`
	CoverageSummary
}

// SeriesSummary carries the totals of one series.
type SeriesSummary struct {
	Series string                             `json:"series"`
	Total  int                                `json:"total"`
	Counts map[fulfillment.WorkflowStatus]int `json:"countsByStatus"`
}

// Overview is the all-orders board: per-series totals and the flat order
// list sorted by series, then sequence.
type Overview struct {
	Series            []SeriesSummary `json:"series"`
	Orders            []OrderSummary  `json:"orders"`
	TotalOrders       int             `json:"totalOrders"`
	OrdersUnavailable bool            `json:"ordersUnavailable,omitempty"`
	StockUnknown      bool            `json:"stockUnknown,omitempty"`
}
