package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

// Workflow is the tracking header of one order.
type Workflow struct {
	ID                   string                     `json:"id,omitempty"`
	OrderNumber          string                     `json:"orderNumber"`
	Status               fulfillment.WorkflowStatus `json:"status"`
	AssignedPickerUserID *string                    `json:"assignedPickerUserId,omitempty"`
	StartedAt            *time.Time                 `json:"startedAt,omitempty"`
	LoadingStartedAt     *time.Time                 `json:"loadingStartedAt,omitempty"`
	LoadedAt             *time.Time                 `json:"loadedAt,omitempty"`
	DispatchedAt         *time.Time                 `json:"dispatchedAt,omitempty"`
	LastActionAt         *time.Time                 `json:"lastActionAt,omitempty"`
	Version              int64                      `json:"version"`
	Persisted            bool                       `json:"persisted"`
}

// Line is one line with its picking state and, on reads, live coverage.
type Line struct {
	RowNumber            int                        `json:"rowNumber"`
	ProductCode          string                     `json:"productCode"`
	ProductName          string                     `json:"productName"`
	Unit                 string                     `json:"unit"`
	RequestedQty         decimal.Decimal            `json:"requestedQty"`
	RemainingQty         decimal.Decimal            `json:"remainingQty"`
	PickedQty            decimal.Decimal            `json:"pickedQty"`
	ExtraQty             decimal.Decimal            `json:"extraQty"`
	ShortageQty          decimal.Decimal            `json:"shortageQty"`
	ShelfCode            *string                    `json:"shelfCode,omitempty"`
	Status               fulfillment.LineStatus     `json:"status"`
	Version              int64                      `json:"version"`
	UpstreamRemoved      bool                       `json:"upstreamRemoved,omitempty"`
	UpstreamRemainingQty *decimal.Decimal           `json:"upstreamRemainingQty,omitempty"`
	StockAvailable       *decimal.Decimal           `json:"stockAvailable,omitempty"`
	StockCoverageStatus  fulfillment.CoverageStatus `json:"stockCoverageStatus,omitempty"`
	StockCoveragePercent *int                       `json:"stockCoveragePercent,omitempty"`
	StockUnknown         bool                       `json:"stockUnknown,omitempty"`
}

// WorkflowState is a workflow together with its lines, returned by commands.
type WorkflowState struct {
	Workflow Workflow `json:"workflow"`
	Lines    []Line   `json:"lines"`
}

// LineUpdate is the result of a single line update.
type LineUpdate struct {
	Workflow Workflow `json:"workflow"`
	Line     Line     `json:"line"`
}

// ReconcileResult is a reconciled workflow with the drift that was folded in.
type ReconcileResult struct {
	WorkflowState
	Drift fulfillment.DriftReport `json:"drift"`
}

// NewWorkflow maps a stored workflow header.
func NewWorkflow(wf *entity.Workflow) Workflow {
	return Workflow{
		ID:                   wf.ID,
		OrderNumber:          wf.OrderNumber,
		Status:               wf.Status,
		AssignedPickerUserID: wf.AssignedPickerUserID,
		StartedAt:            wf.StartedAt,
		LoadingStartedAt:     wf.LoadingStartedAt,
		LoadedAt:             wf.LoadedAt,
		DispatchedAt:         wf.DispatchedAt,
		LastActionAt:         wf.LastActionAt,
		Version:              wf.Version,
		Persisted:            wf.ID != "",
	}
}

// NewLine maps a line without coverage.
func NewLine(l *entity.LineState) Line {
	return Line{
		RowNumber:            l.RowNumber,
		ProductCode:          l.ProductCode,
		ProductName:          l.ProductName,
		Unit:                 l.Unit,
		RequestedQty:         l.RequestedQty,
		RemainingQty:         l.RemainingQty,
		PickedQty:            l.PickedQty,
		ExtraQty:             l.ExtraQty,
		ShortageQty:          l.Shortage(),
		ShelfCode:            l.ShelfCode,
		Status:               l.Status,
		Version:              l.Version,
		UpstreamRemoved:      l.UpstreamRemoved,
		UpstreamRemainingQty: l.UpstreamRemainingQty,
	}
}

// WithCoverage attaches live stock coverage.
func (l Line) WithCoverage(c fulfillment.LineCoverage) Line {
	stock := c.StockAvailable
	percent := c.Percent
	l.StockAvailable = &stock
	l.StockCoverageStatus = c.Status
	l.StockCoveragePercent = &percent
	l.StockUnknown = c.Unknown
	return l
}

// NewWorkflowState maps a workflow and all of its lines.
func NewWorkflowState(wf *entity.Workflow) WorkflowState {
	state := WorkflowState{Workflow: NewWorkflow(wf), Lines: make([]Line, 0, len(wf.Lines))}
	for _, line := range wf.Lines {
		state.Lines = append(state.Lines, NewLine(line))
	}
	return state
}
