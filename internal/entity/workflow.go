package entity

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

// Workflow is the engine-owned tracking aggregate for one order.
type Workflow struct {
	bun.BaseModel `bun:"table:workflows,alias:wf"`

	ID                   string                     `bun:"id,notnull"`
	OrderNumber          string                     `bun:"order_number,pk"`
	Series               string                     `bun:"series,notnull"`
	Sequence             int                        `bun:"sequence,notnull"`
	CustomerCode         string                     `bun:"customer_code"`
	CustomerName         string                     `bun:"customer_name"`
	Status               fulfillment.WorkflowStatus `bun:"status,notnull"`
	AssignedPickerUserID *string                    `bun:"assigned_picker_user_id"`
	StartedAt            *time.Time                 `bun:"started_at"`
	LoadingStartedAt     *time.Time                 `bun:"loading_started_at"`
	LoadedAt             *time.Time                 `bun:"loaded_at"`
	DispatchedAt         *time.Time                 `bun:"dispatched_at"`
	LastActionAt         *time.Time                 `bun:"last_action_at"`
	Version              int64                      `bun:"version,notnull"`
	CreatedAt            time.Time                  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	Lines                []*LineState               `bun:"rel:has-many,join:order_number=order_number"`
}

// LineState is the picking progress of one order line, keyed by
// (order_number, row_number).
type LineState struct {
	bun.BaseModel `bun:"table:line_states,alias:ls"`

	OrderNumber          string                 `bun:"order_number,pk"`
	RowNumber            int                    `bun:"row_number,pk"`
	ProductCode          string                 `bun:"product_code,notnull"`
	ProductName          string                 `bun:"product_name"`
	Unit                 string                 `bun:"unit"`
	RequestedQty         decimal.Decimal        `bun:"requested_qty,type:numeric(18,3),notnull"`
	RemainingQty         decimal.Decimal        `bun:"remaining_qty,type:numeric(18,3),notnull"`
	PickedQty            decimal.Decimal        `bun:"picked_qty,type:numeric(18,3),notnull"`
	ExtraQty             decimal.Decimal        `bun:"extra_qty,type:numeric(18,3),notnull"`
	ShelfCode            *string                `bun:"shelf_code"`
	Status               fulfillment.LineStatus `bun:"status,notnull"`
	UpstreamRemoved      bool                   `bun:"upstream_removed,notnull"`
	UpstreamRemainingQty *decimal.Decimal       `bun:"upstream_remaining_qty,type:numeric(18,3)"`
	Version              int64                  `bun:"version,notnull"`
	UpdatedAt            time.Time              `bun:"updated_at,nullzero"`
}

// NewWorkflow materializes a workflow and its lines from an order snapshot,
// copying each line's remaining quantity at this instant.
func NewWorkflow(order *fulfillment.Order, now time.Time) *Workflow {
	wf := &Workflow{
		ID:           uuid.NewString(),
		OrderNumber:  order.Number,
		Series:       order.Series,
		Sequence:     order.Sequence,
		CustomerCode: order.CustomerCode,
		CustomerName: order.CustomerName,
		Status:       fulfillment.StatusPending,
		Version:      1,
		CreatedAt:    now,
		Lines:        make([]*LineState, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		wf.Lines = append(wf.Lines, NewLineState(order.Number, item, now))
	}
	return wf
}

// PendingWorkflow renders an order nobody has started as an unsaved PENDING
// workflow: no id, version zero.
func PendingWorkflow(order *fulfillment.Order) *Workflow {
	wf := NewWorkflow(order, order.OrderDate)
	wf.ID = ""
	wf.Version = 0
	for _, line := range wf.Lines {
		line.Version = 0
	}
	return wf
}

// NewLineState builds an untouched line from an upstream item.
func NewLineState(orderNumber string, item fulfillment.OrderLine, now time.Time) *LineState {
	return &LineState{
		OrderNumber:  orderNumber,
		RowNumber:    item.RowNumber,
		ProductCode:  item.ProductCode,
		ProductName:  item.ProductName,
		Unit:         item.Unit,
		RequestedQty: item.RequestedQty,
		RemainingQty: item.RemainingQty,
		PickedQty:    decimal.Zero,
		ExtraQty:     decimal.Zero,
		Status:       fulfillment.LinePending,
		Version:      1,
		UpdatedAt:    now,
	}
}

// Line returns the line with the given row number, or nil.
func (w *Workflow) Line(rowNumber int) *LineState {
	for _, line := range w.Lines {
		if line.RowNumber == rowNumber {
			return line
		}
	}
	return nil
}

// LineStatuses returns the status of every line that still exists upstream.
func (w *Workflow) LineStatuses() []fulfillment.LineStatus {
	statuses := make([]fulfillment.LineStatus, 0, len(w.Lines))
	for _, line := range w.Lines {
		if line.UpstreamRemoved {
			continue
		}
		statuses = append(statuses, line.Status)
	}
	return statuses
}

// Recompute re-derives every line status and then the workflow status. Lines
// whose status changed are touched, and a workflow that falls back from LOADED
// loses its LoadedAt. It reports whether anything changed.
func (w *Workflow) Recompute(now time.Time) bool {
	changed := false
	finalized := w.Status.Loading()
	for _, line := range w.Lines {
		if line.Rederive(finalized) {
			line.Touch(now)
			changed = true
		}
	}
	next := fulfillment.DeriveWorkflowStatus(w.Status, w.LineStatuses())
	if next != w.Status {
		w.Status = next
		changed = true
	}
	if w.Status != fulfillment.StatusLoaded && w.Status != fulfillment.StatusDispatched && w.LoadedAt != nil {
		// LoadedAt marks the current full load only.
		w.LoadedAt = nil
		changed = true
	}
	return changed
}

// Touch records a workflow-level change.
func (w *Workflow) Touch(now time.Time) {
	w.Version++
	at := now
	w.LastActionAt = &at
}

// SortLines orders lines by row number.
func (w *Workflow) SortLines() {
	sort.Slice(w.Lines, func(i, j int) bool { return w.Lines[i].RowNumber < w.Lines[j].RowNumber })
}

// Clone returns a deep copy of the workflow and its lines.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	cp := *w
	cp.AssignedPickerUserID = cloneString(w.AssignedPickerUserID)
	cp.StartedAt = cloneTime(w.StartedAt)
	cp.LoadingStartedAt = cloneTime(w.LoadingStartedAt)
	cp.LoadedAt = cloneTime(w.LoadedAt)
	cp.DispatchedAt = cloneTime(w.DispatchedAt)
	cp.LastActionAt = cloneTime(w.LastActionAt)
	cp.Lines = make([]*LineState, 0, len(w.Lines))
	for _, line := range w.Lines {
		cp.Lines = append(cp.Lines, line.Clone())
	}
	return &cp
}

// Quantities returns the derivation inputs of the line.
func (l *LineState) Quantities() fulfillment.LineQuantities {
	return fulfillment.LineQuantities{
		Remaining: l.RemainingQty,
		Picked:    l.PickedQty,
		Extra:     l.ExtraQty,
	}
}

// Shortage is max(0, remaining - picked).
func (l *LineState) Shortage() decimal.Decimal {
	return l.Quantities().Shortage()
}

// Rederive recomputes the line status and reports whether it changed.
func (l *LineState) Rederive(finalized bool) bool {
	next := fulfillment.DeriveLineStatus(l.Quantities(), finalized)
	if next == l.Status {
		return false
	}
	l.Status = next
	return true
}

// Apply merges the supplied patch fields into the line. Fields absent from the
// patch keep their stored value.
func (l *LineState) Apply(patch fulfillment.LinePatch, finalized bool) {
	if patch.PickedQty != nil {
		l.PickedQty = *patch.PickedQty
	}
	if patch.ExtraQty != nil {
		l.ExtraQty = *patch.ExtraQty
	}
	if patch.ShelfCode != nil {
		shelf := *patch.ShelfCode
		if shelf == "" {
			l.ShelfCode = nil
		} else {
			l.ShelfCode = &shelf
		}
	}
	l.Rederive(finalized)
}

// Touch records a line-level change.
func (l *LineState) Touch(now time.Time) {
	l.Version++
	l.UpdatedAt = now
}

// Clone returns a deep copy of the line.
func (l *LineState) Clone() *LineState {
	if l == nil {
		return nil
	}
	cp := *l
	cp.ShelfCode = cloneString(l.ShelfCode)
	if l.UpstreamRemainingQty != nil {
		qty := *l.UpstreamRemainingQty
		cp.UpstreamRemainingQty = &qty
	}
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
