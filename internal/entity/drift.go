package entity

import (
	"time"

	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

// Drift compares the workflow against the current upstream order without
// changing anything.
func (w *Workflow) Drift(order *fulfillment.Order) fulfillment.DriftReport {
	report := fulfillment.DriftReport{}
	if order == nil {
		report.OrderMissing = true
		return report
	}
	for _, item := range order.Items {
		line := w.Line(item.RowNumber)
		if line == nil || line.UpstreamRemoved {
			report.AddedRows = append(report.AddedRows, item.RowNumber)
			continue
		}
		if !item.RemainingQty.Equal(line.RemainingQty) {
			report.ChangedRows = append(report.ChangedRows, fulfillment.RowDrift{
				RowNumber:         item.RowNumber,
				SnapshotRemaining: line.RemainingQty,
				UpstreamRemaining: item.RemainingQty,
			})
		}
	}
	for _, line := range w.Lines {
		if line.UpstreamRemoved {
			continue
		}
		if _, ok := order.Line(line.RowNumber); !ok {
			report.RemovedRows = append(report.RemovedRows, line.RowNumber)
		}
	}
	return report
}

// Reconcile folds upstream changes into the workflow. New upstream lines are
// added, vanished lines are flagged as removed and changed remaining
// quantities are recorded next to the snapshotted ones. Picked and extra
// quantities are never discarded. It returns the drift found before applying.
func (w *Workflow) Reconcile(order *fulfillment.Order, now time.Time) fulfillment.DriftReport {
	report := w.Drift(order)
	if order == nil {
		return report
	}

	for _, item := range order.Items {
		line := w.Line(item.RowNumber)
		switch {
		case line == nil:
			w.Lines = append(w.Lines, NewLineState(w.OrderNumber, item, now))
		case line.UpstreamRemoved:
			line.UpstreamRemoved = false
			line.setUpstreamRemaining(item)
			line.Touch(now)
		default:
			if line.setUpstreamRemaining(item) {
				line.Touch(now)
			}
		}
	}
	for _, row := range report.RemovedRows {
		line := w.Line(row)
		line.UpstreamRemoved = true
		line.Touch(now)
	}
	w.SortLines()
	return report
}

// setUpstreamRemaining records the upstream remaining quantity when it
// differs from the snapshot and reports whether the line changed.
func (l *LineState) setUpstreamRemaining(item fulfillment.OrderLine) bool {
	if item.RemainingQty.Equal(l.RemainingQty) {
		if l.UpstreamRemainingQty == nil {
			return false
		}
		l.UpstreamRemainingQty = nil
		return true
	}
	if l.UpstreamRemainingQty != nil && l.UpstreamRemainingQty.Equal(item.RemainingQty) {
		return false
	}
	qty := item.RemainingQty
	l.UpstreamRemainingQty = &qty
	return true
}
