package fulfillment

import "github.com/shopspring/decimal"

// RowDrift is a line whose upstream remaining quantity no longer matches the
// quantity snapshotted when picking started.
type RowDrift struct {
	RowNumber         int             `json:"rowNumber"`
	SnapshotRemaining decimal.Decimal `json:"snapshotRemainingQty"`
	UpstreamRemaining decimal.Decimal `json:"upstreamRemainingQty"`
}

// DriftReport lists differences between a workflow and the current upstream
// order.
type DriftReport struct {
	AddedRows    []int      `json:"addedRows"`
	RemovedRows  []int      `json:"removedRows"`
	ChangedRows  []RowDrift `json:"changedRows"`
	OrderMissing bool       `json:"orderMissing"`
}

// Empty reports whether the workflow matches upstream.
func (d DriftReport) Empty() bool {
	return len(d.AddedRows) == 0 && len(d.RemovedRows) == 0 && len(d.ChangedRows) == 0 && !d.OrderMissing
}
