package fulfillment

import (
	"fmt"
	"strings"
)

// WorkflowStatus is the aggregate status of one order's physical fulfillment.
type WorkflowStatus string

const (
	StatusPending         WorkflowStatus = "PENDING"
	StatusPicking         WorkflowStatus = "PICKING"
	StatusReadyForLoading WorkflowStatus = "READY_FOR_LOADING"
	StatusPartiallyLoaded WorkflowStatus = "PARTIALLY_LOADED"
	StatusLoaded          WorkflowStatus = "LOADED"
	StatusDispatched      WorkflowStatus = "DISPATCHED"
)

// WorkflowStatuses lists every workflow status in ascending precedence.
var WorkflowStatuses = []WorkflowStatus{
	StatusPending,
	StatusPicking,
	StatusReadyForLoading,
	StatusPartiallyLoaded,
	StatusLoaded,
	StatusDispatched,
}

// Precedence ranks the status; a higher value wins when statuses are combined.
func (s WorkflowStatus) Precedence() int {
	for i, status := range WorkflowStatuses {
		if status == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known workflow status.
func (s WorkflowStatus) Valid() bool {
	return s.Precedence() >= 0
}

// Terminal reports whether no further mutation is accepted.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusDispatched
}

// Loading reports whether the order has physically started going onto a truck.
func (s WorkflowStatus) Loading() bool {
	return s == StatusPartiallyLoaded || s == StatusLoaded || s == StatusDispatched
}

// Open reports whether the workflow still needs warehouse attention.
func (s WorkflowStatus) Open() bool {
	return s != StatusDispatched
}

// ParseWorkflowStatus accepts the status name in any case.
func ParseWorkflowStatus(raw string) (WorkflowStatus, error) {
	status := WorkflowStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown workflow status %q", raw)
	}
	return status, nil
}

// LineStatus is the derived picking state of one order line.
type LineStatus string

const (
	LinePending LineStatus = "PENDING"
	LinePicked  LineStatus = "PICKED"
	LinePartial LineStatus = "PARTIAL"
	LineMissing LineStatus = "MISSING"
	LineExtra   LineStatus = "EXTRA"
)

// Done reports whether the line no longer blocks the order from loading.
func (s LineStatus) Done() bool {
	return s == LinePicked || s == LineExtra
}

// CoverageStatus classifies how far current stock can satisfy a line.
type CoverageStatus string

const (
	CoverageFull    CoverageStatus = "FULL"
	CoveragePartial CoverageStatus = "PARTIAL"
	CoverageNone    CoverageStatus = "NONE"
)
