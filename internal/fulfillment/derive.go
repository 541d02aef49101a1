package fulfillment

import "github.com/shopspring/decimal"

// LineQuantities are the inputs of line status derivation.
type LineQuantities struct {
	Remaining decimal.Decimal
	Picked    decimal.Decimal
	Extra     decimal.Decimal
}

// Shortage is the unfulfilled remainder, max(0, remaining - picked).
func (q LineQuantities) Shortage() decimal.Decimal {
	short := q.Remaining.Sub(q.Picked)
	if short.IsNegative() {
		return decimal.Zero
	}
	return short
}

// DeriveLineStatus classifies a line from its quantities. finalized is true
// once the order has moved into loading; only then does an untouched line with
// something left to pick become MISSING.
func DeriveLineStatus(q LineQuantities, finalized bool) LineStatus {
	picked := q.Picked.IsPositive()
	extra := q.Extra.IsPositive()

	switch {
	case !picked && !extra:
		if finalized && q.Remaining.IsPositive() {
			return LineMissing
		}
		return LinePending
	case !q.Remaining.IsPositive():
		return LineExtra
	case q.Picked.GreaterThanOrEqual(q.Remaining):
		return LinePicked
	case picked:
		return LinePartial
	default:
		return LineExtra
	}
}

// DeriveWorkflowStatus recomputes the aggregate status from the current one
// and the set of line statuses. Only set membership matters, so the result is
// independent of line order.
func DeriveWorkflowStatus(current WorkflowStatus, lines []LineStatus) WorkflowStatus {
	allDone := true
	incomplete := false
	touched := false
	for _, status := range lines {
		if !status.Done() {
			allDone = false
		}
		if status == LinePartial || status == LineMissing {
			incomplete = true
		}
		if status != LinePending {
			touched = true
		}
	}

	switch current {
	case StatusDispatched, StatusPartiallyLoaded:
		return current
	case StatusLoaded:
		if incomplete {
			return StatusPartiallyLoaded
		}
		return StatusLoaded
	}

	if allDone && len(lines) > 0 {
		return StatusReadyForLoading
	}
	if current == StatusPending && !touched {
		return StatusPending
	}
	return StatusPicking
}
