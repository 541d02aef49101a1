package fulfillment

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyPatch       = errors.New("at least one of pickedQty, extraQty or shelfCode is required")
	ErrNegativeQuantity = errors.New("quantities must not be negative")
)

// LinePatch is a merge-patch for one line: nil fields are left untouched.
type LinePatch struct {
	PickedQty *decimal.Decimal
	ExtraQty  *decimal.Decimal
	ShelfCode *string
	// IfVersion opts into optimistic concurrency for this update.
	IfVersion *int64
}

// Validate checks the patch before any state is touched.
func (p LinePatch) Validate() error {
	if p.PickedQty == nil && p.ExtraQty == nil && p.ShelfCode == nil {
		return ErrEmptyPatch
	}
	if p.PickedQty != nil && p.PickedQty.IsNegative() {
		return ErrNegativeQuantity
	}
	if p.ExtraQty != nil && p.ExtraQty.IsNegative() {
		return ErrNegativeQuantity
	}
	return nil
}
