package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

func testOrder() *fulfillment.Order {
	return &fulfillment.Order{
		Number:       "A-1001",
		Series:       "A",
		Sequence:     1001,
		CustomerCode: "C-7",
		CustomerName: "Corner Shop",
		Items: []fulfillment.OrderLine{
			{RowNumber: 1, ProductCode: "P-1", Unit: "pcs", RequestedQty: decimal.NewFromInt(10), RemainingQty: decimal.NewFromInt(10)},
			{RowNumber: 2, ProductCode: "P-2", Unit: "kg", RequestedQty: decimal.NewFromInt(8), DeliveredQty: decimal.NewFromInt(3), RemainingQty: decimal.NewFromInt(5)},
		},
	}
}

func TestNewWorkflowCopiesSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	wf := NewWorkflow(testOrder(), now)

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "A-1001", wf.OrderNumber)
	assert.Equal(t, fulfillment.StatusPending, wf.Status)
	require.Len(t, wf.Lines, 2)
	assert.True(t, wf.Line(2).RemainingQty.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, fulfillment.LinePending, wf.Line(1).Status)
	assert.Nil(t, wf.Line(3))
}

func TestLineApplyIsMergePatch(t *testing.T) {
	line := NewLineState("A-1001", testOrder().Items[0], time.Now())
	shelf := "A1"
	line.Apply(fulfillment.LinePatch{ShelfCode: &shelf}, false)

	picked := decimal.NewFromInt(5)
	line.Apply(fulfillment.LinePatch{PickedQty: &picked}, false)

	require.NotNil(t, line.ShelfCode)
	assert.Equal(t, "A1", *line.ShelfCode)
	assert.True(t, line.PickedQty.Equal(picked))
	assert.Equal(t, fulfillment.LinePartial, line.Status)

	empty := ""
	line.Apply(fulfillment.LinePatch{ShelfCode: &empty}, false)
	assert.Nil(t, line.ShelfCode)
}

func TestRecomputeFinalizesUntouchedLines(t *testing.T) {
	now := time.Now()
	wf := NewWorkflow(testOrder(), now)
	wf.Status = fulfillment.StatusPicking
	wf.Line(1).PickedQty = decimal.NewFromInt(10)

	assert.True(t, wf.Recompute(now))
	assert.Equal(t, fulfillment.LinePicked, wf.Line(1).Status)
	assert.Equal(t, fulfillment.LinePending, wf.Line(2).Status)
	assert.Equal(t, fulfillment.StatusPicking, wf.Status)

	wf.Status = fulfillment.StatusPartiallyLoaded
	assert.True(t, wf.Recompute(now))
	assert.Equal(t, fulfillment.LineMissing, wf.Line(2).Status)
	assert.Equal(t, int64(2), wf.Line(2).Version)
	assert.Equal(t, fulfillment.StatusPartiallyLoaded, wf.Status)
}

func TestRecomputeClearsLoadedAtOnFallback(t *testing.T) {
	now := time.Now()
	wf := NewWorkflow(testOrder(), now)
	wf.Status = fulfillment.StatusLoaded
	wf.LoadingStartedAt = &now
	wf.LoadedAt = &now
	wf.Line(1).PickedQty = decimal.NewFromInt(10)
	wf.Line(2).PickedQty = decimal.NewFromInt(5)

	wf.Recompute(now)
	assert.Equal(t, fulfillment.StatusLoaded, wf.Status)
	assert.NotNil(t, wf.LoadedAt)

	wf.Line(2).PickedQty = decimal.NewFromInt(2)
	assert.True(t, wf.Recompute(now))
	assert.Equal(t, fulfillment.StatusPartiallyLoaded, wf.Status)
	assert.Nil(t, wf.LoadedAt)
	assert.NotNil(t, wf.LoadingStartedAt)
}

func TestRemovedLinesDoNotBlockReadiness(t *testing.T) {
	now := time.Now()
	wf := NewWorkflow(testOrder(), now)
	wf.Status = fulfillment.StatusPicking
	wf.Line(1).PickedQty = decimal.NewFromInt(10)
	wf.Line(2).UpstreamRemoved = true

	wf.Recompute(now)
	assert.Equal(t, fulfillment.StatusReadyForLoading, wf.Status)
}

func TestCloneIsDeep(t *testing.T) {
	wf := NewWorkflow(testOrder(), time.Now())
	picker := "u-1"
	wf.AssignedPickerUserID = &picker

	cp := wf.Clone()
	cp.Line(1).PickedQty = decimal.NewFromInt(99)
	*cp.AssignedPickerUserID = "u-2"

	assert.True(t, wf.Line(1).PickedQty.IsZero())
	assert.Equal(t, "u-1", *wf.AssignedPickerUserID)
}

func TestStockLevelAvailable(t *testing.T) {
	level := StockLevel{OnHand: decimal.NewFromInt(4), Reserved: decimal.NewFromInt(6)}
	assert.True(t, level.Available().IsZero())

	level.Reserved = decimal.NewFromInt(1)
	assert.True(t, level.Available().Equal(decimal.NewFromInt(3)))
}
