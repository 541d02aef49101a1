package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveLineStatus(t *testing.T) {
	tests := []struct {
		name      string
		q         LineQuantities
		finalized bool
		want      LineStatus
	}{
		{"untouched", LineQuantities{Remaining: qty(10)}, false, LinePending},
		{"untouched after loading", LineQuantities{Remaining: qty(10)}, true, LineMissing},
		{"nothing remaining untouched", LineQuantities{Remaining: qty(0)}, true, LinePending},
		{"fully picked", LineQuantities{Remaining: qty(10), Picked: qty(10)}, false, LinePicked},
		{"over picked", LineQuantities{Remaining: qty(10), Picked: qty(60)}, false, LinePicked},
		{"partially picked", LineQuantities{Remaining: qty(10), Picked: qty(3)}, false, LinePartial},
		{"partial with extra", LineQuantities{Remaining: qty(10), Picked: qty(3), Extra: qty(2)}, false, LinePartial},
		{"only extra", LineQuantities{Remaining: qty(10), Extra: qty(2)}, false, LineExtra},
		{"extra on delivered line", LineQuantities{Remaining: qty(0), Extra: qty(1)}, false, LineExtra},
		{"picked on delivered line", LineQuantities{Remaining: qty(0), Picked: qty(1)}, false, LineExtra},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveLineStatus(tt.q, tt.finalized))
		})
	}
}

func TestShortage(t *testing.T) {
	assert.True(t, LineQuantities{Remaining: qty(10), Picked: qty(4)}.Shortage().Equal(qty(6)))
	assert.True(t, LineQuantities{Remaining: qty(10), Picked: qty(14)}.Shortage().IsZero())
}

func TestDeriveWorkflowStatus(t *testing.T) {
	tests := []struct {
		name    string
		current WorkflowStatus
		lines   []LineStatus
		want    WorkflowStatus
	}{
		{"pending untouched", StatusPending, []LineStatus{LinePending, LinePending}, StatusPending},
		{"pending with progress", StatusPending, []LineStatus{LinePartial, LinePending}, StatusPicking},
		{"picking in progress", StatusPicking, []LineStatus{LinePicked, LinePending}, StatusPicking},
		{"all picked", StatusPicking, []LineStatus{LinePicked, LinePicked}, StatusReadyForLoading},
		{"picked and extra", StatusPicking, []LineStatus{LinePicked, LineExtra}, StatusReadyForLoading},
		{"ready reverts", StatusReadyForLoading, []LineStatus{LinePicked, LinePartial}, StatusPicking},
		{"no lines stays picking", StatusPicking, nil, StatusPicking},
		{"loaded stays loaded", StatusLoaded, []LineStatus{LinePicked, LineExtra}, StatusLoaded},
		{"loaded edited short", StatusLoaded, []LineStatus{LinePicked, LinePartial}, StatusPartiallyLoaded},
		{"partially loaded stays", StatusPartiallyLoaded, []LineStatus{LinePicked, LinePicked}, StatusPartiallyLoaded},
		{"dispatched frozen", StatusDispatched, []LineStatus{LineMissing}, StatusDispatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveWorkflowStatus(tt.current, tt.lines))
		})
	}
}

func TestDeriveWorkflowStatusIsOrderIndependent(t *testing.T) {
	sets := [][]LineStatus{
		{LinePicked, LinePending, LineExtra},
		{LinePicked, LinePartial, LineMissing, LineExtra},
		{LinePicked, LineExtra, LinePicked},
		{LinePending, LinePending, LinePartial},
	}
	currents := []WorkflowStatus{StatusPending, StatusPicking, StatusReadyForLoading, StatusLoaded, StatusPartiallyLoaded}

	for _, set := range sets {
		for _, current := range currents {
			want := DeriveWorkflowStatus(current, set)
			for _, perm := range permutations(set) {
				assert.Equal(t, want, DeriveWorkflowStatus(current, perm), "current=%s lines=%v", current, perm)
			}
		}
	}
}

func TestWorkflowStatusPrecedence(t *testing.T) {
	for i := 1; i < len(WorkflowStatuses); i++ {
		assert.Greater(t, WorkflowStatuses[i].Precedence(), WorkflowStatuses[i-1].Precedence())
	}
	assert.Equal(t, -1, WorkflowStatus("SHIPPED").Precedence())

	status, err := ParseWorkflowStatus(" ready_for_loading ")
	assert.NoError(t, err)
	assert.Equal(t, StatusReadyForLoading, status)

	_, err = ParseWorkflowStatus("shipped")
	assert.Error(t, err)
}

func permutations(in []LineStatus) [][]LineStatus {
	if len(in) <= 1 {
		return [][]LineStatus{append([]LineStatus(nil), in...)}
	}
	var out [][]LineStatus
	for i := range in {
		rest := make([]LineStatus, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]LineStatus{in[i]}, p...))
		}
	}
	return out
}
