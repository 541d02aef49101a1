package fulfillment

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStart(t *testing.T) {
	action, err := CheckStart(StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StartBegin, action)

	for _, status := range []WorkflowStatus{StatusPicking, StatusReadyForLoading, StatusPartiallyLoaded, StatusLoaded} {
		action, err := CheckStart(status)
		require.NoError(t, err, status)
		assert.Equal(t, StartNoop, action, status)
	}

	_, err = CheckStart(StatusDispatched)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheckLoad(t *testing.T) {
	tests := []struct {
		from    WorkflowStatus
		full    bool
		want    WorkflowStatus
		wantErr bool
	}{
		{StatusPicking, true, StatusLoaded, false},
		{StatusPicking, false, StatusPartiallyLoaded, false},
		{StatusReadyForLoading, true, StatusLoaded, false},
		{StatusReadyForLoading, false, StatusPartiallyLoaded, false},
		{StatusPartiallyLoaded, true, StatusLoaded, false},
		{StatusPartiallyLoaded, false, StatusPartiallyLoaded, true},
		{StatusPending, true, StatusPending, true},
		{StatusLoaded, true, StatusLoaded, true},
		{StatusDispatched, false, StatusDispatched, true},
	}

	for _, tt := range tests {
		got, err := CheckLoad(tt.from, tt.full)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s full=%v", tt.from, tt.full)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestCheckDispatchAndMutable(t *testing.T) {
	assert.NoError(t, CheckDispatch(StatusLoaded))
	assert.NoError(t, CheckDispatch(StatusPartiallyLoaded))
	assert.ErrorIs(t, CheckDispatch(StatusReadyForLoading), ErrInvalidTransition)
	assert.ErrorIs(t, CheckDispatch(StatusDispatched), ErrInvalidTransition)

	assert.NoError(t, CheckMutable(StatusLoaded, EventUpdateLine))
	err := CheckMutable(StatusDispatched, EventUpdateLine)
	require.Error(t, err)

	var transitionErr *TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, StatusDispatched, transitionErr.From)
	assert.Equal(t, EventUpdateLine, transitionErr.Event)
}

func TestLinePatchValidate(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	five := decimal.NewFromInt(5)
	shelf := "A1"

	assert.ErrorIs(t, LinePatch{}.Validate(), ErrEmptyPatch)
	assert.ErrorIs(t, LinePatch{PickedQty: &neg}.Validate(), ErrNegativeQuantity)
	assert.ErrorIs(t, LinePatch{ExtraQty: &neg}.Validate(), ErrNegativeQuantity)
	assert.NoError(t, LinePatch{PickedQty: &five}.Validate())
	assert.NoError(t, LinePatch{ShelfCode: &shelf}.Validate())
}
