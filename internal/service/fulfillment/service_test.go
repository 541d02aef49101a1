package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/coordinator"
	"github.com/Additional-Code/fulfillment/internal/dto"
	domain "github.com/Additional-Code/fulfillment/internal/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/messaging"
	"github.com/Additional-Code/fulfillment/internal/repository/workflow"
	"github.com/Additional-Code/fulfillment/internal/snapshot"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

type fakeSnapshots struct {
	mu          sync.Mutex
	orders      map[string]*domain.Order
	err         error
	invalidated int
}

func (f *fakeSnapshots) Get(_ context.Context, orderNumber string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	order, ok := f.orders[orderNumber]
	if !ok {
		return nil, snapshot.ErrOrderNotFound
	}
	cp := *order
	cp.Items = append([]domain.OrderLine(nil), order.Items...)
	return &cp, nil
}

func (f *fakeSnapshots) Invalidate(context.Context, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeSnapshots) set(order *domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.Number] = order
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (f *fakePublisher) Publish(_ context.Context, out messaging.Message) error {
	var msg domain.Message
	if err := json.Unmarshal(out.Value, &msg); err != nil {
		return err
	}
	if out.EventType() != msg.Type || string(out.Key) != msg.OrderNumber {
		return errors.New("routing metadata does not match payload")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakePublisher) Topic() string { return "fulfillment.events" }

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.Type)
	}
	return out
}

type denyAll struct{}

func (denyAll) Authorize(context.Context, domain.Event, string) error {
	return errors.New("kiosk not registered")
}

func qty(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func qtyPtr(v int64) *decimal.Decimal {
	d := qty(v)
	return &d
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		Number:       "A-1001",
		Series:       "A",
		Sequence:     1001,
		CustomerName: "Corner Shop",
		Items: []domain.OrderLine{
			{RowNumber: 1, ProductCode: "P-1", RequestedQty: qty(10), RemainingQty: qty(10)},
			{RowNumber: 2, ProductCode: "P-2", RequestedQty: qty(5), RemainingQty: qty(5)},
		},
	}
}

type harness struct {
	svc       *Service
	store     *workflow.MemoryStore
	snapshots *fakeSnapshots
	published *fakePublisher
}

func newHarness(t *testing.T, auth Authorizer) *harness {
	t.Helper()
	var cfg config.Config
	cfg.Messaging.Enabled = true

	h := &harness{
		store:     workflow.NewMemoryStore(),
		snapshots: &fakeSnapshots{orders: map[string]*domain.Order{"A-1001": sampleOrder()}},
		published: &fakePublisher{},
	}
	h.svc = NewService(Params{
		Store:      h.store,
		Snapshots:  h.snapshots,
		Locker:     coordinator.NewLocker(),
		Publisher:  h.published,
		Config:     cfg,
		Authorizer: auth,
	})
	clock := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	h.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return h
}

func (h *harness) pick(t *testing.T, row int, picked int64) *LineResult {
	t.Helper()
	res, err := h.svc.UpdateLine(context.Background(), "A-1001", row, domain.LinePatch{PickedQty: qtyPtr(picked)})
	require.NoError(t, err)
	return res
}

func assertKind(t *testing.T, err error, kind errorbank.Kind) *errorbank.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *errorbank.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, kind, appErr.Kind())
	return appErr
}

func TestStartPickingIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.svc.StartPicking(ctx, "A-1001", "picker-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPicking, first.Status)
	require.NotNil(t, first.StartedAt)
	require.NotNil(t, first.AssignedPickerUserID)
	assert.Equal(t, "picker-1", *first.AssignedPickerUserID)
	require.Len(t, first.Lines, 2)
	assert.Equal(t, 1, h.snapshots.invalidated)

	h.pick(t, 1, 3)

	second, err := h.svc.StartPicking(ctx, "A-1001", "picker-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "picker-1", *second.AssignedPickerUserID)
	assert.True(t, second.Line(1).PickedQty.Equal(qty(3)))
	assert.Equal(t, []string{domain.EventTypePickingStarted, domain.EventTypeLineUpdated}, h.published.types())
}

func TestConcurrentStartCreatesOneWorkflow(t *testing.T) {
	h := newHarness(t, nil)
	var wg sync.WaitGroup
	ids := make(chan string, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wf, err := h.svc.StartPicking(context.Background(), "A-1001", fmt.Sprintf("picker-%d", i))
			if assert.NoError(t, err) {
				ids <- wf.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, []string{domain.EventTypePickingStarted}, h.published.types())
}

func TestStartPickingUpstreamFailures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.StartPicking(ctx, "Z-404", "")
	assertKind(t, err, errorbank.KindNotFound)

	h.snapshots.err = fmt.Errorf("%w: orders: dial tcp", snapshot.ErrUnavailable)
	_, err = h.svc.StartPicking(ctx, "A-1001", "")
	assertKind(t, err, errorbank.KindUnavailable)

	_, err = h.store.Get(ctx, "A-1001")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = h.svc.StartPicking(ctx, "  ", "")
	assertKind(t, err, errorbank.KindBadRequest)
}

func TestUpdateLineValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.UpdateLine(ctx, "A-1001", 1, domain.LinePatch{PickedQty: qtyPtr(1)})
	assertKind(t, err, errorbank.KindInvalidTransition)

	_, err = h.svc.StartPicking(ctx, "A-1001", "")
	require.NoError(t, err)

	_, err = h.svc.UpdateLine(ctx, "A-1001", 1, domain.LinePatch{})
	appErr := assertKind(t, err, errorbank.KindBadRequest)
	assert.Equal(t, "invalid line patch", appErr.Message())
	assert.ErrorIs(t, err, domain.ErrEmptyPatch)

	_, err = h.svc.UpdateLine(ctx, "A-1001", 1, domain.LinePatch{ExtraQty: qtyPtr(-1)})
	assertKind(t, err, errorbank.KindBadRequest)

	_, err = h.svc.UpdateLine(ctx, "A-1001", 9, domain.LinePatch{PickedQty: qtyPtr(1)})
	assertKind(t, err, errorbank.KindNotFound)

	wf, err := h.store.Get(ctx, "A-1001")
	require.NoError(t, err)
	assert.True(t, wf.Line(1).PickedQty.IsZero())
	assert.True(t, wf.Line(1).ExtraQty.IsZero())
}

func TestUpdateLineMergesConcurrentPatches(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.svc.StartPicking(ctx, "A-1001", "")
	require.NoError(t, err)

	shelf := "B-07"
	patches := []domain.LinePatch{
		{PickedQty: qtyPtr(4)},
		{ExtraQty: qtyPtr(2)},
		{ShelfCode: &shelf},
	}
	var wg sync.WaitGroup
	for _, patch := range patches {
		wg.Add(1)
		go func(p domain.LinePatch) {
			defer wg.Done()
			_, err := h.svc.UpdateLine(ctx, "A-1001", 1, p)
			assert.NoError(t, err)
		}(patch)
	}
	wg.Wait()

	wf, err := h.store.Get(ctx, "A-1001")
	require.NoError(t, err)
	line := wf.Line(1)
	assert.True(t, line.PickedQty.Equal(qty(4)))
	assert.True(t, line.ExtraQty.Equal(qty(2)))
	require.NotNil(t, line.ShelfCode)
	assert.Equal(t, "B-07", *line.ShelfCode)
	assert.Equal(t, domain.LinePartial, line.Status)
	assert.Equal(t, int64(4), line.Version)
}

func TestUpdateLineIfVersion(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.svc.StartPicking(ctx, "A-1001", "")
	require.NoError(t, err)

	stale := int64(1)
	res, err := h.svc.UpdateLine(ctx, "A-1001", 1, domain.LinePatch{PickedQty: qtyPtr(2), IfVersion: &stale})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Line.Version)

	_, err = h.svc.UpdateLine(ctx, "A-1001", 1, domain.LinePatch{PickedQty: qtyPtr(5), IfVersion: &stale})
	appErr := assertKind(t, err, errorbank.KindConflict)
	state, ok := appErr.Details()["workflow"].(dto.WorkflowState)
	require.True(t, ok)
	assert.Equal(t, "2", state.Lines[0].PickedQty.String())
}

func TestOverPickIsAccepted(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.StartPicking(context.Background(), "A-1001", "")
	require.NoError(t, err)

	res := h.pick(t, 1, 12)
	assert.Equal(t, domain.LinePicked, res.Line.Status)
	assert.True(t, res.Line.Shortage().IsZero())
}

func TestFullScenarioAndTerminalFreeze(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.StartPicking(ctx, "A-1001", "picker-1")
	require.NoError(t, err)

	res := h.pick(t, 1, 10)
	assert.Equal(t, domain.StatusPicking, res.Workflow.Status)
	res = h.pick(t, 2, 5)
	assert.Equal(t, domain.StatusReadyForLoading, res.Workflow.Status)

	loaded, err := h.svc.MarkLoaded(ctx, "A-1001", true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLoaded, loaded.Status)
	assert.NotNil(t, loaded.LoadingStartedAt)
	assert.NotNil(t, loaded.LoadedAt)

	dispatched, err := h.svc.Dispatch(ctx, "A-1001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDispatched, dispatched.Status)
	require.NotNil(t, dispatched.DispatchedAt)

	_, err = h.svc.UpdateLine(ctx, "A-1001", 1, domain.LinePatch{PickedQty: qtyPtr(1)})
	appErr := assertKind(t, err, errorbank.KindInvalidTransition)
	assert.Equal(t, domain.StatusDispatched, appErr.Details()["currentStatus"])

	_, err = h.svc.StartPicking(ctx, "A-1001", "")
	assertKind(t, err, errorbank.KindInvalidTransition)
	_, err = h.svc.Dispatch(ctx, "A-1001")
	assertKind(t, err, errorbank.KindInvalidTransition)
	_, _, err = h.svc.Reconcile(ctx, "A-1001")
	assertKind(t, err, errorbank.KindInvalidTransition)

	after, err := h.store.Get(ctx, "A-1001")
	require.NoError(t, err)
	assert.Equal(t, dispatched, after)

	assert.Equal(t, []string{
		domain.EventTypePickingStarted,
		domain.EventTypeLineUpdated,
		domain.EventTypeLineUpdated,
		domain.EventTypeLoaded,
		domain.EventTypeDispatched,
	}, h.published.types())
}

func TestMarkLoadedRules(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.MarkLoaded(ctx, "A-1001", false)
	assertKind(t, err, errorbank.KindInvalidTransition)

	_, err = h.svc.StartPicking(ctx, "A-1001", "")
	require.NoError(t, err)
	h.pick(t, 1, 4)

	_, err = h.svc.MarkLoaded(ctx, "A-1001", true)
	assertKind(t, err, errorbank.KindInvalidTransition)

	_, err = h.svc.Dispatch(ctx, "A-1001")
	assertKind(t, err, errorbank.KindInvalidTransition)

	partial, err := h.svc.MarkLoaded(ctx, "A-1001", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyLoaded, partial.Status)
	assert.Nil(t, partial.LoadedAt)
	assert.Equal(t, domain.LinePartial, partial.Line(1).Status)
	assert.Equal(t, domain.LineMissing, partial.Line(2).Status)

	h.pick(t, 1, 10)
	h.pick(t, 2, 5)
	full, err := h.svc.MarkLoaded(ctx, "A-1001", true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLoaded, full.Status)
	assert.Equal(t, partial.LoadingStartedAt, full.LoadingStartedAt)
}

func TestCommandsOnUnknownOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.UpdateLine(ctx, "NO-SUCH-ORDER", 1, domain.LinePatch{PickedQty: qtyPtr(1)})
	assertKind(t, err, errorbank.KindNotFound)
	_, err = h.svc.MarkLoaded(ctx, "NO-SUCH-ORDER", true)
	assertKind(t, err, errorbank.KindNotFound)
	_, err = h.svc.Dispatch(ctx, "NO-SUCH-ORDER")
	assertKind(t, err, errorbank.KindNotFound)

	_, err = h.store.Get(ctx, "NO-SUCH-ORDER")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestCommandsBeforeStartCarryPendingWorkflow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	commands := map[string]func() error{
		"update line": func() error {
			_, err := h.svc.UpdateLine(ctx, "A-1001", 1, domain.LinePatch{PickedQty: qtyPtr(1)})
			return err
		},
		"mark loaded": func() error {
			_, err := h.svc.MarkLoaded(ctx, "A-1001", false)
			return err
		},
		"dispatch": func() error {
			_, err := h.svc.Dispatch(ctx, "A-1001")
			return err
		},
	}
	for name, run := range commands {
		t.Run(name, func(t *testing.T) {
			appErr := assertKind(t, run(), errorbank.KindInvalidTransition)
			assert.Equal(t, "transition not allowed", appErr.Message())
			assert.Equal(t, domain.StatusPending, appErr.Details()["currentStatus"])

			state, ok := appErr.Details()["workflow"].(dto.WorkflowState)
			require.True(t, ok)
			assert.Equal(t, domain.StatusPending, state.Workflow.Status)
			assert.False(t, state.Workflow.Persisted)
			assert.Len(t, state.Lines, 2)
		})
	}

	_, err := h.store.Get(ctx, "A-1001")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestEditAfterFullLoadClearsLoadedAt(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.svc.StartPicking(ctx, "A-1001", "")
	require.NoError(t, err)
	h.pick(t, 1, 10)
	h.pick(t, 2, 5)

	loaded, err := h.svc.MarkLoaded(ctx, "A-1001", true)
	require.NoError(t, err)
	require.NotNil(t, loaded.LoadedAt)

	res := h.pick(t, 2, 3)
	assert.Equal(t, domain.StatusPartiallyLoaded, res.Workflow.Status)
	assert.Nil(t, res.Workflow.LoadedAt)
	assert.Equal(t, loaded.LoadingStartedAt, res.Workflow.LoadingStartedAt)
}

func TestReconcileAppliesDrift(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, _, err := h.svc.Reconcile(ctx, "A-1001")
	assertKind(t, err, errorbank.KindNotFound)

	_, err = h.svc.StartPicking(ctx, "A-1001", "")
	require.NoError(t, err)
	h.pick(t, 1, 10)
	h.pick(t, 2, 5)

	unchanged, report, err := h.svc.Reconcile(ctx, "A-1001")
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, domain.StatusReadyForLoading, unchanged.Status)

	amended := sampleOrder()
	amended.Items = append(amended.Items[:1], domain.OrderLine{RowNumber: 3, ProductCode: "P-3", RequestedQty: qty(2), RemainingQty: qty(2)})
	h.snapshots.set(amended)

	wf, report, err := h.svc.Reconcile(ctx, "A-1001")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, report.AddedRows)
	assert.Equal(t, []int{2}, report.RemovedRows)
	assert.Equal(t, domain.StatusPicking, wf.Status)
	assert.True(t, wf.Line(2).UpstreamRemoved)
	assert.True(t, wf.Line(2).PickedQty.Equal(qty(5)))
	assert.Equal(t, domain.LinePending, wf.Line(3).Status)
	assert.Contains(t, h.published.types(), domain.EventTypeReconciled)
}

func TestAuthorizerRejects(t *testing.T) {
	h := newHarness(t, denyAll{})
	_, err := h.svc.StartPicking(context.Background(), "A-1001", "")
	assertKind(t, err, errorbank.KindForbidden)
	assert.Empty(t, h.published.types())
}
