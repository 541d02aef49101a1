package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/coordinator"
	"github.com/Additional-Code/fulfillment/internal/entity"
	domain "github.com/Additional-Code/fulfillment/internal/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/messaging"
	"github.com/Additional-Code/fulfillment/internal/repository/workflow"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/fulfillment/service/fulfillment")
	serviceMeter  = otel.Meter("github.com/Additional-Code/fulfillment/service/fulfillment")
)

// Snapshots is the slice of the snapshot adapter commands rely on.
type Snapshots interface {
	Get(ctx context.Context, orderNumber string) (*domain.Order, error)
	Invalidate(ctx context.Context, orderNumber string)
}

// Service runs the fulfillment commands. Every command on one order is
// serialized; commands on different orders run in parallel.
type Service struct {
	store      workflow.Store
	snapshots  Snapshots
	locker     *coordinator.Locker
	publisher  messaging.Client
	publish    bool
	authorizer Authorizer
	logger     *zap.Logger
	now        func() time.Time

	transitions metric.Int64Counter
	lineUpdates metric.Int64Counter
	duration    metric.Float64Histogram
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store      workflow.Store
	Snapshots  Snapshots
	Locker     *coordinator.Locker
	Publisher  messaging.Client
	Config     config.Config
	Logger     *zap.Logger
	Authorizer Authorizer `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	authorizer := p.Authorizer
	if authorizer == nil {
		authorizer = AllowAll{}
	}
	locker := p.Locker
	if locker == nil {
		locker = coordinator.NewLocker()
	}

	transitions, err := serviceMeter.Int64Counter("fulfillment.workflow.transitions",
		metric.WithDescription("Workflow status transitions"))
	if err != nil {
		logger.Warn("transition counter unavailable", zap.Error(err))
	}
	lineUpdates, err := serviceMeter.Int64Counter("fulfillment.line.updates",
		metric.WithDescription("Accepted line updates"))
	if err != nil {
		logger.Warn("line update counter unavailable", zap.Error(err))
	}
	duration, err := serviceMeter.Float64Histogram("fulfillment.command.duration",
		metric.WithDescription("Command latency including lock wait"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("command duration histogram unavailable", zap.Error(err))
	}

	return &Service{
		store:       p.Store,
		snapshots:   p.Snapshots,
		locker:      locker,
		publisher:   p.Publisher,
		publish:     p.Config.Messaging.Enabled,
		authorizer:  authorizer,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		transitions: transitions,
		lineUpdates: lineUpdates,
		duration:    duration,
	}
}

// LineResult is the outcome of UpdateLine.
type LineResult struct {
	Workflow *entity.Workflow
	Line     *entity.LineState
}

// StartPicking creates the workflow from a fresh snapshot and moves it into
// PICKING. Calling it again on a started workflow returns it unchanged.
func (s *Service) StartPicking(ctx context.Context, orderNumber, pickerUserID string) (*entity.Workflow, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := serviceTracer.Start(ctx, "FulfillmentService.StartPicking", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()
	defer s.observe(ctx, "start_picking")()

	unlock, err := s.begin(ctx, domain.EventStartPicking, orderNumber)
	if err != nil {
		return nil, s.fail(span, err, nil)
	}
	defer unlock()

	existing, err := s.store.Get(ctx, orderNumber)
	switch {
	case err == nil:
		return s.startExisting(ctx, span, existing, pickerUserID)
	case !errors.Is(err, workflow.ErrNotFound):
		return nil, s.fail(span, err, nil)
	}

	s.snapshots.Invalidate(ctx, orderNumber)
	order, err := s.snapshots.Get(ctx, orderNumber)
	if err != nil {
		return nil, s.fail(span, err, nil)
	}

	now := s.now()
	wf := entity.NewWorkflow(order, now)
	markStarted(wf, pickerUserID, now)

	stored, created, err := s.store.Create(ctx, wf)
	if err != nil {
		return nil, s.fail(span, err, nil)
	}
	if !created {
		return s.startExisting(ctx, span, stored, pickerUserID)
	}

	s.recordTransition(ctx, domain.StatusPending, stored.Status)
	s.logger.Info("picking started",
		zap.String("order_number", orderNumber),
		zap.Int("lines", len(stored.Lines)),
	)
	s.emit(ctx, domain.EventTypePickingStarted, stored, nil)
	return stored, nil
}

func (s *Service) startExisting(ctx context.Context, span trace.Span, wf *entity.Workflow, pickerUserID string) (*entity.Workflow, error) {
	action, err := domain.CheckStart(wf.Status)
	if err != nil {
		return nil, s.fail(span, err, wf)
	}
	if action == domain.StartNoop {
		return wf, nil
	}

	var current *entity.Workflow
	updated, err := s.store.Mutate(ctx, wf.OrderNumber, func(wf *entity.Workflow) error {
		current = wf.Clone()
		if action, err := domain.CheckStart(wf.Status); err != nil || action == domain.StartNoop {
			return err
		}
		now := s.now()
		markStarted(wf, pickerUserID, now)
		wf.Recompute(now)
		wf.Touch(now)
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err, current)
	}
	if updated.Version != current.Version {
		s.recordTransition(ctx, current.Status, updated.Status)
		s.emit(ctx, domain.EventTypePickingStarted, updated, nil)
	}
	return updated, nil
}

func markStarted(wf *entity.Workflow, pickerUserID string, now time.Time) {
	wf.Status = domain.StatusPicking
	at := now
	wf.StartedAt = &at
	wf.LastActionAt = &at
	if picker := strings.TrimSpace(pickerUserID); picker != "" {
		wf.AssignedPickerUserID = &picker
	}
}

// UpdateLine merges patch into one line and re-derives line and workflow
// status.
func (s *Service) UpdateLine(ctx context.Context, orderNumber string, rowNumber int, patch domain.LinePatch) (*LineResult, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := serviceTracer.Start(ctx, "FulfillmentService.UpdateLine", trace.WithAttributes(
		attribute.String("order.number", orderNumber),
		attribute.Int("line.row_number", rowNumber),
	))
	defer span.End()
	defer s.observe(ctx, "update_line")()

	if err := patch.Validate(); err != nil {
		return nil, s.fail(span, err, nil)
	}

	unlock, err := s.begin(ctx, domain.EventUpdateLine, orderNumber)
	if err != nil {
		return nil, s.fail(span, err, nil)
	}
	defer unlock()

	var current *entity.Workflow
	updated, err := s.store.Mutate(ctx, orderNumber, func(wf *entity.Workflow) error {
		current = wf.Clone()
		if err := domain.CheckMutable(wf.Status, domain.EventUpdateLine); err != nil {
			return err
		}
		line := wf.Line(rowNumber)
		if line == nil {
			return errLineNotFound
		}
		if patch.IfVersion != nil && *patch.IfVersion != line.Version {
			return errVersionMismatch
		}

		now := s.now()
		line.Apply(patch, wf.Status.Loading())
		line.Touch(now)
		wf.Recompute(now)
		wf.Touch(now)
		return nil
	})
	if errors.Is(err, workflow.ErrNotFound) {
		current, err = s.notStarted(ctx, orderNumber, domain.EventUpdateLine)
	}
	if err != nil {
		return nil, s.fail(span, err, current)
	}

	line := updated.Line(rowNumber)
	if s.lineUpdates != nil {
		s.lineUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("line.status", string(line.Status))))
	}
	s.recordTransition(ctx, current.Status, updated.Status)
	s.emit(ctx, domain.EventTypeLineUpdated, updated, line)
	return &LineResult{Workflow: updated, Line: line}, nil
}

// MarkLoaded records that the order went onto the vehicle, fully or in part.
// Lines nobody touched become MISSING.
func (s *Service) MarkLoaded(ctx context.Context, orderNumber string, full bool) (*entity.Workflow, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := serviceTracer.Start(ctx, "FulfillmentService.MarkLoaded", trace.WithAttributes(
		attribute.String("order.number", orderNumber),
		attribute.Bool("load.full", full),
	))
	defer span.End()
	defer s.observe(ctx, "mark_loaded")()

	unlock, err := s.begin(ctx, domain.EventMarkLoaded, orderNumber)
	if err != nil {
		return nil, s.fail(span, err, nil)
	}
	defer unlock()

	var current *entity.Workflow
	updated, err := s.store.Mutate(ctx, orderNumber, func(wf *entity.Workflow) error {
		current = wf.Clone()
		target, err := domain.CheckLoad(wf.Status, full)
		if err != nil {
			return err
		}
		if full {
			for _, line := range wf.Lines {
				if !line.UpstreamRemoved && line.Shortage().IsPositive() {
					return domain.ErrNotFullyPicked
				}
			}
		}

		now := s.now()
		at := now
		if wf.LoadingStartedAt == nil {
			wf.LoadingStartedAt = &at
		}
		if target == domain.StatusLoaded {
			wf.LoadedAt = &at
		}
		wf.Status = target
		wf.Recompute(now)
		wf.Touch(now)
		return nil
	})
	if errors.Is(err, workflow.ErrNotFound) {
		current, err = s.notStarted(ctx, orderNumber, domain.EventMarkLoaded)
	}
	if err != nil {
		return nil, s.fail(span, err, current)
	}

	s.recordTransition(ctx, current.Status, updated.Status)
	s.logger.Info("order loaded",
		zap.String("order_number", orderNumber),
		zap.Bool("full", full),
		zap.String("status", string(updated.Status)),
	)
	s.emit(ctx, domain.EventTypeLoaded, updated, nil)
	return updated, nil
}

// Dispatch closes a loaded workflow. DISPATCHED is terminal.
func (s *Service) Dispatch(ctx context.Context, orderNumber string) (*entity.Workflow, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := serviceTracer.Start(ctx, "FulfillmentService.Dispatch", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()
	defer s.observe(ctx, "dispatch")()

	unlock, err := s.begin(ctx, domain.EventDispatch, orderNumber)
	if err != nil {
		return nil, s.fail(span, err, nil)
	}
	defer unlock()

	var current *entity.Workflow
	updated, err := s.store.Mutate(ctx, orderNumber, func(wf *entity.Workflow) error {
		current = wf.Clone()
		if err := domain.CheckDispatch(wf.Status); err != nil {
			return err
		}
		now := s.now()
		at := now
		wf.Status = domain.StatusDispatched
		wf.DispatchedAt = &at
		wf.Touch(now)
		return nil
	})
	if errors.Is(err, workflow.ErrNotFound) {
		current, err = s.notStarted(ctx, orderNumber, domain.EventDispatch)
	}
	if err != nil {
		return nil, s.fail(span, err, current)
	}

	s.recordTransition(ctx, current.Status, updated.Status)
	s.logger.Info("order dispatched", zap.String("order_number", orderNumber))
	s.emit(ctx, domain.EventTypeDispatched, updated, nil)
	return updated, nil
}

// Reconcile folds upstream amendments into a started workflow without
// discarding picker progress.
func (s *Service) Reconcile(ctx context.Context, orderNumber string) (*entity.Workflow, domain.DriftReport, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := serviceTracer.Start(ctx, "FulfillmentService.Reconcile", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()
	defer s.observe(ctx, "reconcile")()

	var report domain.DriftReport

	unlock, err := s.begin(ctx, domain.EventReconcile, orderNumber)
	if err != nil {
		return nil, report, s.fail(span, err, nil)
	}
	defer unlock()

	existing, err := s.store.Get(ctx, orderNumber)
	if err != nil {
		return nil, report, s.fail(span, err, nil)
	}
	if err := domain.CheckMutable(existing.Status, domain.EventReconcile); err != nil {
		return nil, report, s.fail(span, err, existing)
	}

	s.snapshots.Invalidate(ctx, orderNumber)
	order, err := s.snapshots.Get(ctx, orderNumber)
	if err != nil {
		return nil, report, s.fail(span, err, existing)
	}

	var current *entity.Workflow
	updated, err := s.store.Mutate(ctx, orderNumber, func(wf *entity.Workflow) error {
		current = wf.Clone()
		if err := domain.CheckMutable(wf.Status, domain.EventReconcile); err != nil {
			return err
		}
		now := s.now()
		report = wf.Reconcile(order, now)
		if !linesMoved(current, wf) {
			return nil
		}
		wf.Recompute(now)
		wf.Touch(now)
		return nil
	})
	if err != nil {
		return nil, report, s.fail(span, err, current)
	}

	if updated.Version != current.Version {
		s.recordTransition(ctx, current.Status, updated.Status)
		s.logger.Info("order reconciled",
			zap.String("order_number", orderNumber),
			zap.Ints("added_rows", report.AddedRows),
			zap.Ints("removed_rows", report.RemovedRows),
			zap.Int("changed_rows", len(report.ChangedRows)),
		)
		s.emit(ctx, domain.EventTypeReconciled, updated, nil)
	}
	return updated, report, nil
}

func linesMoved(before, after *entity.Workflow) bool {
	if len(before.Lines) != len(after.Lines) {
		return true
	}
	for _, line := range after.Lines {
		prev := before.Line(line.RowNumber)
		if prev == nil || prev.Version != line.Version {
			return true
		}
	}
	return false
}

// notStarted explains a missing workflow: the order is unknown, or nobody has
// started picking it yet. The latter comes back with the unsaved PENDING
// workflow so callers can re-render.
func (s *Service) notStarted(ctx context.Context, orderNumber string, event domain.Event) (*entity.Workflow, error) {
	order, err := s.snapshots.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return entity.PendingWorkflow(order), &domain.TransitionError{From: domain.StatusPending, Event: event}
}

// begin authorizes the command and takes the per-order lock.
func (s *Service) begin(ctx context.Context, event domain.Event, orderNumber string) (func(), error) {
	if orderNumber == "" {
		return nil, errorbank.BadRequest("order number is required")
	}
	if err := s.authorizer.Authorize(ctx, event, orderNumber); err != nil {
		return nil, errorbank.Forbidden("not allowed", errorbank.WithCause(err),
			errorbank.WithDetail("event", event))
	}
	return s.locker.Lock(ctx, orderNumber)
}

func (s *Service) fail(span trace.Span, err error, current *entity.Workflow) error {
	appErr := translate(err, current)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorbank.Is(appErr, errorbank.KindInternal) || errorbank.Is(appErr, errorbank.KindUnavailable) {
		s.logger.Error("fulfillment command failed", zap.Error(err))
	}
	return appErr
}

// observe records the command latency when the returned func is called.
func (s *Service) observe(ctx context.Context, command string) func() {
	start := time.Now()
	return func() {
		if s.duration == nil {
			return
		}
		s.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("command", command)))
	}
}

func (s *Service) recordTransition(ctx context.Context, from, to domain.WorkflowStatus) {
	if from == to || s.transitions == nil {
		return
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (s *Service) emit(ctx context.Context, eventType string, wf *entity.Workflow, line *entity.LineState) {
	if !s.publish || s.publisher == nil {
		return
	}
	msg := domain.Message{
		Type:        eventType,
		OrderNumber: wf.OrderNumber,
		Status:      wf.Status,
		Version:     wf.Version,
		OccurredAt:  s.now(),
	}
	if line != nil {
		msg.RowNumber = line.RowNumber
		msg.LineStatus = line.Status
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal fulfillment event", zap.Error(err))
		return
	}
	err = s.publisher.Publish(ctx, messaging.Message{
		Key:     []byte(wf.OrderNumber),
		Value:   payload,
		Headers: map[string]string{messaging.HeaderEventType: eventType},
	})
	if err != nil {
		s.logger.Error("publish fulfillment event", zap.String("type", eventType), zap.Error(err))
	}
}
