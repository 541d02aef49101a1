package fulfillment

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/entity"
	domain "github.com/Additional-Code/fulfillment/internal/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/messaging"
	fulfillmentsvc "github.com/Additional-Code/fulfillment/internal/service/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/worker"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/fulfillment/worker/fulfillment")

// Reconciler re-syncs a workflow with its order.
type Reconciler interface {
	Reconcile(ctx context.Context, orderNumber string) (*entity.Workflow, domain.DriftReport, error)
}

// Module registers fulfillment worker handlers.
var Module = fx.Module("worker_fulfillment",
	fx.Provide(
		func(s *fulfillmentsvc.Service) Reconciler { return s },
		fx.Annotate(
			NewOrderAmendedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderAmendedHandler reconciles the workflow of an order the source
// system reports as amended. Orders nobody started picking and workflows
// already dispatched are acknowledged without action. Upstream outages fail
// the message so it is redelivered.
func NewOrderAmendedHandler(reconciler Reconciler, logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.fulfillment.order_amended", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event domain.Message
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order amended event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		orderNumber := strings.TrimSpace(event.OrderNumber)
		if orderNumber == "" {
			orderNumber = strings.TrimSpace(string(msg.Key))
		}
		if orderNumber == "" {
			logger.Warn("order amended event without order number", zap.Int64("offset", msg.Offset))
			return nil
		}
		span.SetAttributes(attribute.String("order.number", orderNumber))

		_, report, err := reconciler.Reconcile(ctx, orderNumber)
		switch {
		case err == nil:
			logger.Info("order amendment reconciled",
				zap.String("order_number", orderNumber),
				zap.Int("added", len(report.AddedRows)),
				zap.Int("removed", len(report.RemovedRows)),
				zap.Int("changed", len(report.ChangedRows)),
			)
			return nil
		case errorbank.Is(err, errorbank.KindNotFound), errorbank.Is(err, errorbank.KindInvalidTransition):
			logger.Debug("order amendment ignored", zap.String("order_number", orderNumber), zap.Error(err))
			return nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return err
	}

	return worker.HandlerRegistration{
		EventType: domain.EventTypeOrderAmended,
		Handler:   handler,
	}
}
