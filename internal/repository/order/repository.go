package order

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/order")

// Module provides the order source reader to Fx.
var Module = fx.Provide(NewRepository)

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Repository reads orders mirrored from the order source system. It never
// writes.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a repository backed by the read connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// GetByNumber fetches one order with its lines.
func (r *Repository) GetByNumber(ctx context.Context, number string) (*entity.SourceOrder, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByNumber", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	order := new(entity.SourceOrder)
	err := r.reader.NewSelect().
		Model(order).
		Relation("Lines", orderLines).
		Where("so.order_number = ?", number).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// ListOpen returns open orders, optionally limited to one series.
func (r *Repository) ListOpen(ctx context.Context, series string) ([]*entity.SourceOrder, error) {
	series = strings.TrimSpace(series)
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListOpen", trace.WithAttributes(attribute.String("order.series", series)))
	defer span.End()

	var orders []*entity.SourceOrder
	q := r.reader.NewSelect().
		Model(&orders).
		Relation("Lines", orderLines).
		Where("so.status = ?", entity.SourceOrderOpen).
		Order("so.series ASC", "so.sequence ASC")
	if series != "" {
		q = q.Where("so.series = ?", series)
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

func orderLines(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("? ASC", bun.Ident("row_number"))
}
