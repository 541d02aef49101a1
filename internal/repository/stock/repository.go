package stock

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/stock")

// Module provides the stock repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads warehouse stock levels.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a repository backed by the read connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// Available returns available stock per product code in one warehouse.
// Products without a stock row are absent from the result.
func (r *Repository) Available(ctx context.Context, warehouse string, productCodes []string) (map[string]decimal.Decimal, error) {
	ctx, span := repoTracer.Start(ctx, "StockRepository.Available", trace.WithAttributes(
		attribute.String("stock.warehouse", warehouse),
		attribute.Int("stock.products", len(productCodes)),
	))
	defer span.End()

	out := make(map[string]decimal.Decimal, len(productCodes))
	if len(productCodes) == 0 {
		return out, nil
	}

	var levels []entity.StockLevel
	err := r.reader.NewSelect().
		Model(&levels).
		Where("sl.warehouse_code = ?", warehouse).
		Where("sl.product_code IN (?)", bun.In(productCodes)).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	for _, level := range levels {
		out[level.ProductCode] = level.Available()
	}
	return out, nil
}
