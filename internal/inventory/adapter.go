package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/repository/stock"
	"github.com/Additional-Code/fulfillment/internal/upstream"
)

var tracer = otel.Tracer("github.com/Additional-Code/fulfillment/inventory")

// ErrUnavailable is returned when stock cannot be read.
var ErrUnavailable = upstream.ErrUnavailable

// Source reads available stock per product in a warehouse.
type Source interface {
	Available(ctx context.Context, warehouse string, productCodes []string) (map[string]decimal.Decimal, error)
}

// Module provides the inventory adapter to Fx.
var Module = fx.Provide(
	func(r *stock.Repository) Source { return r },
	New,
)

// Params defines dependencies for constructing an Adapter.
type Params struct {
	fx.In

	Source Source
	Config config.Config
	Logger *zap.Logger
}

// Adapter looks up live stock for the configured warehouse.
type Adapter struct {
	source    Source
	warehouse string
	guard     *upstream.Guard
}

// New wires an Adapter.
func New(p Params) *Adapter {
	return &Adapter{
		source:    p.Source,
		warehouse: p.Config.Inventory.Warehouse,
		guard:     upstream.NewGuard("inventory", p.Config.Upstream, p.Logger),
	}
}

// Lookup returns available stock for every requested product. Products the
// warehouse does not carry map to zero.
func (a *Adapter) Lookup(ctx context.Context, productCodes []string) (map[string]decimal.Decimal, error) {
	codes := distinct(productCodes)
	ctx, span := tracer.Start(ctx, "Inventory.Lookup", trace.WithAttributes(
		attribute.String("stock.warehouse", a.warehouse),
		attribute.Int("stock.products", len(codes)),
	))
	defer span.End()

	out := make(map[string]decimal.Decimal, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	var found map[string]decimal.Decimal
	err := a.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		found, err = a.source.Available(ctx, a.warehouse, codes)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, code := range codes {
		out[code] = found[code]
	}
	return out, nil
}

func distinct(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
