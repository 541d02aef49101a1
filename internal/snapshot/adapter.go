package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Additional-Code/fulfillment/internal/cache"
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/fulfillment"
	orderrepo "github.com/Additional-Code/fulfillment/internal/repository/order"
	"github.com/Additional-Code/fulfillment/internal/upstream"
)

var tracer = otel.Tracer("github.com/Additional-Code/fulfillment/snapshot")

var (
	// ErrOrderNotFound is returned when the order source has no such order.
	ErrOrderNotFound = errors.New("order not found upstream")
	// ErrUnavailable is returned when the order source cannot be reached.
	ErrUnavailable = upstream.ErrUnavailable
)

// Source reads raw orders from the order source system.
type Source interface {
	GetByNumber(ctx context.Context, number string) (*entity.SourceOrder, error)
	ListOpen(ctx context.Context, series string) ([]*entity.SourceOrder, error)
}

// Module provides the snapshot adapter to Fx.
var Module = fx.Provide(
	func(r *orderrepo.Repository) Source { return r },
	New,
)

// Params defines dependencies for constructing an Adapter.
type Params struct {
	fx.In

	Source Source
	Cache  cache.Store
	Config config.Config
	Logger *zap.Logger
}

// Adapter returns normalized order snapshots, caching them for a short TTL.
type Adapter struct {
	source Source
	cache  cache.Store
	ttl    time.Duration
	guard  *upstream.Guard
	group  singleflight.Group
	logger *zap.Logger
}

// New wires an Adapter.
func New(p Params) *Adapter {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		source: p.Source,
		cache:  p.Cache,
		ttl:    p.Config.Snapshot.CacheTTL,
		guard: upstream.NewGuard("orders", p.Config.Upstream, logger, upstream.WithPermanent(func(err error) bool {
			return errors.Is(err, orderrepo.ErrNotFound)
		})),
		logger: logger,
	}
}

// Get returns the snapshot of one order.
func (a *Adapter) Get(ctx context.Context, orderNumber string) (*fulfillment.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := tracer.Start(ctx, "Snapshot.Get", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()

	if orderNumber == "" {
		return nil, ErrOrderNotFound
	}

	if order, err := a.fromCache(ctx, orderNumber); err == nil {
		span.SetAttributes(attribute.Bool("snapshot.cached", true))
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		a.logger.Warn("snapshot cache read failed", zap.String("order_number", orderNumber), zap.Error(err))
	}

	// The shared fetch outlives any single caller; the guard bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(orderNumber, func() (interface{}, error) {
		var raw *entity.SourceOrder
		err := a.guard.Do(fetchCtx, func(ctx context.Context) error {
			var err error
			raw, err = a.source.GetByNumber(ctx, orderNumber)
			return err
		})
		if err != nil {
			return nil, err
		}
		order := Normalize(raw)
		a.store(fetchCtx, order)
		return order, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return nil, ctx.Err()
	}
	if res.Err != nil {
		if errors.Is(res.Err, orderrepo.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		span.RecordError(res.Err)
		return nil, res.Err
	}
	return cloneOrder(res.Val.(*fulfillment.Order)), nil
}

// ListOpen returns snapshots of all open orders, optionally for one series.
func (a *Adapter) ListOpen(ctx context.Context, series string) ([]*fulfillment.Order, error) {
	ctx, span := tracer.Start(ctx, "Snapshot.ListOpen", trace.WithAttributes(attribute.String("order.series", series)))
	defer span.End()

	var raw []*entity.SourceOrder
	err := a.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = a.source.ListOpen(ctx, series)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	orders := make([]*fulfillment.Order, 0, len(raw))
	for _, r := range raw {
		orders = append(orders, Normalize(r))
	}
	a.storeAll(ctx, orders)
	return orders, nil
}

// Invalidate drops the cached snapshot so the next Get reads the source.
func (a *Adapter) Invalidate(ctx context.Context, orderNumber string) {
	orderNumber = strings.TrimSpace(orderNumber)
	a.group.Forget(orderNumber)
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(ctx, cacheKey(orderNumber)); err != nil {
		a.logger.Warn("snapshot cache delete failed", zap.String("order_number", orderNumber), zap.Error(err))
	}
}

// Normalize converts a source order into the read model: trimmed text,
// remaining quantities floored at zero and lines ordered by row number.
func Normalize(raw *entity.SourceOrder) *fulfillment.Order {
	order := &fulfillment.Order{
		Number:       strings.TrimSpace(raw.Number),
		Series:       strings.TrimSpace(raw.Series),
		Sequence:     raw.Sequence,
		CustomerCode: strings.TrimSpace(raw.CustomerCode),
		CustomerName: strings.TrimSpace(raw.CustomerName),
		OrderDate:    raw.OrderDate,
		DeliveryDate: raw.DeliveryDate,
		Items:        make([]fulfillment.OrderLine, 0, len(raw.Lines)),
	}
	for _, line := range raw.Lines {
		order.Items = append(order.Items, fulfillment.OrderLine{
			RowNumber:    line.RowNumber,
			ProductCode:  strings.TrimSpace(line.ProductCode),
			ProductName:  strings.TrimSpace(line.ProductName),
			Unit:         strings.TrimSpace(line.Unit),
			RequestedQty: line.RequestedQty,
			DeliveredQty: line.DeliveredQty,
			RemainingQty: fulfillment.Remaining(line.RequestedQty, line.DeliveredQty),
			UnitPrice:    line.UnitPrice,
			LineTotal:    line.LineTotal,
			VAT:          line.VAT,
		})
	}
	sort.Slice(order.Items, func(i, j int) bool { return order.Items[i].RowNumber < order.Items[j].RowNumber })
	return order
}

func cacheKey(orderNumber string) string {
	return "snapshot:order:" + orderNumber
}

func (a *Adapter) fromCache(ctx context.Context, orderNumber string) (*fulfillment.Order, error) {
	if a.cache == nil || a.ttl <= 0 {
		return nil, cache.ErrCacheMiss
	}
	raw, err := a.cache.Get(ctx, cacheKey(orderNumber))
	if err != nil {
		return nil, err
	}
	var order fulfillment.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (a *Adapter) store(ctx context.Context, order *fulfillment.Order) {
	if a.cache == nil || a.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(order)
	if err != nil {
		a.logger.Error("marshal snapshot", zap.Error(err))
		return
	}
	if err := a.cache.Set(ctx, cacheKey(order.Number), raw, a.ttl); err != nil {
		a.logger.Warn("snapshot cache write failed", zap.String("order_number", order.Number), zap.Error(err))
	}
}

func (a *Adapter) storeAll(ctx context.Context, orders []*fulfillment.Order) {
	if a.cache == nil || a.ttl <= 0 || len(orders) == 0 {
		return
	}
	entries := make(map[string][]byte, len(orders))
	for _, order := range orders {
		raw, err := json.Marshal(order)
		if err != nil {
			a.logger.Error("marshal snapshot", zap.String("order_number", order.Number), zap.Error(err))
			continue
		}
		entries[cacheKey(order.Number)] = raw
	}
	if err := a.cache.SetMany(ctx, entries, a.ttl); err != nil {
		a.logger.Warn("snapshot cache warm failed", zap.Int("orders", len(entries)), zap.Error(err))
	}
}

func cloneOrder(o *fulfillment.Order) *fulfillment.Order {
	cp := *o
	cp.Items = append([]fulfillment.OrderLine(nil), o.Items...)
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		cp.DeliveryDate = &d
	}
	return &cp
}
