package projection

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/dto"
	"github.com/Additional-Code/fulfillment/internal/entity"
	domain "github.com/Additional-Code/fulfillment/internal/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/inventory"
	"github.com/Additional-Code/fulfillment/internal/repository/workflow"
	"github.com/Additional-Code/fulfillment/internal/snapshot"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/fulfillment/service/projection")

// Orders reads order snapshots.
type Orders interface {
	Get(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOpen(ctx context.Context, series string) ([]*domain.Order, error)
}

// Stock looks up available stock per product.
type Stock interface {
	Lookup(ctx context.Context, productCodes []string) (map[string]decimal.Decimal, error)
}

// Module provides the projection service to Fx.
var Module = fx.Provide(
	func(a *snapshot.Adapter) Orders { return a },
	func(a *inventory.Adapter) Stock { return a },
	NewService,
)

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store  workflow.Store
	Orders Orders
	Stock  Stock
	Config config.Config
	Logger *zap.Logger
}

// Service renders the overview board and the per-order detail. It never
// writes.
type Service struct {
	store        workflow.Store
	orders       Orders
	stock        Stock
	recentWindow time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        p.Store,
		orders:       p.Orders,
		stock:        p.Stock,
		recentWindow: p.Config.Tracking.RecentWindow,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// OverviewFilter narrows the overview. Zero values match everything.
type OverviewFilter struct {
	Series string
	Status domain.WorkflowStatus
	Search string
}

// GetOverview lists open upstream orders together with recently active
// workflows, grouped by series.
func (s *Service) GetOverview(ctx context.Context, filter OverviewFilter) (*dto.Overview, error) {
	filter.Series = strings.TrimSpace(filter.Series)
	filter.Search = strings.ToLower(strings.TrimSpace(filter.Search))
	ctx, span := serviceTracer.Start(ctx, "ProjectionService.GetOverview", trace.WithAttributes(
		attribute.String("filter.series", filter.Series),
		attribute.String("filter.status", string(filter.Status)),
	))
	defer span.End()

	overview := &dto.Overview{Series: []dto.SeriesSummary{}, Orders: []dto.OrderSummary{}}

	open, err := s.orders.ListOpen(ctx, filter.Series)
	if err != nil {
		s.logger.Warn("open orders unavailable; serving stored workflows only", zap.Error(err))
		overview.OrdersUnavailable = true
	}

	listFilter := workflow.ListFilter{Series: filter.Series}
	if s.recentWindow > 0 {
		listFilter.DispatchedSince = s.now().Add(-s.recentWindow)
	}
	stored, err := s.store.List(ctx, listFilter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, errorbank.Internal("failed to list workflows", errorbank.WithCause(err))
	}

	rows := make(map[string]*entity.Workflow, len(open)+len(stored))
	for _, wf := range stored {
		rows[wf.OrderNumber] = wf
	}
	for _, order := range open {
		if _, ok := rows[order.Number]; !ok {
			rows[order.Number] = entity.PendingWorkflow(order)
		}
	}

	selected := make([]*entity.Workflow, 0, len(rows))
	for _, wf := range rows {
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !matches(wf, filter.Search) {
			continue
		}
		selected = append(selected, wf)
	}

	levels, known := s.lookupStock(ctx, selected...)
	overview.StockUnknown = !known && len(selected) > 0

	bySeries := map[string]*dto.SeriesSummary{}
	for _, wf := range selected {
		summary := bySeries[wf.Series]
		if summary == nil {
			summary = &dto.SeriesSummary{Series: wf.Series, Counts: map[domain.WorkflowStatus]int{}}
			bySeries[wf.Series] = summary
		}
		coverage, _ := cover(wf, levels, known)
		overview.Orders = append(overview.Orders, dto.OrderSummary{
			OrderNumber:          wf.OrderNumber,
			Series:               wf.Series,
			Sequence:             wf.Sequence,
			CustomerCode:         wf.CustomerCode,
			CustomerName:         wf.CustomerName,
			Status:               wf.Status,
			AssignedPickerUserID: wf.AssignedPickerUserID,
			LastActionAt:         wf.LastActionAt,
			CoverageSummary:      dto.NewCoverageSummary(coverage),
		})
		summary.Counts[wf.Status]++
		summary.Total++
	}

	for _, summary := range bySeries {
		overview.Series = append(overview.Series, *summary)
	}
	overview.TotalOrders = len(overview.Orders)
	sort.Slice(overview.Orders, func(i, j int) bool {
		a, b := overview.Orders[i], overview.Orders[j]
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.OrderNumber < b.OrderNumber
	})
	sort.Slice(overview.Series, func(i, j int) bool { return overview.Series[i].Series < overview.Series[j].Series })

	span.SetAttributes(attribute.Int("overview.orders", overview.TotalOrders))
	return overview, nil
}

// GetDetail renders one order with live coverage. Orders nobody started yet
// get a virtual PENDING workflow that is not persisted.
func (s *Service) GetDetail(ctx context.Context, orderNumber string) (*dto.Detail, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	ctx, span := serviceTracer.Start(ctx, "ProjectionService.GetDetail", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()

	if orderNumber == "" {
		return nil, errorbank.BadRequest("order number is required")
	}

	wf, err := s.store.Get(ctx, orderNumber)
	if err != nil && !errors.Is(err, workflow.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, errorbank.Internal("failed to load workflow", errorbank.WithCause(err))
	}

	detail := &dto.Detail{}
	order, err := s.orders.Get(ctx, orderNumber)
	switch {
	case err == nil:
		detail.Order = dto.NewOrderHeader(order)
	case errors.Is(err, snapshot.ErrOrderNotFound):
		if wf == nil {
			return nil, errorbank.NotFound("order not found")
		}
		detail.Drift = &domain.DriftReport{OrderMissing: true}
	default:
		if wf == nil {
			span.RecordError(err)
			return nil, errorbank.Unavailable("order source unavailable", errorbank.WithCause(err))
		}
		s.logger.Warn("order snapshot unavailable; serving stored workflow", zap.String("order_number", orderNumber), zap.Error(err))
		detail.OrderUnavailable = true
	}

	if wf == nil {
		wf = entity.PendingWorkflow(order)
	} else if order != nil {
		if drift := wf.Drift(order); !drift.Empty() {
			detail.Drift = &drift
		}
	}

	levels, known := s.lookupStock(ctx, wf)
	summary, perLine := cover(wf, levels, known)

	detail.Workflow = dto.NewWorkflow(wf)
	detail.Coverage = dto.NewCoverageSummary(summary)
	detail.Lines = make([]dto.Line, 0, len(wf.Lines))
	for _, line := range wf.Lines {
		item := dto.NewLine(line)
		if c, ok := perLine[line.RowNumber]; ok {
			item = item.WithCoverage(c)
		}
		detail.Lines = append(detail.Lines, item)
	}
	return detail, nil
}

func matches(wf *entity.Workflow, needle string) bool {
	return strings.Contains(strings.ToLower(wf.OrderNumber), needle) ||
		strings.Contains(strings.ToLower(wf.CustomerName), needle) ||
		strings.Contains(strings.ToLower(wf.CustomerCode), needle)
}

// lookupStock fetches stock for every product on the given workflows in a
// single call. known is false when inventory could not be reached.
func (s *Service) lookupStock(ctx context.Context, workflows ...*entity.Workflow) (map[string]decimal.Decimal, bool) {
	var codes []string
	for _, wf := range workflows {
		for _, line := range wf.Lines {
			if !line.UpstreamRemoved {
				codes = append(codes, line.ProductCode)
			}
		}
	}
	if len(codes) == 0 {
		return map[string]decimal.Decimal{}, true
	}
	levels, err := s.stock.Lookup(ctx, codes)
	if err != nil {
		s.logger.Warn("stock lookup failed; coverage unknown", zap.Error(err))
		return nil, false
	}
	return levels, true
}

// cover computes live coverage for every line still present upstream. The
// quantity that has to be covered is the line's current shortage.
func cover(wf *entity.Workflow, levels map[string]decimal.Decimal, known bool) (domain.CoverageSummary, map[int]domain.LineCoverage) {
	perLine := make(map[int]domain.LineCoverage, len(wf.Lines))
	all := make([]domain.LineCoverage, 0, len(wf.Lines))
	for _, line := range wf.Lines {
		if line.UpstreamRemoved {
			continue
		}
		c := domain.CoverLine(line.Shortage(), levels[line.ProductCode], known)
		perLine[line.RowNumber] = c
		all = append(all, c)
	}
	return domain.Summarize(all), perLine
}
