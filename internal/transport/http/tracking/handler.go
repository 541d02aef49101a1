package tracking

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/coordinator"
	"github.com/Additional-Code/fulfillment/internal/dto"
	domain "github.com/Additional-Code/fulfillment/internal/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/request"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/response"
	fulfillmentsvc "github.com/Additional-Code/fulfillment/internal/service/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/service/projection"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/fulfillment/transport/http/tracking")

// Handler exposes the order tracking endpoints over HTTP.
type Handler struct {
	commands   *fulfillmentsvc.Service
	projection *projection.Service
	poller     *coordinator.Poller
}

// NewHandler constructs a tracking Handler.
func NewHandler(commands *fulfillmentsvc.Service, projection *projection.Service, poller *coordinator.Poller) *Handler {
	return &Handler{commands: commands, projection: projection, poller: poller}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/order-tracking")
	g.GET("/overview", h.overview)
	g.GET("/orders/:orderNumber", h.detail)
	g.POST("/orders/:orderNumber/start", h.start)
	g.PATCH("/orders/:orderNumber/lines/:rowNumber", h.updateLine)
	g.POST("/orders/:orderNumber/load", h.load)
	g.POST("/orders/:orderNumber/dispatch", h.dispatch)
	g.POST("/orders/:orderNumber/reconcile", h.reconcile)
}

type overviewQuery struct {
	Series string `query:"series" validate:"max=16"`
	Status string `query:"status" validate:"omitempty,oneof=PENDING PICKING READY_FOR_LOADING PARTIALLY_LOADED LOADED DISPATCHED"`
	Search string `query:"search" validate:"max=64"`
}

type orderParam struct {
	OrderNumber string `param:"orderNumber" validate:"required,max=64"`
}

type startRequest struct {
	OrderNumber  string `param:"orderNumber" validate:"required,max=64"`
	PickerUserID string `json:"pickerUserId" validate:"max=64"`
}

type lineRequest struct {
	OrderNumber string           `param:"orderNumber" validate:"required,max=64"`
	RowNumber   int              `param:"rowNumber" validate:"min=1"`
	PickedQty   *decimal.Decimal `json:"pickedQty"`
	ExtraQty    *decimal.Decimal `json:"extraQty"`
	ShelfCode   *string          `json:"shelfCode" validate:"omitempty,max=32"`
	IfVersion   *int64           `json:"ifVersion"`
}

type loadRequest struct {
	OrderNumber string `param:"orderNumber" validate:"required,max=64"`
	Full        *bool  `json:"full" validate:"required"`
}

func (h *Handler) overview(c echo.Context) error {
	b := response.New(c)

	var q overviewQuery
	if err := request.Bind(c, &q); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tracking.overview")
	defer span.End()

	overview, err := h.projection.GetOverview(ctx, projection.OverviewFilter{
		Series: q.Series,
		Status: domain.WorkflowStatus(q.Status),
		Search: q.Search,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return h.poll(c, b, overview)
}

func (h *Handler) detail(c echo.Context) error {
	b := response.New(c)

	var p orderParam
	if err := request.Bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tracking.detail", trace.WithAttributes(attribute.String("order.number", p.OrderNumber)))
	defer span.End()

	detail, err := h.projection.GetDetail(ctx, p.OrderNumber)
	if err != nil {
		return b.WithError(err).Build()
	}
	return h.poll(c, b, detail)
}

// poll renders a projection with an entity tag and the refresh hint, or a
// bare 304 when the client already holds this version.
func (h *Handler) poll(c echo.Context, b *response.Builder, payload any) error {
	b.WithMeta("refreshAfterSeconds", h.poller.RefreshAfterSeconds())
	tag, err := h.poller.Tag(payload)
	if err != nil {
		return b.WithData(payload).Build()
	}
	b.WithHeader("Cache-Control", "no-cache").WithHeader("ETag", tag)
	if h.poller.Fresh(c.Request().Header.Get("If-None-Match"), tag) {
		return b.NotModified()
	}
	return b.WithData(payload).Build()
}

func (h *Handler) start(c echo.Context) error {
	b := response.New(c)

	var req startRequest
	if err := request.Bind(c, &req); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tracking.start", trace.WithAttributes(attribute.String("order.number", req.OrderNumber)))
	defer span.End()

	wf, err := h.commands.StartPicking(ctx, req.OrderNumber, req.PickerUserID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewWorkflowState(wf)).Build()
}

func (h *Handler) updateLine(c echo.Context) error {
	b := response.New(c)

	var req lineRequest
	if err := request.Bind(c, &req); err != nil {
		return b.WithError(err).Build()
	}
	if req.ShelfCode != nil {
		shelf := strings.TrimSpace(*req.ShelfCode)
		req.ShelfCode = &shelf
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tracking.updateLine", trace.WithAttributes(
		attribute.String("order.number", req.OrderNumber),
		attribute.Int("line.row_number", req.RowNumber),
	))
	defer span.End()

	res, err := h.commands.UpdateLine(ctx, req.OrderNumber, req.RowNumber, domain.LinePatch{
		PickedQty: req.PickedQty,
		ExtraQty:  req.ExtraQty,
		ShelfCode: req.ShelfCode,
		IfVersion: req.IfVersion,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.LineUpdate{
		Workflow: dto.NewWorkflow(res.Workflow),
		Line:     dto.NewLine(res.Line),
	}).Build()
}

func (h *Handler) load(c echo.Context) error {
	b := response.New(c)

	var req loadRequest
	if err := request.Bind(c, &req); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tracking.load", trace.WithAttributes(
		attribute.String("order.number", req.OrderNumber),
		attribute.Bool("load.full", *req.Full),
	))
	defer span.End()

	wf, err := h.commands.MarkLoaded(ctx, req.OrderNumber, *req.Full)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewWorkflowState(wf)).Build()
}

func (h *Handler) dispatch(c echo.Context) error {
	b := response.New(c)

	var p orderParam
	if err := request.Bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tracking.dispatch", trace.WithAttributes(attribute.String("order.number", p.OrderNumber)))
	defer span.End()

	wf, err := h.commands.Dispatch(ctx, p.OrderNumber)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.NewWorkflowState(wf)).Build()
}

func (h *Handler) reconcile(c echo.Context) error {
	b := response.New(c)

	var p orderParam
	if err := request.Bind(c, &p); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "tracking.reconcile", trace.WithAttributes(attribute.String("order.number", p.OrderNumber)))
	defer span.End()

	wf, report, err := h.commands.Reconcile(ctx, p.OrderNumber)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.ReconcileResult{
		WorkflowState: dto.NewWorkflowState(wf),
		Drift:         report,
	}).Build()
}
