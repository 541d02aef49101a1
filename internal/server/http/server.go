package http

import (
	"context"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/observability"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/request"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// NewEcho configures the Echo router with request validation, panic recovery
// and request ids.
func NewEcho(cfg config.Config, obs *observability.Manager, conns *database.Connections, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = request.NewValidator()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		logger.Error("http request failed",
			zap.String("path", c.Request().URL.Path),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		)
		c.Echo().DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := conns.Ping(c.Request().Context()); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(cfg.Observability.PrometheusPath, echo.WrapHandler(obs.MetricsHandler()))
	}

	return e
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
