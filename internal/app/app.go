package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/cache"
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/coordinator"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/inventory"
	"github.com/Additional-Code/fulfillment/internal/logger"
	"github.com/Additional-Code/fulfillment/internal/messaging"
	"github.com/Additional-Code/fulfillment/internal/migration"
	"github.com/Additional-Code/fulfillment/internal/observability"
	repositoryorder "github.com/Additional-Code/fulfillment/internal/repository/order"
	repositorystock "github.com/Additional-Code/fulfillment/internal/repository/stock"
	repositoryworkflow "github.com/Additional-Code/fulfillment/internal/repository/workflow"
	grpcserver "github.com/Additional-Code/fulfillment/internal/server/grpc"
	httpserver "github.com/Additional-Code/fulfillment/internal/server/http"
	servicefulfillment "github.com/Additional-Code/fulfillment/internal/service/fulfillment"
	serviceprojection "github.com/Additional-Code/fulfillment/internal/service/projection"
	"github.com/Additional-Code/fulfillment/internal/snapshot"
	transporthttp "github.com/Additional-Code/fulfillment/internal/transport/http"
	"github.com/Additional-Code/fulfillment/internal/worker"
	workerfulfillment "github.com/Additional-Code/fulfillment/internal/worker/fulfillment"
)

// Infra provides config, logging, telemetry and the stores every executable
// talks to.
var Infra = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	repositoryorder.Module,
	repositorystock.Module,
	repositoryworkflow.Module,
	snapshot.Module,
	inventory.Module,
	coordinator.Module,
	servicefulfillment.Module,
	serviceprojection.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	migration.AutoRun,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerfulfillment.Module,
)

// EventLogger routes Fx lifecycle events through the application logger.
var EventLogger = fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})

// Module is the default application wiring (HTTP only).
var Module = HTTP
