package http

import (
	"go.uber.org/fx"

	trackingtransport "github.com/Additional-Code/fulfillment/internal/transport/http/tracking"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	trackingtransport.Module,
)
