package fulfillment

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/snapshot"
)

// Module provides the fulfillment command service to Fx.
var Module = fx.Provide(
	func(a *snapshot.Adapter) Snapshots { return a },
	NewService,
)
