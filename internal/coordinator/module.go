package coordinator

import "go.uber.org/fx"

// Module provides the per-order locker and the poll helper.
var Module = fx.Provide(NewLocker, NewPoller)
