package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// slowQueryHook logs failed statements and statements slower than threshold.
// A zero threshold only logs failures.
type slowQueryHook struct {
	threshold time.Duration
	logger    *zap.Logger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func newSlowQueryHook(threshold time.Duration, logger *zap.Logger) *slowQueryHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &slowQueryHook{threshold: threshold, logger: logger.Named("sql")}
}

func (h *slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.Warn("query failed",
			zap.String("operation", event.Operation()),
			zap.Duration("took", took),
			zap.String("query", event.Query),
			zap.Error(event.Err),
		)
	case h.threshold > 0 && took >= h.threshold:
		h.logger.Warn("slow query",
			zap.String("operation", event.Operation()),
			zap.Duration("took", took),
			zap.String("query", event.Query),
		)
	}
}
