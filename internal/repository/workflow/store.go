package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

// ErrNotFound is returned when no workflow exists for an order.
var ErrNotFound = errors.New("workflow not found")

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Series string
	Status fulfillment.WorkflowStatus
	Search string
	// DispatchedSince drops dispatched workflows that left before it.
	DispatchedSince time.Time
}

// Store persists workflows and their line states.
type Store interface {
	// Get returns a copy of the stored workflow with its lines.
	Get(ctx context.Context, orderNumber string) (*entity.Workflow, error)
	// List returns workflows matching the filter, ordered by series and sequence.
	List(ctx context.Context, filter ListFilter) ([]*entity.Workflow, error)
	// Create inserts wf unless a workflow for the order already exists. It
	// returns the stored workflow and whether this call created it.
	Create(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, bool, error)
	// Mutate loads the workflow under a row lock, applies fn and persists the
	// lines and header whose versions moved. An error from fn aborts the write.
	Mutate(ctx context.Context, orderNumber string, fn func(*entity.Workflow) error) (*entity.Workflow, error)
}

// Module provides the configured Store to Fx.
var Module = fx.Provide(NewStore)

// Params defines dependencies for constructing a Store.
type Params struct {
	fx.In

	Config      config.Config
	Connections *database.Connections
	Logger      *zap.Logger
}

// NewStore selects the backend named by TRACKING_STORE.
func NewStore(p Params) (Store, error) {
	switch p.Config.Tracking.Store {
	case "", "database":
		return NewBunStore(p.Connections.Writer), nil
	case "memory":
		p.Logger.Warn("workflow store is in-memory; tracking state is lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported tracking store: %s", p.Config.Tracking.Store)
	}
}

func (f ListFilter) matches(wf *entity.Workflow) bool {
	if f.Series != "" && !strings.EqualFold(f.Series, wf.Series) {
		return false
	}
	if f.Status != "" && f.Status != wf.Status {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(wf.OrderNumber), needle) &&
			!strings.Contains(strings.ToLower(wf.CustomerName), needle) &&
			!strings.Contains(strings.ToLower(wf.CustomerCode), needle) {
			return false
		}
	}
	if !f.DispatchedSince.IsZero() && wf.Status == fulfillment.StatusDispatched {
		if wf.DispatchedAt == nil || wf.DispatchedAt.Before(f.DispatchedSince) {
			return false
		}
	}
	return true
}
