package fulfillment

import (
	"context"
	"errors"

	"github.com/Additional-Code/fulfillment/internal/dto"
	"github.com/Additional-Code/fulfillment/internal/entity"
	domain "github.com/Additional-Code/fulfillment/internal/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/repository/workflow"
	"github.com/Additional-Code/fulfillment/internal/snapshot"
	"github.com/Additional-Code/fulfillment/internal/upstream"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var (
	errVersionMismatch = errors.New("line was changed by someone else")
	errLineNotFound    = errors.New("line not found")
)

// translate maps internal failures onto the error taxonomy. When current is
// known it rides along in the details so callers can re-render.
func translate(err error, current *entity.Workflow) error {
	if err == nil {
		return nil
	}
	var opts []errorbank.Option
	opts = append(opts, errorbank.WithCause(err))
	if current != nil {
		opts = append(opts, errorbank.WithDetail("workflow", dto.NewWorkflowState(current)))
	}

	var appErr *errorbank.AppError
	var transition *domain.TransitionError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &transition):
		opts = append(opts,
			errorbank.WithDetail("currentStatus", transition.From),
			errorbank.WithDetail("event", transition.Event),
		)
		return errorbank.InvalidTransition("transition not allowed", opts...)
	case errors.Is(err, domain.ErrNotFullyPicked):
		return errorbank.InvalidTransition("full load not allowed", opts...)
	case errors.Is(err, domain.ErrEmptyPatch), errors.Is(err, domain.ErrNegativeQuantity):
		return errorbank.BadRequest("invalid line patch", opts...)
	case errors.Is(err, errVersionMismatch):
		return errorbank.Conflict("line version conflict", opts...)
	case errors.Is(err, errLineNotFound):
		return errorbank.NotFound("unknown line", opts...)
	case errors.Is(err, workflow.ErrNotFound):
		return errorbank.NotFound("workflow not found", opts...)
	case errors.Is(err, snapshot.ErrOrderNotFound):
		return errorbank.NotFound("order not found", opts...)
	case errors.Is(err, upstream.ErrUnavailable):
		return errorbank.Unavailable("order source unavailable", opts...)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errorbank.Unavailable("request cancelled or timed out", opts...)
	}
	return errorbank.Internal("fulfillment operation failed", opts...)
}
