package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/messaging"
)

func TestDispatchPrefersEventType(t *testing.T) {
	var got []string
	record := func(name string) messaging.Handler {
		return func(context.Context, messaging.Message) error {
			got = append(got, name)
			return nil
		}
	}

	e := NewEngine(Params{Registrations: []HandlerRegistration{
		{Topic: "fulfillment.events", Handler: record("topic")},
		{EventType: "order.amended", Handler: record("amended")},
		{Handler: record("ignored")},
	}})

	amended := messaging.Message{
		Topic:   "fulfillment.events",
		Headers: map[string]string{messaging.HeaderEventType: "order.amended"},
	}
	other := messaging.Message{
		Topic:   "fulfillment.events",
		Headers: map[string]string{messaging.HeaderEventType: "workflow.loaded"},
	}
	unknown := messaging.Message{Topic: "billing.events"}

	require.NoError(t, e.dispatch(context.Background(), amended, 0))
	require.NoError(t, e.dispatch(context.Background(), other, 0))
	require.NoError(t, e.dispatch(context.Background(), unknown, 0))

	assert.Equal(t, []string{"amended", "topic"}, got)
	assert.Len(t, e.registrations, 2)
}
