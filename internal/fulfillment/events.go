package fulfillment

import "time"

// Event types published on the fulfillment topic.
const (
	EventTypePickingStarted = "workflow.picking_started"
	EventTypeLineUpdated    = "workflow.line_updated"
	EventTypeLoaded         = "workflow.loaded"
	EventTypeDispatched     = "workflow.dispatched"
	EventTypeReconciled     = "workflow.reconciled"
	// EventTypeOrderAmended is emitted by the order source when an order
	// changes after it was confirmed.
	EventTypeOrderAmended = "order.amended"
)

// Message is the wire form of a fulfillment event.
type Message struct {
	Type        string         `json:"type"`
	OrderNumber string         `json:"orderNumber"`
	Status      WorkflowStatus `json:"status,omitempty"`
	RowNumber   int            `json:"rowNumber,omitempty"`
	LineStatus  LineStatus     `json:"lineStatus,omitempty"`
	Version     int64          `json:"version,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}
