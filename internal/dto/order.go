package dto

import (
	"time"

	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

// OrderHeader is the upstream order header as exposed via transport layers.
type OrderHeader struct {
	OrderNumber  string     `json:"orderNumber"`
	Series       string     `json:"series"`
	Sequence     int        `json:"sequence"`
	CustomerCode string     `json:"customerCode"`
	CustomerName string     `json:"customerName"`
	OrderDate    time.Time  `json:"orderDate"`
	DeliveryDate *time.Time `json:"deliveryDate,omitempty"`
}

// NewOrderHeader maps a snapshot header.
func NewOrderHeader(o *fulfillment.Order) *OrderHeader {
	if o == nil {
		return nil
	}
	return &OrderHeader{
		OrderNumber:  o.Number,
		Series:       o.Series,
		Sequence:     o.Sequence,
		CustomerCode: o.CustomerCode,
		CustomerName: o.CustomerName,
		OrderDate:    o.OrderDate,
		DeliveryDate: o.DeliveryDate,
	}
}
