package fulfillment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the normalized, read-only snapshot of an upstream sales order.
type Order struct {
	Number       string      `json:"orderNumber"`
	Series       string      `json:"series"`
	Sequence     int         `json:"sequence"`
	CustomerCode string      `json:"customerCode"`
	CustomerName string      `json:"customerName"`
	OrderDate    time.Time   `json:"orderDate"`
	DeliveryDate *time.Time  `json:"deliveryDate,omitempty"`
	Items        []OrderLine `json:"items"`
}

// OrderLine is one upstream line item.
type OrderLine struct {
	RowNumber    int             `json:"rowNumber"`
	ProductCode  string          `json:"productCode"`
	ProductName  string          `json:"productName"`
	Unit         string          `json:"unit"`
	RequestedQty decimal.Decimal `json:"requestedQty"`
	DeliveredQty decimal.Decimal `json:"deliveredQty"`
	RemainingQty decimal.Decimal `json:"remainingQty"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	LineTotal    decimal.Decimal `json:"lineTotal"`
	VAT          decimal.Decimal `json:"vat"`
}

// Remaining is requested minus delivered, floored at zero.
func Remaining(requested, delivered decimal.Decimal) decimal.Decimal {
	remaining := requested.Sub(delivered)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Line returns the item with the given row number.
func (o *Order) Line(rowNumber int) (OrderLine, bool) {
	for _, item := range o.Items {
		if item.RowNumber == rowNumber {
			return item, true
		}
	}
	return OrderLine{}, false
}

// ProductCodes lists the distinct product codes on the order.
func (o *Order) ProductCodes() []string {
	seen := make(map[string]struct{}, len(o.Items))
	codes := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductCode]; ok {
			continue
		}
		seen[item.ProductCode] = struct{}{}
		codes = append(codes, item.ProductCode)
	}
	return codes
}
