package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// SourceOrder is the order header as mirrored from the order source system.
// The engine only ever reads it.
type SourceOrder struct {
	bun.BaseModel `bun:"table:erp_orders,alias:so"`

	Number       string             `bun:"order_number,pk"`
	Series       string             `bun:"series,notnull"`
	Sequence     int                `bun:"sequence,notnull"`
	CustomerCode string             `bun:"customer_code"`
	CustomerName string             `bun:"customer_name"`
	Status       string             `bun:"status,notnull"`
	OrderDate    time.Time          `bun:"order_date,notnull"`
	DeliveryDate *time.Time         `bun:"delivery_date"`
	UpdatedAt    time.Time          `bun:"updated_at,nullzero"`
	Lines        []*SourceOrderLine `bun:"rel:has-many,join:order_number=order_number"`
}

// SourceOrderLine is one upstream line item.
type SourceOrderLine struct {
	bun.BaseModel `bun:"table:erp_order_lines,alias:sol"`

	OrderNumber  string          `bun:"order_number,pk"`
	RowNumber    int             `bun:"row_number,pk"`
	ProductCode  string          `bun:"product_code,notnull"`
	ProductName  string          `bun:"product_name"`
	Unit         string          `bun:"unit"`
	RequestedQty decimal.Decimal `bun:"requested_qty,type:numeric(18,3),notnull"`
	DeliveredQty decimal.Decimal `bun:"delivered_qty,type:numeric(18,3),notnull"`
	UnitPrice    decimal.Decimal `bun:"unit_price,type:numeric(18,4),notnull"`
	LineTotal    decimal.Decimal `bun:"line_total,type:numeric(18,2),notnull"`
	VAT          decimal.Decimal `bun:"vat,type:numeric(18,2),notnull"`
}

// Source order statuses.
const (
	SourceOrderOpen   = "open"
	SourceOrderClosed = "closed"
)

// StockLevel is the on-hand quantity of one product in one warehouse.
type StockLevel struct {
	bun.BaseModel `bun:"table:stock_levels,alias:sl"`

	ProductCode   string          `bun:"product_code,pk"`
	WarehouseCode string          `bun:"warehouse_code,pk"`
	OnHand        decimal.Decimal `bun:"on_hand,type:numeric(18,3),notnull"`
	Reserved      decimal.Decimal `bun:"reserved,type:numeric(18,3),notnull"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero"`
}

// Available is on-hand minus reserved, never below zero.
func (s StockLevel) Available() decimal.Decimal {
	available := s.OnHand.Sub(s.Reserved)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}
