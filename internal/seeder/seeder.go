package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder fills the mirrored order and stock tables for local/dev setups.
type Seeder struct {
	db        *bun.DB
	warehouse string
	logger    *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, cfg config.Config, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{db: conns.Writer, warehouse: cfg.Inventory.Warehouse, logger: logger}
}

// Orders seeds example open orders and their lines if they are missing.
func (s *Seeder) Orders(ctx context.Context) error {
	orders := SampleOrders(time.Now().UTC())
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, order := range orders {
			q := tx.NewInsert().Model(order)
			if _, err := ignoreExisting(tx, q, "order_number").Exec(ctx); err != nil {
				return fmt.Errorf("seed order %s: %w", order.Number, err)
			}
			for _, line := range order.Lines {
				q := tx.NewInsert().Model(line)
				if _, err := ignoreExisting(tx, q, "order_number, row_number").Exec(ctx); err != nil {
					return fmt.Errorf("seed order %s line %d: %w", order.Number, line.RowNumber, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("seeded orders", zap.Int("count", len(orders)))
	return nil
}

// Stock seeds stock levels for the configured warehouse.
func (s *Seeder) Stock(ctx context.Context) error {
	levels := SampleStock(s.warehouse, time.Now().UTC())
	for _, level := range levels {
		q := s.db.NewInsert().Model(level)
		if _, err := ignoreExisting(s.db, q, "product_code, warehouse_code").Exec(ctx); err != nil {
			return fmt.Errorf("seed stock %s: %w", level.ProductCode, err)
		}
	}

	s.logger.Info("seeded stock levels", zap.Int("count", len(levels)), zap.String("warehouse", s.warehouse))
	return nil
}

func ignoreExisting(db bun.IDB, q *bun.InsertQuery, key string) *bun.InsertQuery {
	if db.Dialect().Name() == dialect.MySQL {
		return q.Ignore()
	}
	return q.On(fmt.Sprintf("CONFLICT (%s) DO NOTHING", key))
}

// SampleOrders returns the demo orders. Series A has a fully stocked order and
// one short on stock; series B has a partially delivered order.
func SampleOrders(now time.Time) []*entity.SourceOrder {
	day := now.Truncate(24 * time.Hour)
	return []*entity.SourceOrder{
		sampleOrder("A-1001", "A", 1001, "C-100", "Corner Shop", day,
			sampleLine(1, "P-100", "Sparkling water 0.5L", "pcs", 24, 0, "0.45"),
			sampleLine(2, "P-200", "Rye bread", "pcs", 10, 0, "1.80"),
		),
		sampleOrder("A-1002", "A", 1002, "C-200", "Harbour Cafe", day,
			sampleLine(1, "P-300", "Arabica beans 1kg", "kg", 15, 0, "14.20"),
			sampleLine(2, "P-100", "Sparkling water 0.5L", "pcs", 48, 0, "0.45"),
			sampleLine(3, "P-400", "Oat milk 1L", "pcs", 12, 0, "1.95"),
		),
		sampleOrder("B-2001", "B", 2001, "C-300", "Hillside Market", day,
			sampleLine(1, "P-200", "Rye bread", "pcs", 30, 12, "1.80"),
			sampleLine(2, "P-500", "Olive oil 0.75L", "pcs", 6, 0, "7.40"),
		),
	}
}

// SampleStock returns demo stock levels for warehouse.
func SampleStock(warehouse string, now time.Time) []*entity.StockLevel {
	level := func(code string, onHand, reserved int64) *entity.StockLevel {
		return &entity.StockLevel{
			ProductCode:   code,
			WarehouseCode: warehouse,
			OnHand:        decimal.NewFromInt(onHand),
			Reserved:      decimal.NewFromInt(reserved),
			UpdatedAt:     now,
		}
	}
	return []*entity.StockLevel{
		level("P-100", 120, 20),
		level("P-200", 40, 0),
		level("P-300", 9, 0),
		level("P-400", 0, 0),
	}
}

func sampleOrder(number, series string, sequence int, customerCode, customerName string, date time.Time, lines ...*entity.SourceOrderLine) *entity.SourceOrder {
	for _, line := range lines {
		line.OrderNumber = number
	}
	return &entity.SourceOrder{
		Number:       number,
		Series:       series,
		Sequence:     sequence,
		CustomerCode: customerCode,
		CustomerName: customerName,
		Status:       entity.SourceOrderOpen,
		OrderDate:    date,
		UpdatedAt:    date,
		Lines:        lines,
	}
}

func sampleLine(row int, code, name, unit string, requested, delivered int64, price string) *entity.SourceOrderLine {
	qty := decimal.NewFromInt(requested)
	unitPrice := decimal.RequireFromString(price)
	total := qty.Mul(unitPrice).Round(2)
	return &entity.SourceOrderLine{
		RowNumber:    row,
		ProductCode:  code,
		ProductName:  name,
		Unit:         unit,
		RequestedQty: qty,
		DeliveredQty: decimal.NewFromInt(delivered),
		UnitPrice:    unitPrice,
		LineTotal:    total,
		VAT:          total.Mul(decimal.RequireFromString("0.2")).Round(2),
	}
}
