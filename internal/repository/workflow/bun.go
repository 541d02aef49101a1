package workflow

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/fulfillment"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/workflow")

// BunStore keeps workflows in the relational database.
type BunStore struct {
	db *bun.DB
}

// NewBunStore wires a store on the writer connection. Reads go to the writer
// too so that a poll right after a write observes it.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// Get implements Store.
func (s *BunStore) Get(ctx context.Context, orderNumber string) (*entity.Workflow, error) {
	ctx, span := repoTracer.Start(ctx, "WorkflowStore.Get", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()

	wf, err := s.load(ctx, s.db, orderNumber, false)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
	}
	return wf, err
}

// List implements Store.
func (s *BunStore) List(ctx context.Context, filter ListFilter) ([]*entity.Workflow, error) {
	ctx, span := repoTracer.Start(ctx, "WorkflowStore.List")
	defer span.End()

	var workflows []*entity.Workflow
	q := s.db.NewSelect().
		Model(&workflows).
		Relation("Lines", linesInOrder).
		Order("wf.series ASC", "wf.sequence ASC")
	if filter.Series != "" {
		q = q.Where("wf.series = ?", filter.Series)
	}
	if filter.Status != "" {
		q = q.Where("wf.status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(wf.order_number) LIKE ?", pattern).
				WhereOr("LOWER(wf.customer_name) LIKE ?", pattern).
				WhereOr("LOWER(wf.customer_code) LIKE ?", pattern)
		})
	}
	if !filter.DispatchedSince.IsZero() {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("wf.status <> ?", fulfillment.StatusDispatched).
				WhereOr("wf.dispatched_at >= ?", filter.DispatchedSince)
		})
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return workflows, nil
}

// Create implements Store.
func (s *BunStore) Create(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, bool, error) {
	ctx, span := repoTracer.Start(ctx, "WorkflowStore.Create", trace.WithAttributes(attribute.String("order.number", wf.OrderNumber)))
	defer span.End()

	created := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewInsert().Model(wf)
		if tx.Dialect().Name() == dialect.MySQL {
			q = q.Ignore()
		} else {
			q = q.On("CONFLICT (order_number) DO NOTHING")
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		created = true
		if len(wf.Lines) == 0 {
			return nil
		}
		_, err = tx.NewInsert().Model(&wf.Lines).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("workflow.created", created))

	stored, err := s.load(ctx, s.db, wf.OrderNumber, false)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Mutate implements Store.
func (s *BunStore) Mutate(ctx context.Context, orderNumber string, fn func(*entity.Workflow) error) (*entity.Workflow, error) {
	ctx, span := repoTracer.Start(ctx, "WorkflowStore.Mutate", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()

	var result *entity.Workflow
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		wf, err := s.load(ctx, tx, orderNumber, true)
		if err != nil {
			return err
		}
		before := wf.Clone()
		if err := fn(wf); err != nil {
			return err
		}
		if err := persist(ctx, tx, before, wf); err != nil {
			return err
		}
		result = wf
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "mutate failed")
		}
		return nil, err
	}
	return result, nil
}

func persist(ctx context.Context, tx bun.Tx, before, after *entity.Workflow) error {
	for _, line := range after.Lines {
		prev := before.Line(line.RowNumber)
		switch {
		case prev == nil:
			if _, err := tx.NewInsert().Model(line).Exec(ctx); err != nil {
				return err
			}
		case prev.Version != line.Version:
			if _, err := tx.NewUpdate().Model(line).WherePK().Exec(ctx); err != nil {
				return err
			}
		}
	}
	if before.Version != after.Version {
		if _, err := tx.NewUpdate().Model(after).WherePK().ExcludeColumn("created_at").Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *BunStore) load(ctx context.Context, db bun.IDB, orderNumber string, forUpdate bool) (*entity.Workflow, error) {
	wf := new(entity.Workflow)
	q := db.NewSelect().Model(wf).Where("wf.order_number = ?", orderNumber)
	if forUpdate && db.Dialect().Name() != dialect.SQLite {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	err := linesInOrder(db.NewSelect().Model(&wf.Lines).Where("ls.order_number = ?", orderNumber)).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func linesInOrder(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("? ASC", bun.Ident("row_number"))
}
