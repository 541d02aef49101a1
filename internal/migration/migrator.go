package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	migrations "github.com/Additional-Code/fulfillment/db/migrations"
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
)

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// AutoRun applies pending migrations on start when DB_AUTO_MIGRATE is set.
var AutoRun = fx.Options(
	Module,
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, m *Migrator) {
		if !cfg.Database.AutoMigrate {
			return
		}
		lc.Append(fx.Hook{OnStart: m.Up})
	}),
)

// Migrator wraps goose operations over the embedded migrations.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// New constructs a goose-backed migrator on the writer connection.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	return NewForDB(cfg.Database.Driver, conns.Writer.DB, logger)
}

// NewForDB constructs a migrator for an already opened database.
func NewForDB(driver string, db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, logger: logger}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, migrations.Dir); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")

			return nil
		}
		return err
	}

	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return err
	}
	m.logger.Info("migrations applied", zap.Int64("version", version))

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		if err := goose.DownToContext(ctx, m.db, migrations.Dir, 0); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db, migrations.Dir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
	}

	m.logger.Info("migrations rolled back", zap.Int("steps", steps))

	return nil
}

func gooseDialect(driver string) (string, error) {
	switch driver {
	case "postgres", "pg":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
