package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/app"
	"github.com/Additional-Code/fulfillment/internal/dto"
	"github.com/Additional-Code/fulfillment/internal/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/migration"
	"github.com/Additional-Code/fulfillment/internal/seeder"
	servicefulfillment "github.com/Additional-Code/fulfillment/internal/service/fulfillment"
	"github.com/Additional-Code/fulfillment/internal/service/projection"
)

// NewRootCommand builds the root fulfillment CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fulfillment",
		Short: "Order fulfillment and warehouse picking toolkit",
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newTrackingCmd())
	root.AddCommand(newWorkerCmd())

	return root
}

// Execute runs the fulfillment CLI.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := fx.New(app.Module, app.EventLogger)
			if err := application.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Stop(stopCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Infra, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(app.Infra, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Run database seeders",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *seeder.Seeder
			opts := fx.Options(app.Infra, seeder.Module, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := seed.Orders(ctx); err != nil {
					return err
				}
				if err := seed.Stock(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seed data applied")
				return nil
			})
		},
	}
}

func newTrackingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracking",
		Short: "Inspect and reconcile order tracking state",
	}

	overviewCmd := &cobra.Command{
		Use:   "overview",
		Short: "Print the overview board as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			series, _ := cmd.Flags().GetString("series")
			status, _ := cmd.Flags().GetString("status")
			search, _ := cmd.Flags().GetString("search")

			var reads *projection.Service
			opts := fx.Options(app.Core, fx.Populate(&reads))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				overview, err := reads.GetOverview(ctx, projection.OverviewFilter{
					Series: series,
					Status: fulfillment.WorkflowStatus(status),
					Search: search,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), overview)
			})
		},
	}
	overviewCmd.Flags().String("series", "", "Only show one order series")
	overviewCmd.Flags().String("status", "", "Only show workflows in this status")
	overviewCmd.Flags().String("search", "", "Match order number or customer name")

	detailCmd := &cobra.Command{
		Use:   "detail [orderNumber]",
		Short: "Print one order's tracking detail as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reads *projection.Service
			opts := fx.Options(app.Core, fx.Populate(&reads))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				detail, err := reads.GetDetail(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), detail)
			})
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile [orderNumber]",
		Short: "Re-sync a workflow with the current order and print the drift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var commands *servicefulfillment.Service
			opts := fx.Options(app.Core, fx.Populate(&commands))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				wf, report, err := commands.Reconcile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), dto.ReconcileResult{
					WorkflowState: dto.NewWorkflowState(wf),
					Drift:         report,
				})
			})
		},
	}

	cmd.AddCommand(overviewCmd, detailCmd, reconcileCmd)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run worker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := fx.New(app.Worker, app.EventLogger)
			if err := application.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Stop(stopCtx)
		},
	})
	return cmd
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
