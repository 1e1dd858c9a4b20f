package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rcm/rcm/internal/config"
	"github.com/rcm/rcm/internal/domain/edi"
	"github.com/rcm/rcm/internal/domain/report"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/metrics"
	"github.com/rcm/rcm/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rcm-server",
		Short: "Revenue cycle API server",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(reportsCmd())
	root.AddCommand(x12Cmd())
	return root
}

// loadConfig reads and validates configuration and builds the root logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(cfg), nil
}

func openMigrator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*db.Migrator, func(), error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS, logger), pool.Close, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			migrator, closePool, err := openMigrator(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to schema %s.\n", count, schema)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			migrator, closePool, err := openMigrator(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Manage report definitions",
	}

	importCmd := &cobra.Command{
		Use:   "import [file.yaml]",
		Short: "Import report definitions from YAML, or the built-in set when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			company, _ := cmd.Flags().GetString("company")

			defs := report.Predefined()
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				if defs, err = report.ParseYAML(data); err != nil {
					return err
				}
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, db.PoolOptions{
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			}, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if company == "" {
				company = cfg.DefaultCompany
			}
			ctx := auth.WithActor(cmd.Context(), auth.Actor{ID: owner, Name: owner})
			ctx = db.WithCompany(ctx, company)

			svc := report.NewService(report.NewRepoPG(pool), cfg.ReportMaxRows, nil, logger).WithTransactions(pool)
			created, err := svc.Import(ctx, defs)
			if err != nil {
				return err
			}
			for _, d := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", d.ID, d.Name)
			}
			return nil
		},
	}
	importCmd.Flags().String("owner", "system", "Owner recorded on imported definitions")
	importCmd.Flags().String("company", "", "Company the definitions belong to (default DEFAULT_COMPANY)")
	cmd.AddCommand(importCmd)
	return cmd
}

func x12Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "x12",
		Short: "X12 utilities",
	}

	renderCmd := &cobra.Command{
		Use:   "render <270|276|277|835|837> [request.json]",
		Short: "Render an X12 document from a JSON request read from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, _ := cmd.Flags().GetString("sender")
			receiver, _ := cmd.Flags().GetString("receiver")

			in := cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			out, err := renderX12(in, args[0], edi.Config{SenderID: sender, ReceiverID: receiver, Usage: "T"})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	renderCmd.Flags().String("sender", "RCMSENDER", "ISA06 sender id")
	renderCmd.Flags().String("receiver", "CLEARINGHOUSE", "ISA08 receiver id")
	cmd.AddCommand(renderCmd)
	return cmd
}

func renderX12(r io.Reader, txType string, cfg edi.Config) (string, error) {
	var req edi.X12Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return "", fmt.Errorf("decode request: %w", err)
	}
	svc := edi.NewService(cfg, nil, nil, nil, nil, zerolog.Nop())
	return svc.GenerateX12Format(txType, req)
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode; unauthenticated requests act as an admin dev-user")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	e := newServer(cfg, pool, metrics.New(), logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
