package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/periop/periop/internal/config"
	"github.com/periop/periop/internal/domain/analysis"
	"github.com/periop/periop/internal/domain/evidence"
	"github.com/periop/periop/internal/domain/meds"
	"github.com/periop/periop/internal/domain/ontology"
	"github.com/periop/periop/internal/domain/pooling"
	"github.com/periop/periop/internal/platform/audit"
	"github.com/periop/periop/internal/platform/auth"
	"github.com/periop/periop/internal/platform/db"
	"github.com/periop/periop/internal/platform/middleware"
	"github.com/periop/periop/internal/platform/scheduler"
	"github.com/periop/periop/internal/platform/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "periop-server",
		Short: "Perioperative risk and medication recommendation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(poolCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration that reverses the change.")
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in ontology and demo evidence set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			ontoSvc := ontology.NewService(ontology.NewRepoPG(pool), logger)
			terms, err := ontoSvc.Seed(ctx, cfg.OntologyPath)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d ontology terms.\n", terms)

			evSvc := evidence.NewService(evidence.NewRepoPG(pool), logger)
			_, existing, err := evSvc.ListEstimates(ctx, evidence.EstimateFilter{}, 1, 0)
			if err != nil {
				return err
			}
			if existing > 0 {
				fmt.Printf("Evidence base already holds %d estimates; skipping demo evidence.\n", existing)
				return nil
			}

			papers := evidence.SeedPapers()
			for i := range papers {
				if err := evSvc.CreatePaper(ctx, &papers[i]); err != nil {
					return fmt.Errorf("seed paper %s: %w", papers[i].PMID, err)
				}
			}
			estimates := evidence.SeedEstimates()
			for i := range estimates {
				if err := evSvc.CreateEstimate(ctx, &estimates[i]); err != nil {
					return fmt.Errorf("seed estimate for %s: %w", estimates[i].PMID, err)
				}
			}
			fmt.Printf("Seeded %d papers and %d estimates. Run 'periop-server pool' to publish a version.\n",
				len(papers), len(estimates))
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an evidence bundle from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read bundle: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			evSvc := evidence.NewService(evidence.NewRepoPG(pool), logger)
			report, err := evSvc.ImportBundle(ctx, data)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d paper(s) and %d estimate(s), %d rejected.\n",
				report.Papers, report.Estimates, report.Rejected)
			for _, msg := range report.Errors {
				fmt.Printf("  rejected: %s\n", msg)
			}
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the evidence bundle JSON")
	return cmd
}

func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Run a pooling pass and publish a new evidence version",
		RunE: func(cmd *cobra.Command, args []string) error {
			version, _ := cmd.Flags().GetString("version")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			poolingSvc := pooling.NewService(evidence.NewRepoPG(pool), pooling.NewRepoPG(pool), logger)

			if version != "" {
				snap, err := poolingSvc.Snapshot(ctx, version)
				if err != nil {
					return err
				}
				fmt.Printf("Version %s (created %s): %d baseline(s), %d effect(s).\n",
					snap.Version, snap.CreatedAt.Format(time.RFC3339),
					len(snap.Baselines()), len(snap.Effects()))
				return nil
			}

			info, err := poolingSvc.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Published evidence version %s: %d baseline(s), %d effect(s).\n",
				info.Version, info.BaselineRows, info.EffectRows)
			return nil
		},
	}
	cmd.Flags().String("version", "", "Inspect an existing version instead of running a pass")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// loadMedRules returns the built-in recommendation table, with the overlay
// file merged on top when MED_RULES_PATH is set.
func loadMedRules(path string, logger zerolog.Logger) ([]meds.Rule, error) {
	rules := meds.DefaultRules()
	if path == "" {
		return rules, nil
	}
	overlay, err := meds.LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("path", path).Int("overlay_rules", len(overlay)).Msg("applied medication rules overlay")
	return meds.MergeRules(rules, overlay), nil
}

// newSessionStore opens the SQLite audit store when AUDIT_DB_PATH is set
// and falls back to the in-memory store otherwise. The returned close
// function is a no-op for the in-memory store.
func newSessionStore(path string, logger zerolog.Logger) (analysis.SessionStore, func() error, error) {
	if path == "" {
		logger.Warn().Msg("AUDIT_DB_PATH not set; analysis sessions are kept in memory only")
		return audit.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := audit.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("path", path).Msg("session audit store opened")
	return store, store.Close, nil
}

// metricsHandler refreshes the pool and snapshot gauges before rendering
// the Prometheus exposition, so every scrape reflects the current state
// without a background collector.
func metricsHandler(tel *telemetry.Provider, pool *pgxpool.Pool, pooler *pooling.Service) echo.HandlerFunc {
	render := tel.PrometheusHandler()
	health := tel.HealthMetrics()
	return func(c echo.Context) error {
		stats := db.GetPoolStats(pool)
		health.SetDBPoolActive(int64(stats.AcquiredConns))
		health.SetDBPoolIdle(int64(stats.IdleConns))
		if snap := pooler.Current(); snap != nil {
			health.SetPooledBaselineRows(int64(len(snap.Baselines())))
			health.SetPooledEffectRows(int64(len(snap.Effects())))
		}
		return render(c)
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	tel := telemetry.New(telemetry.Config{
		ServiceName:    "periop-server",
		ServiceVersion: serviceVersion,
		Environment:    cfg.Env,
	})

	// Domain services. The ontology index and the pooled snapshot registry
	// are loaded before the listener starts so the first request never
	// races a cold cache.
	ontoSvc := ontology.NewService(ontology.NewRepoPG(pool), logger)
	idx, err := ontoSvc.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load ontology")
	}

	evRepo := evidence.NewRepoPG(pool)
	evSvc := evidence.NewService(evRepo, logger)

	poolingSvc := pooling.NewService(evRepo, pooling.NewRepoPG(pool), logger)
	loaded, err := poolingSvc.LoadLatest(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to restore pooled evidence")
	}
	if !loaded {
		logger.Warn().Msg("no pooled evidence version stored; analyze degrades until a pooling run completes")
	}

	rules, err := loadMedRules(cfg.MedRulesPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load medication rules")
	}

	sessions, closeSessions, err := newSessionStore(cfg.AuditDBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session audit store")
	}
	defer closeSessions() //nolint:errcheck

	analysisSvc := analysis.NewService(idx, poolingSvc, rules, sessions, cfg.AnalyzeBudget(), logger)

	// Scheduled repooling
	if cfg.PoolingCron != "" {
		sched := scheduler.New(poolingSvc, logger)
		if err := sched.Schedule(cfg.PoolingCron); err != nil {
			logger.Fatal().Err(err).Str("expr", cfg.PoolingCron).Msg("invalid POOLING_CRON expression")
		}
		sched.Start()
		defer sched.Stop()
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(tel.TracingMiddleware())
	e.Use(tel.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "16M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Everything under /api/v1 requires a verified identity; role checks
	// live with each handler's route registration.
	api := e.Group("/api/v1")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware())
	} else {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}
		if cfg.JWTSecret != "" {
			jwtCfg.SigningKey = []byte(cfg.JWTSecret)
		}
		api.Use(auth.JWTMiddleware(jwtCfg))
	}

	rateCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateCfg.RequestsPerSecond <= 0 {
		rateCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateCfg))

	ontology.NewHandler(ontoSvc).RegisterRoutes(api)
	evidence.NewHandler(evSvc).RegisterRoutes(api)
	pooling.NewHandler(poolingSvc).RegisterRoutes(api)
	analysis.NewHandler(analysisSvc).RegisterRoutes(api)

	// Unauthenticated operational endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": serviceVersion,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metricsHandler(tel, pool, poolingSvc))

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
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
