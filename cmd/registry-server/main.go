package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medintake/registry/internal/config"
	"github.com/medintake/registry/internal/domain/chart"
	"github.com/medintake/registry/internal/domain/identity"
	"github.com/medintake/registry/internal/domain/linking"
	"github.com/medintake/registry/internal/domain/matching"
	"github.com/medintake/registry/internal/domain/reconcile"
	"github.com/medintake/registry/internal/platform/auth"
	"github.com/medintake/registry/internal/platform/db"
	"github.com/medintake/registry/internal/platform/extraction"
	"github.com/medintake/registry/internal/platform/middleware"
)

// linkAuditorAdapter lets the identity resolver write its decisions into the
// linking domain's audit trail without importing it, avoiding a circular
// dependency between the two packages.
type linkAuditorAdapter struct {
	links *linking.Service
}

func (a *linkAuditorAdapter) RecordDecision(ctx context.Context, d identity.LinkDecision) error {
	if d.EventRef == "" {
		// No stable event key to dedupe on; nothing to record.
		return nil
	}
	_, err := a.links.Record(ctx, &linking.LinkRecord{
		EventID:        d.EventRef,
		EventType:      linking.EventResolve,
		IdentityID:     d.IdentityID,
		IdentifierType: d.IdentifierType,
		Confidence:     d.Confidence,
		Method:         d.Method,
		Outcome:        d.Outcome,
		Source:         d.Source,
		CreatedAt:      d.At,
	})
	return err
}

// identityDirectoryAdapter exposes the identity repository to the linker as a
// matching pool.
type identityDirectoryAdapter struct {
	repo identity.Repository
}

func (a *identityDirectoryAdapter) ActiveBetween(ctx context.Context, from, to time.Time) ([]matching.Record, error) {
	pool, err := a.repo.ActiveBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	records := make([]matching.Record, 0, len(pool))
	for _, p := range pool {
		records = append(records, matching.Record{
			ID:             p.ID,
			Phone:          stringVal(p.Phone),
			SecondaryPhone: stringVal(p.SecondaryPhone),
			MRN:            stringVal(p.MRN),
			ShortID:        stringVal(p.ShortID),
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			DOB:            p.DOB,
			LastActivityAt: p.LastActivityAt,
		})
	}
	return records, nil
}

func (a *identityDirectoryAdapter) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := a.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.Active(), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "registry-server",
		Short: "Patient identity registry API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the registry API server",
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

	// migrate up
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

	// migrate status
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

	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one duplicate-detection sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

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

			inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
				return db.WithTx(ctx, pool, fn)
			}
			matcher := matching.NewMatcher(matching.DefaultConfig())
			identityRepo := identity.NewRepoPG(pool)
			linkSvc := linking.NewService(linking.NewRepoPG(pool), &identityDirectoryAdapter{repo: identityRepo}, matcher, cfg.PhoneCountryCode)
			chartSvc := chart.NewService(chart.NewRepoPG(pool), inTx, logger)
			reconcileSvc := reconcile.NewService(reconcile.NewRepoPG(pool), identityRepo, chartSvc, linkSvc, inTx, logger)
			return reconcileSvc.Sweep(ctx)
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

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
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		stats, err := db.CheckHealth(c.Request().Context(), pool)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"version": "0.1.0",
			"db":      stats,
		})
	})

	apiV1 := e.Group("/api/v1")

	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}

	// Matching
	matchCfg := matching.DefaultConfig()
	if cfg.MatchAutoThreshold > 0 {
		matchCfg.AutoThreshold = cfg.MatchAutoThreshold
	}
	if cfg.MatchReviewThreshold > 0 {
		matchCfg.ReviewThreshold = cfg.MatchReviewThreshold
	}
	if cfg.MatchFloorThreshold > 0 {
		matchCfg.Floor = cfg.MatchFloorThreshold
	}
	matcher := matching.NewMatcher(matchCfg)

	// Identity domain
	identityRepo := identity.NewRepoPG(pool)
	identitySvc := identity.NewService(identityRepo, matcher, cfg.PhoneCountryCode, logger)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterRoutes(apiV1)

	// Linking domain
	linkRepo := linking.NewRepoPG(pool)
	directory := &identityDirectoryAdapter{repo: identityRepo}
	linkSvc := linking.NewService(linkRepo, directory, matcher, cfg.PhoneCountryCode)
	linkHandler := linking.NewHandler(linkSvc)
	linkHandler.RegisterRoutes(apiV1)

	// Resolve decisions feed the same audit trail as event links.
	identitySvc.SetAuditor(&linkAuditorAdapter{links: linkSvc})

	// Chart domain (with optional note extraction)
	var extractor *extraction.Client
	if cfg.ExtractionURL != "" {
		extractor = extraction.NewClient(extraction.Config{
			BaseURL:    cfg.ExtractionURL,
			Timeout:    cfg.ExtractionTimeout,
			MaxRetries: cfg.ExtractionMaxRetries,
		}, logger)
		logger.Info().Str("url", cfg.ExtractionURL).Msg("note extraction enabled")
	} else {
		logger.Warn().Msg("EXTRACTION_URL not set; note extraction is disabled")
	}

	chartRepo := chart.NewRepoPG(pool)
	chartSvc := chart.NewService(chartRepo, inTx, logger)
	chartHandler := chart.NewHandler(chartSvc, extractor)
	chartHandler.RegisterRoutes(apiV1)

	// Reconcile domain
	ticketRepo := reconcile.NewRepoPG(pool)
	reconcileSvc := reconcile.NewService(ticketRepo, identityRepo, chartSvc, linkSvc, inTx, logger)
	reconcileHandler := reconcile.NewHandler(reconcileSvc)
	reconcileHandler.RegisterRoutes(apiV1)

	// Scheduled duplicate sweep
	var sweeper *cron.Cron
	if cfg.ReconcileCron != "" {
		sweeper = cron.New()
		_, err := sweeper.AddFunc(cfg.ReconcileCron, func() {
			if err := reconcileSvc.Sweep(context.Background()); err != nil {
				logger.Error().Err(err).Msg("scheduled reconcile sweep failed")
			}
		})
		if err != nil {
			logger.Fatal().Err(err).Str("spec", cfg.ReconcileCron).Msg("invalid RECONCILE_CRON expression")
		}
		sweeper.Start()
		logger.Info().Str("spec", cfg.ReconcileCron).Msg("reconcile sweep scheduled")
	}

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
	if sweeper != nil {
		sweeper.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
