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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/journey/internal/config"
	"github.com/ehr/journey/internal/domain/journey"
	"github.com/ehr/journey/internal/domain/station"
	"github.com/ehr/journey/internal/domain/visit"
	"github.com/ehr/journey/internal/platform/apperr"
	"github.com/ehr/journey/internal/platform/auth"
	"github.com/ehr/journey/internal/platform/db"
	"github.com/ehr/journey/internal/platform/metrics"
	"github.com/ehr/journey/internal/platform/middleware"
	"github.com/ehr/journey/internal/platform/notification"
	"github.com/ehr/journey/internal/platform/tracing"
	"github.com/ehr/journey/internal/platform/websocket"
	"github.com/ehr/journey/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "journey-server",
		Short: "Patient journey progression service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(stationCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the journey API server",
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

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.SchemaFor("default"), "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
	statusCmd.Flags().String("schema", db.SchemaFor("default"), "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage hospital sites",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a site schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaFor(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully. Seed its stations with: journey-server station seed --tenant", name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(createCmd)

	return cmd
}

func stationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "station",
		Short: "Manage service stations",
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Register the default outpatient flow when a site has no stations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			logger := newLogger(os.Getenv("ENV"))

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx, release, err := db.WithTenant(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer release()

			svc := station.NewService(station.NewRepoPG(pool), logger)
			created, err := svc.SeedDefaults(ctx)
			if err != nil {
				return fmt.Errorf("seed stations: %w", err)
			}
			for _, st := range created {
				fmt.Printf("%-38s %-14s %s\n", st.ID, st.Name, st.Department)
			}
			fmt.Printf("Seeded %d station(s) in %s.\n", len(created), db.SchemaFor(tenant))
			return nil
		},
	}
	seedCmd.Flags().String("tenant", "default", "Tenant identifier")
	cmd.AddCommand(seedCmd)

	return cmd
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	tp, err := tracing.Initialize(ctx, tracing.Config{
		ServiceName:    "journey-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	m := metrics.New(metrics.DefaultConfig())
	hub := websocket.NewHub(logger)
	dispatcher := notification.NewDispatcher(logger, m, cfg.NotifyTimeout, buildSinks(cfg, logger, hub, m)...)

	e := newEcho(cfg, logger, m)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	limit := rateLimitConfig(cfg)
	tenantMW := db.TenantMiddleware(pool, cfg.DefaultTenant)

	apiV1 := e.Group("/api/v1",
		middleware.RateLimit(limit),
		authMiddleware(cfg),
		tenantMW,
		middleware.Audit(logger),
	)
	patient := e.Group("/api/v1/patient", middleware.RateLimit(limit), tenantMW)

	tx := db.NewTxRunner(pool)
	stationSvc := station.NewService(station.NewRepoPG(pool), logger)
	visitRepo := visit.NewRepoPG(pool)
	journeySvc := journey.NewService(journey.NewRepoPG(pool), visitRepo, stationSvc, tx, dispatcher, m, logger)
	visitSvc := visit.NewService(visitRepo, stationSvc, journeySvc, tx, cfg.PatientPortalURL, logger)

	station.NewHandler(stationSvc).RegisterRoutes(apiV1)
	visit.NewHandler(visitSvc).RegisterRoutes(apiV1, patient)
	journey.NewHandler(journeySvc, stationSvc).RegisterRoutes(apiV1)
	websocket.NewWebSocketHandler(hub).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("notification sinks did not close cleanly")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the server with the middleware shared by every route.
func newEcho(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tracing.Middleware())
	e.Use(middleware.Metrics(m))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	limit := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if limit.RequestsPerSecond <= 0 || limit.BurstSize <= 0 {
		return middleware.DefaultRateLimitConfig()
	}
	return limit
}

// buildSinks always logs and broadcasts to websocket subscribers. The push
// gateway and Kafka are added when configured.
func buildSinks(cfg *config.Config, logger zerolog.Logger, hub *websocket.Hub, m *metrics.Metrics) []notification.Sink {
	sinks := []notification.Sink{
		notification.NewLogSink(logger),
		notification.NewHubSink(hub),
	}
	if cfg.PushEndpoint != "" {
		sinks = append(sinks, notification.NewPushSink(notification.PushConfig{Endpoint: cfg.PushEndpoint}, nil, logger, m))
	}
	if cfg.KafkaEnabled() {
		sinks = append(sinks, notification.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	return sinks
}
