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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mediease/mediease/internal/config"
	"github.com/mediease/mediease/internal/domain/activity"
	"github.com/mediease/mediease/internal/domain/admin"
	"github.com/mediease/mediease/internal/domain/appointment"
	"github.com/mediease/mediease/internal/domain/identity"
	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
	"github.com/mediease/mediease/internal/platform/db"
	"github.com/mediease/mediease/internal/platform/metrics"
	"github.com/mediease/mediease/internal/platform/middleware"
	"github.com/mediease/mediease/internal/platform/validation"
	"github.com/mediease/mediease/migrations"
)

const (
	tokenIssuer     = "mediease"
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "1M"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mediease-server",
		Short: "MediEase appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	opts := db.DefaultPoolOptions()
	opts.MaxConns = cfg.DBMaxConns
	opts.MinConns = cfg.DBMinConns
	return db.NewPool(ctx, cfg.DatabaseURL, opts)
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

// newMigrator reads migrations from dir, or from the copy embedded in the
// binary when dir is empty.
func newMigrator(pool *pgxpool.Pool, dir string) *db.Migrator {
	if dir == "" {
		return db.NewFSMigrator(pool, migrations.FS)
	}
	return db.NewMigrator(pool, dir)
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := newMigrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := newMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				state, at := "pending", ""
				if s.Applied {
					state = "applied"
				}
				if s.AppliedAt != nil {
					at = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, state, at)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Maintain doctor availability",
	}

	var (
		userID int64
		req    scheduling.GenerateRequest
	)
	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Create availability slots for a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := generateSlots(ctx, pool, logger, loc, userID, req)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d requested, %d created for %s)\n", res.Message, res.Requested, res.Created, res.Date)
			return nil
		},
	}
	genCmd.Flags().Int64Var(&userID, "doctor-user-id", 0, "User ID of the doctor")
	genCmd.Flags().StringVar(&req.Date, "date", "", "Date (YYYY-MM-DD)")
	genCmd.Flags().StringVar(&req.StartTime, "start", "", "Start of the window (HH:MM)")
	genCmd.Flags().StringVar(&req.EndTime, "end", "", "End of the window (HH:MM)")
	genCmd.Flags().IntVar(&req.Duration, "duration", 30, "Slot length in minutes")
	_ = genCmd.MarkFlagRequired("doctor-user-id")
	_ = genCmd.MarkFlagRequired("date")
	_ = genCmd.MarkFlagRequired("start")
	_ = genCmd.MarkFlagRequired("end")
	cmd.AddCommand(genCmd)

	return cmd
}

// generateSlots runs the same slot creation as the API, acting as the doctor
// whose user ID is given.
func generateSlots(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, loc *time.Location,
	userID int64, req scheduling.GenerateRequest) (*scheduling.CreateResult, error) {
	tx := db.NewTransactor(pool)
	rec := activity.NewRecorder(activity.NewRepoPG(pool), logger)
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), identity.NewDoctorRepoPG(pool), tx,
		auth.NewMemorySessionStore(), nil, rec, loc)

	u, _, err := identitySvc.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RoleDoctor {
		return nil, fmt.Errorf("user %d is a %s, not a doctor", userID, u.Role)
	}

	schedSvc := scheduling.NewService(scheduling.NewSlotRepoPG(pool), identitySvc, tx, rec, loc)
	who := &auth.Principal{UserID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
	return schedSvc.CreateSlots(ctx, who, req)
}

// newEcho builds the server with global middleware, error handling and the
// unauthenticated operational routes. Domain routes go on the returned
// /api/v1 group.
func newEcho(cfg *config.Config, logger zerolog.Logger, sessions auth.SessionStore, tokens *auth.TokenIssuer) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.Handler(logger)
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(activity.CaptureClientIP())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Sessions
	e.Use(auth.SessionMiddleware(auth.SessionConfig{
		Issuer:     tokens,
		Store:      sessions,
		CookieName: cfg.SessionCookie,
		Secure:     cfg.TLSEnabled,
		Skipper:    auth.AuthSkipper,
		Logger:     logger,
	}))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	return e, apiV1
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		boot := newLogger(os.Getenv("ENV"))
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Sessions
	var (
		sessions auth.SessionStore
		rdb      *redis.Client
	)
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		sessions = auth.NewRedisSessionStore(rdb)
		logger.Info().Msg("connected to redis")
	} else {
		sessions = auth.NewMemorySessionStore()
	}
	tokens := auth.NewTokenIssuer([]byte(cfg.SessionSecret), tokenIssuer, cfg.SessionTTL)

	e, apiV1 := newEcho(cfg, logger, sessions, tokens)

	var checks []db.Check
	if rdb != nil {
		checks = append(checks, db.RedisCheck(rdb))
	}
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	// Repositories
	tx := db.NewTransactor(pool)
	activityRepo := activity.NewRepoPG(pool)
	rec := activity.NewRecorder(activityRepo, logger)
	slotRepo := scheduling.NewSlotRepoPG(pool)

	// Services
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), identity.NewDoctorRepoPG(pool), tx,
		sessions, tokens, rec, loc)
	schedSvc := scheduling.NewService(slotRepo, identitySvc, tx, rec, loc)
	apptSvc := appointment.NewService(appointment.NewRepoPG(pool), slotRepo, tx, rec, loc, appointment.Options{
		ReleaseOldSlotOnReschedule: cfg.RescheduleReleasesOldSlot,
	})
	adminSvc := admin.NewService(admin.NewRepoPG(pool), identitySvc, schedSvc, activityRepo, loc)

	// Routes
	identity.NewHandler(identitySvc, identity.CookieConfig{
		Name:   cfg.SessionCookie,
		Secure: cfg.TLSEnabled,
	}).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)
	admin.NewHandler(adminSvc).RegisterRoutes(apiV1)

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go reportPoolStats(statsCtx, pool, 15*time.Second)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// reportPoolStats publishes the number of acquired connections until ctx ends.
func reportPoolStats(ctx context.Context, pool *pgxpool.Pool, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.RecordDBConnections(pool.Stat().AcquiredConns())
		}
	}
}
