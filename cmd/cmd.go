package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matelock-backend/internal/config"
	"matelock-backend/internal/docstore"
	"matelock-backend/internal/handlers"
	"matelock-backend/internal/metrics"
	"matelock-backend/internal/middleware"
	"matelock-backend/internal/repository"
	"matelock-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database and change feed
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}
	defer closeStore()

	// Initialize repositories
	userRepo := repository.NewUserRepository(store)
	pairRepo := repository.NewPairRepository(store)
	setupRepo := repository.NewSetupRepository(store)
	breakRepo := repository.NewBreakRepository(store)

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret)

	var push services.Notifier
	if cfg.APNs.KeyFile != "" {
		apns, err := services.NewAPNsNotifier(services.APNsConfig{
			KeyFile:    cfg.APNs.KeyFile,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		}, userRepo)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs notifier")
		}
		push = apns
	}

	var (
		archiver       services.Archiver
		archiveService *services.ArchiveService
	)
	if cfg.AWS.S3Bucket != "" {
		archiveService, err = services.NewArchiveService(ctx, services.ArchiveConfig{
			Region:          cfg.AWS.Region,
			Bucket:          cfg.AWS.S3Bucket,
			Endpoint:        cfg.AWS.Endpoint,
			AccessKeyID:     cfg.AWS.AccessKey,
			SecretAccessKey: cfg.AWS.SecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive service")
		}
		archiver = archiveService
	}

	// The hub resolves partners through the pair service, which notifies
	// through the hub.
	notifier := &lateNotifier{}
	pairService := services.NewPairService(store, pairRepo, userRepo, setupRepo, notifier)
	wsHub := services.NewWSHub(pairService)
	notifier.Notifier = services.NewRoutingNotifier(wsHub, push)

	setupService := services.NewSetupService(store, pairService, setupRepo, notifier, archiver)
	breakService := services.NewBreakService(store, pairService, breakRepo, notifier, cfg.Rules.PauseDuration())

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	pairHandler := handlers.NewPairHandler(pairService)
	setupHandler := handlers.NewSetupHandler(setupService, pairService, archiveService)
	breakHandler := handlers.NewBreakHandler(breakService)
	enforcementHandler := handlers.NewEnforcementHandler(pairService, setupService, breakService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, pairService, setupService, breakService)

	joinLimiter := middleware.NewRateLimiter(ctx,
		middleware.PerMinute(cfg.Rules.JoinRatePerMinute), cfg.Rules.JoinBurst, 10*time.Minute)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Get("/users/me", userHandler.GetMe)
			r.Put("/users/me/push-token", userHandler.UpdatePushToken)

			r.Post("/pairs", pairHandler.CreatePair)
			r.With(joinLimiter.Middleware()).Post("/pairs/join", pairHandler.JoinPair)
			r.Get("/pairs/current", pairHandler.GetCurrentPair)

			r.Get("/setup", setupHandler.GetSetup)
			r.Get("/setup/archive", setupHandler.GetArchive)
			r.Post("/setup/revise", setupHandler.Revise)
			r.Post("/setup/{step}/submit", setupHandler.Submit)
			r.Post("/setup/{step}/approve", setupHandler.Approve)
			r.Post("/setup/{step}/reject", setupHandler.Reject)

			r.Get("/breaks", breakHandler.ListRequests)
			r.Post("/breaks", breakHandler.RequestBreak)
			r.Delete("/breaks", breakHandler.CancelRequest)
			r.Get("/breaks/policy", breakHandler.GetPolicy)
			r.Delete("/breaks/pause", breakHandler.CancelPause)
			r.Post("/breaks/{user_id}/approve", breakHandler.Approve)
			r.Post("/breaks/{user_id}/reject", breakHandler.Reject)

			r.Post("/enforcement", enforcementHandler.Evaluate)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStore connects to PostgreSQL, applies migrations and picks the change
// feed: Redis when configured, in-process otherwise.
func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, func(), error) {
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if err := docstore.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	var feed docstore.Feed = docstore.NewLocalFeed()
	closeFeed := func() {}
	if cfg.Redis.URL != "" {
		redisFeed, err := docstore.NewRedisFeed(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("Redis change feed connected")
		feed = redisFeed
		closeFeed = func() { redisFeed.Close() }
	}

	cleanup := func() {
		closeFeed()
		db.Close()
	}
	return docstore.NewPostgres(db, feed), cleanup, nil
}

// lateNotifier forwards to a Notifier assigned after construction.
type lateNotifier struct {
	services.Notifier
}

func (n *lateNotifier) Notify(ctx context.Context, userID string, event services.Event) error {
	if n.Notifier == nil {
		return nil
	}
	return n.Notifier.Notify(ctx, userID, event)
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
