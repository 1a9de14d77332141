package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/auth"
	"github.com/tommygebru/vitrine-highlights/internal/config"
	"github.com/tommygebru/vitrine-highlights/internal/highlights"
	"github.com/tommygebru/vitrine-highlights/internal/live"
	"github.com/tommygebru/vitrine-highlights/internal/media"
	"github.com/tommygebru/vitrine-highlights/internal/migrations"
	"github.com/tommygebru/vitrine-highlights/internal/notification"
	"github.com/tommygebru/vitrine-highlights/internal/ratelimit"
	"github.com/tommygebru/vitrine-highlights/pkg/cache"
	"github.com/tommygebru/vitrine-highlights/pkg/database"
	"github.com/tommygebru/vitrine-highlights/pkg/logger"
)

func main() {
	// 1. Load environment
	envErr := godotenv.Load()

	// 2. Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("========================================")
	log.Info("🚀 Starting Vitrine Highlights API")
	log.Info("========================================")

	if envErr != nil {
		log.Warn("⚠️  No .env file found, using environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration error", zap.Error(err))
	}
	log.Info("✅ Configuration loaded", zap.String("environment", cfg.Environment))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Connect to PostgreSQL
	log.Info("🗄️  Connecting to PostgreSQL...")
	db, err := database.NewPostgresDB(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Fatal("❌ Database connection failed", zap.Error(err))
	}
	defer db.Close()
	log.Info("✅ Connected to PostgreSQL")

	if cfg.AutoMigrate {
		log.Info("📦 Applying migrations...")
		if err := migrations.Up(db.DB); err != nil {
			log.Fatal("❌ Migration failed", zap.Error(err))
		}
		log.Info("✅ Migrations applied")
	}

	// 4. Feed cache
	var feedCache highlights.FeedCache = highlights.NopFeedCache{}
	if cfg.RedisURL != "" {
		log.Info("🧠 Connecting to Redis...")
		redisClient, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Warn("⚠️  Redis unavailable, feed cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			feedCache = highlights.NewRedisFeedCache(redisClient, cfg.FeedCacheTTL)
			log.Info("✅ Feed cache enabled", zap.Duration("ttl", cfg.FeedCacheTTL))
		}
	}

	// 5. Initialize Auth module
	log.Info("🔐 Initializing Auth...")
	authService := auth.NewService(&auth.Config{
		JWTSecret:         cfg.JWTSecret,
		AccessTokenExpiry: cfg.AccessTokenExpiry,
	})
	authMiddleware := auth.NewMiddleware(authService)
	log.Info("✅ Auth initialized")

	// 6. Initialize Notifications
	log.Info("🔔 Initializing Notifications...")
	mailer, err := notification.NewMailer(cfg.EmailProvider, cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName, log)
	if err != nil {
		log.Fatal("❌ Mailer setup failed", zap.Error(err))
	}
	notifier := notification.NewDecisionNotifier(mailer, cfg.BaseURL, log)
	log.Info("✅ Notifications initialized", zap.String("provider", cfg.EmailProvider))

	// 7. Initialize live moderation hub
	log.Info("💬 Initializing live moderation hub...")
	hub := live.NewHub(log)
	go hub.Run(ctx)
	log.Info("✅ Live hub running")

	// 8. Initialize Highlights module
	log.Info("📸 Initializing Highlights...")
	limiter := ratelimit.NewInMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitBurst)
	highlightsRepo := highlights.NewPostgresRepository(db)
	highlightsService := highlights.NewService(
		highlightsRepo,
		feedCache,
		notifier,
		hub,
		limiter,
		&highlights.Config{
			DefaultTTL: cfg.HighlightTTL,
			MaxTTL:     cfg.HighlightMaxTTL,
		},
		log,
	)
	highlightsHandler := highlights.NewHandler(highlightsService, log)
	log.Info("✅ Highlights initialized")

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("❌ Scheduler setup failed", zap.Error(err))
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.RateLimitWindow),
		gocron.NewTask(func() {
			if n := limiter.Sweep(); n > 0 {
				log.Debug("rate limiter swept", zap.Int("keys", n))
			}
		}),
	); err != nil {
		log.Fatal("❌ Scheduler job failed", zap.Error(err))
	}
	scheduler.Start()

	// 9. Initialize Media module
	log.Info("🖼️  Initializing Media storage...")
	var storage media.Storage
	if cfg.UseS3 {
		s3Storage, err := media.NewS3Storage(cfg.S3Region, cfg.S3Bucket, cfg.S3PublicURL)
		if err != nil {
			log.Fatal("❌ S3 setup failed", zap.Error(err))
		}
		storage = s3Storage
		log.Info("✅ Media stored in S3", zap.String("bucket", cfg.S3Bucket))
	} else {
		storage = media.NewLocalStorage(cfg.LocalUploadDir)
		log.Info("✅ Media stored locally", zap.String("dir", cfg.LocalUploadDir))
	}
	mediaHandler := media.NewHandler(storage, cfg.MaxUploadSize, log)

	// 10. Setup routes
	log.Info("🛣️  Setting up routes...")
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/api", apiInfo).Methods("GET")

	// Live feed goes before the admin subrouter claims its prefix
	router.Handle("/api/v1/admin/highlights/live",
		authMiddleware.Authenticate(authMiddleware.RequireAdmin(http.HandlerFunc(hub.ServeWS)))).Methods("GET")

	highlights.RegisterRoutes(router, highlightsHandler, highlights.Middlewares{
		Authenticate: authMiddleware.Authenticate,
		OptionalAuth: authMiddleware.OptionalAuth,
		RequireAdmin: authMiddleware.RequireAdmin,
	})
	media.RegisterRoutes(router, mediaHandler, authMiddleware.Authenticate)

	// Static files for local uploads
	if !cfg.UseS3 {
		router.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.LocalUploadDir))))
	}

	// Global middleware
	router.Use(loggingMiddleware(log))

	log.Info("✅ Routes registered")

	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			if cfg.Environment != "production" {
				return true
			}
			for _, allowed := range cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "Origin", "Cache-Control", "Pragma", "X-Actor-ID"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	handler := c.Handler(router)

	// 11. Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("========================================")
		log.Info(fmt.Sprintf("🚀 Server running on http://localhost:%s", cfg.Port))
		log.Info(fmt.Sprintf("🌍 Environment: %s", cfg.Environment))
		log.Info("========================================")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("⚠️  Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
	stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("❌ Shutdown error", zap.Error(err))
	}
	log.Info("✅ Server stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"vitrine-highlights"}`))
}

func apiInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{
		"name": "Vitrine Highlights API",
		"version": "1.0.0",
		"endpoints": {
			"highlights": "/api/v1/highlights",
			"feed": "/api/v1/highlights/feed",
			"media": "/api/v1/media",
			"admin": "/api/v1/admin/highlights/*",
			"live": "/api/v1/admin/highlights/live"
		}
	}`))
}

func loggingMiddleware(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
