package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/homegrid/backend/internal/config"
	"github.com/homegrid/backend/internal/handlers"
	"github.com/homegrid/backend/internal/logger"
	"github.com/homegrid/backend/internal/middlewares"
	"github.com/homegrid/backend/internal/repositories"
	"github.com/homegrid/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting HomeGrid backend", zap.String("env", cfg.Env))

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to Redis (sessions and identity cache)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	cancelPing()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db, logger.Logger)

	// Initialize services; dependencies are wired explicitly here, nothing is
	// shared through package globals
	accessService := services.NewAccessService(services.StaticAllowlist(cfg.Security.AllowedEmails))
	hasher := services.NewBcryptHasher()
	lockoutPolicy := services.NewLockoutPolicy(userRepo, cfg.Security.LockoutThreshold, cfg.Security.LockoutDuration, logger.Logger)
	authService := services.NewAuthService(userRepo, lockoutPolicy, accessService, hasher, logger.Logger)
	identityCache := services.NewIdentityCache(redisClient, userRepo, accessService, cfg.Security.IdentityCacheTTL, logger.Logger)
	sessionManager := services.NewSessionManager(redisClient, cfg.Session.TTL, logger.Logger)
	sessionIdentity := services.NewSessionIdentity(sessionManager, identityCache)
	userService := services.NewUserService(userRepo, identityCache, hasher, logger.Logger)
	mailer := services.NewSMTPMailer(cfg.SMTP, logger.Logger)
	billService := services.NewBillService(mailer, logger.Logger)

	// Seed the default admin account on an empty database
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := authService.EnsureDefaultAdmin(seedCtx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		cancelSeed()
		logger.Logger.Fatal("Failed to seed default admin", zap.Error(err))
	}
	cancelSeed()

	// Initialize route guard and handlers
	guard := middlewares.NewGuard(sessionIdentity, accessService, cfg.Session.CookieName, logger.Logger)
	authHandler := handlers.NewAuthHandler(authService, sessionManager, identityCache, cfg.Session.CookieName, cfg.Session.Secure, logger.Logger)
	userHandler := handlers.NewUserHandler(userService, logger.Logger)
	billHandler := handlers.NewBillHandler(billService, logger.Logger)

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middlewares.RequestIDMiddleware)
	r.Use(middlewares.LoggerMiddleware(logger.Logger))
	r.Use(middlewares.RecoveryMiddleware(logger.Logger))
	r.Use(middlewares.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(middlewares.RequestSizeLimitMiddleware(1 * 1024 * 1024)) // 1MB

	// Tighter limit on the login endpoint to slow down guessing
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		authHandler.RegisterRoutes(r)
	})

	authHandler.RegisterProtectedRoutes(r, guard)
	userHandler.RegisterRoutes(r, guard, cfg.Server.EnableUserListing)
	billHandler.RegisterRoutes(r, guard)

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		// Try parent directory if running from cmd
		if _, err := os.Stat("../migrations"); err == nil {
			migrationPath = "file://../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
