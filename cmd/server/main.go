// Package main initializes and starts the app interface server, setting up
// configuration, logging, the database connection, repositories, services
// and handlers.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/config"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/crypto"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/db"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/logger"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/notify"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/repository"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/server/handler/http"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/service"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/storage"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// The field encryption key is fatal at startup, never per-request.
	key, err := crypto.KeyFromString(options.AppKey)
	if err != nil {
		zapLogger.Fatal("invalid APP_KEY", zap.Error(err))
	}
	codec, err := crypto.NewCodec(key)
	if err != nil {
		zapLogger.Fatal("cannot init field codec", zap.Error(err))
	}

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Clear abandoned sessions in the background.
	db.StartExpiredTokenCleaner(context.Background(), postgresDB,
		time.Hour,
		zapLogger,
	)

	// Optional Redis connection for login rate limiting; the limiter fails
	// open without it.
	var limiter *redis.Client
	if options.RedisAddr != "" {
		limiter = redis.NewClient(&redis.Options{Addr: options.RedisAddr})
	} else {
		zapLogger.Warn("no redis configured, login rate limiting disabled")
	}

	// Initialize repositories.
	userRepo := repository.NewPostgresUserRepository(postgresDB, codec)
	orgRepo := repository.NewPostgresOrganizationRepository(postgresDB, codec)
	missionRepo := repository.NewPostgresMissionRepository(postgresDB, codec)
	locationRepo := repository.NewPostgresLocationRepository(postgresDB)

	// Initialize collaborators and business-logic services.
	notifier := notify.NewClient(options.StatusUpdateURL, zapLogger)
	images := storage.NewFilesystemImageStore(options.SecurePath)
	tokenTTL := time.Duration(options.TokenMaxAge) * time.Second
	authService := service.NewAuthService(userRepo, orgRepo, notifier, tokenTTL, zapLogger)
	missionService := service.NewMissionService(userRepo, orgRepo, missionRepo, locationRepo, images, notifier, zapLogger)

	// Create HTTP handlers.
	authHandler := &http.AuthHandler{AuthService: authService, Orgs: orgRepo, Log: zapLogger}
	missionHandler := &http.MissionHandler{MissionService: missionService, Log: zapLogger}
	locationHandler := &http.LocationHandler{Recorder: missionService, Log: zapLogger}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, missionHandler, locationHandler, authService, limiter, zapLogger)

	// Create and start the HTTP server; TLS termination happens at the
	// reverse proxy in front of this process.
	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
