package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/bohemiyan/ugibdd/internal/config"
	"github.com/bohemiyan/ugibdd/internal/db"
	"github.com/bohemiyan/ugibdd/internal/remote"
	"github.com/bohemiyan/ugibdd/internal/routes"
	"github.com/bohemiyan/ugibdd/zapLogger"
	"github.com/gofiber/fiber/v2"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize zapLogger
	logFile, err := zapLogger.Init(cfg.LogFile, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logFile.Close()
	defer zapLogger.Log.Sync()

	ctx := context.Background()

	client, err := remote.New(remote.Options{
		URL:           cfg.Backend.URL,
		AnonKey:       cfg.Backend.AnonKey,
		AdminFunction: cfg.Backend.AdminFunction,
		Timeout:       cfg.Backend.Timeout,
		Logger:        zapLogger.Log.Named("remote"),
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize backend client: %v", err)
	}

	var table ugibdd.Table = client
	if cfg.TableDriver == config.DriverPostgres {
		pgDB, err := db.NewPostgresDB(cfg.Postgres)
		if err != nil {
			zapLogger.Log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		zapLogger.Log.Info("Successfully connected to PostgreSQL database")
		defer pgDB.Close()
		if err := pgDB.Migrate(ctx); err != nil {
			zapLogger.Log.Fatalf("Failed to migrate PostgreSQL: %v", err)
		}
		table = db.NewGormTable(pgDB.GormDB)
	}

	var markers ugibdd.MarkerStore = ugibdd.NewMemoryStore()
	if cfg.SessionStore == config.StoreRedis {
		redisDB, err := db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			zapLogger.Log.Fatalf("Failed to initialize Redis: %v", err)
		}
		zapLogger.Log.Info("Successfully connected to Redis")
		defer redisDB.Close()
		// Stale markers expire after a day
		markers = ugibdd.NewRedisStore(redisDB, cfg.Redis.Prefix, 24*time.Hour)
	}

	svc, err := ugibdd.New(ugibdd.Config{
		Table:             table,
		Auth:              client,
		Admin:             client,
		Markers:           markers,
		Logger:            zapLogger.Log,
		SessionTimeout:    cfg.SessionTimeout,
		EmailDomain:       cfg.EmailDomain,
		ActionLogLimit:    cfg.ActionLogLimit,
		KuspListLimit:     cfg.KuspListLimit,
		TsuExpirationDays: cfg.TsuExpirationDays,
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize records service: %v", err)
	}

	mode, user, err := svc.Session.Restore(ctx)
	if err != nil {
		zapLogger.Log.Warnf("Failed to restore session: %v", err)
	} else if user != nil {
		zapLogger.Log.Infow("Restored session", "mode", mode, "nickname", user.Nickname)
	}

	// Set up Fiber app
	app := fiber.New(fiber.Config{ErrorHandler: routes.ErrorHandler})

	// Middleware
	app.Use(zapLogger.FiberLoggingMiddleware(logFile))

	// Set up routes
	routes.Setup(app, svc, zapLogger.Log.Named("http"))

	// Start server
	addr := fmt.Sprintf(":%d", cfg.AppPort)
	zapLogger.Log.Infof("Server started on port %d", cfg.AppPort)
	log.Fatal(app.Listen(addr))
}
