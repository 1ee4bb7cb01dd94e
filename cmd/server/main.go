// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/database"
	"github.com/vendora/backend/internal/router"
	"github.com/vendora/backend/internal/store"
	"github.com/vendora/backend/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	utils.SetJWTSecret(cfg.Admin.JWTSecret)

	st, db := buildStore(cfg)
	if db != nil {
		defer database.Close(db)
	}

	var redisClient *redis.Client
	if cfg.Security.RateLimitBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logrus.WithError(err).Warn("Redis unreachable, rate limits fall back to memory")
			redisClient = nil
		}
		cancel()
	}

	engine, err := router.Setup(cfg, st, redisClient)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up router")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Forced shutdown")
	}
	logrus.Info("Server stopped")
}

// buildStore connects PostgreSQL and falls back to the in-memory store in
// development when no database is reachable.
func buildStore(cfg *config.Config) (store.Store, *gorm.DB) {
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		if cfg.IsProduction() {
			logrus.WithError(err).Fatal("Database required in production")
		}
		logrus.WithError(err).Warn("Database unreachable, using in-memory store")
		return store.NewMemory(), nil
	}

	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Migrations failed")
	}

	return store.NewGorm(db), db
}
