// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/handlers"
	"github.com/vendora/backend/internal/middleware"
	"github.com/vendora/backend/internal/security"
	"github.com/vendora/backend/internal/services"
	"github.com/vendora/backend/internal/store"
)

// Setup wires stores, services and handlers into the HTTP surface.
// redisClient may be nil; the rate limiters then run on in-process windows.
func Setup(cfg *config.Config, st store.Store, redisClient *redis.Client) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var windows security.WindowStore
	if cfg.Security.RateLimitBackend == "redis" && redisClient != nil {
		windows = security.NewRedisWindowStore(redisClient, "ratelimit")
	} else {
		if cfg.Security.RateLimitBackend == "redis" {
			logrus.Warn("Redis rate limit backend configured but no client available, using memory")
		}
		memWindows := security.NewMemoryWindowStore()
		go pruneLoop(memWindows, cfg.Security.DownloadWindow)
		windows = memWindows
	}

	downloadLimiter := security.NewLimiter(windows, security.Policy{
		Window: cfg.Security.DownloadWindow, Max: cfg.Security.DownloadMax,
	})
	validationLimiter := security.NewLimiter(windows, security.Policy{
		Window: cfg.Security.LicenseWindow, Max: cfg.Security.LicenseMax,
	})
	activationLimiter := security.NewLimiter(windows, security.Policy{
		Window: cfg.Security.ActivationWindow, Max: cfg.Security.ActivationMax,
	})

	classifier := security.NewClassifier(cfg.IsProduction(), int64(cfg.Security.PiracyMaxPerIP))

	storage, err := services.NewStorageService(cfg.AWS)
	if err != nil {
		return nil, err
	}

	audit := services.NewAuditService(st)
	notification := services.NewNotificationService(cfg.Email, cfg.Server.BaseURL)
	licenses := services.NewLicenseService(st, audit, notification, validationLimiter, activationLimiter, cfg.Delivery)
	delivery := services.NewDeliveryService(st, licenses, audit, notification, cfg.Delivery)
	downloads := services.NewDownloadService(st, downloadLimiter, classifier, audit, storage, cfg.Security)
	payments := services.NewPaymentService(st, delivery, cfg.Payment)

	downloadHandler := handlers.NewDownloadHandler(downloads)
	licenseHandler := handlers.NewLicenseHandler(licenses)
	paymentHandler := handlers.NewPaymentHandler(payments)
	productHandler := handlers.NewProductHandler(st)
	adminHandler := handlers.NewAdminHandler(st, downloads, licenses, delivery, audit, cfg.Admin)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS(cfg.IsProduction(), cfg.Server.AllowedOrigins))
	r.Use(middleware.NewIPRateLimiter(50, 100).Handler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/download/:token", downloadHandler.Download)
		v1.GET("/download/:token/info", downloadHandler.Info)

		v1.POST("/license/validate", licenseHandler.Validate)
		v1.POST("/license/activate", licenseHandler.Activate)
		v1.POST("/license/deactivate", licenseHandler.Deactivate)

		v1.POST("/payments/intent", paymentHandler.CreateIntent)
		v1.POST("/payments/webhook", paymentHandler.Webhook)

		v1.GET("/products", productHandler.List)
		v1.GET("/products/:id", productHandler.Get)

		v1.POST("/admin/login", adminHandler.Login)

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuthRequired())
		{
			admin.GET("/audits", adminHandler.ListAudits)
			admin.GET("/stats", adminHandler.Stats)
			admin.GET("/orders/:id/stats", adminHandler.OrderStats)
			admin.POST("/orders/:id/redeliver", adminHandler.Redeliver)
			admin.DELETE("/tokens/:token", adminHandler.RevokeToken)
			admin.GET("/licenses/:key", adminHandler.GetLicense)
			admin.PUT("/licenses/:key/status", adminHandler.SetLicenseStatus)
			admin.POST("/products", productHandler.Create)
		}
	}

	return r, nil
}

// pruneLoop keeps the in-memory rate limit windows from growing unbounded.
func pruneLoop(windows *security.MemoryWindowStore, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		windows.Prune(time.Now())
	}
}
