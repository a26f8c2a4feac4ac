package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prakashnk/trafficalert/internal/alerts"
	"github.com/prakashnk/trafficalert/internal/config"
	apierrors "github.com/prakashnk/trafficalert/internal/errors"
	"github.com/prakashnk/trafficalert/internal/logger"
	"github.com/prakashnk/trafficalert/internal/maps"
	"github.com/prakashnk/trafficalert/internal/metrics"
	"github.com/prakashnk/trafficalert/internal/notifier"
	"github.com/rs/cors"
)

func main() {
	config.LoadConfig()

	log := logger.New(logger.FromConfig(config.AppConfig.LogLevel, config.AppConfig.LogFormat))

	// Set Gin mode
	log.Info("setting gin mode", slog.String("mode", config.AppConfig.GinMode))
	gin.SetMode(config.AppConfig.GinMode)

	httpClient := &http.Client{Timeout: config.AppConfig.HTTPClientTimeout}

	// Initialize services
	mapsService := maps.NewService(config.AppConfig, httpClient, log)
	credentials := notifier.NewCredentialStoreFromConfig(config.AppConfig, httpClient, log)
	alertNotifier := notifier.NewNotifier(config.AppConfig, httpClient, credentials, log)
	alertService := alerts.NewService(config.AppConfig, mapsService, alertNotifier, log)

	// Initialize handlers
	alertHandler := alerts.NewHandler(alertService, log)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLoggingMiddleware(log))
	router.Use(metrics.Middleware())

	alertHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.NoRoute(func(c *gin.Context) {
		apierrors.AbortWithNotFound(c, "route not found", nil)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(config.AppConfig.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", logger.RequestIDHeader},
		ExposedHeaders: []string{logger.RequestIDHeader},
	})

	port := ":" + config.AppConfig.Port

	log.Info("🔁  traffic alert service listening on "+port,
		slog.String("email_provider", string(alertNotifier.Provider())),
		slog.Int("default_threshold_minutes", config.AppConfig.AlertThresholdMinutes),
		slog.String("alert_policy", string(config.AppConfig.AlertPolicy)))

	srv := &http.Server{
		Addr:              port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.AppConfig.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	credentials.Close()

	log.Info("✅ server exited")
}

// allowedOrigins splits a comma separated origin list.
func allowedOrigins(value string) []string {
	var origins []string
	for _, origin := range strings.Split(value, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
