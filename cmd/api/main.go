package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"contentapi/docs"
	"contentapi/internal/category"
	"contentapi/internal/config"
	"contentapi/internal/database"
	handlers "contentapi/internal/http/handler"
	"contentapi/internal/http/middleware"
	"contentapi/internal/logger"
	"contentapi/internal/otel"
	"contentapi/internal/repository"
	"contentapi/internal/repository/postgres"
	"contentapi/internal/service"
	"contentapi/internal/storage"
)

// multipartOverhead is added to the upload limit for the form fields and part headers
// that travel with the file.
const multipartOverhead = 1 << 20

const shutdownTimeout = 10 * time.Second

// @title Content API
// @version 1.0
// @description Categorized file uploads (articles, books, videos, audios) with JSON metadata.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	log := logger.New(cfg.Location(), cfg.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal("tracing_init_failed", zap.Error(err))
	}

	// The activity log is optional; without DB_HOST it is not persisted.
	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("database_connect_failed", zap.Error(err))
	}
	var activity repository.ActivityRepository = repository.NoopActivity{}
	if db != nil {
		defer db.Close()
		activity = postgres.NewActivityPostgres(db)
	}

	dirs := make([]string, 0, len(category.All()))
	for _, c := range category.All() {
		dirs = append(dirs, c.Dir())
	}
	store, err := storage.New(cfg.Storage, cfg.MinIO, dirs...)
	if err != nil {
		log.Fatal("storage_init_failed", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", zap.Error(err))
	}
	contentMetrics, err := service.NewMetrics(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", zap.Error(err))
	}

	contentSvc := service.NewContentService(store, activity, log,
		service.WithMaxUploadBytes(cfg.Storage.MaxUploadBytes),
		service.WithMetrics(contentMetrics),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Storage.MaxUploadBytes) + multipartOverhead,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	app.Get(middleware.MetricsPath, middleware.MetricsHandler(reg))
	handlers.RegisterRoutes(app, db, contentSvc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("server_started",
			zap.String("addr", addr),
			zap.String("storage_backend", cfg.Storage.Backend),
			zap.String("upload_dir", cfg.Storage.UploadDir),
			zap.Int64("max_upload_bytes", cfg.Storage.MaxUploadBytes),
			zap.Bool("activity_log", db != nil),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server_failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("server_stopping")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error("server_shutdown_failed", zap.Error(err))
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error("tracing_shutdown_failed", zap.Error(err))
	}
}
