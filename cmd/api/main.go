package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"medindex/internal/config"
	"medindex/internal/database"
	"medindex/internal/database/migration"
	handlers "medindex/internal/http/handler"
	"medindex/internal/http/middleware"
	"medindex/internal/logger"
	"medindex/internal/otel"
	"medindex/internal/quality"
	"medindex/internal/ratelimit"
	"medindex/internal/repository/postgres"
	"medindex/internal/security"
	"medindex/internal/service"
	"medindex/internal/storage"
	"medindex/internal/vectorstore"

	"medindex/internal/extract/remote"
	vecmemory "medindex/internal/vectorstore/memory"
	"medindex/internal/vectorstore/pgvector"
	"medindex/internal/vectorstore/qdrant"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log := logger.New(cfg.Log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Embedding.Dimension); err != nil {
		log.Fatal("failed to migrate schema", zap.Error(err))
	}

	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatal("failed to initialize object storage", zap.Error(err))
	}

	vectors, err := newVectorStore(ctx, cfg, db)
	if err != nil {
		log.Fatal("failed to initialize vector store", zap.Error(err))
	}
	log.Info("vector store ready", zap.String("backend", cfg.Vector.Backend))

	extractTimeout := time.Duration(cfg.Extract.TimeoutSec) * time.Second
	ocr := remote.NewOCRClient(remote.Config{BaseURL: cfg.Extract.OCRBaseURL, Timeout: extractTimeout})
	ner := remote.NewNERClient(remote.Config{BaseURL: cfg.Extract.NERBaseURL, Timeout: extractTimeout})
	embedder := remote.NewEmbedderClient(remote.EmbedderConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		MaxRetries: cfg.Embedding.MaxRetries,
	})

	fileGate := security.NewGate(int64(cfg.Pipeline.MaxFileSizeMB)<<20, cfg.Pipeline.AllowedExtensions)
	qualityCfg := quality.DefaultConfig()
	qualityCfg.MinOCRConfidence = cfg.Pipeline.OCRConfidenceMin
	qualityCfg.MinEntityConfidence = cfg.Pipeline.EntityConfidenceMin
	qualityGate := quality.NewGate(qualityCfg, log)

	docRepo := postgres.NewDocumentPostgres(db)
	ingestSvc := service.NewIngestService(docRepo, objStore, vectors, ocr, ner, embedder, fileGate, qualityGate,
		service.PipelineConfig{
			ExtractTimeout: time.Duration(cfg.Pipeline.ExtractTimeoutSec) * time.Second,
			Workers:        cfg.Pipeline.BatchWorkers,
		}, log)
	searchSvc := service.NewSearchService(docRepo, vectors, embedder, service.SearchConfig{
		MaxResults:      cfg.Search.MaxResults,
		OverfetchFactor: cfg.Search.OverfetchFactor,
		MinSimilarity:   cfg.Search.MinSimilarity,
	}, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMw, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		log.Fatal("failed to register metrics", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    (cfg.Pipeline.MaxFileSizeMB + 1) << 20,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(otelfiber.Middleware())
	app.Use(promMw.Handler())

	// Upload budgets apply to document submission only; reads are not limited.
	limiter := ratelimit.NewLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	uploadLimit := middleware.RateLimit(limiter, cfg.RateLimit.PerMinute)
	app.Use("/documents", func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost {
			return uploadLimit(c)
		}
		return c.Next()
	})

	handlers.RegisterRoutes(app, db, ingestSvc, searchSvc)

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		log.Info("metrics listener starting", zap.String("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", zap.Error(err))
	}
}

// newVectorStore picks the vector index backend. The in-memory index is the
// default for local development; qdrant and pgvector are the durable options.
func newVectorStore(ctx context.Context, cfg *config.AppConfig, db *sql.DB) (vectorstore.VectorStore, error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		store := qdrant.NewStore(qdrant.Config{
			URL:        cfg.Vector.QdrantURL,
			APIKey:     cfg.Vector.QdrantAPIKey,
			Collection: cfg.Vector.QdrantCollection,
		})
		if err := store.Init(ctx, cfg.Embedding.Dimension); err != nil {
			return nil, err
		}
		return store, nil
	case "pgvector":
		return pgvector.NewStore(db), nil
	case "memory", "":
		return vecmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %q", cfg.Vector.Backend)
	}
}
