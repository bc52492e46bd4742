package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/buildcost/docpipe/internal/config"
	"github.com/buildcost/docpipe/internal/core/ports"
	"github.com/buildcost/docpipe/internal/core/usecase"
	"github.com/buildcost/docpipe/internal/infrastructure/chunking"
	"github.com/buildcost/docpipe/internal/infrastructure/extract"
	"github.com/buildcost/docpipe/internal/infrastructure/llm/ollama"
	"github.com/buildcost/docpipe/internal/infrastructure/matcher"
	"github.com/buildcost/docpipe/internal/infrastructure/queue/nats"
	"github.com/buildcost/docpipe/internal/infrastructure/repository/postgres"
	"github.com/buildcost/docpipe/internal/infrastructure/resilience"
	"github.com/buildcost/docpipe/internal/infrastructure/storage/localfs"
	"github.com/buildcost/docpipe/internal/observability/tracing"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue  ports.MessageQueue
	Repo   ports.DocumentRepository
	Events ports.EventLog

	UploadUC   ports.DocumentIngestor
	PipelineUC ports.PipelineRunner
	ReviewUC   ports.ReviewService
	CommitUC   ports.CommitService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, serviceName string) (*App, error) {
	logger := newLogger(cfg.LogLevel, serviceName)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	repo := postgres.NewDocumentRepository(db)
	items := postgres.NewItemRepository(db)
	events := postgres.NewEventLog(db)
	questions := postgres.NewClarificationRepository(db)
	canonical := postgres.NewCanonicalStore(db)
	catalog := postgres.NewCatalogRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	tracer, shutdownTracer := tracing.Setup(ctx, serviceName, cfg.TracingEnabled, logger)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaModel, ollama.ClientOptions{
		RequestTimeout:     time.Duration(cfg.OllamaTimeout) * time.Second,
		RequestsPerSecond:  cfg.OllamaRPS,
		Burst:              cfg.OllamaRPSBurst,
		ResilienceExecutor: executor,
	})
	classifier := ollama.NewClassifier(ollamaClient)
	structured := ollama.NewExtractor(ollamaClient)

	textExtractor := extract.New(storage)
	packer := chunking.NewPacker(cfg.ChunkMaxChars)
	resolver := matcher.New(catalog)

	thresholds := usecase.Thresholds{
		DefaultItemConfidence: cfg.DefaultItemConfidence,
		ReviewThreshold:       cfg.ReviewThreshold,
		ItemReviewThreshold:   cfg.ItemReviewThreshold,
		SimilarityThreshold:   cfg.SimilarityThreshold,
		CommitThreshold:       cfg.CommitThreshold,
	}

	uploadUC := usecase.NewUploadUseCase(repo, storage, queue, events, usecase.UploadPolicy{
		MaxSizeBytes:     cfg.MaxUploadBytes,
		AllowedMimeTypes: splitMimeTypes(cfg.AllowedMimeTypes),
	}, logger)
	pipelineUC := usecase.NewPipelineUseCase(
		repo, items, events, questions,
		textExtractor, classifier, packer, structured, resolver,
		tracer, thresholds, logger,
	)
	reviewUC := usecase.NewReviewUseCase(repo, items, questions, events, thresholds, logger)
	commitUC := usecase.NewCommitUseCase(repo, items, canonical, events, tracer, thresholds, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:  queue,
		Repo:   repo,
		Events: events,

		UploadUC:   uploadUC,
		PipelineUC: pipelineUC,
		ReviewUC:   reviewUC,
		CommitUC:   commitUC,

		closeFn: func() {
			queue.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(shutdownCtx)
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newLogger(level, serviceName string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("service", serviceName)
}

func splitMimeTypes(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if mt := strings.TrimSpace(strings.ToLower(part)); mt != "" {
			out = append(out, mt)
		}
	}
	return out
}
