package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildcost/docpipe/internal/bootstrap"
	"github.com/buildcost/docpipe/internal/config"
	"github.com/buildcost/docpipe/internal/observability/metrics"
	"github.com/buildcost/docpipe/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.ApplyFile(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	pipelineMetrics := metrics.NewPipelineMetrics("worker")
	pool := worker.NewPool(app.PipelineUC, pipelineMetrics, app.Logger, worker.Options{
		Workers:   cfg.PipelineWorkers,
		QueueSize: cfg.PipelineQueueSize,
	})
	pool.Start(ctx)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: pipelineMetrics.Handler(),
	}
	go func() {
		app.Logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("worker_metrics_server_error", "error", err)
		}
	}()

	app.Logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	if err := app.Queue.SubscribePipelineRequested(ctx, pool.Enqueue); err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	pool.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
