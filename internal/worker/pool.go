package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
	"github.com/buildcost/docpipe/internal/observability/metrics"
)

const serviceName = "worker"

// Pool runs pipeline requests on a fixed set of goroutines behind a bounded
// queue. Requests for a document already waiting in the queue coalesce into
// the queued one; requests for a document already running are rejected by
// the orchestrator's own in-flight guard.
type Pool struct {
	runner  ports.PipelineRunner
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger

	queue   chan string
	workers int

	mu      sync.Mutex
	pending map[string]time.Time

	wg sync.WaitGroup
}

type Options struct {
	Workers   int
	QueueSize int
}

func NewPool(runner ports.PipelineRunner, m *metrics.PipelineMetrics, logger *slog.Logger, options Options) *Pool {
	workers := options.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := options.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		runner:  runner,
		metrics: m,
		logger:  logger,
		queue:   make(chan string, queueSize),
		workers: workers,
		pending: make(map[string]time.Time),
	}
}

// Start launches the workers. They exit when ctx is cancelled; Wait blocks
// until all of them have drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runLoop(ctx)
		}()
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

// Enqueue queues one pipeline request. A request for a document already
// queued is absorbed silently. A full queue is a temporary condition the
// message broker will retry.
func (p *Pool) Enqueue(_ context.Context, documentID string) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue", fmt.Errorf("empty document id"))
	}

	p.mu.Lock()
	if _, queued := p.pending[documentID]; queued {
		p.mu.Unlock()
		p.logger.Debug("pipeline_request_coalesced", "document_id", documentID)
		return nil
	}
	p.pending[documentID] = time.Now()
	p.mu.Unlock()

	select {
	case p.queue <- documentID:
		return nil
	default:
		p.forget(documentID)
		return domain.WrapError(domain.ErrTemporary, "enqueue", fmt.Errorf("pipeline queue is full"))
	}
}

func (p *Pool) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case documentID := <-p.queue:
			p.process(ctx, documentID)
		}
	}
}

func (p *Pool) process(ctx context.Context, documentID string) {
	enqueuedAt := p.forget(documentID)
	if p.metrics != nil {
		if !enqueuedAt.IsZero() {
			p.metrics.ObserveQueueLag(serviceName, time.Since(enqueuedAt))
		}
		p.metrics.StartRun()
	}

	start := time.Now()
	result, err := p.runner.Run(ctx, documentID, p.stageObserver())

	status := "error"
	switch {
	case err == nil && result != nil:
		status = string(result.Status)
	case domain.IsKind(err, domain.ErrConflict):
		status = "conflict"
	}
	if p.metrics != nil {
		p.metrics.FinishRun(serviceName, status, time.Since(start))
	}

	switch {
	case err == nil:
		p.logger.Info("pipeline_run_finished",
			"document_id", documentID,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case domain.IsKind(err, domain.ErrConflict):
		p.logger.Warn("pipeline_run_already_active", "document_id", documentID)
	default:
		p.logger.Error("pipeline_run_error", "document_id", documentID, "error", err)
	}
}

// stageObserver times each stage between its start and ok/fail events and
// feeds the duration histogram. One observer serves one run, so the map
// never crosses goroutines.
func (p *Pool) stageObserver() func(domain.StageEvent) {
	if p.metrics == nil {
		return nil
	}
	started := make(map[domain.Stage]time.Time)
	return func(ev domain.StageEvent) {
		switch ev.Status {
		case domain.EventStart:
			started[ev.Stage] = ev.Timestamp
		case domain.EventOK, domain.EventFail:
			if at, ok := started[ev.Stage]; ok {
				p.metrics.ObserveStage(serviceName, string(ev.Stage), ev.Timestamp.Sub(at))
			}
		}
	}
}

func (p *Pool) forget(documentID string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	at := p.pending[documentID]
	delete(p.pending, documentID)
	return at
}
