package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one claimed job. A nil return acknowledges the job, an
// ErrDrop return kills it, any other error sends it back with a delay.
type Handler interface {
	Process(ctx context.Context, job *Job) error
}

// WorkerPool polls the queue with a fixed number of workers
type WorkerPool struct {
	queue        *Queue
	handler      Handler
	workers      int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewWorkerPool creates a worker pool
func NewWorkerPool(queue *Queue, handler Handler, workers int, pollInterval time.Duration, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &WorkerPool{
		queue:        queue,
		handler:      handler,
		workers:      workers,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run blocks until the context is cancelled, then drains in-flight jobs
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()
	p.logger.Info("worker pool drained")
}

func (p *WorkerPool) runWorker(ctx context.Context, worker int) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		// Drain available work before going back to sleep
		for {
			if ctx.Err() != nil {
				return
			}
			job, err := p.queue.Claim(ctx)
			if err != nil {
				p.logger.Error("failed to claim job",
					slog.Int("worker", worker),
					slog.Any("error", err),
				)
				break
			}
			if job == nil {
				break
			}
			p.process(ctx, worker, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, worker int, job *Job) {
	logger := p.logger.With(
		slog.Int("worker", worker),
		slog.Int64("job_id", job.ID),
		slog.String("statement_id", job.StatementID.String()),
	)

	err := p.handler.Process(ctx, job)
	switch {
	case err == nil:
		if ackErr := p.queue.Ack(ctx, job.ID); ackErr != nil {
			logger.Error("failed to ack job", slog.Any("error", ackErr))
		}
	case errors.Is(err, ErrDrop):
		logger.Warn("job dropped", slog.Any("error", err))
		if deadErr := p.queue.MarkDead(ctx, job.ID); deadErr != nil {
			logger.Error("failed to mark job dead", slog.Any("error", deadErr))
		}
	default:
		delay := retryDelay(job.Attempt)
		logger.Warn("job failed, requeueing",
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if nackErr := p.queue.Nack(ctx, job.ID, delay); nackErr != nil {
			logger.Error("failed to nack job", slog.Any("error", nackErr))
		}
	}
}

// retryDelay grows with the attempt number to back off a failing statement
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		attempt = 5
	}
	return time.Duration(attempt*attempt) * 10 * time.Second
}
