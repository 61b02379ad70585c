// Package worker runs ingestion jobs from a queue on a fixed pool of
// goroutines.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/callrodry/capcee-proyecto/internal/converter"
	"github.com/callrodry/capcee-proyecto/internal/queue"
)

// Processor runs the pipeline for one file.
type Processor interface {
	Process(ctx context.Context, fileID string) (*converter.Result, error)
}

// dequeueBackoff is the pause after a failed dequeue.
const dequeueBackoff = 3 * time.Second

// Pool consumes file ids from a queue with a fixed number of workers.
type Pool struct {
	queue   queue.Queue
	proc    Processor
	workers int
	logger  *slog.Logger
}

// NewPool creates a pool of n workers.
func NewPool(q queue.Queue, proc Processor, n int, logger *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{queue: q, proc: proc, workers: n, logger: logger}
}

// Run blocks until ctx is done or the queue is closed, then waits for the
// in-flight jobs. A job keeps running after ctx is cancelled; the
// pipeline's own timeout bounds it.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", slog.Int("workers", p.workers))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	p.logger.Info("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, id int) {
	logger := p.logger.With(slog.Int("worker", id))
	for {
		fileID, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Warn("dequeue failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}

		p.handle(context.WithoutCancel(ctx), logger, fileID)
	}
}

func (p *Pool) handle(ctx context.Context, logger *slog.Logger, fileID string) {
	logger.Info("job received", slog.String("file_id", fileID))

	result, err := p.proc.Process(ctx, fileID)
	if err != nil {
		logger.Error("job rejected",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return
	}

	logger.Info("job finished",
		slog.String("file_id", fileID),
		slog.String("state", string(result.State)),
		slog.Int("total", result.Stats.Total),
		slog.Int("failed", result.Stats.Failed),
	)
}
