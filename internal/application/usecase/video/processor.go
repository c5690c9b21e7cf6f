package video

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/khoahotran/pulse-media/pkg/logger"
)

// Processor runs ProcessVideoUseCase in the background with at most
// `workers` probes in flight. Tasks beyond that wait for a slot.
type Processor struct {
	process *ProcessVideoUseCase
	sem     *semaphore.Weighted
	logger  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending map[uuid.UUID]int
	wg      sync.WaitGroup
}

func NewProcessor(process *ProcessVideoUseCase, workers int, log logger.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		process: process,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uuid.UUID]int),
	}
}

// Pending reports whether id is queued or running in this processor.
func (p *Processor) Pending(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending[id] > 0
}

func (p *Processor) done(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[id]--
	if p.pending[id] <= 0 {
		delete(p.pending, id)
	}
}

func (p *Processor) Schedule(id uuid.UUID) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("Processor closed, leaving video for the reaper", zap.String("video_id", id.String()))
		return
	}
	p.wg.Add(1)
	p.pending[id]++
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.done(id)
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.logger.Warn("Processing slot never acquired", zap.String("video_id", id.String()), zap.Error(err))
			return
		}
		defer p.sem.Release(1)

		if err := p.process.Execute(p.ctx, id); err != nil {
			p.logger.Error("Processing task failed", err, zap.String("video_id", id.String()))
		}
	}()
}

// Shutdown stops accepting work and waits for running tasks. When ctx ends
// first, in-flight probes are cancelled and their assets end up rejected.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
