package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

const defaultShutdownTimeout = 2 * time.Minute

// Scheduler runs registered workers, each in its own goroutine
type Scheduler struct {
	workers         []Worker
	shutdownTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	log     *logger.Logger
}

// NewScheduler creates a new worker scheduler.
// shutdownTimeout bounds how long Stop waits for running iterations; 0 means 2 minutes.
func NewScheduler(shutdownTimeout time.Duration) *Scheduler {
	if shutdownTimeout == 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Scheduler{
		shutdownTimeout: shutdownTimeout,
		log:             logger.Get().With("component", "scheduler"),
	}
}

// RegisterWorker adds a worker. Registration after Start is ignored.
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warnw("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}
	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval(), "enabled", w.Enabled())
}

// Start launches every enabled worker
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrap(errors.ErrInternal, "scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	running := 0
	for _, w := range s.workers {
		if !w.Enabled() {
			s.log.Infow("Skipping disabled worker", "worker", w.Name())
			continue
		}
		if w.Interval() <= 0 {
			s.log.Warnw("Skipping worker with non-positive interval", "worker", w.Name(), "interval", w.Interval())
			continue
		}
		s.wg.Add(1)
		go s.loop(w)
		running++
	}

	s.log.Infow("Worker scheduler started", "workers", running)
	return nil
}

// Stop cancels all workers and waits for in-flight iterations
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.log.Info("All workers stopped")
	case <-time.After(s.shutdownTimeout):
		err = errors.Wrapf(errors.ErrTimeout, "workers still running after %s", s.shutdownTimeout)
		s.log.Warnw("Worker shutdown timed out", "timeout", s.shutdownTimeout)
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	return err
}

// loop runs the worker immediately, then on every tick
func (s *Scheduler) loop(w Worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	s.execute(w)
	for {
		select {
		case <-s.ctx.Done():
			s.log.Debugw("Worker stopped", "worker", w.Name())
			return
		case <-ticker.C:
			s.execute(w)
		}
	}
}

func (s *Scheduler) execute(w Worker) {
	start := time.Now()
	t, isTracked := w.(tracked)
	if isTracked {
		t.markRunning()
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(errors.ErrInternal, "worker panicked: %v", r)
			s.log.Errorw("Worker panicked", "worker", w.Name(), "panic", fmt.Sprint(r))
		}

		metrics.RecordWorkerExecution(w.Name(), time.Since(start), err)
		if isTracked {
			t.recordRun(err)
		}
	}()

	err = w.Run(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			s.log.Infow("Worker interrupted by shutdown", "worker", w.Name())
			return
		}
		s.log.Errorw("Worker execution failed", "worker", w.Name(), "error", err, "duration", time.Since(start))
		return
	}
	s.log.Debugw("Worker execution completed", "worker", w.Name(), "duration", time.Since(start))
}

// Statuses reports every registered worker that embeds BaseWorker
func (s *Scheduler) Statuses() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Status, 0, len(s.workers))
	for _, w := range s.workers {
		if t, ok := w.(tracked); ok {
			out = append(out, t.Status())
		}
	}
	return out
}

// IsRunning reports whether Start has been called without a matching Stop
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
