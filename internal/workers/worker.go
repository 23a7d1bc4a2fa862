package workers

import (
	"context"
	"sync"
	"time"

	"lendingrisk/pkg/logger"
)

// Worker is a periodic background job
type Worker interface {
	Name() string

	// Run performs one iteration and returns
	Run(ctx context.Context) error

	Interval() time.Duration
	Enabled() bool
}

// Status is a point-in-time view of a worker for health endpoints
type Status struct {
	Name       string        `json:"name"`
	Enabled    bool          `json:"enabled"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run"`
	LastError  string        `json:"last_error,omitempty"`
	RunCount   int64         `json:"run_count"`
	ErrorCount int64         `json:"error_count"`
	Running    bool          `json:"running"`
}

// BaseWorker carries name, interval and run bookkeeping for embedding workers
type BaseWorker struct {
	name     string
	interval time.Duration
	enabled  bool
	log      *logger.Logger

	mu         sync.RWMutex
	lastRun    time.Time
	lastError  error
	runCount   int64
	errorCount int64
	running    bool
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(name string, interval time.Duration, enabled bool) *BaseWorker {
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled,
		log:      logger.Get().With("worker", name),
	}
}

func (w *BaseWorker) Name() string { return w.name }

func (w *BaseWorker) Interval() time.Duration { return w.interval }

func (w *BaseWorker) Enabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// Log returns the worker-scoped logger
func (w *BaseWorker) Log() *logger.Logger {
	return w.log
}

// Status returns the run bookkeeping of the worker
func (w *BaseWorker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{
		Name:       w.name,
		Enabled:    w.enabled,
		Interval:   w.interval,
		LastRun:    w.lastRun,
		RunCount:   w.runCount,
		ErrorCount: w.errorCount,
		Running:    w.running,
	}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

func (w *BaseWorker) markRunning() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = true
}

func (w *BaseWorker) recordRun(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running = false
	w.lastRun = time.Now()
	w.runCount++
	w.lastError = err
	if err != nil {
		w.errorCount++
	}
}

// tracked is implemented by workers embedding *BaseWorker
type tracked interface {
	Status() Status
	markRunning()
	recordRun(err error)
}
