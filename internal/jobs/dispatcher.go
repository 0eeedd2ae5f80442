package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/pkg/models"
)

// DefaultConcurrency is the per-type worker count when unconfigured.
const DefaultConcurrency = 5

// Handler processes one job. Handlers of the same type run concurrently
// across workers, so they must not assume exclusive access to any resource
// they did not explicitly acquire.
type Handler func(ctx context.Context, job *models.Job) error

// RegisterOptions adjust one job type's pool.
type RegisterOptions struct {
	// Concurrency is the worker count for this type. Defaults to
	// DefaultConcurrency.
	Concurrency int

	// Retry shapes bounded retries with backoff. The zero value disables
	// retry; use DefaultRetryPolicy for the stock behavior.
	Retry RetryPolicy
}

type registration struct {
	jobType models.JobType
	handler Handler
	opts    RegisterOptions
}

// Dispatcher runs one bounded-concurrency worker pool per registered job
// type. Each worker claims one job at a time from the queue; retry policy
// lives here and nowhere below (the sandbox never retries on its own).
type Dispatcher struct {
	queue   Queue
	logger  *observability.Logger
	metrics *observability.Metrics

	mu            sync.Mutex
	registrations []registration
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	started       bool
}

// NewDispatcher creates a dispatcher over the given queue.
func NewDispatcher(queue Queue, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Dispatcher{
		queue:   queue,
		logger:  logger,
		metrics: metrics,
	}
}

// RegisterHandler adds a handler for a job type. Must be called before Start.
func (d *Dispatcher) RegisterHandler(jobType models.JobType, handler Handler, opts RegisterOptions) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registrations = append(d.registrations, registration{
		jobType: jobType,
		handler: handler,
		opts:    opts,
	})
}

// Start launches every registered pool. Workers run until Stop is called or
// the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for _, reg := range d.registrations {
		for i := 0; i < reg.opts.Concurrency; i++ {
			d.wg.Add(1)
			go d.worker(runCtx, reg)
		}
	}
}

// Stop cancels all workers and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, reg registration) {
	defer d.wg.Done()

	for {
		job, err := d.queue.Dequeue(ctx, reg.jobType)
		if err != nil {
			return
		}
		d.process(ctx, reg, job)
	}
}

// process runs one job to its terminal outcome, applying the type's retry
// policy between failed attempts.
func (d *Dispatcher) process(ctx context.Context, reg registration, job *models.Job) {
	jobCtx := context.WithValue(ctx, observability.JobIDKey, job.ID)
	if job.RunID != "" {
		jobCtx = context.WithValue(jobCtx, observability.RunIDKey, job.RunID)
	}

	maxAttempts := reg.opts.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = reg.handler(jobCtx, job)
		if err == nil {
			break
		}
		// Invalid input stays invalid; retrying it only delays the failure.
		if IsPermanent(err) || attempt == maxAttempts {
			break
		}

		d.logger.Warn(jobCtx, "job attempt failed, retrying",
			"job_type", string(reg.jobType),
			"attempt", attempt,
			"error", err,
		)
		d.count(reg.jobType, "retried")

		select {
		case <-time.After(reg.opts.Retry.Delay(attempt)):
		case <-ctx.Done():
			err = ctx.Err()
			attempt = maxAttempts
		}
	}

	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.JobDuration.WithLabelValues(string(reg.jobType)).Observe(elapsed.Seconds())
	}

	if err != nil {
		d.logger.Error(jobCtx, "job failed",
			"job_type", string(reg.jobType),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		d.count(reg.jobType, "failed")
		return
	}

	d.logger.Info(jobCtx, "job completed",
		"job_type", string(reg.jobType),
		"duration_ms", elapsed.Milliseconds(),
	)
	d.count(reg.jobType, "succeeded")
}

func (d *Dispatcher) count(jobType models.JobType, status string) {
	if d.metrics != nil {
		d.metrics.JobCounter.WithLabelValues(string(jobType), status).Inc()
	}
}
