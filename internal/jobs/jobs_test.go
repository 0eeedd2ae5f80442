package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/tools"
	"github.com/haasonsaas/warden/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error"})
}

func TestMemoryQueueDeliversByType(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: models.JobTypeRun}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, &models.Job{ID: "j2", Type: models.JobTypeWake}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := q.Dequeue(ctx, models.JobTypeWake)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.ID != "j2" {
		t.Errorf("expected j2 for wake type, got %s", job.ID)
	}
	if job.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be stamped")
	}

	job, err = q.Dequeue(ctx, models.JobTypeRun)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.ID != "j1" {
		t.Errorf("expected j1 for run type, got %s", job.ID)
	}
}

func TestMemoryQueueRejectsInvalidJob(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	if err := q.Enqueue(ctx, &models.Job{Type: models.JobTypeRun}); err == nil {
		t.Error("expected error for missing id")
	}
	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: "bogus"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	q.Close()

	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: models.JobTypeRun}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.Dequeue(ctx, models.JobTypeRun); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed on dequeue, got %v", err)
	}
	// Close again is a no-op.
	q.Close()
}

func TestMemoryQueueDequeueRespectsContext(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx, models.JobTypeRun)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		InitialMs:   100,
		MaxMs:       30000,
		Factor:      2,
		Jitter:      0.1,
	}

	tests := []struct {
		name        string
		attempt     int
		randomValue float64
		expected    time.Duration
	}{
		{"first failure no jitter", 1, 0.0, 100 * time.Millisecond},
		{"first failure full jitter", 1, 1.0, 110 * time.Millisecond},
		{"second failure", 2, 0.0, 200 * time.Millisecond},
		{"third failure", 3, 0.0, 400 * time.Millisecond},
		{"half jitter", 2, 0.5, 210 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.delayWithRand(tt.attempt, tt.randomValue)
			if got != tt.expected {
				t.Errorf("delayWithRand(%d, %v) = %v, want %v", tt.attempt, tt.randomValue, got, tt.expected)
			}
		})
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 20, InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0.1}
	got := p.delayWithRand(10, 1.0)
	if got != time.Second {
		t.Errorf("expected cap of 1s, got %v", got)
	}
}

func TestDispatcherRunsHandler(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	var handled atomic.Int64
	done := make(chan struct{})

	d := NewDispatcher(q, testLogger(), nil)
	d.RegisterHandler(models.JobTypeRun, func(_ context.Context, job *models.Job) error {
		if handled.Add(1) == 3 {
			close(done)
		}
		return nil
	}, RegisterOptions{})

	d.Start(ctx)
	defer d.Stop()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, &models.Job{ID: string(rune('a' + i)), Type: models.JobTypeRun}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler ran %d times, want 3", handled.Load())
	}
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	var attempts atomic.Int64
	done := make(chan struct{})

	d := NewDispatcher(q, testLogger(), nil)
	d.RegisterHandler(models.JobTypeMessage, func(_ context.Context, _ *models.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, RegisterOptions{
		Concurrency: 1,
		Retry:       RetryPolicy{MaxAttempts: 3, InitialMs: 1, MaxMs: 10, Factor: 2},
	})

	d.Start(ctx)
	defer d.Stop()

	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: models.JobTypeMessage}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not succeed after retries, attempts=%d", attempts.Load())
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	var attempts atomic.Int64
	d := NewDispatcher(q, testLogger(), nil)
	d.RegisterHandler(models.JobTypeDelivery, func(_ context.Context, _ *models.Job) error {
		attempts.Add(1)
		return errors.New("permanent")
	}, RegisterOptions{
		Concurrency: 1,
		Retry:       RetryPolicy{MaxAttempts: 2, InitialMs: 1, MaxMs: 10, Factor: 2},
	})

	d.Start(ctx)

	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: models.JobTypeDelivery}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for attempts.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	q.Close()
	d.Stop()

	if got := attempts.Load(); got != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", got)
	}
}

func TestDispatcherDoesNotRetryValidationFailures(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	var attempts atomic.Int64
	d := NewDispatcher(q, testLogger(), nil)
	d.RegisterHandler(models.JobTypeRun, func(_ context.Context, _ *models.Job) error {
		attempts.Add(1)
		return fmt.Errorf("run payload: %w", tools.ErrInvalidArguments)
	}, RegisterOptions{
		Concurrency: 1,
		Retry:       RetryPolicy{MaxAttempts: 3, InitialMs: 1, MaxMs: 10, Factor: 2},
	})

	d.Start(ctx)

	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: models.JobTypeRun}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for attempts.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give any erroneous retry a chance to fire before asserting.
	time.Sleep(50 * time.Millisecond)
	q.Close()
	d.Stop()

	if got := attempts.Load(); got != 1 {
		t.Errorf("validation failure attempted %d times, want exactly 1", got)
	}
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	var attempts atomic.Int64
	d := NewDispatcher(q, testLogger(), nil)
	d.RegisterHandler(models.JobTypeMemoryWrite, func(_ context.Context, _ *models.Job) error {
		attempts.Add(1)
		return Permanent(errors.New("value looks like a secret"))
	}, RegisterOptions{
		Concurrency: 1,
		Retry:       RetryPolicy{MaxAttempts: 3, InitialMs: 1, MaxMs: 10, Factor: 2},
	})

	d.Start(ctx)

	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: models.JobTypeMemoryWrite}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for attempts.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	q.Close()
	d.Stop()

	if got := attempts.Load(); got != 1 {
		t.Errorf("permanent failure attempted %d times, want exactly 1", got)
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	wrapped := Permanent(base)

	if !IsPermanent(wrapped) {
		t.Error("wrapped error must be permanent")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Permanent must preserve the error chain")
	}
	if IsPermanent(base) {
		t.Error("unwrapped transient error must not be permanent")
	}
	if !IsPermanent(fmt.Errorf("deep: %w", tools.ErrInvalidArguments)) {
		t.Error("wrapped ErrInvalidArguments must be permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	const workers = 2
	var (
		mu      sync.Mutex
		active  int
		peak    int
		handled int
	)
	done := make(chan struct{})

	d := NewDispatcher(q, testLogger(), nil)
	d.RegisterHandler(models.JobTypeRun, func(_ context.Context, _ *models.Job) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		handled++
		if handled == 6 {
			close(done)
		}
		mu.Unlock()
		return nil
	}, RegisterOptions{Concurrency: workers})

	d.Start(ctx)
	defer d.Stop()

	for i := 0; i < 6; i++ {
		if err := q.Enqueue(ctx, &models.Job{ID: string(rune('a' + i)), Type: models.JobTypeRun}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > workers {
		t.Errorf("peak concurrency %d exceeded pool size %d", peak, workers)
	}
}

func TestDispatcherStopWaitsForInFlight(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	started := make(chan struct{})
	var finished atomic.Bool

	d := NewDispatcher(q, testLogger(), nil)
	d.RegisterHandler(models.JobTypeRun, func(_ context.Context, _ *models.Job) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	}, RegisterOptions{Concurrency: 1})

	d.Start(ctx)

	if err := q.Enqueue(ctx, &models.Job{ID: "j1", Type: models.JobTypeRun}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	<-started
	q.Close()
	d.Stop()

	if !finished.Load() {
		t.Error("Stop returned before the in-flight job finished")
	}
}
