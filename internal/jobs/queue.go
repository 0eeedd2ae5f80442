// Package jobs dispatches queued work to bounded-concurrency worker pools,
// one pool per job type. The queue transport itself is an external
// collaborator; the dispatcher only consumes its interface.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

// ErrQueueClosed indicates the queue will produce no further jobs.
var ErrQueueClosed = errors.New("job queue closed")

// ErrQueueFull indicates the in-process buffer for a job type is exhausted.
var ErrQueueFull = errors.New("job queue full")

// Queue delivers jobs of a given type. Dequeue blocks until a job is
// available, the context is done, or the queue is closed.
type Queue interface {
	Dequeue(ctx context.Context, jobType models.JobType) (*models.Job, error)
}

// MemoryQueue is an in-process queue for tests and single-binary
// deployments.
type MemoryQueue struct {
	mu     sync.Mutex
	chans  map[models.JobType]chan *models.Job
	closed bool
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{chans: make(map[models.JobType]chan *models.Job)}
}

func (q *MemoryQueue) channel(jobType models.JobType) chan *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.chans[jobType]
	if !ok {
		ch = make(chan *models.Job, 1024)
		if q.closed {
			close(ch)
		}
		q.chans[jobType] = ch
	}
	return ch
}

// Enqueue adds a job. The job must validate. Returns ErrQueueFull when the
// type's buffer has no room.
func (q *MemoryQueue) Enqueue(_ context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	ch, ok := q.chans[job.Type]
	if !ok {
		ch = make(chan *models.Job, 1024)
		q.chans[job.Type] = ch
	}
	select {
	case ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks for the next job of the given type.
func (q *MemoryQueue) Dequeue(ctx context.Context, jobType models.JobType) (*models.Job, error) {
	select {
	case job, ok := <-q.channel(jobType):
		if !ok {
			return nil, ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops delivery. Safe to call once; queued but undelivered jobs are
// dropped.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, ch := range q.chans {
		close(ch)
	}
}
