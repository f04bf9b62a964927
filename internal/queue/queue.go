// Package queue provides an in-memory job queue with a worker pool
// for asynchronous network plan optimization.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/gridplan/internal/planner"
)

// JobStatus represents the state of a plan job
type JobStatus string

// Job status constants define the lifecycle states
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Statuses lists every lifecycle state in order
var Statuses = []JobStatus{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// DefaultCapacity is the pending buffer size used when none is configured
const DefaultCapacity = 100

var (
	// ErrQueueFull is returned by Enqueue when the pending buffer is saturated
	ErrQueueFull = errors.New("queue is full")
	// ErrJobNotFound is returned by GetJob for unknown IDs
	ErrJobNotFound = errors.New("job not found")
	// ErrShuttingDown is returned by Enqueue after Shutdown has begun
	ErrShuttingDown = errors.New("queue is shutting down")
)

// Job represents one plan optimization request
type Job struct {
	ID           string
	Request      *planner.Request
	PointCount   int
	Status       JobStatus
	QueuedAt     time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	DurationMS   int64
	ErrorMessage string
	Result       *planner.Result
}

// ProcessFunc optimizes the request carried by a job
type ProcessFunc func(ctx context.Context, job *Job) (*planner.Result, error)

// Hook is called with a snapshot of a job after each status transition.
// Hooks run on a single dispatcher goroutine, one at a time and in transition
// order, so a slow hook delays later hooks but never the queue itself.
type Hook func(job Job)

// Option configures a Queue
type Option func(*Queue)

// WithCapacity sets the pending buffer size
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithJobTimeout bounds each job's processing time; zero means no bound
func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.jobTimeout = d
	}
}

// WithHook registers a transition hook
func WithHook(h Hook) Option {
	return func(q *Queue) {
		q.hooks = append(q.hooks, h)
	}
}

// Queue manages plan jobs with a worker pool
type Queue struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	pendingQueue chan *Job
	workers      int
	capacity     int
	jobTimeout   time.Duration
	hooks        []Hook
	processor    ProcessFunc
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	hookMu       sync.Mutex
	pendingHooks []Job
	hookSignal   chan struct{}
	hookStop     chan struct{}
	hooksDone    chan struct{}
	stopOnce     sync.Once
}

// NewQueue creates a new job queue with the specified number of workers
func NewQueue(workers int, processor ProcessFunc, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:      make(map[string]*Job),
		workers:   workers,
		capacity:  DefaultCapacity,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,

		hookSignal: make(chan struct{}, 1),
		hookStop:   make(chan struct{}),
		hooksDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.pendingQueue = make(chan *Job, q.capacity)

	go q.dispatchHooks()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	return q
}

// Enqueue adds a plan request to the queue and returns a snapshot of the new job
func (q *Queue) Enqueue(req *planner.Request) (*Job, error) {
	if q.ctx.Err() != nil {
		return nil, ErrShuttingDown
	}

	q.mu.Lock()

	job := &Job{
		ID:       uuid.New().String(),
		Request:  req,
		Status:   StatusQueued,
		QueuedAt: time.Now().UTC(),
	}
	if req != nil {
		job.PointCount = len(req.Points)
	}

	// Non-blocking: a full buffer rejects rather than stalls the caller
	select {
	case q.pendingQueue <- job:
		q.jobs[job.ID] = job
	default:
		q.mu.Unlock()
		return nil, ErrQueueFull
	}

	return q.transition(job), nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return copyJob(job), nil
}

// ListJobs returns jobs filtered by status, newest first
func (q *Queue) ListJobs(status JobStatus, limit, offset int) []*Job {
	q.mu.RLock()
	filtered := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if status == "" || job.Status == status {
			filtered = append(filtered, copyJob(job))
		}
	}
	q.mu.RUnlock()

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].QueuedAt.Equal(filtered[j].QueuedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].QueuedAt.After(filtered[j].QueuedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		return []*Job{}
	}

	end := len(filtered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return filtered[offset:end]
}

// GetStats returns queue statistics
func (q *Queue) GetStats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[string]int{
		"total":      len(q.jobs),
		"queued":     0,
		"processing": 0,
		"completed":  0,
		"failed":     0,
	}

	for _, job := range q.jobs {
		stats[string(job.Status)]++
	}

	return stats
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pendingQueue:
			q.processJob(id, job)
		}
	}
}

// processJob executes a single job
func (q *Queue) processJob(workerID int, job *Job) {
	startTime := time.Now()

	q.mu.Lock()
	job.Status = StatusProcessing
	now := startTime.UTC()
	job.StartedAt = &now
	q.transition(job)

	ctx := q.ctx
	if q.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.jobTimeout)
		defer cancel()
	}

	result, err := q.run(ctx, job)

	q.mu.Lock()
	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	job.DurationMS = time.Since(startTime).Milliseconds()

	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = planner.PublicMessage(err)
	} else {
		job.Status = StatusCompleted
		job.Result = result
	}
	snapshot := q.transition(job)

	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("job_id", job.ID).
		Int("worker", workerID).
		Str("status", string(snapshot.Status)).
		Int64("duration_ms", snapshot.DurationMS).
		Msg("Plan job finished")
}

// run shields the worker from a panicking processor
func (q *Queue) run(ctx context.Context, job *Job) (result *planner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &planner.InternalComputationError{Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return q.processor(ctx, job)
}

// transition must be called with q.mu held and releases it. Snapshots are
// queued for the hook dispatcher under q.mu, which fixes their order.
func (q *Queue) transition(job *Job) *Job {
	snapshot := copyJob(job)
	if len(q.hooks) > 0 {
		q.hookMu.Lock()
		q.pendingHooks = append(q.pendingHooks, *snapshot)
		q.hookMu.Unlock()

		select {
		case q.hookSignal <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()
	return snapshot
}

// dispatchHooks delivers queued snapshots until Shutdown, then drains the rest
func (q *Queue) dispatchHooks() {
	defer close(q.hooksDone)

	for {
		select {
		case <-q.hookSignal:
			q.runHooks()
		case <-q.hookStop:
			q.runHooks()
			return
		}
	}
}

func (q *Queue) runHooks() {
	for {
		q.hookMu.Lock()
		batch := q.pendingHooks
		q.pendingHooks = nil
		q.hookMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, job := range batch {
			for _, h := range q.hooks {
				h(job)
			}
		}
	}
}

// Shutdown stops the workers, waiting up to timeout for in-flight jobs and
// their pending hooks
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.stopOnce.Do(func() { close(q.hookStop) })
		<-q.hooksDone
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// copyJob returns a copy that shares no mutable state with the queue
func copyJob(job *Job) *Job {
	jobCopy := *job
	if job.StartedAt != nil {
		startedCopy := *job.StartedAt
		jobCopy.StartedAt = &startedCopy
	}
	if job.CompletedAt != nil {
		completedCopy := *job.CompletedAt
		jobCopy.CompletedAt = &completedCopy
	}
	return &jobCopy
}
