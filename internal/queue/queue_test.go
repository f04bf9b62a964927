package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stuartshay/gridplan/internal/planner"
)

func planRequest(names ...string) *planner.Request {
	req := &planner.Request{
		Costs: planner.CostInput{
			PoleCost:                planner.Float(100),
			LowVoltageCostPerMeter:  planner.Float(2),
			HighVoltageCostPerMeter: planner.Float(5),
		},
	}
	for i, name := range names {
		req.Points = append(req.Points, planner.PointInput{
			Name: name,
			Lat:  planner.Float(float64(i) * 0.001),
			Lng:  planner.Float(0),
		})
	}
	return req
}

func waitForStatus(t *testing.T, q *Queue, jobID string, status JobStatus) *Job {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.GetJob(jobID)
		if err != nil {
			t.Fatalf("GetJob() failed: %v", err)
		}
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %q", jobID, status)
	return nil
}

func TestNewQueue(t *testing.T) {
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		return &planner.Result{}, nil
	}

	q := NewQueue(3, processor, WithCapacity(7))
	defer func() { _ = q.Shutdown(time.Second) }()

	if q.workers != 3 {
		t.Errorf("expected 3 workers, got %d", q.workers)
	}
	if cap(q.pendingQueue) != 7 {
		t.Errorf("expected capacity 7, got %d", cap(q.pendingQueue))
	}
	if len(q.jobs) != 0 {
		t.Errorf("expected empty jobs map, got %d jobs", len(q.jobs))
	}
}

func TestEnqueue(t *testing.T) {
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		return &planner.Result{}, nil
	}

	q := NewQueue(1, processor)
	defer func() { _ = q.Shutdown(time.Second) }()

	queued, err := q.Enqueue(planRequest("substation", "house"))
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if queued.ID == "" {
		t.Error("expected non-empty job ID")
	}
	if queued.Status != StatusQueued {
		t.Errorf("expected status 'queued', got '%s'", queued.Status)
	}

	job, err := q.GetJob(queued.ID)
	if err != nil {
		t.Fatalf("GetJob() failed: %v", err)
	}
	if job.PointCount != 2 {
		t.Errorf("expected 2 points, got %d", job.PointCount)
	}
}

func TestEnqueue_QueueFull(t *testing.T) {
	release := make(chan struct{})
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		<-release
		return &planner.Result{}, nil
	}

	q := NewQueue(1, processor, WithCapacity(1))
	defer func() { _ = q.Shutdown(time.Second) }()
	defer close(release)

	first, err := q.Enqueue(planRequest("a", "b"))
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	waitForStatus(t, q, first.ID, StatusProcessing)

	if _, err := q.Enqueue(planRequest("a", "b")); err != nil {
		t.Fatalf("second Enqueue() failed: %v", err)
	}

	_, err = q.Enqueue(planRequest("a", "b"))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if stats := q.GetStats(); stats["total"] != 2 {
		t.Errorf("expected rejected job not to be stored, total=%d", stats["total"])
	}
}

func TestEnqueue_AfterShutdown(t *testing.T) {
	q := NewQueue(1, func(_ context.Context, _ *Job) (*planner.Result, error) {
		return nil, nil
	})
	_ = q.Shutdown(time.Second)

	if _, err := q.Enqueue(planRequest("a", "b")); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		return nil, nil
	}

	q := NewQueue(1, processor)
	defer func() { _ = q.Shutdown(time.Second) }()

	_, err := q.GetJob("non-existent-id")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestListJobs(t *testing.T) {
	release := make(chan struct{})
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		<-release
		return &planner.Result{}, nil
	}

	q := NewQueue(1, processor)
	defer func() { _ = q.Shutdown(time.Second) }()
	defer close(release)

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := q.Enqueue(planRequest("a", "b"))
		if err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond)
	}

	jobs := q.ListJobs("", 10, 0)
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != ids[2] || jobs[2].ID != ids[0] {
		t.Error("expected jobs ordered newest first")
	}

	jobs = q.ListJobs("", 1, 1)
	if len(jobs) != 1 || jobs[0].ID != ids[1] {
		t.Errorf("expected second newest job with limit=1 offset=1, got %v", jobs)
	}

	jobs = q.ListJobs(StatusCompleted, 10, 0)
	if len(jobs) != 0 {
		t.Errorf("expected no completed jobs, got %d", len(jobs))
	}

	jobs = q.ListJobs("", 10, 100)
	if len(jobs) != 0 {
		t.Errorf("expected 0 jobs with offset=100, got %d", len(jobs))
	}
}

func TestProcessJob_Success(t *testing.T) {
	var processorCalled atomic.Bool
	processor := func(_ context.Context, job *Job) (*planner.Result, error) {
		processorCalled.Store(true)
		return &planner.Result{TotalCost: 2200, PointCount: len(job.Request.Points)}, nil
	}

	q := NewQueue(1, processor)
	defer func() { _ = q.Shutdown(time.Second) }()

	queued, _ := q.Enqueue(planRequest("a", "b"))
	job := waitForStatus(t, q, queued.ID, StatusCompleted)

	if !processorCalled.Load() {
		t.Error("expected processor to be called")
	}
	if job.Result == nil {
		t.Fatal("expected non-nil result")
	}
	if job.Result.TotalCost != 2200 {
		t.Errorf("expected TotalCost 2200, got %.2f", job.Result.TotalCost)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Error("expected start and completion times")
	}
}

func TestProcessJob_Failure(t *testing.T) {
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		return nil, &planner.MissingCostFieldError{Field: "poleCost"}
	}

	q := NewQueue(1, processor)
	defer func() { _ = q.Shutdown(time.Second) }()

	queued, _ := q.Enqueue(planRequest("a", "b"))
	job := waitForStatus(t, q, queued.ID, StatusFailed)

	if job.ErrorMessage != "cost field poleCost is required" {
		t.Errorf("unexpected error message %q", job.ErrorMessage)
	}
}

func TestProcessJob_InternalErrorHidesCause(t *testing.T) {
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		panic("frontier corrupted")
	}

	q := NewQueue(1, processor)
	defer func() { _ = q.Shutdown(time.Second) }()

	queued, _ := q.Enqueue(planRequest("a", "b"))
	job := waitForStatus(t, q, queued.ID, StatusFailed)

	if job.ErrorMessage != "internal computation error" {
		t.Errorf("expected generic message, got %q", job.ErrorMessage)
	}
}

func TestProcessJob_Timeout(t *testing.T) {
	processor := func(ctx context.Context, _ *Job) (*planner.Result, error) {
		<-ctx.Done()
		return nil, planner.ErrTimeout
	}

	q := NewQueue(1, processor, WithJobTimeout(10*time.Millisecond))
	defer func() { _ = q.Shutdown(time.Second) }()

	queued, _ := q.Enqueue(planRequest("a", "b"))
	job := waitForStatus(t, q, queued.ID, StatusFailed)

	if job.ErrorMessage != planner.ErrTimeout.Error() {
		t.Errorf("expected timeout message, got %q", job.ErrorMessage)
	}
}

func TestHooks(t *testing.T) {
	var mu sync.Mutex
	var seen []JobStatus
	hook := func(job Job) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.Status)
	}

	q := NewQueue(1, func(_ context.Context, _ *Job) (*planner.Result, error) {
		return &planner.Result{}, nil
	}, WithHook(hook))
	defer func() { _ = q.Shutdown(time.Second) }()

	queued, _ := q.Enqueue(planRequest("a", "b"))
	waitForStatus(t, q, queued.ID, StatusCompleted)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	expected := []JobStatus{StatusQueued, StatusProcessing, StatusCompleted}
	if len(seen) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, seen)
	}
	for i := range expected {
		if seen[i] != expected[i] {
			t.Errorf("transition %d: expected %s, got %s", i, expected[i], seen[i])
		}
	}
}

func TestHooks_SlowHookDoesNotBlockQueue(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	hook := func(job Job) {
		if job.Status != StatusCompleted {
			return
		}
		once.Do(func() { close(entered) })
		<-release
	}

	q := NewQueue(1, func(_ context.Context, _ *Job) (*planner.Result, error) {
		return &planner.Result{}, nil
	}, WithHook(hook))
	defer func() { _ = q.Shutdown(time.Second) }()
	defer close(release)

	first, err := q.Enqueue(planRequest("a", "b"))
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("completed hook was not called")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := q.Enqueue(planRequest("c", "d")); err != nil {
			t.Errorf("Enqueue() failed: %v", err)
		}
		q.GetStats()
		if _, err := q.GetJob(first.ID); err != nil {
			t.Errorf("GetJob() failed: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("queue operations blocked while a hook was running")
	}

	waitForStatus(t, q, first.ID, StatusCompleted)
}

func TestShutdown_DrainsHooks(t *testing.T) {
	var calls atomic.Int32
	q := NewQueue(1, func(_ context.Context, _ *Job) (*planner.Result, error) {
		return &planner.Result{}, nil
	}, WithHook(func(Job) { calls.Add(1) }))

	job, _ := q.Enqueue(planRequest("a", "b"))
	waitForStatus(t, q, job.ID, StatusCompleted)

	if err := q.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 hook calls after shutdown, got %d", got)
	}
	if err := q.Shutdown(time.Second); err != nil {
		t.Errorf("second Shutdown() failed: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	release := make(chan struct{})
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		<-release
		return &planner.Result{}, nil
	}

	q := NewQueue(1, processor)
	defer func() { _ = q.Shutdown(time.Second) }()
	defer close(release)

	first, _ := q.Enqueue(planRequest("a", "b"))
	_, _ = q.Enqueue(planRequest("a", "b"))
	waitForStatus(t, q, first.ID, StatusProcessing)

	stats := q.GetStats()
	if stats["total"] != 2 {
		t.Errorf("expected total 2, got %d", stats["total"])
	}
	if stats["processing"] != 1 || stats["queued"] != 1 {
		t.Errorf("expected 1 processing and 1 queued, got %v", stats)
	}
}

func TestShutdown(t *testing.T) {
	processor := func(_ context.Context, _ *Job) (*planner.Result, error) {
		return &planner.Result{}, nil
	}

	q := NewQueue(3, processor)

	err := q.Shutdown(time.Second)
	if err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}

	select {
	case <-q.ctx.Done():
	default:
		t.Error("expected context to be canceled")
	}
}
