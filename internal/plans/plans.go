// Package plans is the application layer shared by the HTTP and gRPC
// transports: synchronous optimization under a deadline, and asynchronous
// plan jobs backed by the worker queue and an optional Postgres store.
package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/queue"
	"github.com/stuartshay/gridplan/internal/store"
)

// ErrInvalidStatus is returned by List for an unknown status filter
var ErrInvalidStatus = errors.New("invalid status filter")

// Store persists finished plan jobs
type Store interface {
	SavePlan(ctx context.Context, p *store.Plan) error
	GetPlan(ctx context.Context, id string) (*store.Plan, error)
	ListPlans(ctx context.Context, status string, limit, offset int) ([]*store.Plan, error)
	HealthCheck(ctx context.Context) error
}

// Config configures a Service
type Config struct {
	Workers  int
	Capacity int
	Timeout  time.Duration
	Store    Store
	Hooks    []queue.Hook
}

// Service runs synchronous and queued optimizations
type Service struct {
	planner *planner.Service
	queue   *queue.Queue
	store   Store
	timeout time.Duration
}

// NewService starts the plan job workers
func NewService(p *planner.Service, cfg Config) *Service {
	s := &Service{
		planner: p,
		store:   cfg.Store,
		timeout: cfg.Timeout,
	}

	opts := []queue.Option{
		queue.WithCapacity(cfg.Capacity),
		queue.WithJobTimeout(cfg.Timeout),
	}
	if s.store != nil {
		opts = append(opts, queue.WithHook(s.persist))
	}
	for _, h := range cfg.Hooks {
		opts = append(opts, queue.WithHook(h))
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	s.queue = queue.NewQueue(workers, s.process, opts...)

	return s
}

// Optimize runs one optimization, bounded by the configured timeout
func (s *Service) Optimize(ctx context.Context, req *planner.Request) (*planner.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.planner.Optimize(ctx, req)
}

// Submit validates req and queues it. Validation errors are returned directly
// so callers can reject bad requests without creating a job.
func (s *Service) Submit(req *planner.Request) (*queue.Job, error) {
	if _, err := s.planner.Validate(req); err != nil {
		return nil, err
	}

	job, err := s.queue.Enqueue(req)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to enqueue plan job")
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID).
		Int("points", job.PointCount).
		Msg("Plan job queued")

	return job, nil
}

// Get returns a job from memory, falling back to the store
func (s *Service) Get(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.queue.GetJob(id)
	if err == nil || s.store == nil {
		return job, err
	}

	p, storeErr := s.store.GetPlan(ctx, id)
	if errors.Is(storeErr, store.ErrNotFound) {
		return nil, err
	}
	if storeErr != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", id, storeErr)
	}

	return p.Job()
}

// List returns jobs newest first, optionally filtered by status. With a store
// configured it lists persisted plans, which only hold finished jobs.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*queue.Job, int, error) {
	if status != "" && !validStatus(status) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	limit = store.ClampLimit(limit)

	if s.store == nil {
		return s.queue.ListJobs(queue.JobStatus(status), limit, offset), limit, nil
	}

	saved, err := s.store.ListPlans(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list plans: %w", err)
	}

	jobs := make([]*queue.Job, 0, len(saved))
	for _, p := range saved {
		job, err := p.Job()
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, limit, nil
}

// Stats returns job counts by status
func (s *Service) Stats() map[string]int {
	return s.queue.GetStats()
}

// Ready reports whether the service's dependencies are reachable
func (s *Service) Ready(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.HealthCheck(ctx)
}

// Shutdown stops the job workers
func (s *Service) Shutdown(timeout time.Duration) error {
	return s.queue.Shutdown(timeout)
}

func (s *Service) process(ctx context.Context, job *queue.Job) (*planner.Result, error) {
	log.Debug().Str("job_id", job.ID).Int("points", job.PointCount).Msg("Processing plan job")
	return s.planner.Optimize(ctx, job.Request)
}

// persist saves finished jobs; earlier transitions only live in memory
func (s *Service) persist(job queue.Job) {
	if job.Status != queue.StatusCompleted && job.Status != queue.StatusFailed {
		return
	}

	p, err := store.PlanFromJob(job)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to encode plan")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SavePlan(ctx, p); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save plan")
	}
}

func validStatus(status string) bool {
	for _, st := range queue.Statuses {
		if string(st) == status {
			return true
		}
	}
	return false
}
