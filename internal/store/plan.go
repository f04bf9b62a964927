package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/queue"
)

// Plan is a persisted plan job. Request and Result hold JSON documents.
type Plan struct {
	ID          string
	Status      string
	PointCount  int
	TotalCost   *float64
	Request     []byte
	Result      []byte
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// PlanFromJob converts a queue job snapshot into its persisted form
func PlanFromJob(job queue.Job) (*Plan, error) {
	p := &Plan{
		ID:          job.ID,
		Status:      string(job.Status),
		PointCount:  job.PointCount,
		Error:       job.ErrorMessage,
		CreatedAt:   job.QueuedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}

	var err error
	p.Request, err = json.Marshal(job.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if job.Result != nil {
		p.Result, err = json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		total := job.Result.TotalCost
		p.TotalCost = &total
	}

	return p, nil
}

// Job converts a persisted plan back into a queue job
func (p *Plan) Job() (*queue.Job, error) {
	job := &queue.Job{
		ID:           p.ID,
		PointCount:   p.PointCount,
		Status:       queue.JobStatus(p.Status),
		QueuedAt:     p.CreatedAt,
		StartedAt:    p.StartedAt,
		CompletedAt:  p.CompletedAt,
		ErrorMessage: p.Error,
	}

	if p.StartedAt != nil && p.CompletedAt != nil {
		job.DurationMS = p.CompletedAt.Sub(*p.StartedAt).Milliseconds()
	}

	if len(p.Request) > 0 && string(p.Request) != "null" {
		job.Request = &planner.Request{}
		if err := json.Unmarshal(p.Request, job.Request); err != nil {
			return nil, fmt.Errorf("failed to decode request of plan %s: %w", p.ID, err)
		}
	}

	if len(p.Result) > 0 {
		job.Result = &planner.Result{}
		if err := json.Unmarshal(p.Result, job.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of plan %s: %w", p.ID, err)
		}
	}

	return job, nil
}
