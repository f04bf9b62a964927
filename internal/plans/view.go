package plans

import (
	"time"

	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/queue"
)

// Accepted is returned when a plan job is queued
type Accepted struct {
	JobID    string    `json:"jobId"`
	Status   string    `json:"status"`
	QueuedAt time.Time `json:"queuedAt"`
}

// Status is the externally visible state of a plan job
type Status struct {
	JobID       string          `json:"jobId"`
	Status      string          `json:"status"`
	PointCount  int             `json:"pointCount"`
	QueuedAt    time.Time       `json:"queuedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	DurationMS  int64           `json:"durationMs,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      *planner.Result `json:"result,omitempty"`
}

// Summary is a plan job as listed, without its result
type Summary struct {
	JobID       string     `json:"jobId"`
	Status      string     `json:"status"`
	PointCount  int        `json:"pointCount"`
	QueuedAt    time.Time  `json:"queuedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	TotalCost   *float64   `json:"totalCost,omitempty"`
}

// Page is one page of ListPlans
type Page struct {
	Plans  []Summary `json:"plans"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Count  int       `json:"count"`
}

// AcceptedView renders a freshly queued job
func AcceptedView(job *queue.Job) Accepted {
	return Accepted{
		JobID:    job.ID,
		Status:   string(job.Status),
		QueuedAt: job.QueuedAt,
	}
}

// StatusView renders a job with its result
func StatusView(job *queue.Job) Status {
	return Status{
		JobID:       job.ID,
		Status:      string(job.Status),
		PointCount:  job.PointCount,
		QueuedAt:    job.QueuedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		DurationMS:  job.DurationMS,
		Error:       job.ErrorMessage,
		Result:      job.Result,
	}
}

// PageView renders a list of jobs
func PageView(jobs []*queue.Job, limit, offset int) Page {
	page := Page{
		Plans:  make([]Summary, 0, len(jobs)),
		Limit:  limit,
		Offset: offset,
		Count:  len(jobs),
	}
	for _, job := range jobs {
		summary := Summary{
			JobID:       job.ID,
			Status:      string(job.Status),
			PointCount:  job.PointCount,
			QueuedAt:    job.QueuedAt,
			CompletedAt: job.CompletedAt,
		}
		if job.Result != nil {
			total := job.Result.TotalCost
			summary.TotalCost = &total
		}
		page.Plans = append(page.Plans, summary)
	}
	return page
}
