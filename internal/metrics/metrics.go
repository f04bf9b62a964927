// Package metrics bundles the Prometheus collectors for gridplan and the
// helpers that wire them into the gRPC server, the HTTP router, the planner
// and the plan job queue.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/stuartshay/gridplan/internal/queue"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Collector holds every gridplan metric
type Collector struct {
	gatherer prometheus.Gatherer

	Optimizations        *prometheus.CounterVec
	OptimizationDuration prometheus.Histogram
	PointsPerRequest     prometheus.Histogram

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	PlanJobs *prometheus.GaugeVec
}

// NewCollector registers gridplan metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	optimizations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridplan_optimizations_total",
		Help: "Total number of network optimizations, labeled by outcome.",
	}, []string{"outcome"}), "gridplan_optimizations_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridplan_optimization_duration_seconds",
		Help:    "Time spent optimizing a network, validation included.",
		Buckets: latencyBuckets,
	}), "gridplan_optimization_duration_seconds")
	if err != nil {
		return nil, err
	}

	points, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridplan_points_per_request",
		Help:    "Number of points submitted per optimization.",
		Buckets: prometheus.ExponentialBuckets(2, 2, 12),
	}), "gridplan_points_per_request")
	if err != nil {
		return nil, err
	}

	rpcRequests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridplan_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "gridplan_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	rpcDurations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridplan_rpc_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: latencyBuckets,
	}, []string{"service", "method"}), "gridplan_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	httpRequests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridplan_http_requests_total",
		Help: "Total number of HTTP requests, labeled by method, route, and status.",
	}, []string{"method", "path", "status"}), "gridplan_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridplan_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: latencyBuckets,
	}, []string{"method", "path"}), "gridplan_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	planJobs, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridplan_plan_jobs",
		Help: "Plan jobs held by the queue, labeled by status.",
	}, []string{"status"}), "gridplan_plan_jobs")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:             gatherer,
		Optimizations:        optimizations,
		OptimizationDuration: duration,
		PointsPerRequest:     points,
		RPCRequests:          rpcRequests,
		RPCDurations:         rpcDurations,
		HTTPRequests:         httpRequests,
		HTTPDurations:        httpDurations,
		PlanJobs:             planJobs,
	}, nil
}

// ObserveOptimization records one planner run
func (c *Collector) ObserveOptimization(outcome string, points int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Optimizations.WithLabelValues(outcome).Inc()
	c.OptimizationDuration.Observe(elapsed.Seconds())
	if points > 0 {
		c.PointsPerRequest.Observe(float64(points))
	}
}

// PlanJobHook keeps the plan job gauge in step with queue transitions
func (c *Collector) PlanJobHook() queue.Hook {
	return func(job queue.Job) {
		if c == nil {
			return
		}
		switch job.Status {
		case queue.StatusQueued:
		case queue.StatusProcessing:
			c.PlanJobs.WithLabelValues(string(queue.StatusQueued)).Dec()
		case queue.StatusCompleted, queue.StatusFailed:
			c.PlanJobs.WithLabelValues(string(queue.StatusProcessing)).Dec()
		}
		c.PlanJobs.WithLabelValues(string(job.Status)).Inc()
	}
}

// UnaryServerInterceptor records request counts and durations for unary RPCs
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)

		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// GinMiddleware records HTTP request counts and durations by route template
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		path := ctx.FullPath()
		if path == "/metrics" {
			ctx.Next()
			return
		}
		if path == "" {
			path = "unmatched"
		}

		start := time.Now()
		ctx.Next()

		if c == nil {
			return
		}
		code := strconv.Itoa(ctx.Writer.Status())
		c.HTTPRequests.WithLabelValues(ctx.Request.Method, path, code).Inc()
		c.HTTPDurations.WithLabelValues(ctx.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes a ready-to-use /metrics handler
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components, returning "unknown" for parts that cannot be parsed.
func SplitMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds collector to reg, reusing an identical collector registered earlier
func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
