package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stuartshay/gridplan/internal/queue"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	return c, reg
}

func TestNewCollector_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	assert.Same(t, first.Optimizations, second.Optimizations)
}

func TestObserveOptimization(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveOptimization("success", 12, 40*time.Millisecond)
	c.ObserveOptimization("success", 3, time.Millisecond)
	c.ObserveOptimization("validation_error", 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Optimizations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Optimizations.WithLabelValues("validation_error")))

	count, err := testutil.GatherAndCount(reg, "gridplan_optimization_duration_seconds", "gridplan_points_per_request")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestObserveOptimization_NilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveOptimization("success", 2, time.Millisecond)
	})
}

func TestPlanJobHook(t *testing.T) {
	c, _ := newTestCollector(t)
	hook := c.PlanJobHook()

	hook(queue.Job{Status: queue.StatusQueued})
	hook(queue.Job{Status: queue.StatusQueued})
	hook(queue.Job{Status: queue.StatusProcessing})
	hook(queue.Job{Status: queue.StatusCompleted})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.PlanJobs.WithLabelValues("queued")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.PlanJobs.WithLabelValues("processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PlanJobs.WithLabelValues("completed")))
}

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	interceptor := c.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/gridplan.v1.PlannerService/Optimize"}

	_, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "at least 2 points required, got 1")
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.RPCRequests.WithLabelValues("PlannerService", "Optimize", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RPCRequests.WithLabelValues("PlannerService", "Optimize", "InvalidArgument")))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := newTestCollector(t)

	router := gin.New()
	router.Use(c.GinMiddleware())
	router.GET("/v1/plans/:id", func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
	})
	router.GET("/metrics", gin.WrapH(c.Handler()))

	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+id, nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/v1/plans/:id", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.HTTPRequests), "metrics scrapes are not recorded")
	assert.True(t, strings.Contains(rr.Body.String(), "gridplan_http_requests_total"))
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in      string
		service string
		method  string
	}{
		{"/gridplan.v1.PlannerService/Optimize", "PlannerService", "Optimize"},
		{"/grpc.health.v1.Health/Check", "Health", "Check"},
		{"", "unknown", "unknown"},
		{"/onlyservice", "unknown", "unknown"},
		{"/svc/", "svc", "unknown"},
	}

	for _, tt := range tests {
		service, method := SplitMethod(tt.in)
		assert.Equal(t, tt.service, service, tt.in)
		assert.Equal(t, tt.method, method, tt.in)
	}
}
