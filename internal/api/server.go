// Package api serves the gridplan HTTP API with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/gridplan/internal/metrics"
	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/plans"
	"github.com/stuartshay/gridplan/internal/queue"
)

const (
	// RequestIDHeader carries the request ID in and out of the API
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	maxBodyBytes = 8 << 20
)

var (
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
)

// Config configures the HTTP server
type Config struct {
	ServiceName string
	Environment string
	Timeout     time.Duration
}

// Server serves HTTP requests for the planner
type Server struct {
	cfg     Config
	plans   *plans.Service
	metrics *metrics.Collector
	tracer  trace.Tracer
	router  *gin.Engine
}

// NewServer builds the router. collector may be nil.
func NewServer(cfg Config, p *plans.Service, collector *metrics.Collector) *Server {
	s := &Server{
		cfg:     cfg,
		plans:   p,
		metrics: collector,
		tracer:  otel.Tracer("github.com/stuartshay/gridplan/internal/api"),
	}
	s.setupRouter()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(tracingMiddleware(s.tracer))
	router.Use(loggingMiddleware())
	if s.metrics != nil {
		router.Use(s.metrics.GinMiddleware())
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.cfg.Timeout > 0 {
		router.Use(timeoutMiddleware(s.cfg.Timeout))
	}

	router.GET("/healthz", s.healthz)
	router.GET("/readyz", s.readyz)

	v1 := router.Group("/v1")
	v1.POST("/optimize", s.optimize)
	v1.POST("/plans", s.submitPlan)
	v1.GET("/plans", s.listPlans)
	v1.GET("/plans/:id", s.getPlan)

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, errorResponse(errRouteNotFound))
	})
	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, errorResponse(errMethodNotAllowed))
	})

	s.router = router
}

func (s *Server) healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": s.cfg.ServiceName,
	})
}

func (s *Server) readyz(ctx *gin.Context) {
	if err := s.plans.Ready(ctx.Request.Context()); err != nil {
		log.Warn().Err(err).Msg("Readiness check failed")
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": s.cfg.ServiceName,
	})
}

func (s *Server) optimize(ctx *gin.Context) {
	var req planner.Request
	if !bindRequest(ctx, &req) {
		return
	}

	result, err := s.plans.Optimize(ctx.Request.Context(), &req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (s *Server) submitPlan(ctx *gin.Context) {
	var req planner.Request
	if !bindRequest(ctx, &req) {
		return
	}

	job, err := s.plans.Submit(&req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.Header("Location", "/v1/plans/"+job.ID)
	ctx.JSON(http.StatusAccepted, plans.AcceptedView(job))
}

func (s *Server) getPlan(ctx *gin.Context) {
	job, err := s.plans.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, plans.StatusView(job))
}

func (s *Server) listPlans(ctx *gin.Context) {
	limit, err := queryInt(ctx, "limit")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	offset, err := queryInt(ctx, "offset")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	jobs, limit, err := s.plans.List(ctx.Request.Context(), ctx.Query("status"), limit, offset)
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, plans.PageView(jobs, limit, offset))
}

func bindRequest(ctx *gin.Context, req *planner.Request) bool {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBodyBytes)
	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func queryInt(ctx *gin.Context, key string) (int, error) {
	raw := ctx.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return v, nil
}

// writeError maps service errors onto HTTP statuses
func writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
		return
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrShuttingDown):
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(err))
		return
	case errors.Is(err, plans.ErrInvalidStatus):
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	switch planner.Classify(err) {
	case planner.ClassValidation:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": planner.PublicMessage(err)})
	case planner.ClassTimeout:
		ctx.JSON(http.StatusGatewayTimeout, gin.H{"error": planner.PublicMessage(err)})
	default:
		ctx.JSON(http.StatusInternalServerError, internalError(ctx, err))
	}
}

// errorResponse creates an error response for 4xx client errors
func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}

// internalError logs the actual error and returns a safe generic message
func internalError(ctx *gin.Context, err error) gin.H {
	_ = ctx.Error(err)

	log.Error().
		Err(err).
		Str("request_id", ctx.GetString(requestIDKey)).
		Str("path", ctx.Request.URL.Path).
		Str("method", ctx.Request.Method).
		Msg("Internal error")

	return gin.H{"error": planner.PublicMessage(err)}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx.Set(requestIDKey, requestID)
		ctx.Header(RequestIDHeader, requestID)
		ctx.Next()
	}
}

// tracingMiddleware opens a server span per request, continuing any incoming trace
func tracingMiddleware(tracer trace.Tracer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		parent := otel.GetTextMapPropagator().Extract(ctx.Request.Context(), propagation.HeaderCarrier(ctx.Request.Header))

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		spanCtx, span := tracer.Start(parent, ctx.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx.Request = ctx.Request.WithContext(spanCtx)
		ctx.Next()

		span.SetAttributes(
			attribute.String("http.request.method", ctx.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", ctx.Writer.Status()),
		)
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event.
			Str("request_id", ctx.GetString(requestIDKey)).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", ctx.ClientIP()).
			Msg("HTTP request")
	}
}

// timeoutMiddleware bounds each request's context; handlers observe the deadline
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "request timeout"})
		}
	}
}
