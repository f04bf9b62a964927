// Package planner is the optimization service boundary. It validates requests,
// runs the graph builder, spanning tree solver and cost evaluator in sequence,
// and assembles the result returned to transports.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/gridplan/internal/calculator"
	"github.com/stuartshay/gridplan/internal/cost"
	"github.com/stuartshay/gridplan/internal/network"
	"github.com/stuartshay/gridplan/internal/spatial"
)

// DefaultCoincidentToleranceMeters is the distance under which two points are reported as coincident
const DefaultCoincidentToleranceMeters = 0.5

// Outcome labels passed to a Recorder
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeTimeout    = "timeout"
	OutcomeInternal   = "internal_error"
)

// sourceKeywords mark a point as the power source when found in its name
var sourceKeywords = []string{
	"power source", "powersource", "source", "substation", "main source",
	"primary", "generator", "grid tie", "utility",
}

// Recorder receives one observation per optimization
type Recorder interface {
	ObserveOptimization(outcome string, points int, elapsed time.Duration)
}

// Service runs optimizations. It holds no per-request state and is safe for concurrent use.
type Service struct {
	defaults            cost.Policy
	coincidentTolerance float64
	recorder            Recorder
	tracer              trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithDefaultPolicy sets the policy used where a request does not override it
func WithDefaultPolicy(p cost.Policy) Option {
	return func(s *Service) {
		s.defaults = p
	}
}

// WithCoincidentTolerance sets the coincident-point diagnostic radius in meters
func WithCoincidentTolerance(meters float64) Option {
	return func(s *Service) {
		s.coincidentTolerance = meters
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates a Service
func NewService(opts ...Option) *Service {
	s := &Service{
		coincidentTolerance: DefaultCoincidentToleranceMeters,
		tracer:              otel.Tracer("github.com/stuartshay/gridplan/internal/planner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks a request against the service's default policy
func (s *Service) Validate(req *Request) (*Input, error) {
	return Validate(req, s.defaults)
}

// Optimize validates req and runs the pipeline. Validation failures return before
// any distance is computed. If ctx is done first the computation is abandoned and
// an error wrapping ErrTimeout is returned; no partial result is ever returned.
func (s *Service) Optimize(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "planner.Optimize")
	defer span.End()

	input, err := s.Validate(req)
	if err != nil {
		n := 0
		if req != nil {
			n = len(req.Points)
		}
		log.Warn().Err(err).Int("points", n).Msg("Rejected optimization request")
		s.finish(span, err, n, start)
		return nil, err
	}

	result, err := s.Run(ctx, input)
	s.finish(span, err, len(input.Points), start)
	return result, err
}

// Run executes the pipeline for validated input, honoring ctx as an external deadline
func (s *Service) Run(ctx context.Context, input *Input) (*Result, error) {
	if err := abandoned(ctx); err != nil {
		return nil, err
	}

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &InternalComputationError{Cause: fmt.Errorf("panic: %v", r)}}
			}
		}()
		result, err := s.compute(ctx, input)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case o := <-done:
		if o.err != nil {
			var internal *InternalComputationError
			if errors.As(o.err, &internal) {
				log.Error().Err(internal.Cause).Int("points", len(input.Points)).Msg("Optimization invariant violated")
			}
			return nil, o.err
		}
		return o.result, nil
	}
}

// compute is the synchronous Builder → Solver → Evaluator pipeline
func (s *Service) compute(ctx context.Context, input *Input) (*Result, error) {
	start := time.Now()
	source := detectSource(input.Points)

	_, buildSpan := s.tracer.Start(ctx, "network.BuildCandidateGraph")
	g, err := network.BuildCandidateGraph(input.Points)
	buildSpan.End()
	if err != nil {
		return nil, err
	}
	if err := abandoned(ctx); err != nil {
		return nil, err
	}

	_, primSpan := s.tracer.Start(ctx, "network.Prim")
	tree, err := network.Prim(g, source)
	if err == nil {
		err = tree.Validate()
	}
	primSpan.End()
	if err != nil {
		return nil, &InternalComputationError{Cause: err}
	}
	if err := abandoned(ctx); err != nil {
		return nil, err
	}

	_, costSpan := s.tracer.Start(ctx, "cost.Evaluate")
	breakdown, err := cost.Evaluate(tree, input.Model, input.Policy)
	costSpan.End()
	if err != nil {
		return nil, &InternalComputationError{Cause: err}
	}
	if err := abandoned(ctx); err != nil {
		return nil, err
	}

	diagnostics, err := s.diagnose(input.Points)
	if err != nil {
		return nil, &InternalComputationError{Cause: err}
	}

	result := assemble(g, tree, breakdown, source)
	result.Diagnostics = diagnostics

	if input.Debug {
		result.Debug = &Debug{
			SourceIndex:    source,
			SourceName:     input.Points[source].Name,
			OriginalPoints: len(input.Points),
			CandidateEdges: g.Size(),
			ElapsedMS:      time.Since(start).Milliseconds(),
		}
	}

	log.Debug().
		Int("points", len(input.Points)).
		Int("edges", len(result.Edges)).
		Float64("total_cost", result.TotalCost).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Network optimized")

	return result, nil
}

// abandoned reports ErrTimeout once ctx is done, so stages stop early after Run has given up
func abandoned(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

func (s *Service) diagnose(points []network.Point) (Diagnostics, error) {
	locations := make([]calculator.Location, len(points))
	for i, p := range points {
		locations[i] = p.Location()
	}

	pairs, err := spatial.NewIndex(locations).CoincidentPairs(s.coincidentTolerance)
	if err != nil {
		return Diagnostics{}, err
	}
	if pairs == nil {
		pairs = [][2]int{}
	}

	return Diagnostics{
		CoincidentPairs:           pairs,
		CoincidentToleranceMeters: s.coincidentTolerance,
	}, nil
}

func (s *Service) finish(span trace.Span, err error, points int, start time.Time) {
	outcome := OutcomeSuccess
	switch Classify(err) {
	case ClassValidation:
		outcome = OutcomeValidation
	case ClassTimeout:
		outcome = OutcomeTimeout
	case ClassInternal:
		outcome = OutcomeInternal
	}

	span.SetAttributes(
		attribute.Int("gridplan.points", points),
		attribute.String("gridplan.outcome", outcome),
	)
	if err != nil {
		span.SetStatus(codes.Error, PublicMessage(err))
	}

	if s.recorder != nil {
		s.recorder.ObserveOptimization(outcome, points, time.Since(start))
	}
}

// detectSource returns the index of the first point named like a power source,
// or 0 when none is.
func detectSource(points []network.Point) int {
	source := -1
	for i, p := range points {
		if !isSourceName(p.Name) {
			continue
		}
		if source >= 0 {
			log.Warn().Int("index", i).Int("source_index", source).Msg("Multiple potential sources detected; using first")
			continue
		}
		source = i
	}
	if source < 0 {
		return 0
	}
	return source
}

func isSourceName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range sourceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func assemble(g *network.Graph, tree *network.SpanningTree, b *cost.Breakdown, source int) *Result {
	result := &Result{
		Edges:                  make([]EdgeResult, len(b.Edges)),
		TotalCost:              b.TotalCost,
		TotalWeight:            tree.TotalWeight,
		PointCount:             g.Order(),
		TotalLowVoltageMeters:  b.TotalLowVoltageMeters,
		TotalHighVoltageMeters: b.TotalHighVoltageMeters,
		NumPoles:               b.NumPoles,
		PoleCostEstimate:       b.PoleCostEstimate,
		LowWireCostEstimate:    b.LowWireCostEstimate,
		HighWireCostEstimate:   b.HighWireCostEstimate,
		TotalWireCostEstimate:  b.TotalWireCostEstimate,
		Nodes:                  make([]Node, g.Order()),
	}

	for i, ec := range b.Edges {
		from, to := g.Point(ec.Edge.From), g.Point(ec.Edge.To)
		result.Edges[i] = EdgeResult{
			Start:        Coordinate{Lat: from.Lat, Lng: from.Lng, Name: from.Name},
			End:          Coordinate{Lat: to.Lat, Lng: to.Lng, Name: to.Name},
			Weight:       ec.Edge.Weight,
			LengthMeters: round2(ec.Edge.Weight),
			Voltage:      ec.Voltage,
			Poles:        ec.Poles,
			Cost:         ec.Cost,
		}
	}

	locations := make([]calculator.Location, g.Order())
	for i := range result.Nodes {
		p := g.Point(i)
		nodeType := NodeTerminal
		if i == source {
			nodeType = NodeSource
		}
		result.Nodes[i] = Node{Index: i, Lat: p.Lat, Lng: p.Lng, Name: p.Name, Type: nodeType}
		locations[i] = p.Location()
	}
	result.Bounds, _ = calculator.Bounds(locations)

	return result
}
