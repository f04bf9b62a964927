// Package grpc implements the PlannerService gRPC server handlers
// for synchronous optimization and plan job management.
package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/plans"
	"github.com/stuartshay/gridplan/internal/queue"
)

// Server implements the PlannerService gRPC server
type Server struct {
	plans *plans.Service
}

var _ PlannerServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(p *plans.Service) *Server {
	return &Server{plans: p}
}

type getPlanRequest struct {
	JobID string `json:"jobId"`
}

type listPlansRequest struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Optimize plans a network synchronously
func (s *Server) Optimize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req planner.Request
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	log.Info().Int("points", len(req.Points)).Msg("Received optimization request")

	result, err := s.plans.Optimize(ctx, &req)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(result)
}

// SubmitPlan validates a request and queues it for the worker pool
func (s *Server) SubmitPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req planner.Request
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	job, err := s.plans.Submit(&req)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(plans.AcceptedView(job))
}

// GetPlan returns the current status of a plan job
func (s *Server) GetPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req getPlanRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.JobID == "" {
		return nil, status.Error(codes.InvalidArgument, "jobId is required")
	}

	job, err := s.plans.Get(ctx, req.JobID)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(plans.StatusView(job))
}

// ListPlans returns plan jobs with optional status filtering
func (s *Server) ListPlans(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listPlansRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	jobs, limit, err := s.plans.List(ctx, req.Status, req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(plans.PageView(jobs, limit, req.Offset))
}

// decode reads a Struct body into v through its JSON form
func decode(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

// encode converts v into a Struct through its JSON form
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// toStatus maps service errors onto gRPC status codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, queue.ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, queue.ErrShuttingDown):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, plans.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	}

	switch planner.Classify(err) {
	case planner.ClassValidation:
		return status.Error(codes.InvalidArgument, planner.PublicMessage(err))
	case planner.ClassTimeout:
		return status.Error(codes.DeadlineExceeded, planner.PublicMessage(err))
	default:
		log.Error().Err(err).Msg("Request failed")
		return status.Error(codes.Internal, planner.PublicMessage(err))
	}
}
