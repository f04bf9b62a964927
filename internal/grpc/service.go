package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "gridplan.v1.PlannerService"

// Full method names
const (
	OptimizeMethod   = "/" + ServiceName + "/Optimize"
	SubmitPlanMethod = "/" + ServiceName + "/SubmitPlan"
	GetPlanMethod    = "/" + ServiceName + "/GetPlan"
	ListPlansMethod  = "/" + ServiceName + "/ListPlans"
)

// PlannerServiceServer is the server API for PlannerService. Bodies are
// google.protobuf.Struct documents carrying the HTTP API's JSON shapes.
type PlannerServiceServer interface {
	Optimize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPlans(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// PlannerServiceDesc describes PlannerService for grpc.Server registration
var PlannerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlannerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Optimize", Handler: unaryHandler(OptimizeMethod, PlannerServiceServer.Optimize)},
		{MethodName: "SubmitPlan", Handler: unaryHandler(SubmitPlanMethod, PlannerServiceServer.SubmitPlan)},
		{MethodName: "GetPlan", Handler: unaryHandler(GetPlanMethod, PlannerServiceServer.GetPlan)},
		{MethodName: "ListPlans", Handler: unaryHandler(ListPlansMethod, PlannerServiceServer.ListPlans)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gridplan/v1/planner.proto",
}

// RegisterPlannerServiceServer registers srv with s
func RegisterPlannerServiceServer(s grpc.ServiceRegistrar, srv PlannerServiceServer) {
	s.RegisterService(&PlannerServiceDesc, srv)
}

type unaryMethod func(PlannerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PlannerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PlannerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PlannerServiceClient is the client API for PlannerService
type PlannerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPlannerServiceClient creates a client over cc
func NewPlannerServiceClient(cc grpc.ClientConnInterface) *PlannerServiceClient {
	return &PlannerServiceClient{cc: cc}
}

// Optimize runs a synchronous optimization
func (c *PlannerServiceClient) Optimize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, OptimizeMethod, in, opts...)
}

// SubmitPlan queues an optimization
func (c *PlannerServiceClient) SubmitPlan(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SubmitPlanMethod, in, opts...)
}

// GetPlan returns a queued optimization's status
func (c *PlannerServiceClient) GetPlan(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetPlanMethod, in, opts...)
}

// ListPlans lists queued optimizations
func (c *PlannerServiceClient) ListPlans(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ListPlansMethod, in, opts...)
}

func (c *PlannerServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
