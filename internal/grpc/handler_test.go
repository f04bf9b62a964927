package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/plans"
)

const bufSize = 1024 * 1024

// setupTestClient serves PlannerService over an in-memory listener
func setupTestClient(t *testing.T) *PlannerServiceClient {
	t.Helper()

	svc := plans.NewService(planner.NewService(), plans.Config{
		Workers:  2,
		Capacity: 10,
		Timeout:  5 * time.Second,
	})

	lis := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	RegisterPlannerServiceServer(server, NewServer(svc))

	go func() {
		_ = server.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
		_ = svc.Shutdown(time.Second)
	})

	return NewPlannerServiceClient(conn)
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	require.NoError(t, err)
	return s
}

func pointBody(name string, lat, lng float64) map[string]any {
	return map[string]any{"name": name, "lat": lat, "lng": lng}
}

func costBody() map[string]any {
	return map[string]any{
		"poleCost":                100.0,
		"lowVoltageCostPerMeter":  2.0,
		"highVoltageCostPerMeter": 5.0,
	}
}

func villageBody() map[string]any {
	return map[string]any{
		"points": []any{
			pointBody("Main Substation", -1.2930, 36.8221),
			pointBody("House 1", -1.2921, 36.8219),
			pointBody("House 2", -1.2925, 36.8228),
			pointBody("Clinic", -1.2940, 36.8212),
		},
		"costs": costBody(),
	}
}

func TestOptimize(t *testing.T) {
	client := setupTestClient(t)

	resp, err := client.Optimize(context.Background(), mustStruct(t, villageBody()))
	require.NoError(t, err)

	body := resp.AsMap()
	edges, ok := body["edges"].([]any)
	require.True(t, ok)
	assert.Len(t, edges, 3)
	assert.Equal(t, 4.0, body["pointCount"])
	assert.Greater(t, body["totalCost"].(float64), 0.0)

	first := edges[0].(map[string]any)
	start := first["start"].(map[string]any)
	assert.Equal(t, "Main Substation", start["name"])
}

func TestOptimize_TwoPointScenario(t *testing.T) {
	client := setupTestClient(t)

	metersPerDegree := 6371000.0 * 3.141592653589793 / 180
	resp, err := client.Optimize(context.Background(), mustStruct(t, map[string]any{
		"points": []any{pointBody("a", 0, 0), pointBody("b", 0, 1000/metersPerDegree)},
		"costs":  costBody(),
	}))
	require.NoError(t, err)

	assert.InDelta(t, 2200, resp.AsMap()["totalCost"].(float64), 0.01)
}

func TestOptimize_Errors(t *testing.T) {
	client := setupTestClient(t)

	tests := []struct {
		name     string
		body     map[string]any
		code     codes.Code
		contains string
	}{
		{
			name:     "single point",
			body:     map[string]any{"points": []any{pointBody("a", 0, 0)}, "costs": costBody()},
			code:     codes.InvalidArgument,
			contains: "at least 2 points",
		},
		{
			name: "negative pole cost",
			body: map[string]any{
				"points": []any{pointBody("a", 0, 0), pointBody("b", 1, 1)},
				"costs": map[string]any{
					"poleCost":                -1.0,
					"lowVoltageCostPerMeter":  2.0,
					"highVoltageCostPerMeter": 5.0,
				},
			},
			code:     codes.InvalidArgument,
			contains: "poleCost",
		},
		{
			name: "missing costs",
			body: map[string]any{
				"points": []any{pointBody("a", 0, 0), pointBody("b", 1, 1)},
			},
			code:     codes.InvalidArgument,
			contains: "required",
		},
		{
			name: "malformed latitude",
			body: map[string]any{
				"points": []any{map[string]any{"name": "a", "lat": "north", "lng": 0.0}, pointBody("b", 1, 1)},
				"costs":  costBody(),
			},
			code:     codes.InvalidArgument,
			contains: "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Optimize(context.Background(), mustStruct(t, tt.body))
			require.Error(t, err)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, st.Code())
			assert.Contains(t, st.Message(), tt.contains)
		})
	}
}

func TestSubmitAndGetPlan(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	accepted, err := client.SubmitPlan(ctx, mustStruct(t, villageBody()))
	require.NoError(t, err)

	jobID, ok := accepted.AsMap()["jobId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "queued", accepted.AsMap()["status"])
	assert.NotEmpty(t, accepted.AsMap()["queuedAt"])

	var final map[string]any
	require.Eventually(t, func() bool {
		resp, err := client.GetPlan(ctx, mustStruct(t, map[string]any{"jobId": jobID}))
		if err != nil {
			return false
		}
		final = resp.AsMap()
		return final["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	result, ok := final["result"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, result["edges"], 3)
}

func TestSubmitPlan_InvalidRequest(t *testing.T) {
	client := setupTestClient(t)

	_, err := client.SubmitPlan(context.Background(), mustStruct(t, map[string]any{
		"points": []any{pointBody("a", 0, 0)},
		"costs":  costBody(),
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetPlan_Errors(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	_, err := client.GetPlan(ctx, mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetPlan(ctx, mustStruct(t, map[string]any{"jobId": "non-existent-id"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestListPlans(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.SubmitPlan(ctx, mustStruct(t, villageBody()))
		require.NoError(t, err)
	}

	resp, err := client.ListPlans(ctx, mustStruct(t, map[string]any{"limit": 2.0}))
	require.NoError(t, err)

	page := resp.AsMap()
	assert.Equal(t, 2.0, page["limit"])
	assert.Equal(t, 2.0, page["count"])
	assert.Len(t, page["plans"], 2)

	resp, err = client.ListPlans(ctx, mustStruct(t, map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, 50.0, resp.AsMap()["limit"])

	_, err = client.ListPlans(ctx, mustStruct(t, map[string]any{"status": "archived"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", &planner.MissingCostFieldError{Field: "poleCost"}, codes.InvalidArgument},
		{"timeout", planner.ErrTimeout, codes.DeadlineExceeded},
		{"internal", &planner.InternalComputationError{Cause: context.Canceled}, codes.Internal},
		{"invalid status", plans.ErrInvalidStatus, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := status.Convert(toStatus(tt.err))
			assert.Equal(t, tt.code, st.Code())
		})
	}

	st := status.Convert(toStatus(&planner.InternalComputationError{Cause: context.Canceled}))
	assert.Equal(t, "internal computation error", st.Message())
}
