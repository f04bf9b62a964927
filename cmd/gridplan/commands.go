package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stuartshay/gridplan/internal/calculator"
	grpcserver "github.com/stuartshay/gridplan/internal/grpc"
	"github.com/stuartshay/gridplan/internal/planner"
)

type optimizeOptions struct {
	file      string
	threshold float64
	span      float64
	debug     bool
	pretty    bool
	remote    string
	timeout   time.Duration
	verbose   bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gridplan",
		Short:         "Minimum-cost electrical distribution network planner",
		Long:          `Plan the cheapest pole-and-wire network connecting a set of service locations to a power source.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newOptimizeCmd(), newDistanceCmd())
	return root
}

func newOptimizeCmd() *cobra.Command {
	opts := &optimizeOptions{}

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize a network from a JSON request",
		Long: `Read an optimization request ({"points": [...], "costs": {...}}) from a file
or stdin and print the resulting network as JSON.`,
		Example: `  gridplan optimize -f village.json --pretty
  cat village.json | gridplan optimize --threshold 250
  gridplan optimize -f village.json --remote localhost:50051`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOptimize(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "-", "Request file path, - for stdin")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "High-voltage threshold in meters, 0 to disable")
	cmd.Flags().Float64Var(&opts.span, "span", 0, "Maximum pole span in meters, 0 for one pole per connection")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Include solver details in the result")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Indent JSON output")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "Address of a gridplan gRPC server; runs locally when empty")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Optimization timeout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

func newDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "distance LAT1 LNG1 LAT2 LNG2",
		Short:   "Print the great-circle distance between two points in meters",
		Example: `  gridplan distance 0 0 0 0.008993`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			coords := make([]float64, len(args))
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid coordinate %q: %w", arg, err)
				}
				coords[i] = v
			}
			meters := calculator.Haversine(coords[0], coords[1], coords[2], coords[3])
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", meters)
			return err
		},
	}
}

func runOptimize(cmd *cobra.Command, opts *optimizeOptions) error {
	if opts.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	req, err := readRequest(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}
	applyOverrides(cmd, req, opts)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var result *planner.Result
	if opts.remote != "" {
		result, err = optimizeRemote(ctx, opts.remote, req)
	} else {
		result, err = planner.NewService().Optimize(ctx, req)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

func readRequest(stdin io.Reader, path string) (*planner.Request, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req planner.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// applyOverrides copies explicitly set policy flags onto req
func applyOverrides(cmd *cobra.Command, req *planner.Request, opts *optimizeOptions) {
	flags := cmd.Flags()
	if flags.Changed("threshold") || flags.Changed("span") {
		if req.Policy == nil {
			req.Policy = &planner.PolicyInput{}
		}
		if flags.Changed("threshold") {
			req.Policy.HighVoltageThresholdMeters = planner.Float(opts.threshold)
		}
		if flags.Changed("span") {
			req.Policy.PoleSpanMeters = planner.Float(opts.span)
		}
	}
	if opts.debug {
		req.Debug = true
	}
}

func optimizeRemote(ctx context.Context, addr string, req *planner.Request) (*planner.Result, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	body := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, body); err != nil {
		return nil, err
	}

	resp, err := grpcserver.NewPlannerServiceClient(conn).Optimize(ctx, body)
	if err != nil {
		return nil, err
	}

	raw, err = protojson.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var result planner.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
