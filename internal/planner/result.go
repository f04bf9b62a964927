package planner

import (
	"math"

	"github.com/stuartshay/gridplan/internal/calculator"
	"github.com/stuartshay/gridplan/internal/cost"
)

// Node types reported in a result
const (
	NodeSource   = "source"
	NodeTerminal = "terminal"
)

// Coordinate is an edge endpoint as consumed by map renderers
type Coordinate struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

// EdgeResult is one powerline segment of the planned network
type EdgeResult struct {
	Start        Coordinate   `json:"start"`
	End          Coordinate   `json:"end"`
	Weight       float64      `json:"weight"`
	LengthMeters float64      `json:"lengthMeters"`
	Voltage      cost.Voltage `json:"voltage"`
	Poles        int          `json:"poles"`
	Cost         float64      `json:"cost"`
}

// Node is one input point with its role in the network
type Node struct {
	Index int     `json:"index"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
}

// Diagnostics are informational findings that never change the network
type Diagnostics struct {
	CoincidentPairs           [][2]int `json:"coincidentPairs"`
	CoincidentToleranceMeters float64  `json:"coincidentToleranceMeters"`
}

// Debug is included only when the request asks for it
type Debug struct {
	SourceIndex    int    `json:"sourceIndex"`
	SourceName     string `json:"sourceName"`
	OriginalPoints int    `json:"originalPoints"`
	CandidateEdges int    `json:"candidateEdges"`
	ElapsedMS      int64  `json:"elapsedMs"`
}

// Result is the planned network and its cost estimate
type Result struct {
	Edges                  []EdgeResult           `json:"edges"`
	TotalCost              float64                `json:"totalCost"`
	TotalWeight            float64                `json:"totalWeight"`
	PointCount             int                    `json:"pointCount"`
	TotalLowVoltageMeters  float64                `json:"totalLowVoltageMeters"`
	TotalHighVoltageMeters float64                `json:"totalHighVoltageMeters"`
	NumPoles               int                    `json:"numPoles"`
	PoleCostEstimate       float64                `json:"poleCostEstimate"`
	LowWireCostEstimate    float64                `json:"lowWireCostEstimate"`
	HighWireCostEstimate   float64                `json:"highWireCostEstimate"`
	TotalWireCostEstimate  float64                `json:"totalWireCostEstimate"`
	Nodes                  []Node                 `json:"nodes"`
	Bounds                 calculator.BoundingBox `json:"bounds"`
	Diagnostics            Diagnostics            `json:"diagnostics"`
	Debug                  *Debug                 `json:"debug,omitempty"`
}

// round2 rounds to two decimal places for display fields
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
