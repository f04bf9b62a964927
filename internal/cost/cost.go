// Package cost converts a spanning tree into a construction cost estimate using
// per-pole and per-meter wire prices.
package cost

import (
	"fmt"
	"math"

	"github.com/stuartshay/gridplan/internal/network"
)

// Voltage is the wire class assigned to an edge
type Voltage string

// Voltage classes
const (
	LowVoltage  Voltage = "low"
	HighVoltage Voltage = "high"
)

// Model holds unit prices. All fields must be finite and non-negative.
type Model struct {
	PoleCost                float64 `json:"poleCost"`
	LowVoltageCostPerMeter  float64 `json:"lowVoltageCostPerMeter"`
	HighVoltageCostPerMeter float64 `json:"highVoltageCostPerMeter"`
}

// Policy controls how edges are classified and how poles are counted.
//
// HighVoltageThresholdMeters: edges strictly longer than this are high voltage.
// Zero disables the rule and every edge is low voltage.
//
// PoleSpanMeters: zero places one pole per point. A positive span places
// ceil(length/span) poles along each edge (at least its terminus pole).
type Policy struct {
	HighVoltageThresholdMeters float64 `json:"highVoltageThresholdMeters"`
	PoleSpanMeters             float64 `json:"poleSpanMeters"`
}

// NegativeCostConfigError reports a cost model or policy field that is negative or not finite
type NegativeCostConfigError struct {
	Field string
	Value float64
}

func (e *NegativeCostConfigError) Error() string {
	return fmt.Sprintf("%s must be a finite non-negative number, got %v", e.Field, e.Value)
}

// Validate checks every price is finite and non-negative
func (m Model) Validate() error {
	return checkFields(
		field{"poleCost", m.PoleCost},
		field{"lowVoltageCostPerMeter", m.LowVoltageCostPerMeter},
		field{"highVoltageCostPerMeter", m.HighVoltageCostPerMeter},
	)
}

// Validate checks the threshold and span are finite and non-negative
func (p Policy) Validate() error {
	return checkFields(
		field{"highVoltageThresholdMeters", p.HighVoltageThresholdMeters},
		field{"poleSpanMeters", p.PoleSpanMeters},
	)
}

type field struct {
	name  string
	value float64
}

func checkFields(fields ...field) error {
	for _, f := range fields {
		if f.value < 0 || math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &NegativeCostConfigError{Field: f.name, Value: f.value}
		}
	}
	return nil
}

// Classify returns the voltage class for an edge of the given length
func (p Policy) Classify(lengthMeters float64) Voltage {
	if p.HighVoltageThresholdMeters > 0 && lengthMeters > p.HighVoltageThresholdMeters {
		return HighVoltage
	}
	return LowVoltage
}

// PolesForEdge returns the number of poles attributed to an edge: its terminus
// pole, plus intermediate poles when a span is configured.
func (p Policy) PolesForEdge(lengthMeters float64) int {
	if p.PoleSpanMeters <= 0 {
		return 1
	}
	poles := int(math.Ceil(lengthMeters / p.PoleSpanMeters))
	if poles < 1 {
		return 1
	}
	return poles
}

// EdgeCost is the priced form of one tree edge
type EdgeCost struct {
	Edge     network.Edge
	Voltage  Voltage
	Poles    int
	WireCost float64
	PoleCost float64
	Cost     float64
}

// Breakdown is the full cost estimate of a spanning tree
type Breakdown struct {
	Edges                  []EdgeCost
	RootPoleCost           float64
	NumPoles               int
	TotalLowVoltageMeters  float64
	TotalHighVoltageMeters float64
	PoleCostEstimate       float64
	LowWireCostEstimate    float64
	HighWireCostEstimate   float64
	TotalWireCostEstimate  float64
	TotalCost              float64
}

// Evaluate prices every edge of tree and sums the total.
//
// Each edge costs its wire price per meter times its length plus the poles it
// carries. The root point's pole is added once, so under the default policy the
// network has exactly one pole per point. Inputs are not modified.
func Evaluate(tree *network.SpanningTree, model Model, policy Policy) (*Breakdown, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, &network.InvariantError{Invariant: "nil spanning tree"}
	}

	b := &Breakdown{
		Edges:        make([]EdgeCost, 0, len(tree.Edges)),
		RootPoleCost: model.PoleCost,
		NumPoles:     1,
	}

	for _, e := range tree.Edges {
		ec := EdgeCost{
			Edge:    e,
			Voltage: policy.Classify(e.Weight),
			Poles:   policy.PolesForEdge(e.Weight),
		}

		switch ec.Voltage {
		case HighVoltage:
			ec.WireCost = e.Weight * model.HighVoltageCostPerMeter
			b.TotalHighVoltageMeters += e.Weight
			b.HighWireCostEstimate += ec.WireCost
		default:
			ec.WireCost = e.Weight * model.LowVoltageCostPerMeter
			b.TotalLowVoltageMeters += e.Weight
			b.LowWireCostEstimate += ec.WireCost
		}

		ec.PoleCost = float64(ec.Poles) * model.PoleCost
		ec.Cost = ec.WireCost + ec.PoleCost
		b.NumPoles += ec.Poles
		b.Edges = append(b.Edges, ec)
	}

	b.PoleCostEstimate = float64(b.NumPoles) * model.PoleCost
	b.TotalWireCostEstimate = b.LowWireCostEstimate + b.HighWireCostEstimate
	b.TotalCost = b.TotalWireCostEstimate + b.PoleCostEstimate

	if b.TotalCost < 0 || math.IsNaN(b.TotalCost) {
		return nil, &network.InvariantError{Invariant: "total cost is negative or NaN"}
	}

	return b, nil
}
