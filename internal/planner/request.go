package planner

import (
	"fmt"
	"math"
	"strings"

	"github.com/stuartshay/gridplan/internal/cost"
	"github.com/stuartshay/gridplan/internal/network"
)

// PointInput is one uploaded service location. Lat and Lng are pointers so that
// absent values can be told apart from zero.
type PointInput struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

// CostInput carries the unit prices of a request; every field is required
type CostInput struct {
	PoleCost                *float64 `json:"poleCost"`
	LowVoltageCostPerMeter  *float64 `json:"lowVoltageCostPerMeter"`
	HighVoltageCostPerMeter *float64 `json:"highVoltageCostPerMeter"`
}

// PolicyInput overrides the service's default cost policy for one request
type PolicyInput struct {
	HighVoltageThresholdMeters *float64 `json:"highVoltageThresholdMeters,omitempty"`
	PoleSpanMeters             *float64 `json:"poleSpanMeters,omitempty"`
}

// Request is an optimization request as received from a transport
type Request struct {
	Points []PointInput `json:"points"`
	Costs  CostInput    `json:"costs"`
	Policy *PolicyInput `json:"policy,omitempty"`
	Debug  bool         `json:"debug,omitempty"`
}

// Input is a validated request ready for the pipeline
type Input struct {
	Points []network.Point
	Model  cost.Model
	Policy cost.Policy
	Debug  bool
}

// Float returns a pointer to v, for building requests in code
func Float(v float64) *float64 {
	return &v
}

// Validate checks req and converts it to pipeline input. defaults supplies the
// policy fields the request does not override. No distance is computed here.
func Validate(req *Request, defaults cost.Policy) (*Input, error) {
	if req == nil || len(req.Points) < 2 {
		n := 0
		if req != nil {
			n = len(req.Points)
		}
		return nil, &InsufficientPointsError{Count: n}
	}

	points := make([]network.Point, len(req.Points))
	for i, p := range req.Points {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = fmt.Sprintf("Location %d", i+1)
		}
		if p.Lat == nil || p.Lng == nil {
			return nil, &InvalidCoordinateError{Index: i, Name: name, Reason: "lat and lng are required"}
		}
		lat, lng := *p.Lat, *p.Lng
		if !finite(lat) || !finite(lng) {
			return nil, &InvalidCoordinateError{Index: i, Name: name, Reason: fmt.Sprintf("(%v, %v) is not finite", lat, lng)}
		}
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return nil, &InvalidCoordinateError{Index: i, Name: name, Reason: fmt.Sprintf("(%v, %v) is out of range", lat, lng)}
		}
		points[i] = network.Point{Name: name, Lat: lat, Lng: lng}
	}

	model, err := req.Costs.model()
	if err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	policy := defaults
	if req.Policy != nil {
		if req.Policy.HighVoltageThresholdMeters != nil {
			policy.HighVoltageThresholdMeters = *req.Policy.HighVoltageThresholdMeters
		}
		if req.Policy.PoleSpanMeters != nil {
			policy.PoleSpanMeters = *req.Policy.PoleSpanMeters
		}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return &Input{
		Points: points,
		Model:  model,
		Policy: policy,
		Debug:  req.Debug,
	}, nil
}

func (c CostInput) model() (cost.Model, error) {
	switch {
	case c.PoleCost == nil:
		return cost.Model{}, &MissingCostFieldError{Field: "poleCost"}
	case c.LowVoltageCostPerMeter == nil:
		return cost.Model{}, &MissingCostFieldError{Field: "lowVoltageCostPerMeter"}
	case c.HighVoltageCostPerMeter == nil:
		return cost.Model{}, &MissingCostFieldError{Field: "highVoltageCostPerMeter"}
	}

	return cost.Model{
		PoleCost:                *c.PoleCost,
		LowVoltageCostPerMeter:  *c.LowVoltageCostPerMeter,
		HighVoltageCostPerMeter: *c.HighVoltageCostPerMeter,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
