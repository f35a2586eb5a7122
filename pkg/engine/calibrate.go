package engine

import (
	"log/slog"
	"sort"
)

// Calibrator maps a raw model probability onto the calibrated scale the
// thresholds are defined on. Fitted offline; this side only evaluates.
type Calibrator interface {
	Calibrate(p float64) float64
	Method() string
}

// calibrationSpec is the artifact representation of a fitted calibrator.
// Method "sigmoid" uses A and B, "isotonic" uses the X/Y knots, "none" or
// empty passes probabilities through.
type calibrationSpec struct {
	Method string    `json:"method"`
	A      float64   `json:"a,omitempty"`
	B      float64   `json:"b,omitempty"`
	X      []float64 `json:"x,omitempty"`
	Y      []float64 `json:"y,omitempty"`
}

func newCalibrator(spec calibrationSpec) (Calibrator, error) {
	switch spec.Method {
	case "", "none":
		return identityCalibrator{}, nil
	case "sigmoid":
		if !isFinite(spec.A) || !isFinite(spec.B) {
			return nil, loadErrorf("sigmoid calibration coefficients not finite")
		}
		return &sigmoidCalibrator{a: spec.A, b: spec.B}, nil
	case "isotonic":
		return newIsotonicCalibrator(spec.X, spec.Y)
	default:
		return nil, loadErrorf("unknown calibration method %q", spec.Method)
	}
}

type identityCalibrator struct{}

func (identityCalibrator) Calibrate(p float64) float64 { return clip(p, 0, 1) }
func (identityCalibrator) Method() string              { return "none" }

// sigmoidCalibrator is Platt scaling: q = sigmoid(a*p + b). A numerically
// invalid transform degrades to the raw probability instead of failing the
// request.
type sigmoidCalibrator struct {
	a, b float64
}

func (c *sigmoidCalibrator) Calibrate(p float64) float64 {
	q := sigmoid(c.a*p + c.b)
	if !isFinite(q) {
		slog.Warn("calibration degraded to raw probability", "method", "sigmoid", "p", p)
		return clip(p, 0, 1)
	}
	return clip(q, 0, 1)
}

func (c *sigmoidCalibrator) Method() string { return "sigmoid" }

// isotonicCalibrator evaluates a monotone step function fitted offline:
// the value of the greatest knot at or below p, clipped at both ends.
type isotonicCalibrator struct {
	x, y []float64
}

func newIsotonicCalibrator(x, y []float64) (*isotonicCalibrator, error) {
	if len(x) != len(y) {
		return nil, loadErrorf("isotonic calibration: %d knots vs %d values", len(x), len(y))
	}
	if len(x) < 2 {
		return nil, loadErrorf("isotonic calibration needs at least 2 knots, got %d", len(x))
	}
	for i := range x {
		if !isFinite(x[i]) || x[i] < 0 || x[i] > 1 {
			return nil, loadErrorf("isotonic knot %d outside [0,1]", i)
		}
		if !isFinite(y[i]) || y[i] < 0 || y[i] > 1 {
			return nil, loadErrorf("isotonic value %d outside [0,1]", i)
		}
		if i > 0 && x[i] <= x[i-1] {
			return nil, loadErrorf("isotonic knots must be strictly increasing at %d", i)
		}
		if i > 0 && y[i] < y[i-1] {
			return nil, loadErrorf("isotonic values must be non-decreasing at %d", i)
		}
	}
	return &isotonicCalibrator{x: x, y: y}, nil
}

func (c *isotonicCalibrator) Calibrate(p float64) float64 {
	if !isFinite(p) {
		slog.Warn("calibration degraded to raw probability", "method", "isotonic", "p", p)
		return clip(p, 0, 1)
	}
	if p <= c.x[0] {
		return c.y[0]
	}
	if p >= c.x[len(c.x)-1] {
		return c.y[len(c.y)-1]
	}
	// greatest knot <= p
	i := sort.SearchFloat64s(c.x, p)
	if i < len(c.x) && c.x[i] == p {
		return c.y[i]
	}
	return c.y[i-1]
}

func (c *isotonicCalibrator) Method() string { return "isotonic" }
