package engine

import "fmt"

// Volume describes current application inflow for threshold tuning.
type Volume string

const (
	VolumeLow    Volume = "low"
	VolumeNormal Volume = "normal"
	VolumeHigh   Volume = "high"
)

// DefaultThresholds is the shipped cutoff set.
var DefaultThresholds = ThresholdSet{Approve: 0.45, Manual: 0.60, Reject: 0.75}

const (
	// clamp ranges per cutoff. These ranges guarantee the ordering
	// invariant approve <= manual <= reject for every reachable shift.
	approveClampLo = 0.20
	approveClampHi = 0.50
	manualClampLo  = 0.50
	manualClampHi  = 0.80
	rejectClampLo  = 0.75
	rejectClampHi  = 0.95

	costRatioHigh  = 1.5
	costRatioShift = 0.05
	vacancyHigh    = 0.10
	vacancyLow     = 0.03
	vacancyShift   = 0.05
	volumeShift    = 0.03
)

// DynamicInput drives a market-aware threshold recomputation.
// FPCost is the cost of wrongly rejecting a good tenant (lost rent while
// vacant); FNCost the cost of approving a tenant who defaults.
type DynamicInput struct {
	FPCost      float64 `json:"fp_cost"`
	FNCost      float64 `json:"fn_cost"`
	VacancyRate float64 `json:"vacancy_rate"`
	Volume      Volume  `json:"application_volume,omitempty"`
}

func (in DynamicInput) validate() error {
	if in.FNCost <= 0 {
		return validationErrorf("fn_cost must be positive, got %.2f", in.FNCost)
	}
	if in.FPCost <= 0 {
		return validationErrorf("fp_cost must be positive, got %.2f", in.FPCost)
	}
	if in.VacancyRate < 0 || in.VacancyRate > 1 {
		return validationErrorf("vacancy_rate %.4f outside [0,1]", in.VacancyRate)
	}
	switch in.Volume {
	case VolumeLow, VolumeNormal, VolumeHigh, "":
		return nil
	default:
		return validationErrorf("unknown application_volume %q", in.Volume)
	}
}

// DynamicResult reports the recomputed cutoffs and how they were reached.
type DynamicResult struct {
	Thresholds ThresholdSet `json:"thresholds"`
	CostRatio  float64      `json:"cost_ratio"`
	Shift      float64      `json:"shift"`
	Reasoning  string       `json:"reasoning"`
}

// ComputeThresholds shifts the base cutoffs for market conditions. One
// additive shift applies to all three cutoffs, then each is clamped to its
// own range. A costly false positive, high vacancy, or thin applicant flow
// relaxes the cutoffs; the opposite conditions tighten them.
func ComputeThresholds(base ThresholdSet, in DynamicInput) (*DynamicResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	costRatio := in.FPCost / in.FNCost

	shift := 0.0
	switch {
	case costRatio >= costRatioHigh:
		shift += costRatioShift
	case costRatio <= 1.0/costRatioHigh:
		shift -= costRatioShift
	}
	switch {
	case in.VacancyRate >= vacancyHigh:
		shift += vacancyShift
	case in.VacancyRate <= vacancyLow:
		shift -= vacancyShift
	}
	switch in.Volume {
	case VolumeLow:
		shift += volumeShift
	case VolumeHigh:
		shift -= volumeShift
	}

	set := ThresholdSet{
		Approve: clip(base.Approve+shift, approveClampLo, approveClampHi),
		Manual:  clip(base.Manual+shift, manualClampLo, manualClampHi),
		Reject:  clip(base.Reject+shift, rejectClampLo, rejectClampHi),
	}

	volume := in.Volume
	if volume == "" {
		volume = VolumeNormal
	}

	return &DynamicResult{
		Thresholds: set,
		CostRatio:  costRatio,
		Shift:      shift,
		Reasoning: fmt.Sprintf(
			"cost ratio %.2f, vacancy %.1f%%, %s volume: shifted cutoffs by %+.2f, clamped to approve %.2f / manual %.2f / reject %.2f",
			costRatio, in.VacancyRate*100, volume, shift, set.Approve, set.Manual, set.Reject),
	}, nil
}
