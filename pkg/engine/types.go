package engine

import "time"

// RiskCategory buckets the calibrated default probability.
type RiskCategory string

const (
	RiskLow    RiskCategory = "LOW"
	RiskMedium RiskCategory = "MEDIUM"
	RiskHigh   RiskCategory = "HIGH"
)

// Recommendation is the action the policy hands back to the caller.
type Recommendation string

const (
	RecommendAutoApprove  Recommendation = "AUTO_APPROVE"
	RecommendManualReview Recommendation = "MANUAL_REVIEW"
	RecommendReject       Recommendation = "REJECT"
)

// Band refines tier-2 decisions for reviewers.
type Band string

const (
	BandLowMedium  Band = "low-medium"
	BandMedium     Band = "medium"
	BandMediumHigh Band = "medium-high"
)

// Variant identifies which of the two trained models scores a record.
// Routing is the only place the two differ upstream of the classifier:
// applicants with any prior eviction go to the eviction-aware model,
// everyone else to the financial-only one.
type Variant int

const (
	VariantFinancialOnly Variant = iota
	VariantEvictionAware
)

func (v Variant) String() string {
	switch v {
	case VariantEvictionAware:
		return "eviction_aware"
	case VariantFinancialOnly:
		return "financial_only"
	default:
		return "unknown"
	}
}

// ApplicantRecord is the raw scoring input. Numeric fields are pointers so
// absent values can be told apart from zeroes; the feature engineer fills
// absent fields from the configured defaults. Field names follow the wire
// contract.
type ApplicantRecord struct {
	Bedrooms              *float64 `json:"bedrooms,omitempty"`
	Bathrooms             *float64 `json:"bathrooms,omitempty"`
	SquareFeet            *float64 `json:"square_feet,omitempty"`
	PropertyAgeYears      *float64 `json:"property_age_years,omitempty"`
	ParkingSpaces         *float64 `json:"parking_spaces,omitempty"`
	PetsAllowed           *float64 `json:"pets_allowed,omitempty"`
	Furnished             *float64 `json:"furnished,omitempty"`
	MonthlyRent           *float64 `json:"monthly_rent,omitempty"`
	SecurityDeposit       *float64 `json:"security_deposit,omitempty"`
	LeaseTermMonths       *float64 `json:"lease_term_months,omitempty"`
	TenantAge             *float64 `json:"tenant_age,omitempty"`
	MonthlyIncome         *float64 `json:"monthly_income,omitempty"`
	EmploymentVerified    *float64 `json:"employment_verified,omitempty"`
	IncomeVerified        *float64 `json:"income_verified,omitempty"`
	CreditScore           *float64 `json:"credit_score,omitempty"`
	RentalHistoryYears    *float64 `json:"rental_history_years,omitempty"`
	PreviousEvictions     *float64 `json:"previous_evictions,omitempty"`
	OnTimePayments        *float64 `json:"on_time_payments,omitempty"`
	LatePayments          *float64 `json:"late_payments,omitempty"`
	MissedPayments        *float64 `json:"missed_payments,omitempty"`
	MarketMedianRent      *float64 `json:"market_median_rent,omitempty"`
	DaysToRentProperty    *float64 `json:"days_to_rent_property,omitempty"`
	LocalUnemploymentRate *float64 `json:"local_unemployment_rate,omitempty"`
	InflationRate         *float64 `json:"inflation_rate,omitempty"`

	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`
	PropertyType   string `json:"property_type,omitempty"`
	EmploymentType string `json:"employment_type,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// FeatureVector is the engineered output of the feature engineer: raw
// passthroughs plus every derived feature, keyed by contract name.
type FeatureVector map[string]float64

// ThresholdSet holds the three probability cutoffs the policy tiers on.
type ThresholdSet struct {
	Approve float64 `json:"approve" yaml:"approve"`
	Manual  float64 `json:"manual" yaml:"manual"`
	Reject  float64 `json:"reject" yaml:"reject"`
}

// Validate enforces 0 < approve <= manual <= reject < 1.
func (t ThresholdSet) Validate() error {
	if t.Approve <= 0 || t.Approve >= 1 {
		return validationErrorf("approve threshold %.4f outside (0,1)", t.Approve)
	}
	if t.Manual <= 0 || t.Manual >= 1 {
		return validationErrorf("manual threshold %.4f outside (0,1)", t.Manual)
	}
	if t.Reject <= 0 || t.Reject >= 1 {
		return validationErrorf("reject threshold %.4f outside (0,1)", t.Reject)
	}
	if t.Approve > t.Manual || t.Manual > t.Reject {
		return validationErrorf("thresholds out of order: approve %.4f <= manual %.4f <= reject %.4f required",
			t.Approve, t.Manual, t.Reject)
	}
	return nil
}

// ScoreOptions carries per-request overrides. Nil fields use engine defaults.
type ScoreOptions struct {
	Thresholds *ThresholdSet `json:"thresholds,omitempty"`
}

// Result is the full decision record for one scored applicant.
type Result struct {
	RequestID             string         `json:"request_id"`
	RiskScore             int            `json:"risk_score"`
	RiskCategory          RiskCategory   `json:"risk_category"`
	Recommendation        Recommendation `json:"recommendation"`
	DecisionTier          int            `json:"decision_tier"`
	DecisionBand          Band           `json:"decision_band,omitempty"`
	DefaultProbability    float64        `json:"default_probability"`
	CalibratedProbability float64        `json:"calibrated_probability"`
	Confidence            float64        `json:"confidence_score"`
	Reasoning             string         `json:"reasoning"`
	ModelVersion          string         `json:"model_version"`
	ModelFingerprint      string         `json:"model_fingerprint"`
	FeatureCount          int            `json:"num_features"`
	Degraded              bool           `json:"degraded,omitempty"`
	MissingFeatures       int            `json:"missing_features,omitempty"`
	InferenceTimeMS       float64        `json:"inference_time_ms"`
	Thresholds            ThresholdSet   `json:"thresholds"`
	ScoredAt              time.Time      `json:"scored_at"`
}
