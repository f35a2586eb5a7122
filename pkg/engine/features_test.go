package engine

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func defaultEngineer() *FeatureEngineer {
	return NewFeatureEngineer(EngineerConfig{})
}

func TestTransformDefaults(t *testing.T) {
	fe := defaultEngineer()

	// a fully absent record takes every default
	v := fe.Transform(ApplicantRecord{})

	assert.Equal(t, 40000.0, v["monthly_income"])
	assert.Equal(t, 10000.0, v["monthly_rent"])
	assert.Equal(t, 650.0, v["credit_score"])
	assert.Equal(t, 800.0, v["square_feet"])
	assert.Equal(t, 12000.0, v["market_median_rent"])
	assert.Equal(t, 3.0, v["rental_history_years"])
	assert.Equal(t, 0.0, v["previous_evictions"])
	assert.Equal(t, 5.0, v["local_unemployment_rate"])

	assert.InDelta(t, 4.0, v["income_multiple"], 1e-9)
	assert.InDelta(t, 0.25, v["rent_to_income_ratio"], 1e-9)
	assert.InDelta(t, 30000.0, v["income_to_rent_buffer"], 1e-9)
	assert.InDelta(t, 10000.0/12000.0, v["rent_vs_market_ratio"], 1e-9)
	assert.InDelta(t, 12.5, v["rent_per_sqft"], 1e-9)
	assert.InDelta(t, 2.0, v["security_deposit_ratio"], 1e-9)
}

func TestTransformZeroReplacement(t *testing.T) {
	fe := defaultEngineer()

	// explicit zeroes in denominator columns take the default instead
	v := fe.Transform(ApplicantRecord{
		MonthlyIncome:    f(0),
		CreditScore:      f(0),
		MarketMedianRent: f(0),
		SquareFeet:       f(0),
		MonthlyRent:      f(0),
	})

	assert.Equal(t, 40000.0, v["monthly_income"])
	assert.Equal(t, 650.0, v["credit_score"])
	assert.Equal(t, 12000.0, v["market_median_rent"])
	assert.Equal(t, 800.0, v["square_feet"])
	assert.Equal(t, 10000.0, v["monthly_rent"])

	for name, val := range v {
		assert.False(t, math.IsNaN(val) || math.IsInf(val, 0), "feature %s not finite: %v", name, val)
	}
}

func TestTransformStrongApplicant(t *testing.T) {
	fe := defaultEngineer()

	v := fe.Transform(ApplicantRecord{
		CreditScore:        f(720),
		MonthlyIncome:      f(50000),
		MonthlyRent:        f(15000),
		PreviousEvictions:  f(0),
		EmploymentVerified: f(1),
		IncomeVerified:     f(1),
	})

	assert.InDelta(t, 0.3, v["rent_to_income_ratio"], 1e-9)
	assert.InDelta(t, 50000.0/15000.0, v["income_multiple"], 1e-9)
	assert.Equal(t, 1.0, v["credit_tier"])
	assert.Equal(t, 0.0, v["subprime_credit"])
	assert.Equal(t, 1.0, v["income_stability"])
	assert.Equal(t, 2.0, v["verification_score"])
	assert.Equal(t, 0.0, v["high_rent_burden"])
	assert.Equal(t, 10.0, v["employment_credibility"])
}

func TestTransformPaymentHistory(t *testing.T) {
	fe := defaultEngineer()

	v := fe.Transform(ApplicantRecord{
		OnTimePayments:     f(10),
		LatePayments:       f(2),
		MissedPayments:     f(1),
		RentalHistoryYears: f(2),
	})

	assert.InDelta(t, 2.0/13.0, v["payment_delinquency_ratio"], 1e-9)
	assert.InDelta(t, 9.0, v["payment_severity_score"], 1e-9)
	assert.InDelta(t, (10.0/14.0)*(1.0-2.0/12.0), v["payment_reliability_index"], 1e-9)
	assert.Equal(t, 1.0, v["payment_risk_binary"])
	assert.Equal(t, 0.0, v["payment_perfection"])
	assert.InDelta(t, 1.0/(1.0+3.0/2.0), v["payment_consistency"], 1e-9)
	assert.InDelta(t, 1.0, v["payment_deterioration_rate"], 1e-9)
	assert.InDelta(t, 7.5, v["payment_health_score"], 1e-9)

	assert.Equal(t, 1.0, v["late_payments_normalized"])
	assert.Equal(t, 1.0, v["missed_payments_normalized"])
	assert.InDelta(t, 10.0/11.0, v["on_time_normalized"], 1e-9)
}

func TestTransformCleanPaymentHistory(t *testing.T) {
	fe := defaultEngineer()

	v := fe.Transform(ApplicantRecord{
		OnTimePayments: f(24),
		LatePayments:   f(0),
		MissedPayments: f(0),
	})

	assert.Equal(t, 0.0, v["payment_risk_binary"])
	assert.Equal(t, 1.0, v["payment_perfection"])
	assert.Equal(t, 10.0, v["payment_health_score"])
	assert.Equal(t, 0.0, v["late_payments_normalized"])
	assert.Equal(t, 0.0, v["payment_severity_score"])
}

func TestTransformComposites(t *testing.T) {
	fe := defaultEngineer()

	v := fe.Transform(ApplicantRecord{})

	assert.InDelta(t, 7.2941176, v["financial_responsibility_score"], 1e-6)
	assert.InDelta(t, 6.6, v["tenant_history_score"], 1e-9)
	assert.InDelta(t, 6.25, v["property_market_risk"], 1e-9)
	assert.InDelta(t, 0.38, v["tenant_stability_score"], 1e-9)
	assert.InDelta(t, 0.1, v["property_desirability_score"], 1e-9)
	assert.InDelta(t, 0.25, v["market_economic_factor"], 1e-9)
	assert.InDelta(t, 2.0, v["payment_risk_composite"], 1e-9)
	assert.InDelta(t, 4.0, v["payment_composite_squared"], 1e-9)
	assert.InDelta(t, math.Log1p(2.0), v["payment_composite_log"], 1e-9)
	assert.InDelta(t, 6.0, v["behavioral_payment_score"], 1e-9)
	assert.InDelta(t, 2.2, v["ultimate_payment_risk_index"], 1e-9)
	assert.InDelta(t, 26.0, v["income_x_credit"], 1e-9)
}

func TestTransformRentExceedsIncome(t *testing.T) {
	fe := defaultEngineer()

	v := fe.Transform(ApplicantRecord{
		MonthlyIncome: f(9000),
		MonthlyRent:   f(12000),
	})

	// buffer clips at zero, burden flags trip
	assert.Equal(t, 0.0, v["income_to_rent_buffer"])
	assert.Equal(t, 1.0, v["high_rent_burden"])
	assert.InDelta(t, 12000.0/9000.0, v["rent_to_income_ratio"], 1e-9)
	assert.Equal(t, 0.0, v["stability_x_rent_burden"])
}

func TestCreditTier(t *testing.T) {
	tests := []struct {
		score float64
		tier  float64
	}{
		{500, 3},
		{580, 3},
		{581, 2},
		{670, 2},
		{671, 1},
		{740, 1},
		{741, 0},
		{850, 0},
	}

	fe := defaultEngineer()
	for _, tt := range tests {
		v := fe.Transform(ApplicantRecord{CreditScore: f(tt.score)})
		assert.Equal(t, tt.tier, v["credit_tier"], "score %v", tt.score)
	}
}

func TestSubprimeBoundary(t *testing.T) {
	fe := defaultEngineer()

	assert.Equal(t, 1.0, fe.Transform(ApplicantRecord{CreditScore: f(669)})["subprime_credit"])
	assert.Equal(t, 0.0, fe.Transform(ApplicantRecord{CreditScore: f(670)})["subprime_credit"])
}

func TestEncoderFirstSeenOrder(t *testing.T) {
	fe := defaultEngineer()

	recs := []ApplicantRecord{
		{City: "Mumbai"},
		{City: "Pune"},
		{City: "Mumbai"},
		{City: ""},
		{City: "Delhi"},
	}

	vecs := fe.TransformBatch(recs)
	require.Len(t, vecs, 5)

	assert.Equal(t, 0.0, vecs[0]["city_enc"])
	assert.Equal(t, 1.0, vecs[1]["city_enc"])
	assert.Equal(t, 0.0, vecs[2]["city_enc"])
	// empty value takes the categorical default "Unknown", a new code
	assert.Equal(t, 2.0, vecs[3]["city_enc"])
	assert.Equal(t, 3.0, vecs[4]["city_enc"])
}

func TestEncoderIsolatedRecordAlwaysZero(t *testing.T) {
	fe := defaultEngineer()

	for _, city := range []string{"Mumbai", "Berlin", ""} {
		v := fe.Transform(ApplicantRecord{City: city, Country: "IN", PropertyType: "Studio"})
		assert.Equal(t, 0.0, v["city_enc"])
		assert.Equal(t, 0.0, v["country_enc"])
		assert.Equal(t, 0.0, v["property_type_enc"])
	}
}

func TestTransformDeterministic(t *testing.T) {
	fe := defaultEngineer()

	rec := ApplicantRecord{
		CreditScore:       f(710),
		MonthlyIncome:     f(62000),
		MonthlyRent:       f(21000),
		LatePayments:      f(1),
		OnTimePayments:    f(18),
		PreviousEvictions: f(1),
		City:              "Pune",
	}

	v1 := fe.Transform(rec)
	v2 := fe.Transform(rec)

	if diff := cmp.Diff(v1, v2, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("transform not deterministic (-first +second):\n%s", diff)
	}
}

func TestTransformExplicitDefaultsMatchAbsent(t *testing.T) {
	fe := defaultEngineer()

	// spelling out the default values must not change the output
	explicit := ApplicantRecord{
		MonthlyIncome:      f(40000),
		MonthlyRent:        f(10000),
		CreditScore:        f(650),
		SquareFeet:         f(800),
		MarketMedianRent:   f(12000),
		RentalHistoryYears: f(3),
		LeaseTermMonths:    f(12),
		Country:            "Unknown",
		PropertyType:       "Apartment",
	}

	got := fe.Transform(explicit)
	want := fe.Transform(ApplicantRecord{})

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("explicit defaults diverge from absent fields:\n%s", diff)
	}
}

func TestTransformAllFinite(t *testing.T) {
	fe := defaultEngineer()

	records := []ApplicantRecord{
		{},
		{MonthlyIncome: f(0), MonthlyRent: f(0), CreditScore: f(0)},
		{MonthlyIncome: f(1), MonthlyRent: f(900000)},
		{LatePayments: f(500), MissedPayments: f(300), OnTimePayments: f(0)},
		{PreviousEvictions: f(14), RentalHistoryYears: f(0)},
		{LocalUnemploymentRate: f(35), InflationRate: f(22)},
		{PropertyAgeYears: f(120), SquareFeet: f(12)},
	}

	for i, rec := range records {
		v := fe.Transform(rec)
		for name, val := range v {
			assert.False(t, math.IsNaN(val) || math.IsInf(val, 0),
				"record %d feature %s not finite: %v", i, name, val)
		}
	}
}

func TestEngineerConfigOverrides(t *testing.T) {
	fe := NewFeatureEngineer(EngineerConfig{
		Defaults:             map[string]float64{"monthly_income": 55000},
		CategoricalDefaults:  map[string]string{"currency": "EUR"},
		RentBurdenCutoff:     0.5,
		SubprimeCreditCutoff: 700,
	})

	v := fe.Transform(ApplicantRecord{MonthlyRent: f(24000)})

	assert.Equal(t, 55000.0, v["monthly_income"])
	// 24000/55000 = 0.436, under the raised 0.5 cutoff
	assert.Equal(t, 0.0, v["high_rent_burden"])
	// 650 is subprime against a 700 cutoff
	assert.Equal(t, 1.0, v["subprime_credit"])
}
