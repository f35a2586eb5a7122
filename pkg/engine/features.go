package engine

import "math"

const (
	creditScaleMax = 850.0

	// shipped policy cutoffs, overridable via EngineerConfig
	incomeStabilityMultipleDefault = 3.0
	rentBurdenCutoffDefault        = 0.4
	subprimeCreditCutoffDefault    = 670.0
)

// numericDefaults are the shipped fill-ins for absent numeric fields.
// Deliberately realistic mid-market values rather than zeroes so that a
// sparse application does not read as a pathological one.
var numericDefaults = map[string]float64{
	"bedrooms": 1, "bathrooms": 1, "square_feet": 800, "property_age_years": 15,
	"parking_spaces": 0, "pets_allowed": 0, "furnished": 0, "monthly_rent": 10000,
	"security_deposit": 20000, "lease_term_months": 12, "tenant_age": 35,
	"monthly_income": 40000, "employment_verified": 0, "income_verified": 0,
	"credit_score": 650, "rental_history_years": 3, "previous_evictions": 0,
	"on_time_payments": 0, "late_payments": 0, "missed_payments": 0,
	"market_median_rent": 12000, "days_to_rent_property": 30,
	"local_unemployment_rate": 5.0, "inflation_rate": 5.0,
}

var categoricalDefaults = map[string]string{
	"country": "Unknown", "city": "Unknown", "property_type": "Apartment",
	"employment_type": "Unknown", "currency": "INR",
}

// EngineerConfig tunes the transform. Zero values select the shipped
// behavior; Defaults and CategoricalDefaults are per-key overlays.
type EngineerConfig struct {
	Defaults                map[string]float64
	CategoricalDefaults     map[string]string
	IncomeStabilityMultiple float64
	RentBurdenCutoff        float64
	SubprimeCreditCutoff    float64
}

// FeatureEngineer turns a raw ApplicantRecord into the engineered
// FeatureVector the models consume. The transform is pure: no I/O, no
// mutation of the input, identical output for identical input.
type FeatureEngineer struct {
	numDefaults  map[string]float64
	catDefaults  map[string]string
	stabilityMul float64
	burdenCutoff float64
	subprime     float64
}

func NewFeatureEngineer(cfg EngineerConfig) *FeatureEngineer {
	fe := &FeatureEngineer{
		numDefaults:  make(map[string]float64, len(numericDefaults)),
		catDefaults:  make(map[string]string, len(categoricalDefaults)),
		stabilityMul: cfg.IncomeStabilityMultiple,
		burdenCutoff: cfg.RentBurdenCutoff,
		subprime:     cfg.SubprimeCreditCutoff,
	}
	for k, v := range numericDefaults {
		fe.numDefaults[k] = v
	}
	for k, v := range cfg.Defaults {
		fe.numDefaults[k] = v
	}
	for k, v := range categoricalDefaults {
		fe.catDefaults[k] = v
	}
	for k, v := range cfg.CategoricalDefaults {
		fe.catDefaults[k] = v
	}
	if fe.stabilityMul == 0 {
		fe.stabilityMul = incomeStabilityMultipleDefault
	}
	if fe.burdenCutoff == 0 {
		fe.burdenCutoff = rentBurdenCutoffDefault
	}
	if fe.subprime == 0 {
		fe.subprime = subprimeCreditCutoffDefault
	}
	return fe
}

// Encoder assigns first-seen-order integer codes to categorical values.
// Share one Encoder across a batch so identical values map to identical
// codes; a record encoded in isolation always gets 0 for every category.
type Encoder struct {
	codes map[string]map[string]float64
}

func NewEncoder() *Encoder {
	return &Encoder{codes: make(map[string]map[string]float64)}
}

func (e *Encoder) Encode(column, value string) float64 {
	col, ok := e.codes[column]
	if !ok {
		col = make(map[string]float64)
		e.codes[column] = col
	}
	if code, ok := col[value]; ok {
		return code
	}
	code := float64(len(col))
	col[value] = code
	return code
}

// Transform engineers one record in isolation.
func (fe *FeatureEngineer) Transform(rec ApplicantRecord) FeatureVector {
	return fe.TransformWith(rec, NewEncoder())
}

// TransformBatch engineers records with a shared categorical encoder.
func (fe *FeatureEngineer) TransformBatch(recs []ApplicantRecord) []FeatureVector {
	enc := NewEncoder()
	out := make([]FeatureVector, len(recs))
	for i, rec := range recs {
		out[i] = fe.TransformWith(rec, enc)
	}
	return out
}

// TransformWith engineers one record using the given encoder.
func (fe *FeatureEngineer) TransformWith(rec ApplicantRecord, enc *Encoder) FeatureVector {
	// raw fields with defaults for absent values
	bedrooms := fe.num(rec.Bedrooms, "bedrooms")
	bathrooms := fe.num(rec.Bathrooms, "bathrooms")
	sqft := fe.num(rec.SquareFeet, "square_feet")
	propertyAge := fe.num(rec.PropertyAgeYears, "property_age_years")
	parking := fe.num(rec.ParkingSpaces, "parking_spaces")
	pets := fe.num(rec.PetsAllowed, "pets_allowed")
	furnished := fe.num(rec.Furnished, "furnished")
	rent := fe.num(rec.MonthlyRent, "monthly_rent")
	deposit := fe.num(rec.SecurityDeposit, "security_deposit")
	leaseTerm := fe.num(rec.LeaseTermMonths, "lease_term_months")
	tenantAge := fe.num(rec.TenantAge, "tenant_age")
	income := fe.num(rec.MonthlyIncome, "monthly_income")
	empVerified := fe.num(rec.EmploymentVerified, "employment_verified")
	incVerified := fe.num(rec.IncomeVerified, "income_verified")
	credit := fe.num(rec.CreditScore, "credit_score")
	history := fe.num(rec.RentalHistoryYears, "rental_history_years")
	evictions := fe.num(rec.PreviousEvictions, "previous_evictions")
	onTime := fe.num(rec.OnTimePayments, "on_time_payments")
	late := fe.num(rec.LatePayments, "late_payments")
	missed := fe.num(rec.MissedPayments, "missed_payments")
	marketRent := fe.num(rec.MarketMedianRent, "market_median_rent")
	daysToRent := fe.num(rec.DaysToRentProperty, "days_to_rent_property")
	unemployment := fe.num(rec.LocalUnemploymentRate, "local_unemployment_rate")
	inflation := fe.num(rec.InflationRate, "inflation_rate")

	// denominator safety: exact zeroes in critical columns take the default
	income = nonZero(income, fe.numDefaults["monthly_income"])
	credit = nonZero(credit, fe.numDefaults["credit_score"])
	marketRent = nonZero(marketRent, fe.numDefaults["market_median_rent"])
	sqft = nonZero(sqft, fe.numDefaults["square_feet"])
	rent = nonZero(rent, fe.numDefaults["monthly_rent"])

	v := make(FeatureVector, 96)

	v["bedrooms"] = bedrooms
	v["bathrooms"] = bathrooms
	v["square_feet"] = sqft
	v["property_age_years"] = propertyAge
	v["parking_spaces"] = parking
	v["pets_allowed"] = pets
	v["furnished"] = furnished
	v["monthly_rent"] = rent
	v["security_deposit"] = deposit
	v["lease_term_months"] = leaseTerm
	v["tenant_age"] = tenantAge
	v["monthly_income"] = income
	v["employment_verified"] = empVerified
	v["income_verified"] = incVerified
	v["credit_score"] = credit
	v["rental_history_years"] = history
	v["previous_evictions"] = evictions
	v["on_time_payments"] = onTime
	v["late_payments"] = late
	v["missed_payments"] = missed
	v["market_median_rent"] = marketRent
	v["days_to_rent_property"] = daysToRent
	v["local_unemployment_rate"] = unemployment
	v["inflation_rate"] = inflation

	v["absolute_income"] = income
	v["absolute_credit_score"] = credit
	v["absolute_rent"] = rent

	// core financial ratios
	v["income_multiple"] = income / rent
	rentToIncome := rent / income
	v["rent_to_income_ratio"] = rentToIncome
	v["income_to_rent_buffer"] = math.Max(income-rent, 0)
	v["rent_vs_market_ratio"] = rent / marketRent
	v["rent_per_sqft"] = rent / sqft
	v["debt_to_income_proxy"] = rent / income
	v["security_deposit_ratio"] = deposit / rent

	// payment history
	delinquency := late / (late + onTime + 1)
	v["payment_delinquency_ratio"] = delinquency

	severity := late*2 + missed*5
	v["payment_severity_score"] = severity

	reliability := (onTime / (onTime + late + missed + 1)) * (1 - clip(late/12, 0, 1))
	v["payment_reliability_index"] = reliability

	v["payment_risk_binary"] = b2f(late > 0 || missed > 0)
	v["payment_perfection"] = b2f(late == 0 && missed == 0)

	consistency := 1.0 / (1.0 + (late+missed)/nonZero(history, 1))
	v["payment_consistency"] = consistency

	deterioration := late / nonZero(history, 0.5)
	v["payment_deterioration_rate"] = deterioration

	healthScore := clip(10-clip(late*0.5, 0, 5)-clip(missed*1.5, 0, 5), 0, 10)
	v["payment_health_score"] = healthScore

	// behavioral composites
	v["payment_behavior_composite"] = clip(onTime*0.5-late*0.3-missed*0.8+consistency*0.2, 0, 10)

	v["financial_responsibility_score"] = (credit/creditScaleMax*0.3 +
		(1-clip(rentToIncome, 0, 1))*0.4 +
		b2f(income > rent*2)*0.2 +
		incVerified*0.1) * 10

	v["tenant_history_score"] = (clip(history/20, 0, 1)*0.4 +
		(12-clip(evictions, 0, 12))/12*0.6) * 10

	v["property_market_risk"] = (rent/marketRent*0.3 +
		(20-clip(propertyAge, 0, 20))/20*0.2 +
		clip(1-unemployment/20, 0, 1)*0.3 +
		clip(1-inflation/10, 0, 1)*0.2) * 10

	v["employment_credibility"] = (empVerified*0.6 + incVerified*0.4) * 10

	// payment x income/credit interactions
	v["credit_x_payment_reliability"] = (credit / creditScaleMax) * reliability
	v["payment_risk_x_income_burden"] = severity / (income / 1000)
	v["verified_income_x_payment"] = incVerified * (1 - delinquency)
	v["rent_burden_x_late_payments"] = (rent / income) * (1 + late)
	v["employment_x_payment_consistency"] = empVerified * consistency
	v["credit_x_payment_severity"] = (1 - credit/creditScaleMax) * severity
	v["experience_x_payment_reliability"] = clip(history/10, 0, 1) * reliability

	verification := empVerified + incVerified
	v["verification_x_payment_health"] = verification * (healthScore / 10)

	v["income_x_credit"] = (income / 10000) * (credit / 100)
	v["rent_burden_x_credit"] = rentToIncome * (1 - credit/creditScaleMax)
	v["verification_x_income"] = verification * math.Log1p(income)
	v["credit_x_verification"] = (credit / creditScaleMax) * verification
	v["stability_x_rent_burden"] = consistency * (1 - b2f(rentToIncome > fe.burdenCutoff))
	v["income_multiple_x_credit"] = v["income_multiple"] * (credit / creditScaleMax)

	// normalized payment family. Denominators are the record's own counts
	// (a batch maximum degenerates to exactly this for one record), which
	// keeps the transform record-local and deterministic.
	lateNorm := b2f(late > 0)
	missedNorm := b2f(missed > 0)
	onTimeNorm := clip(onTime/(onTime+1), 0, 1)

	v["late_payments_normalized"] = lateNorm
	v["missed_payments_normalized"] = missedNorm
	v["on_time_normalized"] = onTimeNorm

	riskComposite := clip(lateNorm*0.25+missedNorm*0.35+(1-onTimeNorm)*0.20+
		clip(deterioration, 0, 1)*0.20, 0, 1) * 10
	v["payment_risk_composite"] = riskComposite
	v["payment_composite_squared"] = riskComposite * riskComposite
	v["payment_composite_log"] = math.Log1p(riskComposite)

	behavioral := (reliability*0.40 + consistency*0.30 + (1-delinquency)*0.30) * 10
	v["behavioral_payment_score"] = behavioral

	v["ultimate_payment_risk_index"] = clip(riskComposite*0.50+
		(10-behavioral)*0.30+clip(severity, 0, 10)*0.20, 0, 10)

	// market context
	v["property_age_normalized"] = propertyAge / 50
	v["local_unemployment_rate_float"] = unemployment
	v["inflation_rate_float"] = inflation
	v["market_economic_factor"] = (1 - unemployment/10) * (1 - inflation/10)

	v["credit_tier"] = creditTier(credit)

	v["income_stability"] = b2f(empVerified == 1 && income >= rent*fe.stabilityMul)
	v["verification_score"] = verification
	v["high_rent_burden"] = b2f(rentToIncome > fe.burdenCutoff)
	v["subprime_credit"] = b2f(credit < fe.subprime)

	v["tenant_stability_score"] = clip(history/10, 0, 1)*0.6 + clip(leaseTerm/24, 0, 1)*0.4

	v["property_desirability_score"] = furnished*0.3 +
		clip(parking/3, 0, 1)*0.3 +
		clip((20-propertyAge)/20, 0, 1)*0.4

	v["country_enc"] = enc.Encode("country", fe.cat(rec.Country, "country"))
	v["city_enc"] = enc.Encode("city", fe.cat(rec.City, "city"))
	v["property_type_enc"] = enc.Encode("property_type", fe.cat(rec.PropertyType, "property_type"))
	v["employment_type_enc"] = enc.Encode("employment_type", fe.cat(rec.EmploymentType, "employment_type"))
	v["currency_enc"] = enc.Encode("currency", fe.cat(rec.Currency, "currency"))

	return v
}

func (fe *FeatureEngineer) num(p *float64, name string) float64 {
	if p == nil || math.IsNaN(*p) {
		return fe.numDefaults[name]
	}
	return *p
}

func (fe *FeatureEngineer) cat(val, name string) string {
	if val == "" {
		return fe.catDefaults[name]
	}
	return val
}

// creditTier bins a credit score into 0 (best) through 3 (worst). Bins are
// right-closed: 580 falls in the worst tier, 670 in the subprime one.
func creditTier(score float64) float64 {
	switch {
	case score <= 580:
		return 3
	case score <= 670:
		return 2
	case score <= 740:
		return 1
	default:
		return 0
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonZero(v, repl float64) float64 {
	if v == 0 {
		return repl
	}
	return v
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
