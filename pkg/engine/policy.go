package engine

import (
	"fmt"
	"math"
)

// PolicyConfig holds the evidence cutoffs for auto-reject. Zero values
// select the shipped behavior.
type PolicyConfig struct {
	// PoorCreditCutoff is the credit score below which history corroborates
	// a reject.
	PoorCreditCutoff float64
	// SecondaryRejectCutoff is the probability at which a single prior
	// eviction corroborates a reject.
	SecondaryRejectCutoff float64
	// ZeroEvictionRejectCutoff is the probability at which poor credit
	// alone corroborates a reject for applicants with no evictions.
	ZeroEvictionRejectCutoff float64
}

const (
	poorCreditCutoffDefault         = 600.0
	secondaryRejectCutoffDefault    = 0.85
	zeroEvictionRejectCutoffDefault = 0.90
)

func (pc PolicyConfig) withDefaults() PolicyConfig {
	if pc.PoorCreditCutoff == 0 {
		pc.PoorCreditCutoff = poorCreditCutoffDefault
	}
	if pc.SecondaryRejectCutoff == 0 {
		pc.SecondaryRejectCutoff = secondaryRejectCutoffDefault
	}
	if pc.ZeroEvictionRejectCutoff == 0 {
		pc.ZeroEvictionRejectCutoff = zeroEvictionRejectCutoffDefault
	}
	return pc
}

type decision struct {
	tier           int
	band           Band
	category       RiskCategory
	recommendation Recommendation
	reasoning      string
}

// decide tiers a calibrated probability against the cutoffs. A probability
// in the reject tier only produces REJECT when the record corroborates it:
// repeat evictions with poor credit, one eviction with a critically high
// probability, or an extreme probability plus poor credit for a clean
// eviction history. Anything else at that level goes to manual review.
func decide(q float64, vec FeatureVector, t ThresholdSet, pc PolicyConfig) decision {
	pc = pc.withDefaults()
	pct := q * 100

	switch {
	case q < t.Approve:
		return decision{
			tier:           1,
			category:       RiskLow,
			recommendation: RecommendAutoApprove,
			reasoning:      fmt.Sprintf("Low default risk (%.1f%%). Strong applicant profile.", pct),
		}

	case q < t.Reject:
		return tierTwo(q, pct, t)

	default:
		evictions := vec["previous_evictions"]
		credit := vec["credit_score"]

		switch {
		case evictions >= 2 && credit < pc.PoorCreditCutoff:
			return decision{
				tier:           3,
				category:       RiskHigh,
				recommendation: RecommendReject,
				reasoning:      fmt.Sprintf("High default risk (%.1f%%). Multiple prior evictions with poor credit.", pct),
			}
		case evictions >= 1 && q >= pc.SecondaryRejectCutoff:
			return decision{
				tier:           3,
				category:       RiskHigh,
				recommendation: RecommendReject,
				reasoning:      fmt.Sprintf("High default risk (%.1f%%). Prior eviction with critically elevated probability.", pct),
			}
		case evictions == 0 && q >= pc.ZeroEvictionRejectCutoff && credit < pc.PoorCreditCutoff:
			return decision{
				tier:           3,
				category:       RiskHigh,
				recommendation: RecommendReject,
				reasoning:      fmt.Sprintf("High default risk (%.1f%%). Critically elevated probability with poor credit.", pct),
			}
		default:
			// probability alone never rejects
			return decision{
				tier:           2,
				band:           BandMediumHigh,
				category:       RiskMedium,
				recommendation: RecommendManualReview,
				reasoning:      fmt.Sprintf("Elevated risk (%.1f%%) without corroborating evidence. Escalated to manual review.", pct),
			}
		}
	}
}

func tierTwo(q, pct float64, t ThresholdSet) decision {
	d := decision{
		tier:           2,
		category:       RiskMedium,
		recommendation: RecommendManualReview,
	}

	mid := (t.Approve + t.Manual) / 2
	switch {
	case q < mid:
		d.band = BandLowMedium
		d.reasoning = fmt.Sprintf("Moderate risk (%.1f%%). Recommend income verification and co-signer consideration.", pct)
	case q < t.Manual:
		d.band = BandMedium
		d.reasoning = fmt.Sprintf("Moderate risk (%.1f%%). Recommend manual review of payment history and references.", pct)
	default:
		d.band = BandMediumHigh
		d.reasoning = fmt.Sprintf("Elevated risk (%.1f%%). Recommend increased deposit or guarantor.", pct)
	}
	return d
}

// Confidence measures distance from the decision boundary: 0 at q=0.5,
// 1 at either extreme.
func Confidence(q float64) float64 {
	return clip(2*math.Abs(q-0.5), 0, 1)
}

// riskScore maps a probability to the 0-100 integer scale.
func riskScore(q float64) int {
	return int(math.Round(clip(q, 0, 1) * 100))
}
