package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Config assembles an Engine. Zero-value Thresholds and Policy select the
// shipped defaults; Registry paths are mandatory.
type Config struct {
	Registry   RegistryConfig
	Engineer   EngineerConfig
	Thresholds ThresholdSet
	Policy     PolicyConfig
}

// Engine is the scoring pipeline: route, predict, calibrate, decide.
// Construction loads every model artifact; a constructed Engine never does
// I/O on the scoring path and is safe for concurrent use.
type Engine struct {
	registry   *Registry
	engineer   *FeatureEngineer
	thresholds ThresholdSet
	policy     PolicyConfig
}

func New(cfg Config) (*Engine, error) {
	registry, err := LoadRegistry(cfg.Registry)
	if err != nil {
		return nil, err
	}

	thresholds := cfg.Thresholds
	if thresholds == (ThresholdSet{}) {
		thresholds = DefaultThresholds
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		registry:   registry,
		engineer:   NewFeatureEngineer(cfg.Engineer),
		thresholds: thresholds,
		policy:     cfg.Policy,
	}, nil
}

func (e *Engine) Registry() *Registry        { return e.registry }
func (e *Engine) Engineer() *FeatureEngineer { return e.engineer }
func (e *Engine) Thresholds() ThresholdSet   { return e.thresholds }

// Score runs an engineered vector through the pipeline. Missing expected
// features are substituted with zero and reported on the result rather
// than failing the request.
func (e *Engine) Score(vec FeatureVector, opts *ScoreOptions) (*Result, error) {
	start := time.Now()

	if len(vec) == 0 {
		return nil, validationErrorf("empty feature vector")
	}

	thresholds := e.thresholds
	if opts != nil && opts.Thresholds != nil {
		if err := opts.Thresholds.Validate(); err != nil {
			return nil, err
		}
		thresholds = *opts.Thresholds
	}

	variant := e.registry.Route(vec["previous_evictions"])
	handle := e.registry.Handle(variant)

	features, missing := project(vec, handle.Features)
	if missing > 0 {
		slog.Warn("scoring with missing features",
			"model", handle.Version, "missing", missing, "expected", len(handle.Features))
	}

	p := handle.Predict(features)
	q := handle.Calibrate(p)
	d := decide(q, vec, thresholds, e.policy)

	return &Result{
		RequestID:             NewRequestID(),
		RiskScore:             riskScore(q),
		RiskCategory:          d.category,
		Recommendation:        d.recommendation,
		DecisionTier:          d.tier,
		DecisionBand:          d.band,
		DefaultProbability:    p,
		CalibratedProbability: q,
		Confidence:            Confidence(q),
		Reasoning:             d.reasoning,
		ModelVersion:          handle.Version,
		ModelFingerprint:      handle.Fingerprint,
		FeatureCount:          len(handle.Features),
		Degraded:              missing > 0,
		MissingFeatures:       missing,
		InferenceTimeMS:       float64(time.Since(start).Microseconds()) / 1000,
		Thresholds:            thresholds,
		ScoredAt:              time.Now().UTC(),
	}, nil
}

// ScoreApplicant engineers a raw record in isolation and scores it.
func (e *Engine) ScoreApplicant(rec ApplicantRecord, opts *ScoreOptions) (*Result, error) {
	return e.Score(e.engineer.Transform(rec), opts)
}

// ScoreApplicantWith scores with a shared batch encoder.
func (e *Engine) ScoreApplicantWith(rec ApplicantRecord, enc *Encoder, opts *ScoreOptions) (*Result, error) {
	return e.Score(e.engineer.TransformWith(rec, enc), opts)
}

// ComputeThresholds recomputes cutoffs from market conditions against the
// engine's base set.
func (e *Engine) ComputeThresholds(in DynamicInput) (*DynamicResult, error) {
	return ComputeThresholds(e.thresholds, in)
}

func project(vec FeatureVector, names []string) ([]float64, int) {
	out := make([]float64, len(names))
	missing := 0
	for i, name := range names {
		val, ok := vec[name]
		if !ok {
			missing++
			continue
		}
		out[i] = val
	}
	return out, missing
}

// NewRequestID returns a sortable scoring request identifier,
// REQ_YYYYMMDD_HHMMSS_xxxxxxxx.
func NewRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms; keep the ID
		// usable anyway
		return fmt.Sprintf("REQ_%s_%08x", time.Now().UTC().Format("20060102_150405"), time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("REQ_%s_%s", time.Now().UTC().Format("20060102_150405"), hex.EncodeToString(b))
}
