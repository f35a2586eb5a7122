package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// ModelHandle is an immutable loaded model: classifier, ordered feature
// contract, fitted calibrator, and the artifact fingerprint for audit.
type ModelHandle struct {
	Version     string
	Variant     Variant
	Algorithm   string
	TrainedAt   time.Time
	LoadedAt    time.Time
	Fingerprint string
	Features    []string

	classifier Classifier
	calibrator Calibrator
}

func (h *ModelHandle) Predict(features []float64) float64 {
	return h.classifier.PredictProba(features)
}

func (h *ModelHandle) Calibrate(p float64) float64 {
	return h.calibrator.Calibrate(p)
}

func (h *ModelHandle) CalibrationMethod() string {
	return h.calibrator.Method()
}

// BundleRef points at one variant's artifact pair on disk.
type BundleRef struct {
	ArtifactPath string
	FeaturesPath string
}

// RegistryConfig names both bundles. The registry refuses to start without
// both variants loaded; there is no partial or lazy mode.
type RegistryConfig struct {
	EvictionAware BundleRef
	FinancialOnly BundleRef
}

// Registry holds the two loaded model handles. Read-only after load, safe
// for concurrent use.
type Registry struct {
	handles map[Variant]*ModelHandle
}

// LoadRegistry reads, verifies, and fingerprints both artifact bundles.
// Every failure wraps ErrModelLoad.
func LoadRegistry(cfg RegistryConfig) (*Registry, error) {
	r := &Registry{handles: make(map[Variant]*ModelHandle, 2)}

	for _, spec := range []struct {
		variant Variant
		ref     BundleRef
	}{
		{VariantEvictionAware, cfg.EvictionAware},
		{VariantFinancialOnly, cfg.FinancialOnly},
	} {
		h, err := loadBundle(spec.variant, spec.ref)
		if err != nil {
			return nil, err
		}
		r.handles[spec.variant] = h
		slog.Info("model loaded",
			"variant", spec.variant.String(),
			"version", h.Version,
			"features", len(h.Features),
			"calibration", h.CalibrationMethod(),
			"fingerprint", h.Fingerprint[:12],
		)
	}
	return r, nil
}

func loadBundle(variant Variant, ref BundleRef) (*ModelHandle, error) {
	if ref.ArtifactPath == "" || ref.FeaturesPath == "" {
		return nil, loadErrorf("%s bundle paths not configured", variant)
	}

	raw, err := os.ReadFile(ref.ArtifactPath)
	if err != nil {
		return nil, loadErrorf("reading %s artifact %s: %v", variant, ref.ArtifactPath, err)
	}

	sum := sha256.Sum256(raw)
	fingerprint := hex.EncodeToString(sum[:])

	artifact, err := parseArtifact(raw)
	if err != nil {
		return nil, err
	}

	features, err := loadFeatureList(ref.FeaturesPath)
	if err != nil {
		return nil, err
	}

	if err := artifact.validate(len(features)); err != nil {
		return nil, err
	}

	calibrator, err := newCalibrator(artifact.Calibration)
	if err != nil {
		return nil, err
	}

	return &ModelHandle{
		Version:     artifact.ModelVersion,
		Variant:     variant,
		Algorithm:   artifact.Algorithm,
		TrainedAt:   artifact.TrainedAt,
		LoadedAt:    time.Now().UTC(),
		Fingerprint: fingerprint,
		Features:    features,
		classifier:  newTreeEnsemble(artifact),
		calibrator:  calibrator,
	}, nil
}

func loadFeatureList(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, loadErrorf("reading feature list %s: %v", path, err)
	}

	var features []string
	if err := json.Unmarshal(b, &features); err != nil {
		return nil, loadErrorf("parsing feature list %s: %v", path, err)
	}
	if len(features) == 0 {
		return nil, loadErrorf("feature list %s is empty", path)
	}

	seen := make(map[string]struct{}, len(features))
	for _, f := range features {
		if f == "" {
			return nil, loadErrorf("feature list %s contains an empty name", path)
		}
		if _, dup := seen[f]; dup {
			return nil, loadErrorf("feature list %s contains duplicate %q", path, f)
		}
		seen[f] = struct{}{}
	}
	return features, nil
}

// Route picks the model variant for a record: any prior eviction selects
// the eviction-aware model, otherwise the financial-only one.
func (r *Registry) Route(previousEvictions float64) Variant {
	if previousEvictions > 0 {
		return VariantEvictionAware
	}
	return VariantFinancialOnly
}

// Handle returns the loaded handle for a variant. Load guarantees both
// variants exist, so a nil return means a programming error upstream.
func (r *Registry) Handle(v Variant) *ModelHandle {
	return r.handles[v]
}

// Handles returns both handles, financial-only first.
func (r *Registry) Handles() []*ModelHandle {
	return []*ModelHandle{
		r.handles[VariantFinancialOnly],
		r.handles[VariantEvictionAware],
	}
}
