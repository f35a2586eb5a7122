package engine

import (
	"encoding/json"
	"math"
	"time"
)

const artifactSchemaVersion = 1

// Classifier produces a raw default probability from an ordered feature
// slice. Implementations must be safe for concurrent use after load.
type Classifier interface {
	PredictProba(features []float64) float64
}

// treeNode is one node of a decision tree. Internal nodes route on
// features[Feature] < Threshold (left on true); leaves carry the margin
// contribution.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// modelArtifact is the on-disk model format: a boosted ensemble exported
// from the training pipeline, plus the calibration fitted for it.
type modelArtifact struct {
	SchemaVersion int             `json:"schema_version"`
	ModelVersion  string          `json:"model_version"`
	Algorithm     string          `json:"algorithm"`
	TrainedAt     time.Time       `json:"trained_at"`
	BaseScore     float64         `json:"base_score"`
	Trees         []tree          `json:"trees"`
	Calibration   calibrationSpec `json:"calibration"`
}

func parseArtifact(b []byte) (*modelArtifact, error) {
	var a modelArtifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, loadErrorf("parsing artifact: %v", err)
	}
	return &a, nil
}

// validate checks structural soundness against the bundle's feature count.
// Anything off here is a broken export and must stop startup.
func (a *modelArtifact) validate(numFeatures int) error {
	if a.SchemaVersion != artifactSchemaVersion {
		return loadErrorf("unsupported artifact schema %d", a.SchemaVersion)
	}
	if a.ModelVersion == "" {
		return loadErrorf("artifact missing model_version")
	}
	if a.Algorithm != "gbdt" {
		return loadErrorf("unsupported algorithm %q", a.Algorithm)
	}
	if len(a.Trees) == 0 {
		return loadErrorf("artifact %s has no trees", a.ModelVersion)
	}
	if !isFinite(a.BaseScore) {
		return loadErrorf("artifact %s base_score not finite", a.ModelVersion)
	}
	for ti, t := range a.Trees {
		if len(t.Nodes) == 0 {
			return loadErrorf("artifact %s tree %d empty", a.ModelVersion, ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				if !isFinite(n.Value) {
					return loadErrorf("artifact %s tree %d node %d leaf value not finite", a.ModelVersion, ti, ni)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= numFeatures {
				return loadErrorf("artifact %s tree %d node %d feature index %d outside [0,%d)",
					a.ModelVersion, ti, ni, n.Feature, numFeatures)
			}
			if n.Left < 0 || n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes) {
				return loadErrorf("artifact %s tree %d node %d child index out of range", a.ModelVersion, ti, ni)
			}
			if n.Left <= ni || n.Right <= ni {
				return loadErrorf("artifact %s tree %d node %d children must follow parent", a.ModelVersion, ti, ni)
			}
			if !isFinite(n.Threshold) {
				return loadErrorf("artifact %s tree %d node %d threshold not finite", a.ModelVersion, ti, ni)
			}
		}
	}
	return nil
}

// TreeEnsemble is the inference-only boosted-tree classifier.
type TreeEnsemble struct {
	trees []tree
	base  float64
}

func newTreeEnsemble(a *modelArtifact) *TreeEnsemble {
	return &TreeEnsemble{trees: a.Trees, base: a.BaseScore}
}

// PredictProba walks every tree, sums the leaf margins onto the base score,
// and maps the margin through the logistic link.
func (m *TreeEnsemble) PredictProba(features []float64) float64 {
	margin := m.base
	for _, t := range m.trees {
		i := 0
		for !t.Nodes[i].Leaf {
			n := t.Nodes[i]
			if features[n.Feature] < n.Threshold {
				i = n.Left
			} else {
				i = n.Right
			}
		}
		margin += t.Nodes[i].Value
	}
	return sigmoid(margin)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
