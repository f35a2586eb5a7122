package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/leaseth/leaseth/pkg/engine"
)

const keyPrefix = "leaseth:score:"

// DecisionCache serves previously computed decisions keyed by applicant
// payload. A miss is (nil, nil); implementations must be safe for
// concurrent use.
type DecisionCache interface {
	Get(ctx context.Context, key string) (*engine.Result, error)
	Set(ctx context.Context, key string, res *engine.Result) error
	Close() error
}

// Key derives the cache key for an applicant and optional per-request
// overrides. Any difference in the record or the threshold override
// changes the key, so a cached decision is only ever replayed for an
// identical request.
func Key(rec engine.ApplicantRecord, opts *engine.ScoreOptions) string {
	payload := struct {
		Record     engine.ApplicantRecord `json:"record"`
		Thresholds *engine.ThresholdSet   `json:"thresholds,omitempty"`
	}{Record: rec}
	if opts != nil {
		payload.Thresholds = opts.Thresholds
	}

	// plain floats and strings, cannot fail
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return keyPrefix + hex.EncodeToString(sum[:])
}
