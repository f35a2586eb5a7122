package cache

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaseth/leaseth/pkg/engine"
)

func fptr(v float64) *float64 {
	return &v
}

func testRecord(credit float64) engine.ApplicantRecord {
	return engine.ApplicantRecord{
		CreditScore:   fptr(credit),
		MonthlyIncome: fptr(5200),
		MonthlyRent:   fptr(1600),
		City:          "Austin",
	}
}

func testResult(id string) *engine.Result {
	return &engine.Result{
		RequestID:             id,
		RiskScore:             42,
		RiskCategory:          engine.RiskMedium,
		Recommendation:        engine.RecommendManualReview,
		DecisionTier:          2,
		DecisionBand:          engine.BandLowMedium,
		DefaultProbability:    0.44,
		CalibratedProbability: 0.42,
		Confidence:            0.16,
		Reasoning:             "Moderate risk (42.0%). Recommend manual review of payment history and references.",
		ModelVersion:          "V1_2025_11",
		ModelFingerprint:      strings.Repeat("ab", 32),
		FeatureCount:          83,
		InferenceTimeMS:       1.8,
		Thresholds:            engine.DefaultThresholds,
		ScoredAt:              time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
	}
}

func requireCachedResult(t *testing.T, want *engine.Result, got *engine.Result) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.RequestID, got.RequestID)
	assert.Equal(t, want.RiskScore, got.RiskScore)
	assert.Equal(t, want.RiskCategory, got.RiskCategory)
	assert.Equal(t, want.Recommendation, got.Recommendation)
	assert.Equal(t, want.DecisionBand, got.DecisionBand)
	assert.Equal(t, want.CalibratedProbability, got.CalibratedProbability)
	assert.Equal(t, want.Reasoning, got.Reasoning)
	assert.Equal(t, want.ModelFingerprint, got.ModelFingerprint)
	assert.Equal(t, want.Thresholds, got.Thresholds)
	assert.True(t, want.ScoredAt.Equal(got.ScoredAt))
}

func TestKeyDeterministic(t *testing.T) {
	rec := testRecord(700)

	k1 := Key(rec, nil)
	k2 := Key(rec, nil)

	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "leaseth:score:"))
	assert.Len(t, k1, len("leaseth:score:")+64)
}

func TestKeyDistinguishesPayloads(t *testing.T) {
	base := Key(testRecord(700), nil)

	assert.NotEqual(t, base, Key(testRecord(701), nil))

	other := testRecord(700)
	other.City = "Dallas"
	assert.NotEqual(t, base, Key(other, nil))

	custom := &engine.ScoreOptions{
		Thresholds: &engine.ThresholdSet{Approve: 0.30, Manual: 0.55, Reject: 0.70},
	}
	withOverride := Key(testRecord(700), custom)
	assert.NotEqual(t, base, withOverride)

	tighter := &engine.ScoreOptions{
		Thresholds: &engine.ThresholdSet{Approve: 0.25, Manual: 0.55, Reject: 0.70},
	}
	assert.NotEqual(t, withOverride, Key(testRecord(700), tighter))

	// empty override carries no thresholds, same key as no override
	assert.Equal(t, base, Key(testRecord(700), &engine.ScoreOptions{}))
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})

	key := Key(testRecord(700), nil)

	missed, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, missed)

	want := testResult("REQ_20260210_093000_0a1b2c3d")
	require.NoError(t, c.Set(ctx, key, want))
	assert.Equal(t, 1, c.Len())

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	requireCachedResult(t, want, got)

	// cached copy is isolated from the caller
	got.RiskScore = 99
	again, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 42, again.RiskScore)
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(15 * time.Millisecond)

	key := Key(testRecord(640), nil)
	require.NoError(t, c.Set(ctx, key, testResult("REQ_20260210_093001_0a1b2c3d")))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)

	time.Sleep(40 * time.Millisecond)

	expired, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, expired)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheConcurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := Key(testRecord(600+float64(n)), nil)
			for j := 0; j < 50; j++ {
				if err := c.Set(ctx, key, testResult("REQ_20260210_093002_0a1b2c3d")); err != nil {
					t.Error(err)
					return
				}
				got, err := c.Get(ctx, key)
				if err != nil || got == nil {
					t.Errorf("get after set: res=%v err=%v", got, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Len())
}

// TestRedisCache exercises the redis implementation against a live
// server. Set LEASETH_TEST_REDIS (e.g. localhost:6379) to enable it.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("LEASETH_TEST_REDIS")
	if addr == "" {
		t.Skip("LEASETH_TEST_REDIS not set")
	}

	ctx := context.Background()
	c, err := NewRedis(ctx, addr, 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})

	key := Key(testRecord(712), nil)

	missed, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, missed)

	want := testResult("REQ_20260210_093003_0a1b2c3d")
	require.NoError(t, c.Set(ctx, key, want))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	requireCachedResult(t, want, got)
}
