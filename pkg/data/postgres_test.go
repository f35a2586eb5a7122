package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresStore runs the full store surface against a real postgres to
// cover the rebound placeholders and dialect DDL. Needs a container
// runtime; excluded from -short runs.
func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("leaseth"),
		postgres.WithUsername("leaseth"),
		postgres.WithPassword("leaseth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, testcontainers.TerminateContainer(pg)) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	require.Equal(t, DriverPostgres, s.Driver())
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Init(ctx)) // idempotent

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	rec := applicant(690)
	res := result("REQ_20260115_100000_cafe0001", "MEDIUM", "MANUAL_REVIEW", 55, 0.55, false)
	res.DecisionTier = 2
	res.DecisionBand = "medium"
	require.NoError(t, s.SaveDecision(ctx, rec, res))

	row, err := s.GetScoreByRequestID(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "MANUAL_REVIEW", row.Recommendation)
	assert.Equal(t, "medium", row.DecisionBand)
	assert.InDelta(t, 0.55, row.CalibratedProbability, 1e-12)
	assert.True(t, res.ScoredAt.Equal(row.ScoredAt))

	stored, err := s.GetApplication(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, rec, *stored)

	recent, err := s.GetRecentScores(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	stats, err := s.GetScoreStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.InDelta(t, 55.0, stats.AvgRiskScore, 1e-9)
	assert.Equal(t, map[string]int64{"MEDIUM": 1}, stats.ByCategory)

	require.NoError(t, s.SaveFeedback(ctx, res.RequestID, false, "renewed lease"))
	report, err := s.FeedbackAccuracy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Total)
	assert.Zero(t, report.Defaults)

	require.NoError(t, s.InsertAudit(ctx, AuditActionScore, res.RequestID))
	entries, err := s.ListAudit(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ID)

	require.NoError(t, s.Reset(ctx))
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	for table, n := range counts {
		assert.Zero(t, n, "table %s not empty after reset", table)
	}
}
