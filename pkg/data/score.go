package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leaseth/leaseth/pkg/engine"
)

const (
	defaultScoreLimit = 20
	maxScoreLimit     = 500

	insertScoreSQL = `INSERT INTO score (
			request_id, risk_score, risk_category, recommendation, decision_tier,
			decision_band, default_probability, calibrated_probability,
			confidence_score, reasoning, model_version, model_fingerprint,
			degraded, inference_time_ms, scored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectScoreSQL = `SELECT
			request_id, risk_score, risk_category, recommendation, decision_tier,
			decision_band, default_probability, calibrated_probability,
			confidence_score, reasoning, model_version, model_fingerprint,
			degraded, inference_time_ms, scored_at
		FROM score
	`
)

// ScoreRow is one stored scoring decision.
type ScoreRow struct {
	RequestID             string    `json:"request_id"`
	RiskScore             int       `json:"risk_score"`
	RiskCategory          string    `json:"risk_category"`
	Recommendation        string    `json:"recommendation"`
	DecisionTier          int       `json:"decision_tier"`
	DecisionBand          string    `json:"decision_band,omitempty"`
	DefaultProbability    float64   `json:"default_probability"`
	CalibratedProbability float64   `json:"calibrated_probability"`
	Confidence            float64   `json:"confidence_score"`
	Reasoning             string    `json:"reasoning,omitempty"`
	ModelVersion          string    `json:"model_version"`
	ModelFingerprint      string    `json:"model_fingerprint"`
	Degraded              bool      `json:"degraded,omitempty"`
	InferenceTimeMS       float64   `json:"inference_time_ms"`
	ScoredAt              time.Time `json:"scored_at"`
}

// ScoreStats aggregates the stored decisions.
type ScoreStats struct {
	Total            int64            `json:"total"`
	AvgRiskScore     float64          `json:"avg_risk_score"`
	AvgProbability   float64          `json:"avg_calibrated_probability"`
	Degraded         int64            `json:"degraded"`
	ByCategory       map[string]int64 `json:"by_category"`
	ByRecommendation map[string]int64 `json:"by_recommendation"`
}

func scoreArgs(res *engine.Result) []any {
	return []any{
		res.RequestID, res.RiskScore, string(res.RiskCategory), string(res.Recommendation),
		res.DecisionTier, string(res.DecisionBand), res.DefaultProbability,
		res.CalibratedProbability, res.Confidence, res.Reasoning, res.ModelVersion,
		res.ModelFingerprint, b2i(res.Degraded), res.InferenceTimeMS,
		res.ScoredAt.UTC().Format(timeFormat),
	}
}

// SaveScore stores one scoring result.
func (s *Store) SaveScore(ctx context.Context, res *engine.Result) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	if res == nil || res.RequestID == "" {
		return errors.New("result with request id required")
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(insertScoreSQL), scoreArgs(res)...); err != nil {
		return fmt.Errorf("inserting score %s: %w", res.RequestID, err)
	}
	return nil
}

func scanScore(row interface{ Scan(...any) error }) (*ScoreRow, error) {
	var (
		r        ScoreRow
		degraded int
		scoredAt string
	)
	if err := row.Scan(&r.RequestID, &r.RiskScore, &r.RiskCategory, &r.Recommendation,
		&r.DecisionTier, &r.DecisionBand, &r.DefaultProbability, &r.CalibratedProbability,
		&r.Confidence, &r.Reasoning, &r.ModelVersion, &r.ModelFingerprint,
		&degraded, &r.InferenceTimeMS, &scoredAt); err != nil {
		return nil, err
	}

	r.Degraded = degraded != 0
	ts, err := time.Parse(timeFormat, scoredAt)
	if err != nil {
		return nil, fmt.Errorf("parsing scored_at %q: %w", scoredAt, err)
	}
	r.ScoredAt = ts
	return &r, nil
}

// GetScoreByRequestID returns one stored decision, ErrNotFound when the ID
// is unknown.
func (s *Store) GetScoreByRequestID(ctx context.Context, requestID string) (*ScoreRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}

	row := s.db.QueryRowContext(ctx, s.rebind(selectScoreSQL+`WHERE request_id = ?`), requestID)
	r, err := scanScore(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("selecting score %s: %w", requestID, err)
	}
	return r, nil
}

// GetRecentScores returns the newest decisions, at most limit rows.
// A non-positive limit selects the default page size.
func (s *Store) GetRecentScores(ctx context.Context, limit int) ([]*ScoreRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = defaultScoreLimit
	}
	if limit > maxScoreLimit {
		limit = maxScoreLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectScoreSQL+`ORDER BY scored_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("selecting recent scores: %w", err)
	}
	defer rows.Close()

	list := make([]*ScoreRow, 0, limit)
	for rows.Next() {
		r, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning score row: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// GetScoreStats aggregates stored decisions by category and recommendation.
func (s *Store) GetScoreStats(ctx context.Context) (*ScoreStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}

	stats := &ScoreStats{
		ByCategory:       make(map[string]int64),
		ByRecommendation: make(map[string]int64),
	}

	row := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(AVG(risk_score), 0),
			COALESCE(AVG(calibrated_probability), 0),
			COALESCE(SUM(degraded), 0)
		FROM score`)
	if err := row.Scan(&stats.Total, &stats.AvgRiskScore, &stats.AvgProbability, &stats.Degraded); err != nil {
		return nil, fmt.Errorf("aggregating scores: %w", err)
	}

	for col, dst := range map[string]map[string]int64{
		"risk_category":  stats.ByCategory,
		"recommendation": stats.ByRecommendation,
	} {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM score GROUP BY %s", col, col))
		if err != nil {
			return nil, fmt.Errorf("grouping scores by %s: %w", col, err)
		}
		for rows.Next() {
			var key string
			var n int64
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning %s group: %w", col, err)
			}
			dst[key] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("reading %s groups: %w", col, err)
		}
		rows.Close()
	}

	return stats, nil
}
