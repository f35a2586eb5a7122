package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	insertFeedbackSQL = `INSERT INTO feedback (request_id, actual_default, notes, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (request_id) DO UPDATE SET
			actual_default = excluded.actual_default,
			notes = excluded.notes
	`

	selectFeedbackSQL = `SELECT request_id, actual_default, notes, created_at
		FROM feedback WHERE request_id = ?`

	accuracySQL = `SELECT
			s.recommendation,
			COUNT(*),
			COALESCE(SUM(f.actual_default), 0)
		FROM feedback f
		JOIN score s ON f.request_id = s.request_id
		GROUP BY s.recommendation
		ORDER BY s.recommendation
	`
)

// FeedbackRow is one recorded tenancy outcome.
type FeedbackRow struct {
	RequestID     string    `json:"request_id"`
	ActualDefault bool      `json:"actual_default"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecommendationOutcome compares one recommendation cohort against its
// recorded outcomes.
type RecommendationOutcome struct {
	Recommendation string  `json:"recommendation"`
	Count          int64   `json:"count"`
	Defaults       int64   `json:"defaults"`
	DefaultRate    float64 `json:"default_rate"`
}

// AccuracyReport is the recommendation-by-recommendation outcome summary.
// A well calibrated engine shows a low default rate in the approve cohort
// and a high one in the reject cohort.
type AccuracyReport struct {
	Total    int64                    `json:"total"`
	Defaults int64                    `json:"defaults"`
	Outcomes []*RecommendationOutcome `json:"outcomes"`
}

// SaveFeedback records the actual tenancy outcome for a scored request.
// Saving twice updates the earlier entry. ErrNotFound when the request was
// never scored.
func (s *Store) SaveFeedback(ctx context.Context, requestID string, actualDefault bool, notes string) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	if requestID == "" {
		return errors.New("request id required")
	}

	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM score WHERE request_id = ?`), requestID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: score %s", ErrNotFound, requestID)
		}
		return fmt.Errorf("checking score %s: %w", requestID, err)
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(insertFeedbackSQL),
		requestID, b2i(actualDefault), notes, time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("inserting feedback %s: %w", requestID, err)
	}
	return nil
}

// GetFeedback returns the recorded outcome for a request.
func (s *Store) GetFeedback(ctx context.Context, requestID string) (*FeedbackRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}

	var (
		r       FeedbackRow
		actual  int
		created string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(selectFeedbackSQL), requestID).
		Scan(&r.RequestID, &actual, &r.Notes, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("selecting feedback %s: %w", requestID, err)
	}

	r.ActualDefault = actual != 0
	ts, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, fmt.Errorf("parsing feedback created_at %q: %w", created, err)
	}
	r.CreatedAt = ts
	return &r, nil
}

// FeedbackAccuracy summarizes recorded outcomes per recommendation cohort.
func (s *Store) FeedbackAccuracy(ctx context.Context) (*AccuracyReport, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := s.db.QueryContext(ctx, accuracySQL)
	if err != nil {
		return nil, fmt.Errorf("selecting feedback accuracy: %w", err)
	}
	defer rows.Close()

	report := &AccuracyReport{Outcomes: make([]*RecommendationOutcome, 0, 3)}
	for rows.Next() {
		var o RecommendationOutcome
		if err := rows.Scan(&o.Recommendation, &o.Count, &o.Defaults); err != nil {
			return nil, fmt.Errorf("scanning accuracy row: %w", err)
		}
		if o.Count > 0 {
			o.DefaultRate = float64(o.Defaults) / float64(o.Count)
		}
		report.Total += o.Count
		report.Defaults += o.Defaults
		report.Outcomes = append(report.Outcomes, &o)
	}
	return report, rows.Err()
}
