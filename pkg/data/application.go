package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leaseth/leaseth/pkg/engine"
)

const (
	insertApplicationSQL = `INSERT INTO application (request_id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING
	`

	selectApplicationSQL = `SELECT payload FROM application WHERE request_id = ?`
)

// SaveApplication stores the raw applicant payload under its request ID.
func (s *Store) SaveApplication(ctx context.Context, requestID string, rec engine.ApplicantRecord) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	if requestID == "" {
		return errors.New("request id required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding applicant payload: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(insertApplicationSQL),
		requestID, string(payload), time.Now().UTC().Format(timeFormat)); err != nil {
		return fmt.Errorf("inserting application %s: %w", requestID, err)
	}
	return nil
}

// GetApplication returns the stored raw payload for a request.
func (s *Store) GetApplication(ctx context.Context, requestID string) (*engine.ApplicantRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpen
	}

	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(selectApplicationSQL), requestID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("selecting application %s: %w", requestID, err)
	}

	var rec engine.ApplicantRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decoding applicant payload %s: %w", requestID, err)
	}
	return &rec, nil
}

// SaveDecision stores the applicant and its scoring result in one
// transaction, keyed by the result's request ID.
func (s *Store) SaveDecision(ctx context.Context, rec engine.ApplicantRecord, res *engine.Result) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	if res == nil || res.RequestID == "" {
		return errors.New("result with request id required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding applicant payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning decision transaction: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	if _, err := tx.ExecContext(ctx, s.rebind(insertApplicationSQL), res.RequestID, string(payload), now); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back decision: %v: %w", rbErr, err)
		}
		return fmt.Errorf("inserting application %s: %w", res.RequestID, err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(insertScoreSQL), scoreArgs(res)...); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back decision: %v: %w", rbErr, err)
		}
		return fmt.Errorf("inserting score %s: %w", res.RequestID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing decision %s: %w", res.RequestID, err)
	}
	return nil
}
