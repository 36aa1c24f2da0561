package review

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL review store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Save stores or replaces the review for r.SessionID.
func (s *PostgresStore) Save(ctx context.Context, r *Review) error {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO reviews (
			session_id, patient_id, predicted_label, clinician_label,
			agreed, reviewer, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			predicted_label = EXCLUDED.predicted_label,
			clinician_label = EXCLUDED.clinician_label,
			agreed = EXCLUDED.agreed,
			reviewer = EXCLUDED.reviewer,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		r.SessionID, r.PatientID, r.PredictedLabel, r.ClinicianLabel,
		r.Agreed, r.Reviewer, r.Notes, now, now,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}

	r.UpdatedAt = now
	return nil
}

// Get retrieves the review for a session.
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*Review, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM reviews WHERE session_id = $1 LIMIT 1", sessionID)

	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return r, nil
}

// List returns reviews newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Review, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM reviews ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var result []*Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the total number of reviews.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

// Stats returns the agreement summary.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var total, agreed int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE agreed) FROM reviews").Scan(&total, &agreed)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return newStats(total, agreed), nil
}

// Delete removes a review by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

// ExportJSON exports all reviews to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports reviews from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
