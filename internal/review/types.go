// Package review stores clinician reviews of predicted labels.
// A review records whether the clinician agreed with the classification
// service and, when not, which label they would assign instead.
package review

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
)

// Review is a clinician's verdict on one completed assessment
type Review struct {
	ID             int64     `json:"id,omitempty"`
	SessionID      string    `json:"session_id"`
	PatientID      string    `json:"patient_id"`
	PredictedLabel string    `json:"predicted_label"`
	ClinicianLabel string    `json:"clinician_label"`
	Agreed         bool      `json:"agreed"`
	Reviewer       string    `json:"reviewer,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Normalize trims fields and derives Agreed from the two labels.
// An empty clinician label means the clinician accepted the prediction.
func (r *Review) Normalize() {
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.PredictedLabel = strings.TrimSpace(r.PredictedLabel)
	r.ClinicianLabel = strings.TrimSpace(r.ClinicianLabel)
	r.Reviewer = strings.TrimSpace(r.Reviewer)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.ClinicianLabel == "" {
		r.ClinicianLabel = r.PredictedLabel
	}
	r.Agreed = r.ClinicianLabel == r.PredictedLabel
}

// Validate checks a normalized review
func (r *Review) Validate() error {
	var errs domain.ValidationErrors
	if r.SessionID == "" {
		errs = append(errs, domain.NewValidationError("session_id", "Session ID is required", r.SessionID))
	}
	if len(r.PatientID) < domain.MinPatientIDLength {
		errs = append(errs, domain.NewValidationError("patient_id", "Patient ID must be at least 3 characters", r.PatientID))
	}
	if r.PredictedLabel == "" {
		errs = append(errs, domain.NewValidationError("predicted_label", "Predicted label is required", r.PredictedLabel))
	}
	if !r.Agreed && !knownLabel(r.ClinicianLabel) {
		errs = append(errs, domain.NewValidationError("clinician_label", "Unknown diagnostic label", r.ClinicianLabel))
	}
	return errs.OrNil()
}

func knownLabel(label string) bool {
	for _, l := range domain.KnownLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Stats summarizes the agreement rate between clinicians and the classifier
type Stats struct {
	Total         int64   `json:"total"`
	Agreed        int64   `json:"agreed"`
	AgreementRate float64 `json:"agreement_rate"`
}

// Store defines the review storage operations
type Store interface {
	// Save inserts a review or replaces the existing review for the same session
	Save(ctx context.Context, review *Review) error

	// Get returns the review for a session, or nil when none exists
	Get(ctx context.Context, sessionID string) (*Review, error)

	// List returns reviews newest first
	List(ctx context.Context, limit, offset int) ([]*Review, error)

	Count(ctx context.Context) (int64, error)

	Stats(ctx context.Context) (*Stats, error)

	Delete(ctx context.Context, id int64) error

	// ExportJSON writes every review as an Export document
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads an Export document, skipping sessions already reviewed
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// Export is the JSON export format
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Reviews    []*Review `json:"reviews"`
}

// ExportVersion is written into every export
const ExportVersion = "1.0"

// maxExportLimit is the maximum number of entries exported at once
const maxExportLimit = 1000000

func newStats(total, agreed int64) *Stats {
	s := &Stats{Total: total, Agreed: agreed}
	if total > 0 {
		s.AgreementRate = float64(agreed) / float64(total)
	}
	return s
}
