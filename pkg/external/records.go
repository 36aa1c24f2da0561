package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adhd-assessment-server/internal/cache"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// StatusError is a non-2xx reply from the record service
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("record service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("record service returned status %d: %s", e.StatusCode, e.Message)
}

// RecordClient reads assessment history from the record service
type RecordClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      cache.Cache
	logger     *logrus.Logger
}

// NewRecordClient creates a record service client. Successful responses are
// written to c and served from it when the service is unavailable.
func NewRecordClient(config domain.RecordsConfig, c cache.Cache, logger *logrus.Logger) *RecordClient {
	return &RecordClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(BreakerSettings("records", 0, logger)),
		cache:      c,
		logger:     logger,
	}
}

type listResponse struct {
	Assessments []wireRecord `json:"assessments"`
	Count       int          `json:"count"`
}

// ListAssessments fetches every stored assessment
func (c *RecordClient) ListAssessments(ctx context.Context) ([]domain.AssessmentRecord, error) {
	var records []domain.AssessmentRecord
	err := c.fetch(ctx, "assessments", "/assessments", &records, func(body []byte) (interface{}, error) {
		return decodeList(body)
	})
	return records, err
}

// PatientAssessments fetches one patient's assessments
func (c *RecordClient) PatientAssessments(ctx context.Context, patientID string) ([]domain.AssessmentRecord, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, domain.NewValidationError("patient_id", "Patient ID is required", patientID)
	}
	var records []domain.AssessmentRecord
	err := c.fetch(ctx, "patient:"+patientID, "/assessments/"+url.PathEscape(patientID), &records, func(body []byte) (interface{}, error) {
		return decodeList(body)
	})
	return records, err
}

// Stats fetches the precomputed summary
func (c *RecordClient) Stats(ctx context.Context) (*domain.AssessmentStats, error) {
	var stats domain.AssessmentStats
	err := c.fetch(ctx, "stats", "/assessments/stats", &stats, func(body []byte) (interface{}, error) {
		var s domain.AssessmentStats
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("failed to decode stats: %w", err)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// State reports the breaker state
func (c *RecordClient) State() gobreaker.State {
	return c.breaker.State()
}

// fetch GETs path through the breaker and stores the decoded value in dest.
// When the call fails a cached copy is used if one exists.
func (c *RecordClient) fetch(ctx context.Context, key, path string, dest interface{}, decode func([]byte) (interface{}, error)) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := c.get(ctx, path)
		if err != nil {
			return nil, err
		}
		return decode(body)
	})

	if err != nil {
		fields := logrus.Fields{"path": path, "breaker_open": IsUnavailable(err)}
		if c.cache != nil {
			if found, cacheErr := c.cache.Get(ctx, key, dest); cacheErr == nil && found {
				c.logger.WithFields(fields).WithError(err).Warn("Record service failed, serving cached response")
				return nil
			}
		}
		if IsUnavailable(err) {
			return fmt.Errorf("record service unavailable (circuit breaker open): %w", err)
		}
		return fmt.Errorf("record service query %s failed: %w", path, err)
	}

	// round trip through JSON so dest gets the same shape the cache returns
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode %s response: %w", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	if c.cache != nil {
		if cacheErr := c.cache.Set(ctx, key, result); cacheErr != nil {
			c.logger.WithError(cacheErr).WithField("key", key).Warn("Failed to cache record service response")
		}
	}
	return nil
}

func (c *RecordClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes*16))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return body, nil
}

// wireRecord tolerates the loose typing of the record service
type wireRecord struct {
	ID                 looseString `json:"id"`
	PatientID          looseString `json:"patient_id"`
	Age                looseString `json:"age"`
	Gender             looseString `json:"gender"`
	Education          looseString `json:"education"`
	Occupation         looseString `json:"occupation"`
	ReferringPhysician looseString `json:"referring_physician"`
	Prediction         looseString `json:"prediction"`
	RiskLevel          looseString `json:"risk_level"`
	AssessmentDate     looseString `json:"assessment_date"`
	CreatedAt          looseString `json:"created_at"`
}

func decodeList(body []byte) ([]domain.AssessmentRecord, error) {
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode assessments: %w", err)
	}
	records := make([]domain.AssessmentRecord, 0, len(resp.Assessments))
	for _, w := range resp.Assessments {
		records = append(records, domain.AssessmentRecord{
			ID:                 string(w.ID),
			PatientID:          string(w.PatientID),
			Age:                string(w.Age),
			Gender:             string(w.Gender),
			Education:          string(w.Education),
			Occupation:         string(w.Occupation),
			ReferringPhysician: string(w.ReferringPhysician),
			Prediction:         string(w.Prediction),
			RiskLevel:          string(w.RiskLevel),
			AssessmentDate:     ParseTimestamp(string(w.AssessmentDate)),
			CreatedAt:          ParseTimestamp(string(w.CreatedAt)),
		})
	}
	return records, nil
}

// looseString accepts JSON strings, numbers, booleans and null
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(data)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp shapes the record service emits.
// Values without a zone are taken as UTC; unparseable values give the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
