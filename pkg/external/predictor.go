package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// maxResponseBytes bounds how much of a service response is read
const maxResponseBytes = 1 << 20

// PredictorClient submits assessments to the classification service
type PredictorClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewPredictorClient creates a classification service client
func NewPredictorClient(config domain.PredictorConfig, logger *logrus.Logger) *PredictorClient {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	return &PredictorClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    gobreaker.NewCircuitBreaker(BreakerSettings("predictor", config.MaxRequests, logger)),
		logger:     logger,
	}
}

// predictResponse is the classification service reply
type predictResponse struct {
	Prediction       string             `json:"prediction"`
	RiskLevel        string             `json:"risk_level"`
	Confidence       *float64           `json:"confidence"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	SavedToDatabase  *bool              `json:"saved_to_database"`
	Error            string             `json:"error"`
}

// Predict posts req to {base}/predict. Every failure is a *domain.SubmissionError.
func (c *PredictorClient) Predict(ctx context.Context, req *domain.PredictionRequest) (*domain.AssessmentResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.SubmissionError{Message: domain.DefaultSubmissionMessage, Err: err}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		if IsUnavailable(err) {
			c.logger.WithError(err).Warn("Classification service unavailable")
			return nil, &domain.SubmissionError{
				StatusCode: http.StatusServiceUnavailable,
				Message:    domain.DefaultSubmissionMessage,
				Err:        err,
			}
		}
		return nil, err
	}
	return result.(*domain.AssessmentResult), nil
}

func (c *PredictorClient) post(ctx context.Context, req *domain.PredictionRequest) (*domain.AssessmentResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &domain.SubmissionError{Message: domain.DefaultSubmissionMessage, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.SubmissionError{Message: domain.DefaultSubmissionMessage, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.SubmissionError{Message: domain.DefaultSubmissionMessage, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Message: domain.DefaultSubmissionMessage, Err: err}
	}

	var decoded predictResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decoded.Error != "" {
		msg := strings.TrimSpace(decoded.Error)
		if msg == "" {
			msg = domain.DefaultSubmissionMessage
		}
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"error":       msg,
		}).Warn("Classification service rejected assessment")
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Message: domain.DefaultSubmissionMessage, Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}
	if decoded.Prediction == "" {
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Message: domain.DefaultSubmissionMessage, Err: fmt.Errorf("response has no prediction")}
	}

	return &domain.AssessmentResult{
		Prediction:       decoded.Prediction,
		RiskLevel:        decoded.RiskLevel,
		Confidence:       decoded.Confidence,
		ConfidenceScores: decoded.ConfidenceScores,
		SavedToDatabase:  decoded.SavedToDatabase,
	}, nil
}

// State reports the breaker state
func (c *PredictorClient) State() gobreaker.State {
	return c.breaker.State()
}
