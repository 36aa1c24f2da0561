package external

import (
	"errors"
	"net/http"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings builds the breaker configuration shared by the service clients.
// maxRequests bounds the probes allowed while half-open.
func BreakerSettings(name string, maxRequests uint32, logger *logrus.Logger) gobreaker.Settings {
	if maxRequests == 0 {
		maxRequests = 5
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
}

// isClientError reports a rejection of the request itself; the service is healthy
func isClientError(err error) bool {
	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		return subErr.StatusCode >= http.StatusBadRequest && subErr.StatusCode < http.StatusInternalServerError
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusBadRequest && statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// IsUnavailable reports whether err came from an open or saturated breaker
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
