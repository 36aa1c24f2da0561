package api

import (
	"errors"
	"net/http"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/middleware"
	"github.com/gin-gonic/gin"
)

// statusFor maps a domain error onto an HTTP status and error code
func statusFor(err error) (int, string) {
	var (
		verrs  domain.ValidationErrors
		verr   *domain.ValidationError
		subErr *domain.SubmissionError
	)
	switch {
	case errors.As(err, &verrs), errors.As(err, &verr):
		return http.StatusUnprocessableEntity, domain.ErrCodeValidation
	case errors.Is(err, domain.ErrInvalidEEGData):
		return http.StatusBadRequest, domain.ErrCodeInvalidEEGData
	case errors.As(err, &subErr):
		return http.StatusBadGateway, domain.ErrCodeSubmission
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return http.StatusConflict, domain.ErrCodeSubmissionInFlight
	case errors.Is(err, domain.ErrStageMismatch):
		return http.StatusConflict, domain.ErrCodeStageConflict
	case errors.Is(err, domain.ErrNoResult), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrCodeNotFound
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternalServer
	}
}

// writeError renders err in the standard error envelope
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	requestID := c.GetString(middleware.CorrelationIDKey)

	message := err.Error()
	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		message = subErr.Message
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Unhandled request error")
		message = "Internal server error"
	}

	apiErr := domain.NewAPIError(code, message, "", requestID)
	var verrs domain.ValidationErrors
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verrs):
		apiErr.Message = "Validation failed"
		apiErr.Fields = verrs
	case errors.As(err, &verr):
		apiErr.Message = "Validation failed"
		apiErr.Fields = []*domain.ValidationError{verr}
	}
	var eegErr *domain.InvalidEEGDataError
	if errors.As(err, &eegErr) {
		apiErr.Details = eegErr.Reason
	}

	c.AbortWithStatusJSON(status, apiErr)
}

// badRequest reports a body that could not be decoded
func (s *Server) badRequest(c *gin.Context, err error) {
	apiErr := domain.NewAPIError(domain.ErrCodeValidation, "Malformed request body", err.Error(), c.GetString(middleware.CorrelationIDKey))
	c.AbortWithStatusJSON(http.StatusBadRequest, apiErr)
}
