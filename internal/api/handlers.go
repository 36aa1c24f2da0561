package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/review"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Review listing page bounds
const (
	defaultReviewLimit = 20
	maxReviewLimit     = 100
)

func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Assessment.State().Snapshot())
}

func (s *Server) handleSetUserInfo(c *gin.Context) {
	var info domain.UserInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.services.Assessment.State().SetUserInfo(info); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetSession(c)
}

func (s *Server) handleSetMedicalHistory(c *gin.Context) {
	var history domain.MedicalHistory
	if err := c.ShouldBindJSON(&history); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.services.Assessment.State().SetMedicalHistory(history); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetSession(c)
}

// handleSetAnswers accepts a question-number to value object, e.g. {"1": 4}
func (s *Server) handleSetAnswers(c *gin.Context) {
	var answers domain.QuestionnaireAnswers
	if err := c.ShouldBindJSON(&answers); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.services.Assessment.State().SetAnswers(answers); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetSession(c)
}

func (s *Server) handleAdvance(c *gin.Context) {
	if _, err := s.services.Assessment.State().Advance(); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetSession(c)
}

func (s *Server) handleBack(c *gin.Context) {
	if _, err := s.services.Assessment.State().Back(); err != nil {
		s.writeError(c, err)
		return
	}
	s.handleGetSession(c)
}

func (s *Server) handleReset(c *gin.Context) {
	s.services.Assessment.State().Reset()
	s.handleGetSession(c)
}

// handleUploadEEG reads the multipart "file" field
func (s *Server) handleUploadEEG(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, fmt.Errorf("multipart field \"file\" is required: %w", err))
		return
	}
	file, err := header.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer file.Close()

	channels, err := s.services.Assessment.UploadEEG(header.Filename, file)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filename": header.Filename,
		"channels": channels.Ordered(),
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	view, err := s.services.Assessment.Submit(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleResult(c *gin.Context) {
	view, err := s.services.Assessment.Result()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleReportPDF(c *gin.Context) {
	var buf bytes.Buffer
	filename, err := s.services.Assessment.WritePDF(&buf)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func (s *Server) handleReportHTML(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.services.Assessment.WriteHTML(&buf); err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleHeatmap(c *gin.Context) {
	png, err := s.services.Assessment.HeatmapPNG()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

type notifyRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleNotify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	outcome, err := s.services.Assessment.Notify(c.Request.Context(), req.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Analytics.Dashboard(c.Request.Context()))
}

func (s *Server) handlePatientHistory(c *gin.Context) {
	records, summary := s.services.Analytics.PatientHistory(c.Request.Context(), c.Param("id"))
	if records == nil {
		records = []domain.AssessmentRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"patient_id":  c.Param("id"),
		"assessments": records,
		"summary":     summary,
	})
}

// handleCreateReview saves a clinician review. Blank identity fields are
// taken from the current session's result.
func (s *Server) handleCreateReview(c *gin.Context) {
	var r review.Review
	if err := c.ShouldBindJSON(&r); err != nil {
		s.badRequest(c, err)
		return
	}
	if r.SessionID == "" || r.PatientID == "" || r.PredictedLabel == "" {
		if view, err := s.services.Assessment.Result(); err == nil {
			if r.SessionID == "" {
				r.SessionID = view.SessionID
			}
			if r.PatientID == "" {
				r.PatientID = view.UserInfo.PatientID
			}
			if r.PredictedLabel == "" {
				r.PredictedLabel = view.Result.Prediction
			}
		}
	}

	if err := s.services.Reviews.Save(c.Request.Context(), &r); err != nil {
		s.writeError(c, err)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"session_id": r.SessionID,
		"agreed":     r.Agreed,
	}).Info("Clinician review saved")
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleListReviews(c *gin.Context) {
	limit := queryInt(c, "limit", defaultReviewLimit)
	if limit <= 0 || limit > maxReviewLimit {
		limit = defaultReviewLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	reviews, err := s.services.Reviews.List(ctx, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	stats, err := s.services.Reviews.Stats(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if reviews == nil {
		reviews = []*review.Review{}
	}
	c.JSON(http.StatusOK, gin.H{
		"reviews": reviews,
		"limit":   limit,
		"offset":  offset,
		"stats":   stats,
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
