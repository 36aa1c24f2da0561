package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/heatmap"
	"github.com/adhd-assessment-server/internal/ingestion"
	"github.com/adhd-assessment-server/internal/notification"
	"github.com/adhd-assessment-server/internal/report"
	"github.com/adhd-assessment-server/internal/session"
	"github.com/sirupsen/logrus"
)

// Notifier sends a result summary by email or composes a local fallback
type Notifier interface {
	Send(ctx context.Context, msg notification.Message) notification.Outcome
}

// ResultView is everything the results screen shows for a finalized session
type ResultView struct {
	SessionID       string                  `json:"session_id"`
	UserInfo        domain.UserInfo         `json:"user_info"`
	Result          domain.AssessmentResult `json:"result"`
	RiskLevel       domain.RiskLevel        `json:"risk_level"`
	SubScores       SubScores               `json:"sub_scores"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	Heatmap         *heatmap.Heatmap        `json:"heatmap,omitempty"`
	Regions         []heatmap.RegionAverage `json:"regions,omitempty"`
	CompletedAt     time.Time               `json:"completed_at"`
	EEG             domain.ChannelMap       `json:"-"`
}

// AssessmentService drives one session from EEG upload through reporting
type AssessmentService struct {
	state     *session.State
	predictor domain.Predictor
	parser    *ingestion.Parser
	scoring   *ScoringEngine
	pdf       *report.PDFRenderer
	html      *report.HTMLRenderer
	notifier  Notifier
	logger    *logrus.Logger
	now       func() time.Time

	inFlight atomic.Bool
}

// NewAssessmentService wires the pipeline around state
func NewAssessmentService(
	state *session.State,
	predictor domain.Predictor,
	parser *ingestion.Parser,
	notifier Notifier,
	logger *logrus.Logger,
) *AssessmentService {
	return &AssessmentService{
		state:     state,
		predictor: predictor,
		parser:    parser,
		scoring:   NewScoringEngine(),
		pdf:       report.NewPDFRenderer(),
		html:      report.NewHTMLRenderer(),
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// State exposes the session for stage navigation
func (s *AssessmentService) State() *session.State {
	return s.state
}

// Scoring exposes the scoring engine
func (s *AssessmentService) Scoring() *ScoringEngine {
	return s.scoring
}

// UploadEEG parses an uploaded sample and stores it in the session
func (s *AssessmentService) UploadEEG(filename string, r io.Reader) (domain.ChannelMap, error) {
	channels, err := s.parser.ParseReader(filename, r)
	if err != nil {
		s.logger.WithError(err).WithField("filename", filename).Warn("EEG upload rejected")
		return nil, err
	}
	if err := s.state.SetEEG(filename, channels); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"session_id": s.state.ID(),
		"filename":   filename,
	}).Info("EEG sample accepted")
	return channels, nil
}

// Submit sends the completed session to the classification service. Only one
// submission may run at a time; on failure the session is left untouched.
func (s *AssessmentService) Submit(ctx context.Context) (*ResultView, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrSubmissionInFlight
	}
	defer s.inFlight.Store(false)

	snap := s.state.Snapshot()
	if snap.Stage != session.StageEEGUpload {
		return nil, fmt.Errorf("%w: submission requires the EEG upload stage, session is at %s", domain.ErrStageMismatch, snap.StageName)
	}
	if snap.EEG == nil {
		return nil, fmt.Errorf("%w: no EEG sample uploaded", domain.ErrStageMismatch)
	}

	req := BuildPredictionRequest(snap)
	fields := logrus.Fields{"session_id": snap.ID, "patient_id": snap.UserInfo.PatientID}
	s.logger.WithFields(fields).Info("Submitting assessment")

	start := s.now()
	result, err := s.predictor.Predict(ctx, req)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Assessment submission failed")
		var subErr *domain.SubmissionError
		if !errors.As(err, &subErr) {
			err = &domain.SubmissionError{Message: domain.DefaultSubmissionMessage, Err: err}
		}
		return nil, err
	}

	if s.state.ID() != snap.ID {
		return nil, fmt.Errorf("%w: session was reset during submission", domain.ErrStageMismatch)
	}
	if err := s.state.Finalize(*result); err != nil {
		return nil, err
	}

	fields["prediction"] = result.Prediction
	fields["duration_ms"] = s.now().Sub(start).Milliseconds()
	s.logger.WithFields(fields).Info("Assessment classified")
	return s.Result()
}

// BuildPredictionRequest assembles the predictor payload; unanswered questions default to neutral
func BuildPredictionRequest(snap session.Snapshot) *domain.PredictionRequest {
	return &domain.PredictionRequest{
		EEG:            snap.EEG.Clone(),
		Questions:      snap.Answers.Ordered(),
		MedicalHistory: snap.MedicalHistory.ToWire(),
		UserInfo:       snap.UserInfo.ToWire(),
	}
}

// Result returns the scored view of a finalized session
func (s *AssessmentService) Result() (*ResultView, error) {
	snap := s.state.Snapshot()
	if snap.Result == nil {
		return nil, domain.ErrNoResult
	}
	return s.view(snap), nil
}

func (s *AssessmentService) view(snap session.Snapshot) *ResultView {
	res := *snap.Result
	eval := s.scoring.Evaluate(res.Prediction, snap.Answers, res.Confidence)
	v := &ResultView{
		SessionID:       snap.ID,
		UserInfo:        snap.UserInfo,
		Result:          res,
		RiskLevel:       ResolveRiskLevel(res, eval.RiskLevel),
		SubScores:       eval.SubScores,
		Recommendations: eval.Recommendations,
		CompletedAt:     snap.CompletedAt,
		EEG:             snap.EEG,
	}
	if len(snap.EEG) > 0 {
		v.Heatmap = heatmap.Build(snap.EEG)
		v.Regions = v.Heatmap.RegionAverages()
	}
	return v
}

// ResolveRiskLevel prefers the service's risk level when it names a known level
func ResolveRiskLevel(res domain.AssessmentResult, derived domain.RiskLevel) domain.RiskLevel {
	for _, lvl := range domain.RiskLevels {
		if string(lvl) == res.RiskLevel {
			return lvl
		}
	}
	return derived
}

// ReportInput builds the report layout input for the finalized session
func (s *AssessmentService) ReportInput() (report.Input, *ResultView, error) {
	v, err := s.Result()
	if err != nil {
		return report.Input{}, nil, err
	}
	generated := v.CompletedAt
	if generated.IsZero() {
		generated = s.now().UTC()
	}
	return report.Input{
		UserInfo:         v.UserInfo,
		Result:           v.Result,
		RiskLevel:        v.RiskLevel,
		Recommendations:  v.Recommendations,
		Channels:         v.EEG,
		ConfidenceScores: v.Result.ConfidenceScores,
		Heatmap:          v.Heatmap,
		GeneratedAt:      generated,
	}, v, nil
}

// BuildReportInput scores a result outside of a session, for offline report generation
func BuildReportInput(
	scoring *ScoringEngine,
	info domain.UserInfo,
	res domain.AssessmentResult,
	answers domain.QuestionnaireAnswers,
	eeg domain.ChannelMap,
	generated time.Time,
) report.Input {
	eval := scoring.Evaluate(res.Prediction, answers, res.Confidence)
	in := report.Input{
		UserInfo:         info,
		Result:           res,
		RiskLevel:        ResolveRiskLevel(res, eval.RiskLevel),
		Recommendations:  eval.Recommendations,
		Channels:         eeg,
		ConfidenceScores: res.ConfidenceScores,
		GeneratedAt:      generated,
	}
	if len(eeg) > 0 {
		in.Heatmap = heatmap.Build(eeg)
	}
	return in
}

// WritePDF renders the report and returns its download filename
func (s *AssessmentService) WritePDF(w io.Writer) (string, error) {
	in, v, err := s.ReportInput()
	if err != nil {
		return "", err
	}
	if err := s.pdf.Render(w, in); err != nil {
		return "", err
	}
	return report.Filename(v.UserInfo.PatientID, in.GeneratedAt), nil
}

// WriteHTML renders the browser preview of the report
func (s *AssessmentService) WriteHTML(w io.Writer) error {
	in, _, err := s.ReportInput()
	if err != nil {
		return err
	}
	return s.html.Render(w, in)
}

// HeatmapPNG renders the scalp map of the uploaded sample
func (s *AssessmentService) HeatmapPNG() ([]byte, error) {
	snap := s.state.Snapshot()
	if len(snap.EEG) == 0 {
		return nil, fmt.Errorf("%w: no EEG sample uploaded", domain.ErrNotFound)
	}
	return heatmap.PNG(heatmap.Build(snap.EEG))
}

// Notify emails the result summary to addr. Delivery problems never surface as
// errors; the outcome carries a mailto fallback instead.
func (s *AssessmentService) Notify(ctx context.Context, addr string) (notification.Outcome, error) {
	if !notification.ValidEmail(addr) {
		return notification.Outcome{}, domain.ValidationErrors{
			domain.NewValidationError("email", "Please enter a valid email address", addr),
		}
	}
	v, err := s.Result()
	if err != nil {
		return notification.Outcome{}, err
	}

	recs := make([]string, len(v.Recommendations))
	for i, r := range v.Recommendations {
		recs[i] = r.Text()
	}
	return s.notifier.Send(ctx, notification.Message{
		To:              addr,
		PatientID:       v.UserInfo.PatientID,
		Prediction:      v.Result.Prediction,
		RiskLevel:       v.RiskLevel,
		Confidence:      v.Result.Confidence,
		Recommendations: recs,
		Date:            v.CompletedAt,
	}), nil
}
