package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/ingestion"
	"github.com/adhd-assessment-server/internal/notification"
	"github.com/adhd-assessment-server/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	mu      sync.Mutex
	result  *domain.AssessmentResult
	err     error
	calls   int
	lastReq *domain.PredictionRequest
	started chan struct{}
	release chan struct{}
}

func (f *fakePredictor) Predict(ctx context.Context, req *domain.PredictionRequest) (*domain.AssessmentResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	r := f.result.Clone()
	return &r, nil
}

type fakeNotifier struct {
	sent    []notification.Message
	outcome notification.Outcome
}

func (f *fakeNotifier) Send(ctx context.Context, msg notification.Message) notification.Outcome {
	f.sent = append(f.sent, msg)
	return f.outcome
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func eegCSV() string {
	values := make([]string, len(domain.Channels))
	for i := range domain.Channels {
		values[i] = strconv.FormatFloat(float64(i)*1.5+2, 'f', 1, 64)
	}
	return strings.Join(domain.Channels, ",") + "\n" + strings.Join(values, ",") + "\n"
}

// newReadyService returns a service whose session sits at EEG upload with a sample loaded
func newReadyService(t *testing.T, predictor domain.Predictor, notifier Notifier) *AssessmentService {
	t.Helper()
	logger := testLogger()
	state := session.New(logger)
	require.NoError(t, state.SetUserInfo(domain.UserInfo{
		PatientID: "P-100", Age: 30, Gender: domain.GenderFemale, Education: domain.EducationMasters,
	}))
	_, err := state.Advance()
	require.NoError(t, err)
	require.NoError(t, state.SetMedicalHistory(domain.MedicalHistory{FamilyADHD: "yes", FamilyLearningDisorders: "no"}))
	_, err = state.Advance()
	require.NoError(t, err)
	answers := domain.QuestionnaireAnswers{}
	for q := 1; q <= domain.QuestionCount; q++ {
		answers[q] = 4
	}
	require.NoError(t, state.SetAnswers(answers))
	_, err = state.Advance()
	require.NoError(t, err)

	svc := NewAssessmentService(state, predictor, ingestion.NewParser(1<<20), notifier, logger)
	_, err = svc.UploadEEG("sample.csv", strings.NewReader(eegCSV()))
	require.NoError(t, err)
	return svc
}

func adhdResult() *domain.AssessmentResult {
	conf := 87.5
	return &domain.AssessmentResult{
		Prediction:       domain.LabelADHD,
		Confidence:       &conf,
		ConfidenceScores: map[string]float64{"ADHD": 0.875, "Healthy": 0.125},
	}
}

func TestAssessmentService_SubmitSuccess(t *testing.T) {
	predictor := &fakePredictor{result: adhdResult()}
	svc := newReadyService(t, predictor, &fakeNotifier{})

	view, err := svc.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelADHD, view.Result.Prediction)
	assert.Equal(t, domain.RiskHigh, view.RiskLevel)
	assert.NotEmpty(t, view.Recommendations)
	require.NotNil(t, view.Heatmap)
	assert.NotEmpty(t, view.Regions)
	assert.Equal(t, session.StageResults, svc.State().Stage())

	require.NotNil(t, predictor.lastReq)
	assert.Len(t, predictor.lastReq.Questions, domain.QuestionCount)
	assert.Len(t, predictor.lastReq.EEG, len(domain.Channels))
	assert.Equal(t, "P-100", predictor.lastReq.UserInfo.PatientID)

	again, err := svc.Result()
	require.NoError(t, err)
	assert.Equal(t, view.SessionID, again.SessionID)
}

func TestAssessmentService_SubmitFailureLeavesSessionUntouched(t *testing.T) {
	predictor := &fakePredictor{err: &domain.SubmissionError{StatusCode: 400, Message: "Missing EEG channels"}}
	svc := newReadyService(t, predictor, &fakeNotifier{})
	before := svc.State().Snapshot()

	_, err := svc.Submit(context.Background())
	var subErr *domain.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "Missing EEG channels", subErr.Message)

	after := svc.State().Snapshot()
	assert.Equal(t, before.Stage, after.Stage)
	assert.Equal(t, before.EEG, after.EEG)
	assert.Nil(t, after.Result)

	_, err = svc.Result()
	assert.ErrorIs(t, err, domain.ErrNoResult)
}

func TestAssessmentService_SubmitWrapsTransportErrors(t *testing.T) {
	svc := newReadyService(t, &fakePredictor{err: errors.New("dial tcp: connection refused")}, &fakeNotifier{})

	_, err := svc.Submit(context.Background())
	var subErr *domain.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, domain.DefaultSubmissionMessage, subErr.Message)
}

func TestAssessmentService_SubmitWrongStage(t *testing.T) {
	logger := testLogger()
	predictor := &fakePredictor{result: adhdResult()}
	svc := NewAssessmentService(session.New(logger), predictor, ingestion.NewParser(1<<20), &fakeNotifier{}, logger)

	_, err := svc.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrStageMismatch)
	assert.Zero(t, predictor.calls)
}

func TestAssessmentService_SubmitInFlight(t *testing.T) {
	predictor := &fakePredictor{
		result:  adhdResult(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newReadyService(t, predictor, &fakeNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background())
		done <- err
	}()
	<-predictor.started

	_, err := svc.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)

	close(predictor.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, predictor.calls)
}

func TestAssessmentService_ResetDuringSubmission(t *testing.T) {
	predictor := &fakePredictor{
		result:  adhdResult(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newReadyService(t, predictor, &fakeNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background())
		done <- err
	}()
	<-predictor.started
	svc.State().Reset()
	close(predictor.release)

	assert.ErrorIs(t, <-done, domain.ErrStageMismatch)
	assert.Equal(t, session.StageIntake, svc.State().Stage())
}

func TestAssessmentService_UploadRejectsInvalidSample(t *testing.T) {
	svc := newReadyService(t, &fakePredictor{result: adhdResult()}, &fakeNotifier{})
	before := svc.State().Snapshot().EEG

	_, err := svc.UploadEEG("sample.csv", strings.NewReader("Fp1,Fp2\nabc,1.0\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidEEGData)
	assert.Equal(t, before, svc.State().Snapshot().EEG)
}

func TestBuildPredictionRequest_DefaultsUnanswered(t *testing.T) {
	snap := session.Snapshot{
		Answers: domain.QuestionnaireAnswers{1: 5, 30: 1},
		EEG:     domain.ChannelMap{"Fp1": 1},
	}
	req := BuildPredictionRequest(snap)
	require.Len(t, req.Questions, domain.QuestionCount)
	assert.Equal(t, 5, req.Questions[0])
	assert.Equal(t, domain.NeutralAnswer, req.Questions[1])
	assert.Equal(t, 1, req.Questions[29])
}

func TestResolveRiskLevel(t *testing.T) {
	assert.Equal(t, domain.RiskModerate, ResolveRiskLevel(domain.AssessmentResult{RiskLevel: "moderate"}, domain.RiskHigh))
	assert.Equal(t, domain.RiskHigh, ResolveRiskLevel(domain.AssessmentResult{RiskLevel: "severe"}, domain.RiskHigh))
	assert.Equal(t, domain.RiskLow, ResolveRiskLevel(domain.AssessmentResult{}, domain.RiskLow))
}

func TestAssessmentService_Reports(t *testing.T) {
	svc := newReadyService(t, &fakePredictor{result: adhdResult()}, &fakeNotifier{})

	var buf bytes.Buffer
	_, err := svc.WritePDF(&buf)
	assert.ErrorIs(t, err, domain.ErrNoResult)

	_, err = svc.Submit(context.Background())
	require.NoError(t, err)

	name, err := svc.WritePDF(&buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "ADHD_Report_P-100_"))
	assert.True(t, strings.HasSuffix(name, ".pdf"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))

	buf.Reset()
	require.NoError(t, svc.WriteHTML(&buf))
	assert.Contains(t, buf.String(), "P-100")
}

func TestAssessmentService_HeatmapPNG(t *testing.T) {
	logger := testLogger()
	empty := NewAssessmentService(session.New(logger), &fakePredictor{}, ingestion.NewParser(1<<20), &fakeNotifier{}, logger)
	_, err := empty.HeatmapPNG()
	assert.ErrorIs(t, err, domain.ErrNotFound)

	svc := newReadyService(t, &fakePredictor{result: adhdResult()}, &fakeNotifier{})
	png, err := svc.HeatmapPNG()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestAssessmentService_Notify(t *testing.T) {
	notifier := &fakeNotifier{outcome: notification.Outcome{
		Kind:      notification.FellBackToLocalCompose,
		MailtoURL: "mailto:doc@example.com",
	}}
	svc := newReadyService(t, &fakePredictor{result: adhdResult()}, notifier)

	_, err := svc.Notify(context.Background(), "not-an-address")
	var verrs domain.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"email"}, verrs.Fields())

	_, err = svc.Notify(context.Background(), "doc@example.com")
	assert.ErrorIs(t, err, domain.ErrNoResult)
	assert.Empty(t, notifier.sent)

	_, err = svc.Submit(context.Background())
	require.NoError(t, err)

	outcome, err := svc.Notify(context.Background(), "doc@example.com")
	require.NoError(t, err)
	assert.Equal(t, notification.FellBackToLocalCompose, outcome.Kind)
	require.Len(t, notifier.sent, 1)
	msg := notifier.sent[0]
	assert.Equal(t, "doc@example.com", msg.To)
	assert.Equal(t, "P-100", msg.PatientID)
	assert.Equal(t, domain.RiskHigh, msg.RiskLevel)
	assert.NotEmpty(t, msg.Recommendations)
}
