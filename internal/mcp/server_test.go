package mcp

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhd-assessment-server/internal/analytics"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/ingestion"
	"github.com/adhd-assessment-server/internal/service"
)

type fakeSource struct {
	records []domain.AssessmentRecord
	err     error
}

func (f *fakeSource) ListAssessments(ctx context.Context) ([]domain.AssessmentRecord, error) {
	return f.records, f.err
}

func (f *fakeSource) Stats(ctx context.Context) (*domain.AssessmentStats, error) {
	return &domain.AssessmentStats{TotalAssessments: len(f.records)}, f.err
}

func (f *fakeSource) PatientAssessments(ctx context.Context, id string) ([]domain.AssessmentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.AssessmentRecord
	for _, r := range f.records {
		if r.PatientID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestServer(source domain.RecordSource) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	var svc *analytics.Service
	if source != nil {
		svc = analytics.NewService(source, logger)
	}
	return NewServer(domain.MCPConfig{}, ingestion.NewParser(0), svc, logger)
}

func sampleJSON() string {
	parts := make([]string, len(domain.Channels))
	for i, ch := range domain.Channels {
		parts[i] = strconv.Quote(ch) + ":" + strconv.Itoa(10+i)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := newTestServer(nil)
	assert.Equal(t, []string{ToolScoreQuestionnaire, ToolValidateEEG, ToolEEGHeatmap, ToolAnalytics}, s.Tools())
}

func TestHandleScoreQuestionnaire(t *testing.T) {
	s := newTestServer(nil)
	answers := map[string]int{}
	for q := 1; q <= domain.QuestionCount; q++ {
		answers[strconv.Itoa(q)] = 5
	}
	conf := 92.0

	res, out, err := s.handleScoreQuestionnaire(context.Background(), nil, ScoreQuestionnaireParams{
		Prediction: domain.LabelADHD,
		Answers:    answers,
		Confidence: &conf,
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	eval, ok := out.(service.Evaluation)
	require.True(t, ok)
	assert.Equal(t, domain.RiskHigh, eval.RiskLevel)
	assert.Equal(t, 1.0, eval.SubScores.Inattention)
	assert.NotEmpty(t, eval.Recommendations)
	assert.Contains(t, textOf(t, res), "High risk")
}

func TestHandleScoreQuestionnaire_Invalid(t *testing.T) {
	s := newTestServer(nil)

	res, out, err := s.handleScoreQuestionnaire(context.Background(), nil, ScoreQuestionnaireParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Nil(t, out)

	res, _, err = s.handleScoreQuestionnaire(context.Background(), nil, ScoreQuestionnaireParams{
		Prediction: domain.LabelADHD,
		Answers:    map[string]int{"1": 9, "abc": 3},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "Answer must be between 1 and 5")
}

func TestHandleValidateEEG(t *testing.T) {
	s := newTestServer(nil)

	res, out, err := s.handleValidateEEG(context.Background(), nil, EEGParams{Filename: "s.json", Content: sampleJSON()})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	result := out.(ValidateEEGResult)
	assert.True(t, result.Valid)
	require.Len(t, result.Channels, len(domain.Channels))
	assert.Equal(t, "Fp1", result.Channels[0].Channel)

	res, out, err = s.handleValidateEEG(context.Background(), nil, EEGParams{Filename: "s.json", Content: `{"Fp1": "high"}`})
	require.NoError(t, err)
	assert.False(t, res.IsError, "an invalid sample is still a successful call")
	result = out.(ValidateEEGResult)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Invalid, "Fp1")
	assert.Contains(t, result.Missing, "O2")
}

func TestHandleEEGHeatmap(t *testing.T) {
	s := newTestServer(nil)

	res, out, err := s.handleEEGHeatmap(context.Background(), nil, EEGParams{Filename: "s.json", Content: sampleJSON()})
	require.NoError(t, err)
	require.False(t, res.IsError)
	img, ok := res.Content[0].(*mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.True(t, strings.HasPrefix(string(img.Data), "\x89PNG"))

	result := out.(HeatmapResult)
	assert.Equal(t, 10.0, result.Min)
	assert.Equal(t, 28.0, result.Max)
	assert.False(t, result.Degenerate)
	assert.NotEmpty(t, result.Regions)

	res, _, err = s.handleEEGHeatmap(context.Background(), nil, EEGParams{Filename: "s.txt", Content: "x"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleAnalytics(t *testing.T) {
	res, _, err := newTestServer(nil).handleAnalytics(context.Background(), nil, AnalyticsParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	source := &fakeSource{records: []domain.AssessmentRecord{
		{ID: "1", PatientID: "P-1", Prediction: "ADHD", RiskLevel: "high", AssessmentDate: time.Now().UTC()},
		{ID: "2", PatientID: "P-2", Prediction: "Healthy", RiskLevel: "low", AssessmentDate: time.Now().UTC()},
	}}
	s := newTestServer(source)

	res, out, err := s.handleAnalytics(context.Background(), nil, AnalyticsParams{})
	require.NoError(t, err)
	require.False(t, res.IsError)
	dash, ok := out.(analytics.Dashboard)
	require.True(t, ok)
	assert.Equal(t, 2, dash.Summary.Total)
	assert.Contains(t, textOf(t, res), `"total": 2`)

	res, out, err = s.handleAnalytics(context.Background(), nil, AnalyticsParams{PatientID: "P-1"})
	require.NoError(t, err)
	patient := out.(PatientAnalytics)
	assert.Len(t, patient.Assessments, 1)
	assert.Equal(t, 1, patient.Summary.Total)

	res, out, err = s.handleAnalytics(context.Background(), nil, AnalyticsParams{PatientID: "P-404"})
	require.NoError(t, err)
	assert.Empty(t, out.(PatientAnalytics).Assessments)
	assert.Contains(t, textOf(t, res), `"assessments": []`)
}
