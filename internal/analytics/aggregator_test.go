package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int, hour int) time.Time {
	return time.Date(2026, 2, d, hour, 0, 0, 0, time.UTC)
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil)
	assert.Equal(t, 0, s.Total)
	assert.Empty(t, s.PredictionCounts)
	assert.Empty(t, s.TimeSeries)
	require.Len(t, s.RiskCounts, 3)
	for i, lvl := range []domain.RiskLevel{domain.RiskHigh, domain.RiskModerate, domain.RiskLow} {
		assert.Equal(t, RiskCount{Level: lvl, Count: 0}, s.RiskCounts[i])
	}
}

func TestAggregate_Counts(t *testing.T) {
	records := []domain.AssessmentRecord{
		{Prediction: "ADHD", RiskLevel: "high", AssessmentDate: day(1, 9)},
		{Prediction: "Healthy", RiskLevel: "low", AssessmentDate: day(1, 23)},
		{Prediction: "ODD", RiskLevel: "moderate", AssessmentDate: day(3, 1)},
		{Prediction: "ADHD", RiskLevel: "severe", AssessmentDate: day(3, 2)},
		{Prediction: "", RiskLevel: ""},
	}
	s := Aggregate(records)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, []LabelCount{
		{Label: "ADHD", Count: 2},
		{Label: "Healthy", Count: 1},
		{Label: "ODD", Count: 1},
		{Label: UnknownLabel, Count: 1},
	}, s.PredictionCounts)
	assert.Equal(t, []RiskCount{
		{Level: domain.RiskHigh, Count: 1},
		{Level: domain.RiskModerate, Count: 1},
		{Level: domain.RiskLow, Count: 3},
	}, s.RiskCounts)

	assert.Equal(t, []DayPoint{
		{Date: "2026-02-01", Total: 2, ADHD: 1, NonADHD: 1},
		{Date: "2026-02-03", Total: 2, ADHD: 1, NonADHD: 1},
	}, s.TimeSeries)
}

func TestAggregate_SeriesUsesUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	records := []domain.AssessmentRecord{
		{Prediction: "ADHD", AssessmentDate: time.Date(2026, 2, 2, 2, 0, 0, 0, loc)},
	}
	s := Aggregate(records)
	require.Len(t, s.TimeSeries, 1)
	assert.Equal(t, "2026-02-01", s.TimeSeries[0].Date)
}

func TestAggregate_SeriesKeepsMostRecentDays(t *testing.T) {
	var records []domain.AssessmentRecord
	for d := 20; d >= 1; d-- {
		records = append(records, domain.AssessmentRecord{Prediction: "Healthy", AssessmentDate: day(d, 12)})
	}
	s := Aggregate(records)

	assert.Equal(t, 20, s.Total)
	require.Len(t, s.TimeSeries, SeriesDays)
	assert.Equal(t, "2026-02-07", s.TimeSeries[0].Date)
	assert.Equal(t, "2026-02-20", s.TimeSeries[SeriesDays-1].Date)
	for i := 1; i < len(s.TimeSeries); i++ {
		assert.Less(t, s.TimeSeries[i-1].Date, s.TimeSeries[i].Date)
	}
}

type fakeSource struct {
	records  []domain.AssessmentRecord
	stats    *domain.AssessmentStats
	listErr  error
	statsErr error
	patient  string
}

func (f *fakeSource) ListAssessments(ctx context.Context) ([]domain.AssessmentRecord, error) {
	return f.records, f.listErr
}

func (f *fakeSource) Stats(ctx context.Context) (*domain.AssessmentStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeSource) PatientAssessments(ctx context.Context, id string) ([]domain.AssessmentRecord, error) {
	f.patient = id
	return f.records, f.listErr
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDashboard_Success(t *testing.T) {
	var records []domain.AssessmentRecord
	for d := 1; d <= 12; d++ {
		records = append(records, domain.AssessmentRecord{ID: string(rune('a' + d)), Prediction: "ADHD", RiskLevel: "high", AssessmentDate: day(d, 8)})
	}
	src := &fakeSource{
		records: records,
		stats: &domain.AssessmentStats{
			TotalAssessments:     12,
			PredictionsBreakdown: map[string]int{"ADHD": 12},
			RiskLevelsBreakdown:  map[string]int{"high": 12},
		},
	}
	d := NewService(src, quietLogger()).Dashboard(context.Background())

	assert.Empty(t, d.Degraded)
	assert.Equal(t, 12, d.Summary.Total)
	assert.Equal(t, 12, d.Stats.TotalAssessments)
	require.Len(t, d.Recent, RecentLimit)
	assert.Equal(t, day(12, 8), d.Recent[0].AssessmentDate)
	assert.Equal(t, day(1, 8), records[0].AssessmentDate, "input order untouched")
}

func TestDashboard_DegradesEachSourceIndependently(t *testing.T) {
	src := &fakeSource{
		records:  []domain.AssessmentRecord{{Prediction: "ADHD", RiskLevel: "high"}},
		statsErr: errors.New("connection refused"),
	}
	d := NewService(src, quietLogger()).Dashboard(context.Background())
	assert.Equal(t, []string{"stats"}, d.Degraded)
	assert.Equal(t, 1, d.Summary.Total)
	assert.Equal(t, 0, d.Stats.TotalAssessments)
	assert.NotNil(t, d.Stats.PredictionsBreakdown)

	src = &fakeSource{
		listErr: errors.New("timeout"),
		stats:   &domain.AssessmentStats{TotalAssessments: 4},
	}
	d = NewService(src, quietLogger()).Dashboard(context.Background())
	assert.Equal(t, []string{"assessments"}, d.Degraded)
	assert.Equal(t, 0, d.Summary.Total)
	assert.Empty(t, d.Recent)
	assert.Equal(t, 4, d.Stats.TotalAssessments)
	assert.Len(t, d.Summary.RiskCounts, 3)
}

func TestDashboard_BothSourcesDown(t *testing.T) {
	src := &fakeSource{listErr: errors.New("down"), statsErr: errors.New("down")}
	d := NewService(src, quietLogger()).Dashboard(context.Background())
	assert.ElementsMatch(t, []string{"assessments", "stats"}, d.Degraded)
	assert.Equal(t, 0, d.Summary.Total)
}

func TestPatientHistory(t *testing.T) {
	src := &fakeSource{records: []domain.AssessmentRecord{
		{Prediction: "ADHD", AssessmentDate: day(1, 1)},
		{Prediction: "Healthy", AssessmentDate: day(5, 1)},
	}}
	svc := NewService(src, quietLogger())
	records, summary := svc.PatientHistory(context.Background(), "P-7")
	assert.Equal(t, "P-7", src.patient)
	require.Len(t, records, 2)
	assert.Equal(t, "Healthy", records[0].Prediction)
	assert.Equal(t, 2, summary.Total)

	src.listErr = errors.New("boom")
	records, summary = svc.PatientHistory(context.Background(), "P-7")
	assert.Empty(t, records)
	assert.Equal(t, 0, summary.Total)
}
