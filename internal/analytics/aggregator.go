// Package analytics summarizes assessment history for the dashboard.
package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// SeriesDays is the number of most recent distinct days kept in the time series
const SeriesDays = 14

// UnknownLabel is used for records with no prediction
const UnknownLabel = "Unknown"

// LabelCount is a prediction tally
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// RiskCount is a risk level tally
type RiskCount struct {
	Level domain.RiskLevel `json:"level"`
	Count int              `json:"count"`
}

// DayPoint is one day of the time series
type DayPoint struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	ADHD    int    `json:"adhd"`
	NonADHD int    `json:"non_adhd"`
}

// Summary is the aggregate view of a record list
type Summary struct {
	Total            int          `json:"total"`
	PredictionCounts []LabelCount `json:"prediction_counts"`
	RiskCounts       []RiskCount  `json:"risk_counts"`
	TimeSeries       []DayPoint   `json:"time_series"`
}

// Aggregate tallies predictions, risk levels and a per-day series
func Aggregate(records []domain.AssessmentRecord) Summary {
	s := Summary{Total: len(records)}

	labels := map[string]int{}
	risks := map[domain.RiskLevel]int{}
	days := map[string]*DayPoint{}

	for _, r := range records {
		label := r.Prediction
		if label == "" {
			label = UnknownLabel
		}
		labels[label]++
		risks[domain.ParseRiskLevel(r.RiskLevel)]++

		if r.AssessmentDate.IsZero() {
			continue
		}
		key := r.AssessmentDate.UTC().Format("2006-01-02")
		p, ok := days[key]
		if !ok {
			p = &DayPoint{Date: key}
			days[key] = p
		}
		p.Total++
		if r.Prediction == domain.LabelADHD {
			p.ADHD++
		} else {
			p.NonADHD++
		}
	}

	s.PredictionCounts = make([]LabelCount, 0, len(labels))
	for l, c := range labels {
		s.PredictionCounts = append(s.PredictionCounts, LabelCount{Label: l, Count: c})
	}
	sort.Slice(s.PredictionCounts, func(i, j int) bool {
		return s.PredictionCounts[i].Label < s.PredictionCounts[j].Label
	})

	s.RiskCounts = make([]RiskCount, 0, len(domain.RiskLevels))
	for _, lvl := range domain.RiskLevels {
		s.RiskCounts = append(s.RiskCounts, RiskCount{Level: lvl, Count: risks[lvl]})
	}

	s.TimeSeries = make([]DayPoint, 0, len(days))
	for _, p := range days {
		s.TimeSeries = append(s.TimeSeries, *p)
	}
	sort.Slice(s.TimeSeries, func(i, j int) bool { return s.TimeSeries[i].Date < s.TimeSeries[j].Date })
	if len(s.TimeSeries) > SeriesDays {
		s.TimeSeries = s.TimeSeries[len(s.TimeSeries)-SeriesDays:]
	}
	return s
}

// Dashboard is the analytics view returned to the operator
type Dashboard struct {
	Summary   Summary                   `json:"summary"`
	Stats     domain.AssessmentStats    `json:"stats"`
	Recent    []domain.AssessmentRecord `json:"recent"`
	Degraded  []string                  `json:"degraded,omitempty"`
	FetchedAt time.Time                 `json:"fetched_at"`
}

// RecentLimit caps the recent records list
const RecentLimit = 10

// Service loads history from the record service
type Service struct {
	source domain.RecordSource
	logger *logrus.Logger
}

// NewService creates an analytics service
func NewService(source domain.RecordSource, logger *logrus.Logger) *Service {
	return &Service{source: source, logger: logger}
}

// Dashboard fetches the record list and stats concurrently. A failed source is
// logged and replaced by empty data; no error is returned.
func (s *Service) Dashboard(ctx context.Context) Dashboard {
	var (
		wg       sync.WaitGroup
		records  []domain.AssessmentRecord
		stats    *domain.AssessmentStats
		listErr  error
		statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		records, listErr = s.source.ListAssessments(ctx)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = s.source.Stats(ctx)
	}()
	wg.Wait()

	d := Dashboard{FetchedAt: time.Now().UTC()}
	if listErr != nil {
		s.degrade(&d, &domain.AnalyticsFetchError{Source: "assessments", Err: listErr})
		records = nil
	}
	if statsErr != nil || stats == nil {
		if statsErr != nil {
			s.degrade(&d, &domain.AnalyticsFetchError{Source: "stats", Err: statsErr})
		}
		stats = &domain.AssessmentStats{}
	}

	d.Summary = Aggregate(records)
	d.Stats = *stats
	if d.Stats.PredictionsBreakdown == nil {
		d.Stats.PredictionsBreakdown = map[string]int{}
	}
	if d.Stats.RiskLevelsBreakdown == nil {
		d.Stats.RiskLevelsBreakdown = map[string]int{}
	}
	d.Recent = recent(records, RecentLimit)
	return d
}

// PatientHistory returns one patient's records newest first; failures degrade to an empty list
func (s *Service) PatientHistory(ctx context.Context, patientID string) ([]domain.AssessmentRecord, Summary) {
	records, err := s.source.PatientAssessments(ctx, patientID)
	if err != nil {
		s.logger.WithError(&domain.AnalyticsFetchError{Source: "patient_assessments", Err: err}).
			WithField("patient_id", patientID).Warn("Patient history unavailable")
		records = nil
	}
	return recent(records, len(records)), Aggregate(records)
}

func (s *Service) degrade(d *Dashboard, err *domain.AnalyticsFetchError) {
	d.Degraded = append(d.Degraded, err.Source)
	s.logger.WithError(err).WithField("source", err.Source).Warn("Analytics source unavailable, using empty data")
}

// recent returns up to n records newest first without mutating the input
func recent(records []domain.AssessmentRecord, n int) []domain.AssessmentRecord {
	out := append([]domain.AssessmentRecord{}, records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AssessmentDate.After(out[j].AssessmentDate)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
