package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adhd-assessment-server/internal/cache"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func predictionRequest() *domain.PredictionRequest {
	eeg := domain.ChannelMap{}
	for i, ch := range domain.Channels {
		eeg[ch] = float64(i)
	}
	questions := make([]int, domain.QuestionCount)
	for i := range questions {
		questions[i] = 3
	}
	return &domain.PredictionRequest{
		EEG:            eeg,
		Questions:      questions,
		MedicalHistory: map[string]string{"family_adhd": "no", "previous_diagnosis": "[]"},
		UserInfo:       domain.WireUserInfo{PatientID: "P-1", Age: "9", Gender: "male", Education: "elementary"},
	}
}

func newPredictor(url string) *PredictorClient {
	return NewPredictorClient(domain.PredictorConfig{BaseURL: url + "/", Timeout: 2 * time.Second, RateLimit: 1000}, quietLogger())
}

func TestPredictorClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "eeg")
		assert.Contains(t, body, "medical_history")
		assert.Contains(t, body, "user_info")
		var questions []int
		require.NoError(t, json.Unmarshal(body["questions"], &questions))
		assert.Len(t, questions, domain.QuestionCount)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prediction":"ADHD","risk_level":"high","confidence":81.25,
			"confidence_scores":{"ADHD":81.25,"Healthy":18.75},"saved_to_database":true}`))
	}))
	defer srv.Close()

	res, err := newPredictor(srv.URL).Predict(context.Background(), predictionRequest())
	require.NoError(t, err)
	assert.Equal(t, "ADHD", res.Prediction)
	assert.Equal(t, "high", res.RiskLevel)
	require.NotNil(t, res.Confidence)
	assert.Equal(t, 81.25, *res.Confidence)
	assert.Equal(t, 18.75, res.ConfidenceScores["Healthy"])
	require.NotNil(t, res.SavedToDatabase)
	assert.True(t, *res.SavedToDatabase)
}

func TestPredictorClient_PredictionOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prediction":"Healthy"}`))
	}))
	defer srv.Close()

	res, err := newPredictor(srv.URL).Predict(context.Background(), predictionRequest())
	require.NoError(t, err)
	assert.Equal(t, "Healthy", res.Prediction)
	assert.Nil(t, res.Confidence)
	assert.Empty(t, res.ConfidenceScores)
}

func TestPredictorClient_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
	}{
		{"service error string", http.StatusBadRequest, `{"error":"Missing EEG columns: ['Fz']"}`, 400, "Missing EEG columns: ['Fz']"},
		{"server error without body", http.StatusInternalServerError, ``, 500, domain.DefaultSubmissionMessage},
		{"error field with 200", http.StatusOK, `{"error":"model not loaded"}`, 200, "model not loaded"},
		{"malformed body", http.StatusOK, `{"prediction":`, 200, domain.DefaultSubmissionMessage},
		{"empty prediction", http.StatusOK, `{}`, 200, domain.DefaultSubmissionMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newPredictor(srv.URL).Predict(context.Background(), predictionRequest())
			require.Error(t, err)
			var subErr *domain.SubmissionError
			require.True(t, errors.As(err, &subErr))
			assert.Equal(t, tt.wantStatus, subErr.StatusCode)
			assert.Equal(t, tt.wantMessage, subErr.Message)
		})
	}
}

func TestPredictorClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newPredictor(url).Predict(context.Background(), predictionRequest())
	var subErr *domain.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, domain.DefaultSubmissionMessage, subErr.Message)
	assert.Zero(t, subErr.StatusCode)
}

func TestPredictorClient_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newPredictor(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := client.Predict(context.Background(), predictionRequest())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.Predict(context.Background(), predictionRequest())
	var subErr *domain.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, http.StatusServiceUnavailable, subErr.StatusCode)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPredictorClient_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"No EEG data provided"}`))
	}))
	defer srv.Close()

	client := newPredictor(srv.URL)
	for i := 0; i < 5; i++ {
		_, err := client.Predict(context.Background(), predictionRequest())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, client.State())
}

func TestPredictorClient_CancelledContext(t *testing.T) {
	client := NewPredictorClient(domain.PredictorConfig{BaseURL: "http://127.0.0.1:1", RateLimit: 0.001}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Predict(ctx, predictionRequest())
	var subErr *domain.SubmissionError
	require.True(t, errors.As(err, &subErr))
}

const listBody = `{"assessments":[
	{"id":"a1","patient_id":"P-1","age":9,"gender":"male","prediction":"ADHD","risk_level":"high",
	 "assessment_date":"2026-02-03T10:15:00.123456+00:00","created_at":"2026-02-03T10:15:01"},
	{"id":2,"patient_id":"P-2","age":"34","gender":null,"prediction":"Healthy","risk_level":"low",
	 "assessment_date":"2026-02-01","created_at":""}
],"count":2}`

func TestRecordClient_ListAssessments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assessments", r.URL.Path)
		w.Write([]byte(listBody))
	}))
	defer srv.Close()

	client := NewRecordClient(domain.RecordsConfig{BaseURL: srv.URL, Timeout: time.Second}, nil, quietLogger())
	records, err := client.ListAssessments(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "a1", records[0].ID)
	assert.Equal(t, "9", records[0].Age)
	assert.Equal(t, time.Date(2026, 2, 3, 10, 15, 0, 123456000, time.UTC), records[0].AssessmentDate)
	assert.Equal(t, time.Date(2026, 2, 3, 10, 15, 1, 0, time.UTC), records[0].CreatedAt)

	assert.Equal(t, "2", records[1].ID)
	assert.Equal(t, "34", records[1].Age)
	assert.Empty(t, records[1].Gender)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), records[1].AssessmentDate)
	assert.True(t, records[1].CreatedAt.IsZero())
}

func TestRecordClient_StatsAndPatient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assessments/stats":
			w.Write([]byte(`{"total_assessments":5,"predictions_breakdown":{"ADHD":3,"Healthy":2},"risk_levels_breakdown":{"high":3,"low":2}}`))
		case "/assessments/P 7":
			w.Write([]byte(`{"assessments":[{"id":"x","patient_id":"P 7","prediction":"ODD"}],"count":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewRecordClient(domain.RecordsConfig{BaseURL: srv.URL, Timeout: time.Second}, nil, quietLogger())

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalAssessments)
	assert.Equal(t, 3, stats.PredictionsBreakdown["ADHD"])

	records, err := client.PatientAssessments(context.Background(), "P 7")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ODD", records[0].Prediction)

	_, err = client.PatientAssessments(context.Background(), "  ")
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestRecordClient_ServesCacheOnFailure(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"database offline"}`))
			return
		}
		w.Write([]byte(listBody))
	}))
	defer srv.Close()

	c := cache.NewMemoryCache(16, time.Minute)
	client := NewRecordClient(domain.RecordsConfig{BaseURL: srv.URL, Timeout: time.Second}, c, quietLogger())

	fresh, err := client.ListAssessments(context.Background())
	require.NoError(t, err)

	failing.Store(true)
	for i := 0; i < 4; i++ {
		cached, err := client.ListAssessments(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fresh, cached)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err = client.Stats(context.Background())
	require.Error(t, err, "nothing cached for stats")
	assert.True(t, IsUnavailable(err))
}

func TestRecordClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database offline"}`))
	}))
	defer srv.Close()

	client := NewRecordClient(domain.RecordsConfig{BaseURL: srv.URL, Timeout: time.Second}, nil, quietLogger())
	_, err := client.Stats(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 500, statusErr.StatusCode)
	assert.Equal(t, "database offline", statusErr.Message)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	assert.Equal(t, want, ParseTimestamp("2026-05-06T07:08:09Z"))
	assert.Equal(t, want, ParseTimestamp("2026-05-06T09:08:09+02:00"))
	assert.Equal(t, want, ParseTimestamp("2026-05-06 07:08:09"))
	assert.True(t, ParseTimestamp("yesterday").IsZero())
	assert.True(t, ParseTimestamp("").IsZero())
}
