package domain

import (
	"context"
)

// PredictionRequest is the submission payload sent to the classification service
type PredictionRequest struct {
	EEG            ChannelMap        `json:"eeg"`
	Questions      []int             `json:"questions"`
	MedicalHistory map[string]string `json:"medical_history"`
	UserInfo       WireUserInfo      `json:"user_info"`
}

// Predictor submits a completed assessment for classification
type Predictor interface {
	Predict(ctx context.Context, req *PredictionRequest) (*AssessmentResult, error)
}

// RecordSource reads assessment history from the record service
type RecordSource interface {
	ListAssessments(ctx context.Context) ([]AssessmentRecord, error)
	Stats(ctx context.Context) (*AssessmentStats, error)
	PatientAssessments(ctx context.Context, patientID string) ([]AssessmentRecord, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
