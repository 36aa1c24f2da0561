package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/adhd-assessment-server/internal/analytics"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/heatmap"
)

// ScoreQuestionnaireParams defines parameters for score_questionnaire
type ScoreQuestionnaireParams struct {
	Prediction string         `json:"prediction"`
	Answers    map[string]int `json:"answers"`
	Confidence *float64       `json:"confidence,omitempty"`
}

// EEGParams carries an uploaded sample by filename and raw content
type EEGParams struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ValidateEEGResult defines the result structure for validate_eeg
type ValidateEEGResult struct {
	Valid    bool                  `json:"valid"`
	Channels []domain.ChannelValue `json:"channels,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	Missing  []string              `json:"missing,omitempty"`
	Invalid  []string              `json:"invalid,omitempty"`
}

// HeatmapResult summarizes the rendered map
type HeatmapResult struct {
	Min        float64                 `json:"min"`
	Max        float64                 `json:"max"`
	Degenerate bool                    `json:"degenerate"`
	Regions    []heatmap.RegionAverage `json:"regions"`
}

// AnalyticsParams defines parameters for assessment_analytics
type AnalyticsParams struct {
	PatientID string `json:"patient_id,omitempty"`
}

// PatientAnalytics is the per-patient analytics view
type PatientAnalytics struct {
	PatientID   string                    `json:"patient_id"`
	Assessments []domain.AssessmentRecord `json:"assessments"`
	Summary     analytics.Summary         `json:"summary"`
}

// handleScoreQuestionnaire handles the score_questionnaire tool invocation
func (s *Server) handleScoreQuestionnaire(ctx context.Context, req *mcp.CallToolRequest, params ScoreQuestionnaireParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolScoreQuestionnaire).Info("Tool invoked")

	if strings.TrimSpace(params.Prediction) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("prediction is required")), nil, nil
	}
	answers, err := domain.ParseAnswers(params.Answers)
	if err != nil {
		return s.createErrorResult("Invalid answers", err), nil, nil
	}

	eval := s.scoring.Evaluate(params.Prediction, answers, params.Confidence)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("%s: %s risk, %d recommendations (%d of %d questions answered)",
					eval.Prediction, eval.RiskLevel.Title(), len(eval.Recommendations), len(answers), domain.QuestionCount),
			},
		},
	}, eval, nil
}

// handleValidateEEG handles the validate_eeg tool invocation. An invalid
// sample is a successful call with Valid false.
func (s *Server) handleValidateEEG(ctx context.Context, req *mcp.CallToolRequest, params EEGParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": ToolValidateEEG, "filename": params.Filename}).Info("Tool invoked")

	channels, err := s.parser.Parse(params.Filename, []byte(params.Content))
	if err != nil {
		var eegErr *domain.InvalidEEGDataError
		if !errors.As(err, &eegErr) {
			return s.createErrorResult("EEG validation failed", err), nil, nil
		}
		result := ValidateEEGResult{
			Reason:  eegErr.Reason,
			Missing: eegErr.Missing,
			Invalid: eegErr.Invalid,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: eegErr.Error()}},
		}, result, nil
	}

	result := ValidateEEGResult{Valid: true, Channels: channels.Ordered()}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("EEG sample is valid: %d channels", len(channels))},
		},
	}, result, nil
}

// handleEEGHeatmap handles the eeg_heatmap tool invocation
func (s *Server) handleEEGHeatmap(ctx context.Context, req *mcp.CallToolRequest, params EEGParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": ToolEEGHeatmap, "filename": params.Filename}).Info("Tool invoked")

	channels, err := s.parser.Parse(params.Filename, []byte(params.Content))
	if err != nil {
		return s.createErrorResult("Invalid EEG sample", err), nil, nil
	}
	h := heatmap.Build(channels)
	png, err := heatmap.PNG(h)
	if err != nil {
		return s.createErrorResult("Heatmap rendering failed", err), nil, nil
	}

	result := HeatmapResult{Min: h.Min, Max: h.Max, Degenerate: h.Degenerate, Regions: h.RegionAverages()}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.ImageContent{Data: png, MIMEType: "image/png"},
			&mcp.TextContent{Text: fmt.Sprintf("Heatmap range %.2f to %.2f across %d regions", h.Min, h.Max, len(result.Regions))},
		},
	}, result, nil
}

// handleAnalytics handles the assessment_analytics tool invocation
func (s *Server) handleAnalytics(ctx context.Context, req *mcp.CallToolRequest, params AnalyticsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolAnalytics).Info("Tool invoked")

	if s.analytics == nil {
		return s.createErrorResult("Analytics unavailable", fmt.Errorf("no record service configured")), nil, nil
	}

	var out any
	if id := strings.TrimSpace(params.PatientID); id != "" {
		records, summary := s.analytics.PatientHistory(ctx, id)
		if records == nil {
			records = []domain.AssessmentRecord{}
		}
		out = PatientAnalytics{PatientID: id, Assessments: records, Summary: summary}
	} else {
		out = s.analytics.Dashboard(ctx)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return s.createErrorResult("Failed to encode analytics", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, out, nil
}
