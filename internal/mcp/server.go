// Package mcp exposes the offline assessment tools (questionnaire scoring,
// EEG validation, scalp heatmaps and record analytics) to MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/adhd-assessment-server/internal/analytics"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/ingestion"
	"github.com/adhd-assessment-server/internal/service"
)

// Tool names
const (
	ToolScoreQuestionnaire = "score_questionnaire"
	ToolValidateEEG        = "validate_eeg"
	ToolEEGHeatmap         = "eeg_heatmap"
	ToolAnalytics          = "assessment_analytics"
)

// Server represents the assessment MCP server
type Server struct {
	mcpServer *mcp.Server
	parser    *ingestion.Parser
	scoring   *service.ScoringEngine
	analytics *analytics.Service
	logger    *logrus.Logger
	tools     []string
}

// NewServer creates the MCP server and registers its tools. analyticsSvc may
// be nil, in which case the analytics tool reports that no record service is configured.
func NewServer(cfg domain.MCPConfig, parser *ingestion.Parser, analyticsSvc *analytics.Service, logger *logrus.Logger) *Server {
	name, version := cfg.ServerName, cfg.ServerVersion
	if name == "" {
		name = "adhd-assessment-mcp"
	}
	if version == "" {
		version = "v0.1.0"
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		parser:    parser,
		scoring:   service.NewScoringEngine(),
		analytics: analyticsSvc,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Tools lists the registered tool names in registration order
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Start serves MCP over stdin/stdout until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("tools", s.tools).Info("Starting assessment MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolScoreQuestionnaire,
		Description: "Score a 30-item questionnaire (answers 1-5 keyed by question number) against a predicted label: sub-scale scores, risk level and grouped recommendations.",
	}, s.handleScoreQuestionnaire)
	s.tools = append(s.tools, ToolScoreQuestionnaire)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolValidateEEG,
		Description: "Validate an EEG sample (CSV, JSON or YAML content) for the 19 channels of the 10-20 layout.",
	}, s.handleValidateEEG)
	s.tools = append(s.tools, ToolValidateEEG)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolEEGHeatmap,
		Description: "Render a scalp heatmap PNG for a valid EEG sample, with per-region averages.",
	}, s.handleEEGHeatmap)
	s.tools = append(s.tools, ToolEEGHeatmap)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolAnalytics,
		Description: "Summarize assessment history from the record service, optionally for a single patient.",
	}, s.handleAnalytics)
	s.tools = append(s.tools, ToolAnalytics)

	s.logger.WithField("tool_count", len(s.tools)).Debug("Registered MCP tools")
}

// createErrorResult reports a tool failure to the client without failing the call
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)},
		},
	}
}
