// Package notification delivers assessment summaries by email, falling back
// to a locally composed mailto link whenever delivery is unavailable.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/report"
	"github.com/sirupsen/logrus"
)

// OutcomeKind says how a message left the system
type OutcomeKind string

const (
	Delivered              OutcomeKind = "delivered"
	FellBackToLocalCompose OutcomeKind = "fell_back_to_local_compose"
)

// Outcome is the result of Send. MailtoURL is set only for the fallback.
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	MailtoURL string      `json:"mailto_url,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// Message is the assessment summary sent to a recipient
type Message struct {
	To              string
	PatientID       string
	Prediction      string
	RiskLevel       domain.RiskLevel
	Confidence      *float64
	Recommendations []string
	Date            time.Time
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether addr looks like a deliverable address
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(strings.TrimSpace(addr))
}

// Subject returns the subject line for a patient
func Subject(patientID string) string {
	return "ADHD Assessment Report - Patient " + patientID
}

// Notifier posts messages to an EmailJS compatible endpoint
type Notifier struct {
	config     domain.NotificationConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewNotifier creates a notifier
func NewNotifier(config domain.NotificationConfig, logger *logrus.Logger) *Notifier {
	return &Notifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

// Send delivers msg or composes a mailto fallback. It never fails.
func (n *Notifier) Send(ctx context.Context, msg Message) Outcome {
	fields := logrus.Fields{"patient_id": msg.PatientID}

	if n.config.PublicKey == "" || n.config.Endpoint == "" {
		n.logger.WithFields(fields).Info("No delivery credential configured, composing locally")
		return n.fallback(msg, "delivery not configured")
	}

	if err := n.post(ctx, msg); err != nil {
		n.logger.WithFields(fields).WithError(err).Warn("Email delivery failed, composing locally")
		return n.fallback(msg, err.Error())
	}

	n.logger.WithFields(fields).Info("Assessment report emailed")
	return Outcome{Kind: Delivered}
}

func (n *Notifier) post(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(sendRequest{
		ServiceID:      n.config.ServiceID,
		TemplateID:     n.config.TemplateID,
		UserID:         n.config.PublicKey,
		TemplateParams: templateParams(msg),
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("delivery service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (n *Notifier) fallback(msg Message, reason string) Outcome {
	return Outcome{Kind: FellBackToLocalCompose, MailtoURL: MailtoURL(msg), Reason: reason}
}

// MailtoURL composes a pre-filled mailto link for msg
func MailtoURL(msg Message) string {
	q := url.Values{}
	q.Set("subject", Subject(msg.PatientID))
	q.Set("body", Body(msg))
	// mail clients expect %20 rather than + for spaces
	return "mailto:" + url.PathEscape(strings.TrimSpace(msg.To)) + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// Body renders the plain text summary used by the fallback
func Body(msg Message) string {
	params := templateParams(msg)
	var b strings.Builder
	b.WriteString("ADHD Detection System - Assessment Report\n")
	b.WriteString("=====================================\n\n")
	fmt.Fprintf(&b, "Patient ID: %s\n", msg.PatientID)
	fmt.Fprintf(&b, "Assessment Date: %s\n\n", params["assessment_date"])
	b.WriteString("RESULT\n------\n")
	fmt.Fprintf(&b, "Prediction: %s\n", msg.Prediction)
	fmt.Fprintf(&b, "Risk Level: %s\n", params["risk_level"])
	fmt.Fprintf(&b, "Confidence: %s\n\n", params["confidence"])
	b.WriteString("RECOMMENDATIONS\n---------------\n")
	b.WriteString(params["recommendations"])
	b.WriteString("\n\nDISCLAIMER\n----------\n")
	b.WriteString(params["disclaimer"])
	return b.String()
}

func templateParams(msg Message) map[string]string {
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	confidence := "N/A"
	if msg.Confidence != nil {
		confidence = fmt.Sprintf("%.1f%%", *msg.Confidence)
	}
	lines := make([]string, len(msg.Recommendations))
	for i, r := range msg.Recommendations {
		lines[i] = fmt.Sprintf("%d. %s", i+1, r)
	}
	return map[string]string{
		"to_email":        strings.TrimSpace(msg.To),
		"patient_id":      msg.PatientID,
		"prediction":      msg.Prediction,
		"risk_level":      msg.RiskLevel.Title(),
		"confidence":      confidence,
		"assessment_date": date.Format("January 2, 2006"),
		"recommendations": strings.Join(lines, "\n"),
		"disclaimer":      report.Disclaimer,
	}
}
