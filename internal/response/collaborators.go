// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/models"
)

// Incident is what CREATE_INCIDENT hands to the incident system.
type Incident struct {
	Title       string              `json:"title"`
	Severity    models.Severity     `json:"severity"`
	RuleID      string              `json:"rule_id"`
	SourceIP    string              `json:"source_ip"`
	ThreatScore float64             `json:"threat_score"`
	Event       *models.ThreatEvent `json:"event,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// IncidentClient opens incidents in a SOAR or ticketing system.
type IncidentClient interface {
	CreateIncident(ctx context.Context, incident Incident) (string, error)
}

// NopIncidentClient assigns a local ID and records nothing.
type NopIncidentClient struct{}

// CreateIncident implements IncidentClient.
func (NopIncidentClient) CreateIncident(_ context.Context, _ Incident) (string, error) {
	return "local-" + uuid.New().String(), nil
}

// WebhookIncidentClient POSTs incidents as JSON. If the response body is a
// JSON object with an "id" field, that ID is returned.
type WebhookIncidentClient struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookIncidentClient creates a WebhookIncidentClient.
func NewWebhookIncidentClient(url string, headers map[string]string, timeout time.Duration) *WebhookIncidentClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookIncidentClient{url: url, headers: headers, client: &http.Client{Timeout: timeout}}
}

// CreateIncident implements IncidentClient.
func (c *WebhookIncidentClient) CreateIncident(ctx context.Context, incident Incident) (string, error) {
	body, err := json.Marshal(incident)
	if err != nil {
		return "", fmt.Errorf("failed to marshal incident: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send incident: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("incident endpoint returned status %d", resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		return "remote-" + uuid.New().String(), nil
	}
	return created.ID, nil
}

// AuditRecord is what the LOG action writes to the audit trail.
type AuditRecord struct {
	RuleID      string          `json:"rule_id"`
	RuleName    string          `json:"rule_name"`
	Severity    models.Severity `json:"severity"`
	SourceIP    string          `json:"source_ip"`
	AttackType  string          `json:"attack_type,omitempty"`
	ThreatScore float64         `json:"threat_score"`
	Timestamp   time.Time       `json:"timestamp"`
}

// AuditSink receives audit records.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// LogAuditSink writes audit records to the structured log.
type LogAuditSink struct {
	logger zerolog.Logger
}

// NewLogAuditSink creates a LogAuditSink.
func NewLogAuditSink() *LogAuditSink {
	return &LogAuditSink{logger: logging.WithComponent("audit")}
}

// Record implements AuditSink.
func (s *LogAuditSink) Record(_ context.Context, rec AuditRecord) error {
	s.logger.Info().
		Str("rule_id", rec.RuleID).
		Str("rule_name", rec.RuleName).
		Str("severity", string(rec.Severity)).
		Str("ip", rec.SourceIP).
		Str("attack_type", rec.AttackType).
		Float64("threat_score", rec.ThreatScore).
		Time("event_time", rec.Timestamp).
		Msg("threat audit")
	return nil
}

// MemoryAuditSink keeps the most recent audit records in a bounded buffer.
type MemoryAuditSink struct {
	mu      sync.Mutex
	records []AuditRecord
	max     int
}

// NewMemoryAuditSink creates a MemoryAuditSink holding up to max records.
func NewMemoryAuditSink(max int) *MemoryAuditSink {
	if max <= 0 {
		max = 1000
	}
	return &MemoryAuditSink{max: max}
}

// Record implements AuditSink.
func (s *MemoryAuditSink) Record(_ context.Context, rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}
	return nil
}

// Records returns a copy of the buffered records, oldest first.
func (s *MemoryAuditSink) Records() []AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditRecord(nil), s.records...)
}
