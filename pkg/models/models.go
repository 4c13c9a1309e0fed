package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HumanAction is the action a human took on an AI output before evaluation.
const (
	ActionAccepted = "accepted"
	ActionRejected = "rejected"
	ActionModified = "modified"
)

// Verdict values returned by the scoring engine.
const (
	VerdictAllow = "ALLOW"
	VerdictWarn  = "WARN"
	VerdictBlock = "BLOCK"
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	AIOutput        string          `json:"ai_output"`
	Context         json.RawMessage `json:"context,omitempty"`
	HumanAction     string          `json:"human_action"`
	CompliancePacks []string        `json:"compliance_packs,omitempty"`
}

// Validate checks required fields without touching any backing store.
func (r EvaluateRequest) Validate() error {
	if strings.TrimSpace(r.AIOutput) == "" {
		return fmt.Errorf("ai_output required")
	}
	switch r.HumanAction {
	case ActionAccepted, ActionRejected, ActionModified:
	default:
		return fmt.Errorf("human_action must be one of accepted|rejected|modified")
	}
	return nil
}

// Score is the black-box scoring engine result.
type Score struct {
	LumenScore        int     `json:"lumen_score"`
	Tier              int     `json:"tier"`
	Verdict           string  `json:"verdict"`
	CitationIntegrity float64 `json:"citation_integrity"`
}

// EvaluateResponse is the body of a successful evaluation.
type EvaluateResponse struct {
	RecordID            string  `json:"record_id"`
	LumenScore          int     `json:"lumen_score"`
	Tier                int     `json:"tier"`
	Verdict             string  `json:"verdict"`
	CitationIntegrity   float64 `json:"citation_integrity"`
	DefensibleRecordURL string  `json:"defensible_record_url"`
}

// RecordResponse is the body of GET /v1/records/{record_id}.
type RecordResponse struct {
	RecordID          string          `json:"record_id"`
	AIOutput          string          `json:"ai_output"`
	HumanAction       string          `json:"human_action"`
	CompliancePacks   []string        `json:"compliance_packs"`
	LumenScore        int             `json:"lumen_score"`
	Tier              int             `json:"tier"`
	Verdict           string          `json:"verdict"`
	CitationIntegrity float64         `json:"citation_integrity"`
	CreatedAt         string          `json:"created_at"`
	Context           json.RawMessage `json:"context,omitempty"`
}

// RateLimitBody is the structured body of a 429 from the rate limiter. The
// values mirror the X-RateLimit-* headers so body and headers never disagree.
type RateLimitBody struct {
	Message    string `json:"message"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	Reset      int64  `json:"reset"`
	RetryAfter int    `json:"retry_after"`
}

// QuotaBody is the structured body of a 429 from usage metering.
type QuotaBody struct {
	Message   string `json:"message"`
	Plan      string `json:"plan"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	ResetDate string `json:"reset_date"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	Service         string  `json:"service"`
	Timestamp       string  `json:"timestamp"`
	UptimeSeconds   float64 `json:"uptime"`
	DatabaseHealthy bool    `json:"database_healthy"`
}
