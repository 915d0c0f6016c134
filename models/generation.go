// models/generation.go
package models

import "time"

// GenerationRequest is the ephemeral input of one orchestrated generation.
// It is never persisted on its own.
type GenerationRequest struct {
	PatientID      int       `json:"id_patient"`
	PractitionerID int       `json:"id_practitioner"`
	SessionID      string    `json:"session_id"`
	Classification string    `json:"classification"`
	Transcript     string    `json:"transcript"`
	RequestedAt    time.Time `json:"requested_at"`
}

// Terminal status of one orchestration attempt.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeBlocked   OutcomeStatus = "blocked"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Reasons a generation was blocked before reaching the provider. The reason
// tells the UI which remedy to present (consent form, wait, upgrade).
type BlockReason string

const (
	BlockNotConsented       BlockReason = "not_consented"
	BlockRateLimitedLocally BlockReason = "rate_limited_locally"
	BlockBudgetExceeded     BlockReason = "budget_exceeded"
)

// ClinicalEntity is one extracted clinical finding.
type ClinicalEntity struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// ClinicalAnalysis is the contract-conforming structured result the UI
// consumes. Lists are never nil once the validator has run.
type ClinicalAnalysis struct {
	ChiefComplaint string           `json:"chief_complaint"`
	RedFlags       []string         `json:"red_flags"`
	Entities       []ClinicalEntity `json:"entities"`
	PhysicalTests  []string         `json:"physical_tests"`
	PlanDocumented bool             `json:"plan_documented"`
	Summary        string           `json:"summary,omitempty"`
}

// GenerationOutcome is the immutable result of one Execute call, returned to
// the caller and mirrored into an audit event.
type GenerationOutcome struct {
	Status            OutcomeStatus     `json:"status"`
	BlockReason       BlockReason       `json:"block_reason,omitempty"`
	RetryAfterMs      int64             `json:"retry_after_ms,omitempty"`
	ErrorKind         string            `json:"error_kind,omitempty"`
	Result            *ClinicalAnalysis `json:"result,omitempty"`
	CompletenessScore int               `json:"completeness_score,omitempty"`
	AttemptsMade      int               `json:"attempts_made"`
	TotalLatencyMs    int64             `json:"total_latency_ms"`
}
