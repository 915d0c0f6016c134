// models/audit_event.go
package models

import "time"

// Kinds of security-relevant actions mirrored into the audit trail.
const (
	AuditConsentRecorded     = "consent_recorded"
	AuditGenerationBlocked   = "generation_blocked"
	AuditGenerationSucceeded = "generation_succeeded"
	AuditGenerationFailed    = "generation_failed"
	AuditLoginSucceeded      = "login_succeeded"
	AuditLoginFailed         = "login_failed"
)

// AuditEvent is a row of the audit_events table. Events are append-only;
// the backend has no update or delete path for them.
type AuditEvent struct {
	ID             string         `json:"id_event"        db:"id_event"`
	PractitionerID int            `json:"id_practitioner" db:"id_practitioner"`
	PatientID      int            `json:"id_patient"      db:"id_patient"`
	Kind           string         `json:"kind"            db:"kind"`
	Detail         map[string]any `json:"detail,omitempty" db:"detail"`
	CreatedAt      time.Time      `json:"created_at"      db:"created_at"`
}
