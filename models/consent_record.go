// models/consent_record.go
package models

import "time"

// Scope of a consent decision.
type ConsentScope string

const (
	ScopeOngoing     ConsentScope = "ongoing"      // all future sessions until revoked
	ScopeSessionOnly ConsentScope = "session_only" // one encounter only
	ScopeDeclined    ConsentScope = "declined"     // no AI processing at all
)

// Status of a consent decision.
type ConsentStatus string

const (
	StatusGranted ConsentStatus = "granted"
	StatusRevoked ConsentStatus = "revoked"
)

// How the decision was captured.
type ConsentMethod string

const (
	MethodDigital ConsentMethod = "digital"
	MethodVerbal  ConsentMethod = "verbal"
)

// ConsentRecord is one authorization decision for a (patient, practitioner)
// pair. Records are append-only: a new decision supersedes older ones, it
// never edits them. Corresponds to the consent_records table.
type ConsentRecord struct {
	ID             int64         `json:"id_record"         db:"id_record"`
	PatientID      int           `json:"id_patient"        db:"id_patient"`
	PractitionerID int           `json:"id_practitioner"   db:"id_practitioner"`
	Scope          ConsentScope  `json:"scope"             db:"scope"`
	Status         ConsentStatus `json:"status"            db:"status"`
	Method         ConsentMethod `json:"method"            db:"method"`
	SignatureText  string        `json:"signature_text,omitempty" db:"signature_text"`
	DeclineReasons []string      `json:"decline_reasons,omitempty" db:"decline_reasons"`
	SessionID      string        `json:"session_id,omitempty" db:"session_id"`
	TextVersion    string        `json:"text_version"      db:"text_version"`
	RecordedAt     time.Time     `json:"recorded_at"       db:"recorded_at"`
}

// Authorizes reports whether this record, as the latest decision for its
// pair, authorizes AI processing for the given session.
func (r *ConsentRecord) Authorizes(sessionID string) bool {
	if r.Status != StatusGranted {
		return false
	}
	switch r.Scope {
	case ScopeOngoing:
		return true
	case ScopeSessionOnly:
		return sessionID != "" && r.SessionID == sessionID
	}
	return false
}
