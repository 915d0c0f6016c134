// models/note.go
package models

import "time"

// SessionNote is a stored generation result, ABE-encrypted at rest.
// Corresponds to the session_notes table; Ciphertext holds the serialized
// FAME cipher of the structured analysis JSON.
type SessionNote struct {
	ID                int       `json:"id_note"          db:"id_note"`
	PatientID         int       `json:"id_patient"       db:"id_patient"`
	PractitionerID    int       `json:"id_practitioner"  db:"id_practitioner"`
	SessionID         string    `json:"session_id"       db:"session_id"`
	Classification    string    `json:"classification"   db:"classification"`
	CompletenessScore int       `json:"completeness_score" db:"completeness_score"`
	Ciphertext        []byte    `json:"-"                db:"ciphertext"`
	CreatedAt         time.Time `json:"created_at"       db:"created_at"`
}
