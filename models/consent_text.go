// models/consent_text.go
package models

import "time"

// ConsentText is one version of the legal text presented to patients when a
// consent decision is captured. ConsentRecord.TextVersion references Version.
type ConsentText struct {
	ID            int       `json:"id_text"       db:"id_text"`
	Version       string    `json:"version"       db:"version"`
	Title         string    `json:"title"         db:"title"`
	Body          string    `json:"body"          db:"body"`
	EffectiveFrom time.Time `json:"effective_from" db:"effective_from"`
}
