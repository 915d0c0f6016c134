// models/practitioner.go
package models

import "time"

// Practitioner is an account holder of the documentation tool.
type Practitioner struct {
	ID           int       `json:"id_practitioner" db:"id_practitioner"`
	FullName     string    `json:"full_name"       db:"full_name"`
	Email        string    `json:"email"           db:"email"`
	RegisteredAt time.Time `json:"registered_at"   db:"registered_at"`
}
