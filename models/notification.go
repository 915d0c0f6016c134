// models/notification.go
package models

import "time"

// Notification is a system-generated notice for a practitioner, for example
// when a patient declines or reverses a consent decision.
// Corresponds to the notifications table.
type Notification struct {
	ID             int        `json:"id_notification"  db:"id_notification"`
	PractitionerID int        `json:"id_practitioner"  db:"id_practitioner"`
	Kind           string     `json:"kind"             db:"kind"`
	ReferenceTable string     `json:"reference_table"  db:"reference_table"`
	ReferenceID    int64      `json:"reference_id"     db:"reference_id"`
	Message        string     `json:"message"          db:"message"`
	ResourceURL    *string    `json:"resource_url,omitempty" db:"resource_url"`
	Read           bool       `json:"read"             db:"read"`
	CreatedAt      time.Time  `json:"created_at"       db:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
}
