// audit/sink.go
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"backend/models"
)

// Sink receives append-only audit events. Implementations must never update
// or delete what they have written.
type Sink interface {
	Emit(ctx context.Context, ev *models.AuditEvent) error
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(practitionerID, patientID int, kind string, detail map[string]any) *models.AuditEvent {
	return &models.AuditEvent{
		ID:             uuid.NewString(),
		PractitionerID: practitionerID,
		PatientID:      patientID,
		Kind:           kind,
		Detail:         detail,
		CreatedAt:      time.Now().UTC(),
	}
}

// Emit writes an event best-effort. Audit is not transactional with the
// business outcome: a failed emission is logged, never propagated.
func Emit(ctx context.Context, s Sink, ev *models.AuditEvent) {
	if s == nil {
		log.Printf("audit: no sink configured, dropping %s event for patient %d", ev.Kind, ev.PatientID)
		return
	}
	if err := s.Emit(ctx, ev); err != nil {
		log.Printf("audit: failed to emit %s event for patient %d: %v", ev.Kind, ev.PatientID, err)
	}
}

// PgSink appends events to the audit_events table.
type PgSink struct {
	Pool *pgxpool.Pool
}

func (s *PgSink) Emit(ctx context.Context, ev *models.AuditEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		detail = []byte("{}")
	}
	_, err = s.Pool.Exec(ctx, `
        INSERT INTO audit_events
          (id_event, id_practitioner, id_patient, kind, detail, created_at)
        VALUES ($1, $2, $3, $4, $5::jsonb, $6)
    `, ev.ID, ev.PractitionerID, ev.PatientID, ev.Kind, string(detail), ev.CreatedAt)
	return err
}

// LogSink only logs events. Used in tests and as a degraded-mode fallback.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, ev *models.AuditEvent) error {
	log.Printf("audit: %s practitioner=%d patient=%d detail=%v", ev.Kind, ev.PractitionerID, ev.PatientID, ev.Detail)
	return nil
}
