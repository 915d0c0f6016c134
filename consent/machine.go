// consent/machine.go
//
// The consent state machine answers "is AI processing currently authorized
// for this patient under this practitioner?" and applies new decisions.
// Decisions are appended, never edited: a reversal after a decline is a new
// granted record, so the full decision history stays queryable for audit.
package consent

import (
	"context"
	"fmt"
	"time"

	"backend/audit"
	"backend/models"
)

// ValidationError reports malformed caller input. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrMissingSignature is returned when an ongoing grant carries no
// signature text.
var ErrMissingSignature = &ValidationError{Field: "signature_text", Reason: "MissingSignature"}

// DecisionInput is the payload of one consent decision.
type DecisionInput struct {
	PatientID      int                  `json:"id_patient"`
	PractitionerID int                  `json:"id_practitioner"`
	Scope          models.ConsentScope  `json:"scope"`
	Method         models.ConsentMethod `json:"method"`
	SignatureText  string               `json:"signature_text"`
	DeclineReasons []string             `json:"decline_reasons"`
	SessionID      string               `json:"session_id"`
	TextVersion    string               `json:"text_version"`
	// Revoke withdraws a previously granted consent of the given scope.
	Revoke bool `json:"revoke"`
}

// Status is the answer of GetStatus: the current authorization derived from
// the latest decision record.
type Status struct {
	Authorized bool                 `json:"authorized"`
	Scope      models.ConsentScope  `json:"scope,omitempty"`
	Method     models.ConsentMethod `json:"method,omitempty"`
	GrantedAt  *time.Time           `json:"granted_at,omitempty"`
}

// Machine holds the transition logic over the append-only record store.
type Machine struct {
	store Store
	sink  audit.Sink
}

func NewMachine(store Store, sink audit.Sink) *Machine {
	return &Machine{store: store, sink: sink}
}

// RecordDecision validates and persists a new decision, emits a
// consent_recorded audit event and returns the appended record.
// Nothing is persisted (and nothing audited) when validation fails.
func (m *Machine) RecordDecision(ctx context.Context, in DecisionInput) (*models.ConsentRecord, error) {
	switch in.Scope {
	case models.ScopeOngoing, models.ScopeSessionOnly, models.ScopeDeclined:
	default:
		return nil, &ValidationError{Field: "scope", Reason: "UnknownScope"}
	}
	switch in.Method {
	case models.MethodDigital, models.MethodVerbal:
	default:
		return nil, &ValidationError{Field: "method", Reason: "UnknownMethod"}
	}

	status := models.StatusGranted
	if in.Revoke || in.Scope == models.ScopeDeclined {
		// A decline grants nothing; modeling it as revoked keeps the
		// "authorized iff status=granted" read uniform.
		status = models.StatusRevoked
	}

	if in.Scope == models.ScopeOngoing && status == models.StatusGranted && in.SignatureText == "" {
		return nil, ErrMissingSignature
	}
	if in.Scope == models.ScopeSessionOnly && status == models.StatusGranted && in.SessionID == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "MissingSession"}
	}

	rec := &models.ConsentRecord{
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		Scope:          in.Scope,
		Status:         status,
		Method:         in.Method,
		SignatureText:  in.SignatureText,
		SessionID:      in.SessionID,
		TextVersion:    in.TextVersion,
		RecordedAt:     time.Now().UTC(),
	}
	if in.Scope == models.ScopeDeclined {
		rec.DeclineReasons = in.DeclineReasons
		if rec.DeclineReasons == nil {
			rec.DeclineReasons = []string{}
		}
	}

	if err := m.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("appending consent record: %w", err)
	}

	audit.Emit(ctx, m.sink, audit.NewEvent(in.PractitionerID, in.PatientID, models.AuditConsentRecorded, map[string]any{
		"scope":        string(rec.Scope),
		"status":       string(rec.Status),
		"method":       string(rec.Method),
		"text_version": rec.TextVersion,
	}))
	return rec, nil
}

// GetStatus selects the latest record for the pair and reports whether it
// currently authorizes use. sessionID is the caller's current encounter,
// matched against session-only grants. A store error is returned as-is: the
// gate treats indeterminate status as not authorized but never records a
// decision on its own.
func (m *Machine) GetStatus(ctx context.Context, patientID, practitionerID int, sessionID string) (Status, error) {
	rec, err := m.store.LatestFor(ctx, patientID, practitionerID)
	if err != nil {
		return Status{}, fmt.Errorf("reading consent status: %w", err)
	}
	if rec == nil {
		return Status{}, nil
	}
	st := Status{
		Authorized: rec.Authorizes(sessionID),
		Scope:      rec.Scope,
		Method:     rec.Method,
	}
	if rec.Status == models.StatusGranted {
		t := rec.RecordedAt
		st.GrantedAt = &t
	}
	return st, nil
}

// IsHardBlocked reports whether the latest record is a decline. The block is
// scoped to that single patient; it never restricts the practitioner account
// globally.
func (m *Machine) IsHardBlocked(ctx context.Context, patientID, practitionerID int) (bool, error) {
	rec, err := m.store.LatestFor(ctx, patientID, practitionerID)
	if err != nil {
		return false, fmt.Errorf("reading consent status: %w", err)
	}
	return rec != nil && rec.Scope == models.ScopeDeclined, nil
}

// History returns all decisions for the pair, newest first.
func (m *Machine) History(ctx context.Context, patientID, practitionerID int) ([]models.ConsentRecord, error) {
	return m.store.ListFor(ctx, patientID, practitionerID)
}
