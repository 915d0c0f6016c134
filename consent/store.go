// consent/store.go
package consent

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"backend/models"
)

// Store is the durable, append-only storage of consent records. LatestFor
// returns (nil, nil) when the pair has no record yet; any other error means
// the store is unavailable and the gate must fail closed.
type Store interface {
	Append(ctx context.Context, rec *models.ConsentRecord) error
	LatestFor(ctx context.Context, patientID, practitionerID int) (*models.ConsentRecord, error)
	ListFor(ctx context.Context, patientID, practitionerID int) ([]models.ConsentRecord, error)
}

// PgStore keeps consent records in the consent_records table.
type PgStore struct {
	Pool *pgxpool.Pool
}

func (s *PgStore) Append(ctx context.Context, rec *models.ConsentRecord) error {
	return s.Pool.QueryRow(ctx, `
        INSERT INTO consent_records
          (id_patient, id_practitioner, scope, status, method,
           signature_text, decline_reasons, session_id, text_version, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id_record
    `, rec.PatientID, rec.PractitionerID, rec.Scope, rec.Status, rec.Method,
		rec.SignatureText, rec.DeclineReasons, rec.SessionID, rec.TextVersion, rec.RecordedAt,
	).Scan(&rec.ID)
}

func (s *PgStore) LatestFor(ctx context.Context, patientID, practitionerID int) (*models.ConsentRecord, error) {
	row := s.Pool.QueryRow(ctx, `
        SELECT id_record, id_patient, id_practitioner, scope, status, method,
               signature_text, decline_reasons, session_id, text_version, recorded_at
          FROM consent_records
         WHERE id_patient = $1
           AND id_practitioner = $2
         ORDER BY recorded_at DESC, id_record DESC
         LIMIT 1
    `, patientID, practitionerID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *PgStore) ListFor(ctx context.Context, patientID, practitionerID int) ([]models.ConsentRecord, error) {
	rows, err := s.Pool.Query(ctx, `
        SELECT id_record, id_patient, id_practitioner, scope, status, method,
               signature_text, decline_reasons, session_id, text_version, recorded_at
          FROM consent_records
         WHERE id_patient = $1
           AND id_practitioner = $2
         ORDER BY recorded_at DESC, id_record DESC
    `, patientID, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ConsentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ConsentRecord, error) {
	var rec models.ConsentRecord
	if err := row.Scan(
		&rec.ID,
		&rec.PatientID,
		&rec.PractitionerID,
		&rec.Scope,
		&rec.Status,
		&rec.Method,
		&rec.SignatureText,
		&rec.DeclineReasons,
		&rec.SessionID,
		&rec.TextVersion,
		&rec.RecordedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
