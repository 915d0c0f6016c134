// handlers/audit.go
package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"backend/db"
	"backend/models"
)

// ListAuditEvents handles GET /practitioner/audit?patient_id=
// Read-only view of the trail for one patient under the calling
// practitioner; there is deliberately no write surface here.
func ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}
	patientID, err := patientIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := db.Pool.Query(r.Context(), `
        SELECT id_event, id_practitioner, id_patient, kind, detail, created_at
          FROM audit_events
         WHERE id_patient = $1
           AND id_practitioner = $2
         ORDER BY created_at DESC
         LIMIT 200
    `, patientID, userID)
	if err != nil {
		log.Println("Error querying audit events:", err)
		http.Error(w, "Error querying audit events", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var ev models.AuditEvent
		var detail []byte
		if err := rows.Scan(&ev.ID, &ev.PractitionerID, &ev.PatientID, &ev.Kind, &detail, &ev.CreatedAt); err != nil {
			http.Error(w, "Error reading audit events", http.StatusInternalServerError)
			return
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &ev.Detail); err != nil {
				log.Printf("Error parsing detail of audit event %s: %v", ev.ID, err)
			}
		}
		events = append(events, ev)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
