// handlers/notes.go
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"backend/db"
	"backend/models"
	"backend/utils"
)

// ListSessionNotes handles GET /practitioner/notes?patient_id=
// Returns note metadata only; the content stays encrypted until a single
// note is fetched.
func ListSessionNotes(w http.ResponseWriter, r *http.Request) {
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
        SELECT id_note, id_patient, id_practitioner, session_id,
               classification, completeness_score, created_at
          FROM session_notes
         WHERE id_patient = $1
           AND id_practitioner = $2
         ORDER BY created_at DESC
    `, patientID, userID)
	if err != nil {
		log.Println("Error listing session notes:", err)
		http.Error(w, "Error listing session notes", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	notes := []models.SessionNote{}
	for rows.Next() {
		var n models.SessionNote
		if err := rows.Scan(&n.ID, &n.PatientID, &n.PractitionerID, &n.SessionID,
			&n.Classification, &n.CompletenessScore, &n.CreatedAt); err != nil {
			http.Error(w, "Error reading session notes", http.StatusInternalServerError)
			return
		}
		notes = append(notes, n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notes)
}

// GetSessionNote handles GET /practitioner/notes/{id}. Decrypts the stored
// analysis for the treating practitioner.
func GetSessionNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}
	idStr := mux.Vars(r)["id"]
	noteID, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "Invalid note id", http.StatusBadRequest)
		return
	}

	var n models.SessionNote
	err = db.Pool.QueryRow(r.Context(), `
        SELECT id_note, id_patient, id_practitioner, session_id,
               classification, completeness_score, ciphertext, created_at
          FROM session_notes
         WHERE id_note = $1
           AND id_practitioner = $2
    `, noteID, userID).Scan(&n.ID, &n.PatientID, &n.PractitionerID, &n.SessionID,
		&n.Classification, &n.CompletenessScore, &n.Ciphertext, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "Note not found", http.StatusNotFound)
		} else {
			log.Println("Error fetching session note:", err)
			http.Error(w, "Error fetching session note", http.StatusInternalServerError)
		}
		return
	}

	plain, err := utils.DecryptNote(n.Ciphertext, []string{"practitioner"})
	if err != nil {
		log.Printf("Error decrypting note %d: %v", noteID, err)
		http.Error(w, "Error decrypting note", http.StatusInternalServerError)
		return
	}

	var analysis models.ClinicalAnalysis
	if err := json.Unmarshal([]byte(plain), &analysis); err != nil {
		log.Printf("Error parsing decrypted note %d: %v", noteID, err)
		http.Error(w, "Stored note is corrupted", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id_note":            n.ID,
		"id_patient":         n.PatientID,
		"session_id":         n.SessionID,
		"classification":     n.Classification,
		"completeness_score": n.CompletenessScore,
		"created_at":         n.CreatedAt,
		"analysis":           analysis,
	})
}
