// handlers/generate.go
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"backend/db"
	"backend/models"
	"backend/utils"
)

// GenerateInput is the payload of POST /practitioner/generate.
type GenerateInput struct {
	PatientID      int    `json:"id_patient"`
	SessionID      string `json:"session_id"`
	Classification string `json:"classification"`
	Transcript     string `json:"transcript"`
}

// GenerateAnalysis handles POST /practitioner/generate. The outcome is
// always 200 JSON: blocked and failed generations are expected results the
// UI renders with the matching remedy, not transport errors. Only an
// unreachable store maps to 503.
func GenerateAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}

	var in GenerateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if in.Transcript == "" {
		http.Error(w, "Missing transcript", http.StatusBadRequest)
		return
	}

	req := models.GenerationRequest{
		PatientID:      in.PatientID,
		PractitionerID: userID,
		SessionID:      in.SessionID,
		Classification: in.Classification,
		Transcript:     in.Transcript,
		RequestedAt:    time.Now().UTC(),
	}

	outcome, err := Orch.Execute(r.Context(), req)
	if err != nil {
		log.Println("Error executing generation:", err)
		http.Error(w, "Service temporarily unavailable, please retry", http.StatusServiceUnavailable)
		return
	}

	// Persist successful results as an encrypted session note so the
	// practitioner can reopen them later.
	var noteID int
	if outcome.Status == models.OutcomeSucceeded && outcome.Result != nil {
		noteID, err = storeSessionNote(r.Context(), req, outcome)
		if err != nil {
			log.Printf("Error storing session note for patient %d: %v", req.PatientID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"outcome": outcome,
		"id_note": noteID,
	})
}

func storeSessionNote(ctx context.Context, req models.GenerationRequest, outcome *models.GenerationOutcome) (int, error) {
	plain, err := json.Marshal(outcome.Result)
	if err != nil {
		return 0, err
	}
	ciphertext, err := utils.EncryptNote(string(plain))
	if err != nil {
		return 0, err
	}

	var noteID int
	err = db.Pool.QueryRow(ctx, `
        INSERT INTO session_notes
          (id_patient, id_practitioner, session_id, classification,
           completeness_score, ciphertext, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        RETURNING id_note
    `, req.PatientID, req.PractitionerID, req.SessionID, req.Classification,
		outcome.CompletenessScore, ciphertext,
	).Scan(&noteID)
	return noteID, err
}
