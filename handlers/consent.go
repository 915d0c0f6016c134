// handlers/consent.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"backend/consent"
	"backend/models"
)

// RecordConsentDecision handles POST /practitioner/consents.
// The body is a consent.DecisionInput; the practitioner comes from the
// session, never from the payload.
func RecordConsentDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}

	var in consent.DecisionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	in.PractitionerID = userID

	rec, err := Machine.RecordDecision(r.Context(), in)
	if err != nil {
		var verr *consent.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		log.Println("Error recording consent decision:", err)
		http.Error(w, "Error recording consent decision", http.StatusServiceUnavailable)
		return
	}

	// A decline (or a reversal of one) is worth a notice on the
	// practitioner's dashboard.
	switch {
	case rec.Scope == models.ScopeDeclined:
		notifyDecision(r, userID, rec, fmt.Sprintf("Patient %d declined AI processing.", rec.PatientID))
	case rec.Status == models.StatusGranted:
		if blocked, err := wasPreviouslyDeclined(r, rec); err == nil && blocked {
			notifyDecision(r, userID, rec, fmt.Sprintf("Patient %d reversed a previous decline; AI processing is available again.", rec.PatientID))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rec)
}

func notifyDecision(r *http.Request, userID int, rec *models.ConsentRecord, msg string) {
	url := "/practitioner/consents"
	notif := &models.Notification{
		PractitionerID: userID,
		Kind:           "consent_decision",
		ReferenceTable: "consent_records",
		ReferenceID:    rec.ID,
		Message:        msg,
		ResourceURL:    &url,
	}
	if err := CreateNotification(r.Context(), notif); err != nil {
		log.Printf("Error notifying consent decision: %v", err)
	}
}

// wasPreviouslyDeclined checks whether the record before rec was a decline.
func wasPreviouslyDeclined(r *http.Request, rec *models.ConsentRecord) (bool, error) {
	history, err := Machine.History(r.Context(), rec.PatientID, rec.PractitionerID)
	if err != nil {
		return false, err
	}
	for _, h := range history {
		if h.ID == rec.ID {
			continue
		}
		return h.Scope == models.ScopeDeclined, nil
	}
	return false, nil
}

// GetConsentStatus handles GET /practitioner/consents/status?patient_id=&session_id=
func GetConsentStatus(w http.ResponseWriter, r *http.Request) {
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
	sessionID := r.URL.Query().Get("session_id")

	st, err := Machine.GetStatus(r.Context(), patientID, userID, sessionID)
	if err != nil {
		log.Println("Error reading consent status:", err)
		http.Error(w, "Error reading consent status", http.StatusServiceUnavailable)
		return
	}
	blocked, err := Machine.IsHardBlocked(r.Context(), patientID, userID)
	if err != nil {
		log.Println("Error reading hard block:", err)
		http.Error(w, "Error reading consent status", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"authorized":   st.Authorized,
		"scope":        st.Scope,
		"method":       st.Method,
		"granted_at":   st.GrantedAt,
		"hard_blocked": blocked,
	})
}

// ListConsentDecisions handles GET /practitioner/consents?patient_id=
// Returns the full decision history, newest first.
func ListConsentDecisions(w http.ResponseWriter, r *http.Request) {
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

	history, err := Machine.History(r.Context(), patientID, userID)
	if err != nil {
		log.Println("Error listing consent decisions:", err)
		http.Error(w, "Error listing consent decisions", http.StatusServiceUnavailable)
		return
	}
	if history == nil {
		history = []models.ConsentRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

func patientIDParam(r *http.Request) (int, error) {
	qs := r.URL.Query().Get("patient_id")
	if qs == "" {
		return 0, errors.New("Missing patient_id")
	}
	id, err := strconv.Atoi(qs)
	if err != nil {
		return 0, errors.New("Invalid patient_id")
	}
	return id, nil
}
