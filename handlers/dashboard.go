// handlers/dashboard.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"backend/db"
)

// Dashboard handles GET /practitioner/dashboard — the account summary the
// UI shows after login.
func Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}

	// 1) Name and last access
	var name string
	var lastAccess time.Time
	err := db.Pool.QueryRow(context.Background(), `
		SELECT p.full_name, pc.last_access
		  FROM practitioners p
		  JOIN practitioner_credentials pc ON pc.id_practitioner = p.id_practitioner
		 WHERE p.id_practitioner = $1
	`, userID).Scan(&name, &lastAccess)
	if err != nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	// 2) Consent decisions summary
	var consents, declines int
	err = db.Pool.QueryRow(context.Background(), `
		SELECT
		  count(*) AS total,
		  count(*) FILTER (WHERE scope = 'declined') AS declines
		FROM consent_records
		WHERE id_practitioner = $1
	`, userID).Scan(&consents, &declines)
	if err != nil {
		http.Error(w, "Error computing consent summary", http.StatusInternalServerError)
		return
	}

	// 3) Generation summary, this month
	var notes int
	err = db.Pool.QueryRow(context.Background(), `
		SELECT count(*)
		  FROM session_notes
		 WHERE id_practitioner = $1
		   AND created_at >= date_trunc('month', NOW())
	`, userID).Scan(&notes)
	if err != nil {
		http.Error(w, "Error computing note summary", http.StatusInternalServerError)
		return
	}

	var unitsUsed int
	err = db.Pool.QueryRow(context.Background(), `
		SELECT COALESCE(SUM(units_used), 0)
		  FROM ai_usage
		 WHERE id_practitioner = $1
		   AND month = date_trunc('month', NOW())
	`, userID).Scan(&unitsUsed)
	if err != nil {
		http.Error(w, "Error computing usage summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"full_name":         name,
		"last_access":       lastAccess,
		"consent_decisions": consents,
		"declines":          declines,
		"notes_this_month":  notes,
		"units_this_month":  unitsUsed,
	})
}
