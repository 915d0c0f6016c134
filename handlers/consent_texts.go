// handlers/consent_texts.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"

	"backend/db"
	"backend/models"
)

// GetLatestConsentText handles GET /consent-texts/latest — the legal text
// version the UI must present when capturing a new decision.
func GetLatestConsentText(w http.ResponseWriter, r *http.Request) {
	var t models.ConsentText
	err := db.Pool.QueryRow(r.Context(), `
        SELECT id_text, version, title, body, effective_from
          FROM consent_texts
         WHERE effective_from <= NOW()
         ORDER BY effective_from DESC, id_text DESC
         LIMIT 1
    `).Scan(&t.ID, &t.Version, &t.Title, &t.Body, &t.EffectiveFrom)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "No consent text configured", http.StatusNotFound)
		} else {
			http.Error(w, "Error loading consent text", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

// ListConsentTexts handles GET /consent-texts — all versions, newest first,
// so older records' text_version stays resolvable.
func ListConsentTexts(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Pool.Query(r.Context(), `
        SELECT id_text, version, title, body, effective_from
          FROM consent_texts
         ORDER BY effective_from DESC, id_text DESC
    `)
	if err != nil {
		http.Error(w, "Error listing consent texts", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	list := []models.ConsentText{}
	for rows.Next() {
		var t models.ConsentText
		if err := rows.Scan(&t.ID, &t.Version, &t.Title, &t.Body, &t.EffectiveFrom); err != nil {
			http.Error(w, "Error reading consent texts", http.StatusInternalServerError)
			return
		}
		list = append(list, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
