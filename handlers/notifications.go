// handlers/notifications.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"backend/db"
	"backend/models"
)

// CreateNotification inserts a notice for a practitioner. Used by the
// consent handlers when a patient declines or reverses a decision.
func CreateNotification(ctx context.Context, n *models.Notification) error {
	return db.Pool.QueryRow(ctx, `
        INSERT INTO notifications
          (id_practitioner, kind, reference_table, reference_id, message,
           resource_url, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,false,NOW())
        RETURNING id_notification
    `, n.PractitionerID, n.Kind, n.ReferenceTable, n.ReferenceID, n.Message, n.ResourceURL,
	).Scan(&n.ID)
}

// GetNotifications handles GET /practitioner/notifications
func GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}

	rows, err := db.Pool.Query(r.Context(), `
        SELECT id_notification, id_practitioner, kind, reference_table,
               reference_id, message, resource_url, read, created_at, read_at
          FROM notifications
         WHERE id_practitioner = $1
         ORDER BY created_at DESC
    `, userID)
	if err != nil {
		http.Error(w, "Error listing notifications", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.PractitionerID, &n.Kind, &n.ReferenceTable,
			&n.ReferenceID, &n.Message, &n.ResourceURL, &n.Read, &n.CreatedAt, &n.ReadAt); err != nil {
			http.Error(w, "Error reading notifications", http.StatusInternalServerError)
			return
		}
		list = append(list, n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// GetUnreadCount handles GET /practitioner/notifications/count
func GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}

	var count int
	err := db.Pool.QueryRow(r.Context(), `
        SELECT count(*) FROM notifications
         WHERE id_practitioner = $1 AND read = false
    `, userID).Scan(&count)
	if err != nil {
		http.Error(w, "Error counting notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"unread": count})
}

// MarkAsRead handles PUT /practitioner/notifications/{id}/read
func MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "No authenticated user", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid notification id", http.StatusBadRequest)
		return
	}

	res, err := db.Pool.Exec(r.Context(), `
        UPDATE notifications
           SET read = true, read_at = $1
         WHERE id_notification = $2
           AND id_practitioner = $3
    `, time.Now(), id, userID)
	if err != nil {
		http.Error(w, "Error updating notification", http.StatusInternalServerError)
		return
	}
	if res.RowsAffected() == 0 {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Notification marked as read"})
}
