// handlers/middleware.go
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"

	"backend/db"
)

// ctxKey is the type used to store the practitioner id in the request context.
type ctxKey string

const (
	CtxUserIDKey ctxKey = "userID"
)

// PractitionerOnlyMiddleware verifies that the caller is a registered
// practitioner. The client includes an "X-User-ID: <number>" header on every
// request; the identity provider in front of the API is responsible for
// setting it truthfully.
func PractitionerOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := r.Header.Get("X-User-ID")
		if idStr == "" {
			http.Error(w, "No authenticated user supplied", http.StatusUnauthorized)
			return
		}
		userID, err := strconv.Atoi(idStr)
		if err != nil {
			http.Error(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		var exists int
		err = db.Pool.QueryRow(r.Context(), `
			SELECT 1
			FROM practitioners
			WHERE id_practitioner = $1
			LIMIT 1
		`, userID).Scan(&exists)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				http.Error(w, "Access denied: practitioner account required", http.StatusForbidden)
				return
			}
			log.Println("Middleware: error verifying practitioner:", err)
			http.Error(w, "Internal error verifying account", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), CtxUserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromCtx extracts the practitioner id from the request context.
func GetUserIDFromCtx(ctx context.Context) (int, bool) {
	v := ctx.Value(CtxUserIDKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}
