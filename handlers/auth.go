// handlers/auth.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"backend/audit"
	"backend/db"
	"backend/models"
	"backend/utils"
)

// RegisterRequest is the payload of POST /registro
type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterPractitioner handles POST /registro
func RegisterPractitioner(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	// 1) Generate salt + hash
	salt, err := utils.GenerateSalt()
	if err != nil {
		http.Error(w, "Error generating salt", http.StatusInternalServerError)
		return
	}
	hash := utils.HashWithSalt(req.Password, salt)

	// 2) Insert practitioner and get the new ID
	var userID int
	err = db.Pool.QueryRow(context.Background(),
		`INSERT INTO practitioners (full_name, email, registered_at)
		   VALUES ($1, $2, NOW())
		   RETURNING id_practitioner`,
		req.FullName, req.Email,
	).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "Error creating account", http.StatusInternalServerError)
		return
	}

	// 3) Store credentials
	_, err = db.Pool.Exec(context.Background(),
		`INSERT INTO practitioner_credentials
		   (id_practitioner, hash_password, salt, created_at, last_access)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, hash, salt, time.Now(), time.Now(),
	)
	if err != nil {
		http.Error(w, "Error storing credentials", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":         "Account created",
		"id_practitioner": userID,
	})
}

// LoginRequest is the payload of POST /login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginPractitioner handles POST /login
func LoginPractitioner(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// 1) Look up the account
	var userID int
	err := db.Pool.QueryRow(context.Background(),
		`SELECT id_practitioner
		   FROM practitioners
		  WHERE email=$1`, req.Email,
	).Scan(&userID)
	if err != nil {
		http.Error(w, "Account not found", http.StatusUnauthorized)
		return
	}

	// 2) Fetch salt and stored hash
	var salt, storedHash []byte
	err = db.Pool.QueryRow(context.Background(),
		`SELECT salt, hash_password
		   FROM practitioner_credentials
		  WHERE id_practitioner=$1`,
		userID,
	).Scan(&salt, &storedHash)
	if err != nil {
		http.Error(w, "Credentials not found", http.StatusUnauthorized)
		return
	}

	// 3) Compare hashes
	supplied := utils.HashWithSalt(req.Password, salt)
	if !bytes.Equal([]byte(supplied), storedHash) {
		audit.Emit(r.Context(), Sink, audit.NewEvent(userID, 0, models.AuditLoginFailed, nil))
		http.Error(w, "Wrong password", http.StatusUnauthorized)
		return
	}

	// 4) Update last access
	if _, err := db.Pool.Exec(context.Background(),
		`UPDATE practitioner_credentials
		    SET last_access = NOW()
		  WHERE id_practitioner = $1`,
		userID,
	); err != nil {
		log.Println("Error updating last access:", err)
	}

	audit.Emit(r.Context(), Sink, audit.NewEvent(userID, 0, models.AuditLoginSucceeded, nil))

	// 5) Respond with the account ID the client sends back as X-User-ID
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":         "Login successful",
		"id_practitioner": userID,
	})
}
