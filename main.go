// main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"backend/ai"
	"backend/audit"
	"backend/config"
	"backend/consent"
	"backend/db"
	"backend/handlers"
	"backend/orchestrator"
	"backend/utils"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg := config.Load()

	// 0) Database and encryption keys
	db.Connect(cfg.DatabaseURL)
	defer db.Pool.Close()
	utils.InitABE()

	// 1) Core services
	sink := &audit.PgSink{Pool: db.Pool}
	machine := consent.NewMachine(&consent.PgStore{Pool: db.Pool}, sink)

	var cooldown orchestrator.CooldownStore
	var memCooldown *orchestrator.MemoryCooldown
	if cfg.RedisAddr != "" {
		cooldown = orchestrator.NewRedisCooldown(cfg.RedisAddr)
		log.Println("Cooldown markers stored in Redis at", cfg.RedisAddr)
	} else {
		memCooldown = orchestrator.NewMemoryCooldown()
		cooldown = memCooldown
		log.Println("Cooldown markers stored in process memory")
	}

	ledger := &orchestrator.PgLedger{Pool: db.Pool, MonthlyCap: cfg.MonthlyUnitCap}
	provider := ai.NewOpenAIClient(cfg.AIAPIKey, cfg.AIModel, cfg.AIBaseURL)

	orch := orchestrator.New(machine, cooldown, ledger, provider, sink,
		orchestrator.WithCooldownWindow(time.Duration(cfg.CooldownSeconds)*time.Second),
	)
	handlers.Init(machine, orch, sink)

	// 2) Router
	r := mux.NewRouter()

	// — PUBLIC —
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Backend up and running")
	}).Methods("GET")
	r.HandleFunc("/registro", handlers.RegisterPractitioner).Methods("POST")
	r.HandleFunc("/login", handlers.LoginPractitioner).Methods("POST")
	r.HandleFunc("/consent-texts/latest", handlers.GetLatestConsentText).Methods("GET")
	r.HandleFunc("/consent-texts", handlers.ListConsentTexts).Methods("GET")

	// — PRACTITIONER —
	pr := r.PathPrefix("/practitioner").Subrouter()
	pr.Use(handlers.PractitionerOnlyMiddleware)

	// Consent decisions
	pr.HandleFunc("/consents", handlers.RecordConsentDecision).Methods("POST")
	pr.HandleFunc("/consents", handlers.ListConsentDecisions).Methods("GET")
	pr.HandleFunc("/consents/status", handlers.GetConsentStatus).Methods("GET")

	// AI generation
	pr.HandleFunc("/generate", handlers.GenerateAnalysis).Methods("POST")

	// Session notes
	pr.HandleFunc("/notes", handlers.ListSessionNotes).Methods("GET")
	pr.HandleFunc("/notes/{id}", handlers.GetSessionNote).Methods("GET")

	// Audit trail
	pr.HandleFunc("/audit", handlers.ListAuditEvents).Methods("GET")

	// Notifications
	pr.HandleFunc("/notifications", handlers.GetNotifications).Methods("GET")
	pr.HandleFunc("/notifications/count", handlers.GetUnreadCount).Methods("GET")
	pr.HandleFunc("/notifications/{id}/read", handlers.MarkAsRead).Methods("PUT")

	// Dashboard
	pr.HandleFunc("/dashboard", handlers.Dashboard).Methods("GET")

	// 3) Background tasks

	// 3.1) Sweep stale in-memory cooldown markers
	if memCooldown != nil {
		go func() {
			ticker := time.NewTicker(1 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if removed := memCooldown.Sweep(time.Now(), 10*time.Minute); removed > 0 {
					log.Printf("Swept %d stale cooldown markers", removed)
				}
			}
		}()
	}

	// 3.2) Hourly usage summary, handy when chasing budget complaints
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			var practitioners, units int
			err := db.Pool.QueryRow(context.Background(), `
				SELECT count(*), COALESCE(SUM(units_used), 0)
				  FROM ai_usage
				 WHERE month = date_trunc('month', NOW())
			`).Scan(&practitioners, &units)
			if err != nil {
				log.Printf("Error reading usage summary: %v", err)
				continue
			}
			log.Printf("Usage this month: %d practitioners, %d units", practitioners, units)
		}
	}()

	// 4) Start server
	log.Println("Server running on http://localhost:" + cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, enableCORS(r)))
}
