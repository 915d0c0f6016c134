// orchestrator/ledger.go
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageLedger tracks monthly token-unit spend per practitioner. The
// orchestrator only consults and debits it; the cap itself and any billing
// reconciliation live outside the core.
type UsageLedger interface {
	Remaining(ctx context.Context, practitionerID int, at time.Time) (int, error)
	Debit(ctx context.Context, practitionerID int, at time.Time, units int) error
}

// PgLedger stores usage in the ai_usage table, one row per practitioner and
// month.
type PgLedger struct {
	Pool       *pgxpool.Pool
	MonthlyCap int
}

func monthOf(at time.Time) time.Time {
	return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (l *PgLedger) Remaining(ctx context.Context, practitionerID int, at time.Time) (int, error) {
	var used int
	err := l.Pool.QueryRow(ctx, `
        SELECT COALESCE(SUM(units_used), 0)
          FROM ai_usage
         WHERE id_practitioner = $1
           AND month = $2
    `, practitionerID, monthOf(at)).Scan(&used)
	if err != nil {
		return 0, err
	}
	remaining := l.MonthlyCap - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *PgLedger) Debit(ctx context.Context, practitionerID int, at time.Time, units int) error {
	_, err := l.Pool.Exec(ctx, `
        INSERT INTO ai_usage (id_practitioner, month, units_used)
        VALUES ($1, $2, $3)
        ON CONFLICT (id_practitioner, month) DO UPDATE
        SET units_used = ai_usage.units_used + EXCLUDED.units_used
    `, practitionerID, monthOf(at), units)
	return err
}

// MemoryLedger backs tests and local development.
type MemoryLedger struct {
	mu         sync.Mutex
	used       map[int]int
	MonthlyCap int
	FailWith   error
}

func NewMemoryLedger(cap int) *MemoryLedger {
	return &MemoryLedger{used: make(map[int]int), MonthlyCap: cap}
}

func (l *MemoryLedger) Remaining(_ context.Context, practitionerID int, _ time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWith != nil {
		return 0, l.FailWith
	}
	remaining := l.MonthlyCap - l.used[practitionerID]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *MemoryLedger) Debit(_ context.Context, practitionerID int, _ time.Time, units int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWith != nil {
		return l.FailWith
	}
	l.used[practitionerID] += units
	return nil
}
