// Package orchestrator is the single choke point every AI-generation call
// passes through. It composes the consent gate, the local cooldown, the
// token budget and the retry loop around the provider, and mirrors every
// terminal outcome into the audit trail.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"backend/ai"
	"backend/audit"
	"backend/budget"
	"backend/consent"
	"backend/models"
	"backend/validator"
)

// Clock provides current time. Injected so tests control the cooldown and
// latency accounting.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Defaults for the orchestration policy. The backoff schedule grows between
// attempts; only transient provider failures are retried.
var defaultBackoff = []time.Duration{0, 2 * time.Second, 5 * time.Second}

const (
	defaultWindow         = 5 * time.Second
	defaultAttemptTimeout = 45 * time.Second
)

// Orchestrator wraps one logical "generate" operation.
type Orchestrator struct {
	machine  *consent.Machine
	cooldown CooldownStore
	ledger   UsageLedger
	provider ai.Provider
	sink     audit.Sink

	window         time.Duration
	backoff        []time.Duration
	attemptTimeout time.Duration
	clock          Clock
	sleep          func(time.Duration)
}

// Option tweaks orchestration policy, mostly from tests.
type Option func(*Orchestrator)

func WithClock(c Clock) Option                  { return func(o *Orchestrator) { o.clock = c } }
func WithSleep(f func(time.Duration)) Option    { return func(o *Orchestrator) { o.sleep = f } }
func WithCooldownWindow(d time.Duration) Option { return func(o *Orchestrator) { o.window = d } }
func WithBackoff(schedule []time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = schedule }
}
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.attemptTimeout = d }
}

func New(machine *consent.Machine, cooldown CooldownStore, ledger UsageLedger, provider ai.Provider, sink audit.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		machine:        machine,
		cooldown:       cooldown,
		ledger:         ledger,
		provider:       provider,
		sink:           sink,
		window:         defaultWindow,
		backoff:        defaultBackoff,
		attemptTimeout: defaultAttemptTimeout,
		clock:          wallClock{},
		sleep:          time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the full gate chain and, when allowed, the provider call with
// retries. The returned error is reserved for infrastructure failure (store
// or marker unreachable); every expected outcome, including blocks and
// provider failures, is a GenerationOutcome. Exactly one audit event is
// emitted per terminal branch.
func (o *Orchestrator) Execute(ctx context.Context, req models.GenerationRequest) (*models.GenerationOutcome, error) {
	start := o.clock.Now()

	// 1) Consent gate. Indeterminate status fails closed: the store error
	// propagates, no provider call happens, nothing is recorded.
	st, err := o.machine.GetStatus(ctx, req.PatientID, req.PractitionerID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("consent gate: %w", err)
	}
	if !st.Authorized {
		return o.blocked(ctx, req, start, models.BlockNotConsented, 0), nil
	}

	// 2) Cooldown gate. The check and the attempt-timestamp write are one
	// atomic unit so concurrent calls cannot both pass.
	key := fmt.Sprintf("%d:%d", req.PractitionerID, req.PatientID)
	ok, remaining, err := o.cooldown.TryAcquire(ctx, key, o.clock.Now(), o.window)
	if err != nil {
		return nil, fmt.Errorf("cooldown gate: %w", err)
	}
	if !ok {
		return o.blocked(ctx, req, start, models.BlockRateLimitedLocally, remaining), nil
	}

	// 3) Budget gate.
	allowance := budget.Lookup(req.Classification)
	left, err := o.ledger.Remaining(ctx, req.PractitionerID, o.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("budget gate: %w", err)
	}
	if left < allowance.Units {
		return o.blocked(ctx, req, start, models.BlockBudgetExceeded, 0), nil
	}

	// 4) Provider call with bounded retries. Partial attempts are counted,
	// not individually audited.
	raw, attempts, err := o.callWithRetry(ctx, allowance.Prompt(req.Transcript), allowance.MaxTokens())
	if err != nil {
		outcome := &models.GenerationOutcome{
			Status:         models.OutcomeFailed,
			ErrorKind:      string(ai.KindOf(err)),
			AttemptsMade:   attempts,
			TotalLatencyMs: o.clock.Now().Sub(start).Milliseconds(),
		}
		audit.Emit(ctx, o.sink, audit.NewEvent(req.PractitionerID, req.PatientID, models.AuditGenerationFailed, map[string]any{
			"classification": allowance.Classification,
			"attempts":       attempts,
			"error_kind":     outcome.ErrorKind,
			"error":          err.Error(),
		}))
		return outcome, nil
	}

	// 5) Normalize the payload; the validator heals instead of failing.
	res := validator.ValidateAndCorrect(raw)

	if err := o.ledger.Debit(ctx, req.PractitionerID, o.clock.Now(), allowance.Units); err != nil {
		// Accounting must not undo a delivered result.
		log.Printf("orchestrator: debiting %d units for practitioner %d: %v", allowance.Units, req.PractitionerID, err)
	}

	outcome := &models.GenerationOutcome{
		Status:            models.OutcomeSucceeded,
		Result:            &res.Data,
		CompletenessScore: res.CompletenessScore,
		AttemptsMade:      attempts,
		TotalLatencyMs:    o.clock.Now().Sub(start).Milliseconds(),
	}
	audit.Emit(ctx, o.sink, audit.NewEvent(req.PractitionerID, req.PatientID, models.AuditGenerationSucceeded, map[string]any{
		"classification":     allowance.Classification,
		"attempts":           attempts,
		"completeness_score": res.CompletenessScore,
		"corrections":        len(res.Corrections),
		"units_debited":      allowance.Units,
	}))
	return outcome, nil
}

func (o *Orchestrator) blocked(ctx context.Context, req models.GenerationRequest, start time.Time, reason models.BlockReason, wait time.Duration) *models.GenerationOutcome {
	outcome := &models.GenerationOutcome{
		Status:         models.OutcomeBlocked,
		BlockReason:    reason,
		RetryAfterMs:   wait.Milliseconds(),
		TotalLatencyMs: o.clock.Now().Sub(start).Milliseconds(),
	}
	audit.Emit(ctx, o.sink, audit.NewEvent(req.PractitionerID, req.PatientID, models.AuditGenerationBlocked, map[string]any{
		"reason":         string(reason),
		"classification": req.Classification,
	}))
	return outcome
}

// callWithRetry attempts the provider call up to len(backoff) times. Each
// attempt carries its own timeout; a timeout counts as transient. Any
// non-transient failure returns immediately.
func (o *Orchestrator) callWithRetry(ctx context.Context, prompt string, maxTokens int) (string, int, error) {
	var lastErr error
	attempts := 0
	for i := 0; i < len(o.backoff); i++ {
		if d := o.backoff[i]; d > 0 {
			o.sleep(d)
		}
		attempts++

		actx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		raw, err := o.provider.Generate(actx, prompt, maxTokens)
		cancel()
		if err == nil {
			return raw, attempts, nil
		}
		lastErr = err
		if !ai.IsTransient(err) {
			break
		}
	}
	return "", attempts, lastErr
}
