package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/ai"
	"backend/budget"
	"backend/consent"
	"backend/models"
)

const analysisPayload = `{
	"chief_complaint": "Lower back pain",
	"red_flags": [],
	"entities": [{"text": "L4-L5", "category": "anatomy"}],
	"physical_tests": ["Lasegue"],
	"plan_documented": true
}`

// fakeClock only moves when the injected sleep runs, so backoff latency is
// deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scriptedProvider returns each scripted step in order; a nil step yields the
// canned payload.
type scriptedProvider struct {
	mu        sync.Mutex
	script    []error
	calls     int
	maxTokens []int
}

func (p *scriptedProvider) Generate(_ context.Context, _ string, maxTokens int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	p.maxTokens = append(p.maxTokens, maxTokens)
	if idx < len(p.script) && p.script[idx] != nil {
		return "", p.script[idx]
	}
	return analysisPayload, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingSink struct {
	mu       sync.Mutex
	events   []*models.AuditEvent
	FailWith error
}

func (s *recordingSink) Emit(_ context.Context, ev *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	orch     *Orchestrator
	machine  *consent.Machine
	store    *consent.MemoryStore
	ledger   *MemoryLedger
	provider *scriptedProvider
	sink     *recordingSink
	clock    *fakeClock
}

func newFixture(t *testing.T, script ...error) *fixture {
	t.Helper()
	f := &fixture{
		store:    consent.NewMemoryStore(),
		ledger:   NewMemoryLedger(100),
		provider: &scriptedProvider{script: script},
		sink:     &recordingSink{},
		clock:    newFakeClock(),
	}
	f.machine = consent.NewMachine(f.store, f.sink)
	f.orch = New(f.machine, NewMemoryCooldown(), f.ledger, f.provider, f.sink,
		WithClock(f.clock),
		WithSleep(f.clock.Advance),
	)
	return f
}

func (f *fixture) grantOngoing(t *testing.T, patientID, practitionerID int) {
	t.Helper()
	_, err := f.machine.RecordDecision(context.Background(), consent.DecisionInput{
		PatientID:      patientID,
		PractitionerID: practitionerID,
		Scope:          models.ScopeOngoing,
		Method:         models.MethodDigital,
		SignatureText:  "Jane Doe",
	})
	require.NoError(t, err)
}

func followUpRequest() models.GenerationRequest {
	return models.GenerationRequest{
		PatientID:      1,
		PractitionerID: 10,
		SessionID:      "sess-1",
		Classification: "follow_up",
		Transcript:     "Patient reports less pain this week.",
	}
}

func TestBlockedWithoutConsentRecord(t *testing.T) {
	f := newFixture(t)

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeBlocked, out.Status)
	assert.Equal(t, models.BlockNotConsented, out.BlockReason)
	assert.Zero(t, f.provider.callCount())
	assert.Equal(t, []string{models.AuditGenerationBlocked}, f.sink.kinds())
}

func TestDeclinedPatientNeverReachesProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.RecordDecision(context.Background(), consent.DecisionInput{
		PatientID: 1, PractitionerID: 10,
		Scope: models.ScopeDeclined, Method: models.MethodDigital,
	})
	require.NoError(t, err)
	f.sink.events = nil

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeBlocked, out.Status)
	assert.Equal(t, models.BlockNotConsented, out.BlockReason)
	assert.Zero(t, f.provider.callCount())
}

func TestSuccessDebitsLedgerAndAudits(t *testing.T) {
	f := newFixture(t)
	f.grantOngoing(t, 1, 10)
	f.sink.events = nil

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSucceeded, out.Status)
	assert.Equal(t, 1, out.AttemptsMade)
	assert.Equal(t, 100, out.CompletenessScore)
	require.NotNil(t, out.Result)
	require.NotNil(t, out.Result.Entities)
	assert.Len(t, out.Result.Entities, 1)

	// follow_up costs 4 units and caps output at 4096 tokens.
	left, err := f.ledger.Remaining(context.Background(), 10, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 96, left)
	assert.Equal(t, []int{4 * budget.TokensPerUnit}, f.provider.maxTokens)

	assert.Equal(t, []string{models.AuditGenerationSucceeded}, f.sink.kinds())
}

func TestTransientFailuresRetriedThenSucceed(t *testing.T) {
	f := newFixture(t,
		&ai.ProviderError{Kind: ai.KindRateLimited, StatusCode: 429, Message: "too many requests"},
		&ai.ProviderError{Kind: ai.KindTimeout, Message: "deadline exceeded"},
		nil,
	)
	f.grantOngoing(t, 1, 10)

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.Status)
	assert.Equal(t, 3, out.AttemptsMade)
	assert.Equal(t, 3, f.provider.callCount())
	// Backoff slept 2s then 5s on the fake clock.
	assert.GreaterOrEqual(t, out.TotalLatencyMs, int64(7000))
}

func TestFatalFailureNotRetried(t *testing.T) {
	f := newFixture(t,
		&ai.ProviderError{Kind: ai.KindAuth, StatusCode: 401, Message: "bad key"},
	)
	f.grantOngoing(t, 1, 10)
	f.sink.events = nil

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, out.Status)
	assert.Equal(t, string(ai.KindAuth), out.ErrorKind)
	assert.Equal(t, 1, out.AttemptsMade)
	assert.Equal(t, 1, f.provider.callCount())
	assert.Equal(t, []string{models.AuditGenerationFailed}, f.sink.kinds())

	// No spend on failure.
	left, err := f.ledger.Remaining(context.Background(), 10, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 100, left)
}

func TestTransientFailuresExhaustSchedule(t *testing.T) {
	rl := &ai.ProviderError{Kind: ai.KindRateLimited, StatusCode: 429, Message: "too many requests"}
	f := newFixture(t, rl, rl, rl)
	f.grantOngoing(t, 1, 10)

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, out.Status)
	assert.Equal(t, string(ai.KindRateLimited), out.ErrorKind)
	assert.Equal(t, 3, out.AttemptsMade)
}

func TestCooldownBlocksSecondCall(t *testing.T) {
	f := newFixture(t)
	f.grantOngoing(t, 1, 10)

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSucceeded, out.Status)

	f.clock.Advance(1 * time.Second)
	out, err = f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeBlocked, out.Status)
	assert.Equal(t, models.BlockRateLimitedLocally, out.BlockReason)
	assert.Greater(t, out.RetryAfterMs, int64(0))
	assert.Equal(t, 1, f.provider.callCount())

	// Once the window elapses the same pair goes through again.
	f.clock.Advance(10 * time.Second)
	out, err = f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.Status)
}

func TestConcurrentCallsAtMostOneProviderHit(t *testing.T) {
	f := newFixture(t)
	f.grantOngoing(t, 1, 10)

	outcomes := make([]*models.GenerationOutcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.orch.Execute(context.Background(), followUpRequest())
			require.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.provider.callCount())
	succeeded, blocked := 0, 0
	for _, out := range outcomes {
		switch out.Status {
		case models.OutcomeSucceeded:
			succeeded++
		case models.OutcomeBlocked:
			blocked++
			assert.Equal(t, models.BlockRateLimitedLocally, out.BlockReason)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, blocked)
}

func TestBudgetExceededBlocks(t *testing.T) {
	f := newFixture(t)
	f.grantOngoing(t, 1, 10)
	f.ledger.MonthlyCap = 3
	f.sink.events = nil

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeBlocked, out.Status)
	assert.Equal(t, models.BlockBudgetExceeded, out.BlockReason)
	assert.Zero(t, f.provider.callCount())
	assert.Equal(t, []string{models.AuditGenerationBlocked}, f.sink.kinds())
}

func TestUnknownClassificationUsesConservativeTier(t *testing.T) {
	f := newFixture(t)
	f.grantOngoing(t, 1, 10)
	f.ledger.MonthlyCap = 2

	req := followUpRequest()
	req.Classification = "mystery_session"
	out, err := f.orch.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.Status)
	assert.Equal(t, []int{2 * budget.TokensPerUnit}, f.provider.maxTokens)
}

func TestConsentStoreFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.store.FailWith = errors.New("connection refused")

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Zero(t, f.provider.callCount())
	assert.Empty(t, f.sink.kinds())
}

func TestLedgerFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.grantOngoing(t, 1, 10)
	f.ledger.FailWith = errors.New("connection refused")

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Zero(t, f.provider.callCount())
}

func TestAuditFailureDoesNotBreakOutcome(t *testing.T) {
	f := newFixture(t)
	f.grantOngoing(t, 1, 10)
	f.sink.FailWith = errors.New("sink down")

	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, out.Status)
}

func TestSessionGrantUnblocksGeneration(t *testing.T) {
	f := newFixture(t)

	// No decision yet: blocked.
	out, err := f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeBlocked, out.Status)
	require.Equal(t, models.BlockNotConsented, out.BlockReason)

	_, err = f.machine.RecordDecision(context.Background(), consent.DecisionInput{
		PatientID: 1, PractitionerID: 10,
		Scope: models.ScopeSessionOnly, Method: models.MethodVerbal,
		SessionID: "sess-1",
	})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	out, err = f.orch.Execute(context.Background(), followUpRequest())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSucceeded, out.Status)
	require.NotNil(t, out.Result)
	assert.NotNil(t, out.Result.Entities)
	assert.Greater(t, out.CompletenessScore, 0)
}
