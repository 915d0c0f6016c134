package consent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/audit"
	"backend/models"
)

func newTestMachine() (*Machine, *MemoryStore) {
	store := NewMemoryStore()
	return NewMachine(store, audit.LogSink{}), store
}

func TestRecordDecisionOngoingRequiresSignature(t *testing.T) {
	m, store := newTestMachine()

	_, err := m.RecordDecision(context.Background(), DecisionInput{
		PatientID:      1,
		PractitionerID: 10,
		Scope:          models.ScopeOngoing,
		Method:         models.MethodDigital,
		SignatureText:  "",
	})
	require.ErrorIs(t, err, ErrMissingSignature)

	// Nothing persisted on validation failure.
	rec, err := store.LatestFor(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordDecisionUnknownScope(t *testing.T) {
	m, _ := newTestMachine()

	_, err := m.RecordDecision(context.Background(), DecisionInput{
		PatientID:      1,
		PractitionerID: 10,
		Scope:          "forever",
		Method:         models.MethodDigital,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scope", verr.Field)
}

func TestOngoingGrantAuthorizes(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.RecordDecision(context.Background(), DecisionInput{
		PatientID:      1,
		PractitionerID: 10,
		Scope:          models.ScopeOngoing,
		Method:         models.MethodDigital,
		SignatureText:  "Jane Doe",
		TextVersion:    "v3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusGranted, rec.Status)

	st, err := m.GetStatus(context.Background(), 1, 10, "")
	require.NoError(t, err)
	assert.True(t, st.Authorized)
	assert.Equal(t, models.ScopeOngoing, st.Scope)
	require.NotNil(t, st.GrantedAt)
}

func TestSessionOnlyGrantBoundToSession(t *testing.T) {
	m, _ := newTestMachine()

	_, err := m.RecordDecision(context.Background(), DecisionInput{
		PatientID:      1,
		PractitionerID: 10,
		Scope:          models.ScopeSessionOnly,
		Method:         models.MethodVerbal,
		SessionID:      "sess-42",
	})
	require.NoError(t, err)

	st, err := m.GetStatus(context.Background(), 1, 10, "sess-42")
	require.NoError(t, err)
	assert.True(t, st.Authorized)

	// A different encounter is not covered.
	st, err = m.GetStatus(context.Background(), 1, 10, "sess-43")
	require.NoError(t, err)
	assert.False(t, st.Authorized)
}

func TestSessionOnlyGrantRequiresSession(t *testing.T) {
	m, _ := newTestMachine()

	_, err := m.RecordDecision(context.Background(), DecisionInput{
		PatientID:      1,
		PractitionerID: 10,
		Scope:          models.ScopeSessionOnly,
		Method:         models.MethodVerbal,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session_id", verr.Field)
}

func TestDeclineHardBlocks(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.RecordDecision(context.Background(), DecisionInput{
		PatientID:      1,
		PractitionerID: 10,
		Scope:          models.ScopeDeclined,
		Method:         models.MethodDigital,
		DeclineReasons: []string{"privacy"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, rec.Status)
	assert.Equal(t, []string{"privacy"}, rec.DeclineReasons)

	blocked, err := m.IsHardBlocked(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, blocked)

	st, err := m.GetStatus(context.Background(), 1, 10, "")
	require.NoError(t, err)
	assert.False(t, st.Authorized)

	// The block is per patient, never per account.
	blocked, err = m.IsHardBlocked(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestDeclineWithoutReasonsKeepsEmptySet(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.RecordDecision(context.Background(), DecisionInput{
		PatientID:      1,
		PractitionerID: 10,
		Scope:          models.ScopeDeclined,
		Method:         models.MethodVerbal,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.DeclineReasons)
	assert.Empty(t, rec.DeclineReasons)
}

func TestReversalAfterDecline(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	_, err := m.RecordDecision(ctx, DecisionInput{
		PatientID: 1, PractitionerID: 10,
		Scope: models.ScopeDeclined, Method: models.MethodDigital,
	})
	require.NoError(t, err)

	// Reversal appends a new granted record, it never edits the decline.
	_, err = m.RecordDecision(ctx, DecisionInput{
		PatientID: 1, PractitionerID: 10,
		Scope: models.ScopeOngoing, Method: models.MethodDigital,
		SignatureText: "Jane Doe",
	})
	require.NoError(t, err)

	blocked, err := m.IsHardBlocked(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, blocked)

	st, err := m.GetStatus(ctx, 1, 10, "")
	require.NoError(t, err)
	assert.True(t, st.Authorized)

	// Both decisions stay queryable.
	history, err := m.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ScopeOngoing, history[0].Scope)
	assert.Equal(t, models.ScopeDeclined, history[1].Scope)
}

func TestRevokeWithdrawsGrant(t *testing.T) {
	m, _ := newTestMachine()
	ctx := context.Background()

	_, err := m.RecordDecision(ctx, DecisionInput{
		PatientID: 1, PractitionerID: 10,
		Scope: models.ScopeOngoing, Method: models.MethodDigital,
		SignatureText: "Jane Doe",
	})
	require.NoError(t, err)

	_, err = m.RecordDecision(ctx, DecisionInput{
		PatientID: 1, PractitionerID: 10,
		Scope: models.ScopeOngoing, Method: models.MethodDigital,
		Revoke: true,
	})
	require.NoError(t, err)

	st, err := m.GetStatus(ctx, 1, 10, "")
	require.NoError(t, err)
	assert.False(t, st.Authorized)

	// A revocation is not a decline: no hard block.
	blocked, err := m.IsHardBlocked(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestNoRecordMeansUnset(t *testing.T) {
	m, _ := newTestMachine()

	st, err := m.GetStatus(context.Background(), 99, 10, "")
	require.NoError(t, err)
	assert.False(t, st.Authorized)
	assert.Empty(t, st.Scope)
}

func TestStoreFailureFailsClosed(t *testing.T) {
	store := NewMemoryStore()
	store.FailWith = errors.New("connection refused")
	m := NewMachine(store, audit.LogSink{})

	_, err := m.GetStatus(context.Background(), 1, 10, "")
	require.Error(t, err)

	_, err = m.IsHardBlocked(context.Background(), 1, 10)
	require.Error(t, err)

	// The gate must never silently record a decision on its own.
	_, err = m.RecordDecision(context.Background(), DecisionInput{
		PatientID: 1, PractitionerID: 10,
		Scope: models.ScopeOngoing, Method: models.MethodDigital,
		SignatureText: "Jane Doe",
	})
	require.Error(t, err)
}
