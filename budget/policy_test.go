package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownClassifications(t *testing.T) {
	cases := map[string]int{
		"initial_assessment":  8,
		"follow_up":           4,
		"incident_assessment": 8,
		"certificate":         2,
	}
	for name, units := range cases {
		a := Lookup(name)
		assert.Equal(t, name, a.Classification)
		assert.Equal(t, units, a.Units, name)
		assert.Equal(t, units*TokensPerUnit, a.MaxTokens(), name)
		assert.NotEmpty(t, a.Template, name)
	}
}

func TestLookupUnknownFallsBackToSmallestTier(t *testing.T) {
	a := Lookup("telepathy_session")
	assert.Equal(t, "certificate", a.Classification)
	assert.Equal(t, 2, a.Units)
}

func TestPromptAppendsTranscript(t *testing.T) {
	a := Lookup("follow_up")
	p := a.Prompt("Patient reports less pain this week.")
	require.True(t, strings.HasSuffix(p, "\n\nTranscript:\nPatient reports less pain this week."))
	assert.True(t, strings.HasPrefix(p, strings.TrimRight(a.Template, "\n")))
}

func TestClassificationsSorted(t *testing.T) {
	names := Classifications()
	require.Len(t, names, 4)
	assert.Equal(t, []string{"certificate", "follow_up", "incident_assessment", "initial_assessment"}, names)
}
