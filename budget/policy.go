// Package budget maps a session classification to its token allowance and
// prompt template. Pure lookup, no I/O at request time: the side table is
// embedded and parsed once.
package budget

import (
	_ "embed"
	"log"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokensPerUnit converts ledger units into the max_tokens sent to the
// provider.
const TokensPerUnit = 1024

//go:embed budgets.yaml
var budgetsYAML []byte

// Allowance is the resolved budget for one classification.
type Allowance struct {
	Classification string
	Units          int
	Template       string
}

// MaxTokens is the model output ceiling for this allowance.
func (a Allowance) MaxTokens() int {
	return a.Units * TokensPerUnit
}

// Prompt combines the classification template with the encounter transcript.
func (a Allowance) Prompt(transcript string) string {
	return strings.TrimRight(a.Template, "\n") + "\n\nTranscript:\n" + transcript
}

type tableEntry struct {
	Units    int    `yaml:"units"`
	Template string `yaml:"template"`
}

type tableFile struct {
	Fallback        string                `yaml:"fallback"`
	Classifications map[string]tableEntry `yaml:"classifications"`
}

var (
	table    map[string]tableEntry
	fallback string
)

func init() {
	var f tableFile
	if err := yaml.Unmarshal(budgetsYAML, &f); err != nil {
		log.Fatalf("budget: parsing embedded budget table: %v", err)
	}
	if len(f.Classifications) == 0 {
		log.Fatal("budget: embedded budget table is empty")
	}
	table = f.Classifications
	fallback = f.Fallback
	if _, ok := table[fallback]; !ok {
		// The table must always have a conservative tier to fall back to:
		// pick the smallest non-zero budget.
		fallback = smallestTier()
	}
}

func smallestTier() string {
	best := ""
	for name, e := range table {
		if e.Units <= 0 {
			continue
		}
		if best == "" || e.Units < table[best].Units || (e.Units == table[best].Units && name < best) {
			best = name
		}
	}
	return best
}

// Lookup resolves the allowance for a classification. Unrecognized
// classifications fall back to the most conservative tier rather than
// erroring.
func Lookup(classification string) Allowance {
	if e, ok := table[classification]; ok {
		return Allowance{Classification: classification, Units: e.Units, Template: e.Template}
	}
	e := table[fallback]
	return Allowance{Classification: fallback, Units: e.Units, Template: e.Template}
}

// Classifications lists the known classifications, sorted.
func Classifications() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
