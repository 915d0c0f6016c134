// Package validator enforces the downstream contract on the loosely
// structured data the model returns. It never rejects a payload: every
// missing or malformed field is healed with a deterministic default and
// reported as a correction, so a degraded response stays usable and the
// degradation stays observable. Transport failures are the orchestrator's
// strict business; the two must not be mixed.
package validator

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"backend/models"
)

//go:embed schema.json
var schemaJSON string

var analysisSchema = jsonschema.MustCompileString("analysis.schema.json", schemaJSON)

// requiredFields in scoring order. summary is optional and not scored.
var requiredFields = []string{
	"chief_complaint",
	"red_flags",
	"entities",
	"physical_tests",
	"plan_documented",
}

// placeholder used when the model documented no chief complaint.
const missingComplaint = "Not documented"

// Correction records one healed field.
type Correction struct {
	Field   string `json:"field"`
	Applied string `json:"applied"`
}

// Result is the corrected structure plus its completeness accounting.
type Result struct {
	Data              models.ClinicalAnalysis `json:"data"`
	CompletenessScore int                     `json:"completeness_score"`
	Corrections       []Correction            `json:"corrections"`
}

// ValidateAndCorrect normalizes a raw model payload into the contract shape.
// The completeness score is the percentage of required fields that were
// present and well-typed before healing.
func ValidateAndCorrect(raw string) Result {
	obj, extracted := extractObject(raw)

	res := Result{Corrections: []Correction{}}
	if obj == nil {
		// Nothing usable at all: default every field.
		res.Data = defaultAnalysis()
		for _, f := range requiredFields {
			res.Corrections = append(res.Corrections, Correction{Field: f, Applied: "defaulted: payload was not a JSON object"})
		}
		return res
	}
	if !extracted {
		res.Corrections = append(res.Corrections, Correction{Field: "", Applied: "extracted JSON object from surrounding text"})
	}

	// Fast path: a payload the schema accepts decodes directly.
	if err := analysisSchema.Validate(obj); err == nil {
		if data, ok := decodeStrict(obj); ok {
			res.Data = data
			res.CompletenessScore = 100
			return res
		}
	}

	present := 0

	if s, ok := obj["chief_complaint"].(string); ok && s != "" {
		res.Data.ChiefComplaint = s
		present++
	} else {
		res.Data.ChiefComplaint = missingComplaint
		res.Corrections = append(res.Corrections, Correction{Field: "chief_complaint", Applied: "defaulted to placeholder"})
	}

	if list, ok := stringList(obj["red_flags"]); ok {
		res.Data.RedFlags = list
		present++
	} else {
		res.Data.RedFlags = []string{}
		res.Corrections = append(res.Corrections, Correction{Field: "red_flags", Applied: "defaulted to empty list"})
	}

	if ents, ok := entityList(obj["entities"]); ok {
		res.Data.Entities = ents
		present++
	} else {
		res.Data.Entities = []models.ClinicalEntity{}
		res.Corrections = append(res.Corrections, Correction{Field: "entities", Applied: "defaulted to empty list"})
	}

	if list, ok := stringList(obj["physical_tests"]); ok {
		res.Data.PhysicalTests = list
		present++
	} else {
		res.Data.PhysicalTests = []string{}
		res.Corrections = append(res.Corrections, Correction{Field: "physical_tests", Applied: "defaulted to empty list"})
	}

	if b, ok := obj["plan_documented"].(bool); ok {
		res.Data.PlanDocumented = b
		present++
	} else {
		res.Data.PlanDocumented = false
		res.Corrections = append(res.Corrections, Correction{Field: "plan_documented", Applied: "defaulted to false"})
	}

	if s, ok := obj["summary"].(string); ok {
		res.Data.Summary = s
	}

	res.CompletenessScore = present * 100 / len(requiredFields)
	return res
}

func defaultAnalysis() models.ClinicalAnalysis {
	return models.ClinicalAnalysis{
		ChiefComplaint: missingComplaint,
		RedFlags:       []string{},
		Entities:       []models.ClinicalEntity{},
		PhysicalTests:  []string{},
	}
}

// extractObject parses the raw payload as a JSON object, falling back to the
// outermost {...} span when the model wrapped the JSON in prose. The second
// return is true when the payload parsed as-is.
func extractObject(raw string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, true
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, false
}

func decodeStrict(obj map[string]any) (models.ClinicalAnalysis, bool) {
	var data models.ClinicalAnalysis
	b, err := json.Marshal(obj)
	if err != nil {
		return data, false
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return data, false
	}
	if data.RedFlags == nil {
		data.RedFlags = []string{}
	}
	if data.Entities == nil {
		data.Entities = []models.ClinicalEntity{}
	}
	if data.PhysicalTests == nil {
		data.PhysicalTests = []string{}
	}
	return data, true
}

func stringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func entityList(v any) ([]models.ClinicalEntity, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]models.ClinicalEntity, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, false
		}
		text, ok1 := m["text"].(string)
		category, ok2 := m["category"].(string)
		if !ok1 || !ok2 {
			return nil, false
		}
		out = append(out, models.ClinicalEntity{Text: text, Category: category})
	}
	return out, true
}
