package synth

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```(?:json)?\\s*\n?")

// extractJSONArray pulls the outermost JSON array out of model output,
// tolerating code fences and surrounding prose.
func extractJSONArray(text string) (string, error) {
	text = strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))

	start := strings.IndexByte(text, '[')
	if start == -1 {
		return "", fmt.Errorf("no JSON array found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced brackets in JSON array")
}

// rawOpportunity is the wire shape the model is asked to produce.
type rawOpportunity struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Pain             string        `json:"pain"`
	TargetBuyer      string        `json:"target_buyer"`
	SolutionShape    string        `json:"solution_shape"`
	MarketType       string        `json:"market_type"`
	EffortEstimate   string        `json:"effort_estimate"`
	Monetization     string        `json:"monetization"`
	Moat             string        `json:"moat"`
	Confidence       *float64      `json:"confidence"`
	Evidence         []rawEvidence `json:"evidence"`
	CompetitionNotes string        `json:"competition_notes"`
}

type rawEvidence struct {
	Identity  string  `json:"identity"`
	Source    string  `json:"source"`
	ItemTitle string  `json:"item_title"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var validEfforts = map[string]bool{
	"weekend":   true,
	"1-2 weeks": true,
	"month+":    true,
}

// validateOpportunity returns every problem with one raw opportunity.
func validateOpportunity(r *rawOpportunity) []string {
	var errs []string
	required := []struct{ name, value string }{
		{"id", r.ID},
		{"title", r.Title},
		{"pain", r.Pain},
		{"target_buyer", r.TargetBuyer},
		{"solution_shape", r.SolutionShape},
		{"market_type", r.MarketType},
		{"effort_estimate", r.EffortEstimate},
		{"monetization", r.Monetization},
		{"moat", r.Moat},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, "missing or empty required field: "+f.name)
		}
	}

	if r.ID != "" && !slugRe.MatchString(r.ID) {
		errs = append(errs, fmt.Sprintf("id %q is not a kebab-case slug", r.ID))
	}
	if r.EffortEstimate != "" && !validEfforts[r.EffortEstimate] {
		errs = append(errs, fmt.Sprintf("effort_estimate must be one of weekend, 1-2 weeks, month+; got %q", r.EffortEstimate))
	}
	if r.Confidence == nil {
		errs = append(errs, "missing field: confidence")
	} else if *r.Confidence < 0 || *r.Confidence > 100 {
		errs = append(errs, fmt.Sprintf("confidence must be 0-100, got %v", *r.Confidence))
	}

	if len(r.Evidence) == 0 {
		errs = append(errs, "evidence array must have at least 1 entry")
	}
	for i, ev := range r.Evidence {
		for _, f := range []struct{ name, value string }{
			{"identity", ev.Identity},
			{"source", ev.Source},
			{"item_title", ev.ItemTitle},
			{"url", ev.URL},
		} {
			if strings.TrimSpace(f.value) == "" {
				errs = append(errs, fmt.Sprintf("evidence[%d] missing field: %s", i, f.name))
			}
		}
	}
	return errs
}

// parseOpportunities decodes and validates the model's JSON array. Any
// invalid element fails the whole batch; a partial run is worse than no
// run because trend history would silently lose slugs.
func parseOpportunities(raw string) ([]*rawOpportunity, error) {
	jsonStr, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var data []*rawOpportunity
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return nil, fmt.Errorf("decode opportunities: %w", err)
	}

	var all []string
	for i, r := range data {
		if r == nil {
			all = append(all, fmt.Sprintf("item %d: expected object", i))
			continue
		}
		if errs := validateOpportunity(r); len(errs) > 0 {
			all = append(all, fmt.Sprintf("item %d (%s): %s", i, r.ID, strings.Join(errs, "; ")))
		}
	}
	if len(all) > 0 {
		return nil, fmt.Errorf("validation failed:\n%s", strings.Join(all, "\n"))
	}
	return data, nil
}
