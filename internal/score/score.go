package score

import (
	"sort"
	"strings"

	"github.com/happycoding7/signal-extract/internal/canon"
)

// Score computes the deterministic score of a in [0,100] under rules.
// The same artifact and ruleset always produce the same score.
func Score(a *canon.Artifact, rules *RuleSet) int {
	text := a.Title + "\n" + a.Body

	total := rules.Baseline
	total += patternScore(text, rules)
	total += engagementScore(a)
	total += bodyQualityScore(a.Body)

	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

// Keep reports whether s clears the ruleset threshold. The threshold is
// inclusive: an artifact scoring exactly Threshold is kept.
func Keep(s int, rules *RuleSet) bool { return s >= rules.Threshold }

// Filter scores artifacts, drops those below the threshold, and returns
// the keepers with their scores, highest first. The sort is stable so
// equal scores keep input order.
func Filter(artifacts []*canon.Artifact, rules *RuleSet) ([]*canon.Artifact, []int) {
	type scored struct {
		a *canon.Artifact
		s int
	}
	kept := make([]scored, 0, len(artifacts))
	for _, a := range artifacts {
		s := Score(a, rules)
		if Keep(s, rules) {
			kept = append(kept, scored{a, s})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].s > kept[j].s })

	out := make([]*canon.Artifact, len(kept))
	scores := make([]int, len(kept))
	for i, k := range kept {
		out[i] = k.a
		scores[i] = k.s
	}
	return out, scores
}

func patternScore(text string, rules *RuleSet) int {
	total := 0
	for i := range rules.HighSignal {
		if rules.HighSignal[i].re.MatchString(text) {
			total += rules.HighSignal[i].Delta
		}
	}
	for ci := range rules.Enterprise {
		cat := &rules.Enterprise[ci]
		sum := 0
		for i := range cat.Patterns {
			if cat.Patterns[i].re.MatchString(text) {
				sum += cat.Patterns[i].Delta
			}
		}
		if sum > cat.Cap {
			sum = cat.Cap
		}
		total += sum
	}
	for i := range rules.LowSignal {
		if rules.LowSignal[i].re.MatchString(text) {
			total += rules.LowSignal[i].Delta
		}
	}
	return total
}

var highSignalLabels = map[string]bool{
	"bug": true, "breaking": true, "regression": true,
	"security": true, "critical": true,
}

var opportunityLabels = map[string]bool{
	"enhancement": true, "feature-request": true, "feature": true,
	"feature request": true, "help-wanted": true, "help wanted": true,
	"proposal": true, "rfc": true,
}

var ideaCategories = map[string]bool{
	"ideas": true, "feature request": true, "feature requests": true,
	"feedback": true, "feature": true, "enhancements": true,
}

// engagementScore reads source-specific engagement metadata. Each band is
// monotonic: more reactions, upvotes, points, or severity never lowers
// the score.
func engagementScore(a *canon.Artifact) int {
	meta := a.Metadata
	s := 0

	switch a.Source {
	case canon.SourceGitHubIssue:
		reactions, _ := canon.MetaInt(meta, "reactions")
		comments, _ := canon.MetaInt(meta, "comments")
		s += minInt(reactions/5, 15)
		s += minInt(comments/3, 10)
		labels := canon.MetaStrings(meta, "labels")
		if anyLabel(labels, highSignalLabels) {
			s += 15
		}
		if anyLabel(labels, opportunityLabels) {
			s += 10
		}

	case canon.SourceGitHubRelease:
		if pre, _ := canon.MetaBool(meta, "prerelease"); pre {
			s -= 5
		}

	case canon.SourceGitHubDiscussion:
		upvotes, _ := canon.MetaInt(meta, "upvotes")
		comments, _ := canon.MetaInt(meta, "comments")
		s += minInt(upvotes/3, 20)
		s += minInt(comments/5, 10)
		// Unanswered with real traction reads as an unmet need.
		if ans, ok := canon.MetaBool(meta, "answered"); ok && !ans && upvotes >= 10 {
			s += 15
		}
		if cat, _ := canon.MetaString(meta, "category"); ideaCategories[strings.ToLower(cat)] {
			s += 10
		}
		if anyLabel(canon.MetaStrings(meta, "labels"), opportunityLabels) {
			s += 10
		}

	case canon.SourceHackerNews:
		points, _ := canon.MetaInt(meta, "score")
		comments, _ := canon.MetaInt(meta, "comments")
		s += minInt(points/50, 15)
		s += minInt(comments/30, 10)
		if kw, _ := canon.MetaString(meta, "search_keyword"); kw != "" {
			s += 5
		}

	case canon.SourceNVD:
		cvss, _ := canon.MetaFloat(meta, "cvss_score")
		switch {
		case cvss >= 9.0:
			s += 20
		case cvss >= 7.0:
			s += 15
		case cvss >= 4.0:
			s += 5
		}
	}
	return s
}

// bodyQualityScore rewards substantive content and penalizes near-empty
// bodies.
func bodyQualityScore(body string) int {
	n := len(strings.TrimSpace(body))
	switch {
	case n < 50:
		return -10
	case n < 200:
		return 0
	case n < 1000:
		return 5
	default:
		return 10
	}
}

func anyLabel(labels []string, set map[string]bool) bool {
	for _, l := range labels {
		if set[strings.ToLower(l)] {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
