// Package score assigns a deterministic relevance score to canonical
// artifacts. No model calls, no randomness: regex catalogs, engagement
// heuristics, and a body-quality band, clamped to [0,100].
package score

import "regexp"

// Pattern is one scored regex. Each pattern contributes its delta at most
// once per artifact regardless of how often it matches.
type Pattern struct {
	Expr  string
	Delta int

	re *regexp.Regexp
}

// Category groups enterprise-pain patterns under a shared cap. The cap
// keeps a text that spams one theme from saturating the whole score.
type Category struct {
	Name     string
	Cap      int
	Patterns []Pattern
}

// RuleSet is an immutable, versioned scoring catalog. Callers treat a
// RuleSet as read-only after Compile; scores are reproducible for a given
// (artifact, ruleset version) pair.
type RuleSet struct {
	Version    string
	Baseline   int
	Threshold  int
	HighSignal []Pattern
	Enterprise []Category
	LowSignal  []Pattern
}

// Compile prepares every pattern for matching. Patterns compile
// case-insensitively. Compile must be called before Score; DefaultRules
// returns an already-compiled set.
func (rs *RuleSet) Compile() error {
	compile := func(ps []Pattern) error {
		for i := range ps {
			re, err := regexp.Compile("(?i)" + ps[i].Expr)
			if err != nil {
				return err
			}
			ps[i].re = re
		}
		return nil
	}
	if err := compile(rs.HighSignal); err != nil {
		return err
	}
	for i := range rs.Enterprise {
		if err := compile(rs.Enterprise[i].Patterns); err != nil {
			return err
		}
	}
	return compile(rs.LowSignal)
}

var defaultRules *RuleSet

func init() {
	defaultRules = buildDefaultRules()
	if err := defaultRules.Compile(); err != nil {
		panic("score: default rules do not compile: " + err.Error())
	}
}

// DefaultRules returns the compiled built-in catalog. The returned set is
// shared and must not be mutated.
func DefaultRules() *RuleSet { return defaultRules }

func buildDefaultRules() *RuleSet {
	return &RuleSet{
		Version:   "2026.2",
		Baseline:  20,
		Threshold: 40,

		HighSignal: []Pattern{
			// Breaking changes and migrations.
			{Expr: `\bbreaking\s+change`, Delta: 25},
			{Expr: `\bdeprecate[ds]?\b`, Delta: 20},
			{Expr: `\bmigrat(e|ion|ing)\b`, Delta: 15},
			{Expr: `\bremov(e[ds]?|ing)\b.{0,30}\b(api|support|feature)`, Delta: 15},
			{Expr: `\bend[- ]?of[- ]?life\b`, Delta: 20},

			// Failures and rollbacks.
			{Expr: `\broll(ed)?\s*back\b`, Delta: 25},
			{Expr: `\breverted?\b`, Delta: 20},
			{Expr: `\bpost[- ]?mortem\b`, Delta: 30},
			{Expr: `\bincident\s+(report|review)\b`, Delta: 25},
			{Expr: `\boutage\b`, Delta: 20},
			{Expr: `\bfail(ed|ure|ing)\b`, Delta: 10},
			{Expr: `\bregression\b`, Delta: 15},

			// Rewrites and major changes.
			{Expr: `\brewrit(e|ten|ing)\b`, Delta: 15},
			{Expr: `\brearchitect`, Delta: 15},
			{Expr: `\bfrom\s+scratch\b`, Delta: 10},
			{Expr: `\bmajor\s+(version|release|update)\b`, Delta: 10},
			{Expr: `\bv\d+\.0\.0\b`, Delta: 10},

			// Pain signals.
			{Expr: `\bfrustrat(ed|ing|ion)\b`, Delta: 10},
			{Expr: `\bworkaround\b`, Delta: 10},
			{Expr: `\bbug\b.*\b(critical|severe|major)\b`, Delta: 15},
			{Expr: `\bsecurity\s+(vulnerabilit|advis|patch|fix)`, Delta: 20},
			{Expr: `\bCVE-\d{4}`, Delta: 20},

			// Performance and scaling.
			{Expr: `\bperformance\s+(regression|degradation|issue)`, Delta: 15},
			{Expr: `\bmemory\s+leak\b`, Delta: 15},
			{Expr: `\b\d+x\s+(faster|slower)\b`, Delta: 10},

			// Technical depth.
			{Expr: `\bbenchmark`, Delta: 8},
			{Expr: `\barchitecture\s+decision\b`, Delta: 10},
			{Expr: `\blessons?\s+learned\b`, Delta: 15},
			{Expr: `\bwhy\s+we\s+(chose|switched|moved|left|abandoned)\b`, Delta: 15},
		},

		Enterprise: []Category{
			{Name: "wishes", Cap: 35, Patterns: []Pattern{
				{Expr: `\bi\s+wish\s+(there\s+was|there\s+were|we\s+had|we\s+could)\b`, Delta: 15},
				{Expr: `\bi\s+wish\s+\w+\s+had\b`, Delta: 20},
				{Expr: `\bwhy\s+(doesn't|can't|won't|isn't)\b`, Delta: 10},
				{Expr: `\bfeature\s+request\b`, Delta: 15},
				{Expr: `\bwould\s+be\s+(great|nice|helpful|awesome)\s+(if|to)\b`, Delta: 10},
				{Expr: `\bmissing\s+feature\b`, Delta: 20},
				{Expr: `\bno\s+(way|option|ability)\s+to\b`, Delta: 15},
				{Expr: `\bneeds?\s+(a|an|better)\s+(way|option|tool|solution)\b`, Delta: 15},
				{Expr: `\bcan't\s+believe\s+there's\s+no\b`, Delta: 25},
			}},
			{Name: "cicd", Cap: 35, Patterns: []Pattern{
				{Expr: `\b(github\s+)?actions?\s+(is|are)\s+(slow|broken|flaky|unreliable|painful)`, Delta: 25},
				{Expr: `\bworkflow\s+(is|keeps?)\s+(fail|break|timeout|slow|flaky)`, Delta: 20},
				{Expr: `\bCI\s+(is|keeps?)\s+(slow|flaky|broken|failing|unreliable)`, Delta: 20},
				{Expr: `\bpipeline\s+(is|keeps?)\s+(slow|break|fail|flaky)`, Delta: 15},
				{Expr: `\bactions?\s+(timeout|timed?\s+out)\b`, Delta: 15},
				{Expr: `\brunner\s+(is|are)\s+(slow|unavailable|down)\b`, Delta: 15},
				{Expr: `\bself[- ]hosted\s+runner`, Delta: 10},
				{Expr: `\bworkflow\s+(yaml|yml|syntax|config)\b.*\b(confus|complex|hard|painful)`, Delta: 15},
				{Expr: `\bcache\s+(miss|invalid|not\s+work|broken|slow)\b`, Delta: 15},
				{Expr: `\bartifact\s+(upload|download)\s+(slow|fail|broken|limit)\b`, Delta: 15},
			}},
			{Name: "automation", Cap: 25, Patterns: []Pattern{
				{Expr: `\bmanual(ly)?\s+(approv|review|deploy|merge|tag|release|update|bump)`, Delta: 15},
				{Expr: `\brepetitive\s+(task|step|process|workflow|work)\b`, Delta: 15},
				{Expr: `\btoil\b`, Delta: 10},
				{Expr: `\bautomat(e|ion|ically)\b.*\b(wish|should|want|need|could)\b`, Delta: 15},
				{Expr: `\bbot\s+(that|to|for|which)\s+\w+`, Delta: 10},
			}},
			{Name: "code-review", Cap: 35, Patterns: []Pattern{
				{Expr: `\bcode\s+review\s+(is|takes?|slow|painful|bottleneck|broken|tedious)`, Delta: 25},
				{Expr: `\bPR\s+(review|approval)\s+(is|takes?|slow|blocked|bottleneck|waiting)`, Delta: 25},
				{Expr: `\breview\s+fatigue\b`, Delta: 20},
				{Expr: `\bstale\s+PRs?\b`, Delta: 15},
				{Expr: `\bmerge\s+(conflicts?|queue|hell|nightmare)\b`, Delta: 15},
				{Expr: `\bchecks?\s+(are|is)\s+(slow|redundant|flaky|failing)\b`, Delta: 15},
				{Expr: `\bCODEOWNERS\b.*\b(broken|doesn't|wrong|confus|limit|problem|issue|pain)`, Delta: 20},
				{Expr: `\bCODEOWNERS\b`, Delta: 10},
				{Expr: `\bauto[- ]?merge\b`, Delta: 10},
				{Expr: `\bmerge\s+queue\b`, Delta: 10},
			}},
			{Name: "security", Cap: 35, Patterns: []Pattern{
				{Expr: `\bzero[- ]day\b`, Delta: 25},
				{Expr: `\bcritical\s+vulnerabilit`, Delta: 25},
				{Expr: `\bransomware\b`, Delta: 15},
				{Expr: `\bpatch\s+management\b`, Delta: 20},
				{Expr: `\bsecurity\s+(posture|baseline|hardening)\b`, Delta: 15},
				{Expr: `\bthreat\s+(model|detection|intelligence)\b`, Delta: 15},
				{Expr: `\bpenetration\s+test`, Delta: 10},
				{Expr: `\bsecurity\s+audit\b`, Delta: 20},
				{Expr: `\bincident\s+response\b`, Delta: 15},
				{Expr: `\bvulnerability\s+(manage|scan|remediat|priorit)`, Delta: 15},
			}},
			{Name: "compliance", Cap: 35, Patterns: []Pattern{
				{Expr: `\bSOC\s*2\b`, Delta: 20},
				{Expr: `\bSOC\s*[12]\s+type\s+[12]\b`, Delta: 25},
				{Expr: `\bISO\s*27001\b`, Delta: 20},
				{Expr: `\bHIPAA\b`, Delta: 20},
				{Expr: `\bGDPR\b`, Delta: 15},
				{Expr: `\bFedRAMP\b`, Delta: 20},
				{Expr: `\bPCI[- ]DSS\b`, Delta: 20},
				{Expr: `\bcompliance\s+(automation|drift|monitoring|report|check|audit|gap|requirement|polic)`, Delta: 20},
				{Expr: `\baudit\s+(trail|log|evidence|report)\b`, Delta: 15},
				{Expr: `\bpolicy[- ]as[- ]code\b`, Delta: 20},
				{Expr: `\bregulatory\s+(compliance|requirement)\b`, Delta: 15},
				{Expr: `\bcompliance\s+(violation|finding)\b`, Delta: 20},
			}},
			{Name: "iac", Cap: 30, Patterns: []Pattern{
				{Expr: `\bterraform\b.*\b(drift|state|pain|broken|slow|issue|problem)\b`, Delta: 15},
				{Expr: `\bterraform\b`, Delta: 8},
				{Expr: `\binfrastructure[- ]as[- ]code\b`, Delta: 10},
				{Expr: `\bIaC\b`, Delta: 10},
				{Expr: `\bkubernetes\b.*\b(pain|complex|hard|config|security|cost)\b`, Delta: 15},
				{Expr: `\bk8s\b.*\b(pain|complex|hard|config|security|cost)\b`, Delta: 15},
				{Expr: `\bhelm\b.*\b(chart|pain|complex|broken)\b`, Delta: 10},
				{Expr: `\bansible\b.*\b(pain|slow|complex|broken)\b`, Delta: 10},
				{Expr: `\bconfiguration\s+(drift|management|sprawl)\b`, Delta: 15},
				{Expr: `\bcloud\s+(cost|spend|waste|optimization|governance)\b`, Delta: 15},
				{Expr: `\bFinOps\b`, Delta: 15},
				{Expr: `\bcloud\s+native\b.*\b(security|compliance|governance)\b`, Delta: 10},
			}},
			{Name: "observability", Cap: 30, Patterns: []Pattern{
				{Expr: `\bobservability\b`, Delta: 10},
				{Expr: `\bmonitoring\s+(gap|blind\s+spot|alert\s+fatigue)\b`, Delta: 15},
				{Expr: `\balert\s+fatigue\b`, Delta: 20},
				{Expr: `\bon[- ]call\s+(rotation|burden|fatigue|pain)\b`, Delta: 15},
				{Expr: `\bincident\s+(management|coordination|retrospective)\b`, Delta: 15},
				{Expr: `\bSLO\b.*\b(track|monitor|breach|burn)\b`, Delta: 15},
				{Expr: `\bSLI\b.*\b(defin|measur|track)\b`, Delta: 10},
				{Expr: `\bmean\s+time\s+to\s+(recover|detect|resolve)\b`, Delta: 15},
				{Expr: `\bMTTR\b`, Delta: 10},
			}},
			{Name: "secrets", Cap: 30, Patterns: []Pattern{
				{Expr: `\bsecrets?\s+(leak|expos|rotat|scan|detect|manage)`, Delta: 20},
				{Expr: `\bsecrets?\s+management\b`, Delta: 15},
				{Expr: `\bvault\b.*\b(pain|complex|config|issue)\b`, Delta: 10},
				{Expr: `\bsecret\s+rotation\b`, Delta: 15},
				{Expr: `\bcredential\s+(leak|rotat|manag|sprawl)\b`, Delta: 15},
				{Expr: `\bAPI\s+key\s+(rotat|manag|leak|expos)\b`, Delta: 15},
			}},
			{Name: "supply-chain", Cap: 35, Patterns: []Pattern{
				{Expr: `\bSBOM\b`, Delta: 15},
				{Expr: `\bsupply\s+chain\s+(security|attack|risk|integrity)`, Delta: 20},
				{Expr: `\bdependency\s+(confusion|hijack)\b`, Delta: 20},
				{Expr: `\bpackage\s+(integrity|provenance|signing)\b`, Delta: 15},
				{Expr: `\bSLSA\b`, Delta: 15},
				{Expr: `\bsoftware\s+composition\s+analysis\b`, Delta: 15},
				{Expr: `\bSCA\b.*\b(tool|scan|result)\b`, Delta: 10},
				{Expr: `\bdependency\s+(vulnerabilit|audit|scan|update|hell|management)`, Delta: 20},
				{Expr: `\blicense\s+(compliance|check|scan|violation|audit)`, Delta: 15},
				{Expr: `\bsecret\s+scanning\b.*\b(miss|false|limit|doesn't|not\s+enough)`, Delta: 20},
				{Expr: `\bdependabot\b.*\b(slow|noisy|miss|doesn't|broken|limit|annoying)`, Delta: 20},
			}},
			{Name: "access", Cap: 25, Patterns: []Pattern{
				{Expr: `\baccess\s+(control|management|review|governance)\b`, Delta: 15},
				{Expr: `\bprivilege\s+(escalation|management|creep)\b`, Delta: 20},
				{Expr: `\bleast\s+privilege\b`, Delta: 15},
				{Expr: `\bIAM\b.*\b(complex|pain|audit|review)\b`, Delta: 15},
				{Expr: `\bSSO\b.*\b(integration|pain|issue|broken)\b`, Delta: 10},
				{Expr: `\bRBAC\b`, Delta: 10},
			}},
			{Name: "testing", Cap: 30, Patterns: []Pattern{
				{Expr: `\bflaky\s+test`, Delta: 20},
				{Expr: `\btest\s+(coverage|gap|flak|automation|infrastructure)\b`, Delta: 15},
				{Expr: `\btesting\s+(pain|bottleneck|slow|manual|burden)\b`, Delta: 15},
				{Expr: `\bcode\s+quality\b.*\b(enforce|automat|gate|check)\b`, Delta: 15},
				{Expr: `\bstatic\s+analysis\b`, Delta: 10},
				{Expr: `\bSAST\b`, Delta: 10},
				{Expr: `\bDAST\b`, Delta: 10},
				{Expr: `\btechnical\s+debt\b`, Delta: 10},
				{Expr: `\bcode\s+coverage\b.*\b(enforce|requir|gate|low)\b`, Delta: 15},
			}},
			{Name: "productivity", Cap: 30, Patterns: []Pattern{
				{Expr: `\bdeveloper\s+productivity\b`, Delta: 10},
				{Expr: `\bengineering\s+velocity\b`, Delta: 10},
				{Expr: `\bdeveloper\s+(platform|portal|self[- ]service)\b`, Delta: 15},
				{Expr: `\bplatform\s+engineering\b`, Delta: 15},
				{Expr: `\binternal\s+developer\s+platform\b`, Delta: 15},
				{Expr: `\bgolden\s+path\b`, Delta: 10},
				{Expr: `\bdeploy\s+(frequency|lead\s+time|time)\b`, Delta: 10},
				{Expr: `\bDORA\s+metrics\b`, Delta: 20},
				{Expr: `\bdeveloper\s+experience\b`, Delta: 10},
				{Expr: `\bDX\b\s+(is|sucks|poor|bad|terrible|awful|needs)`, Delta: 20},
				{Expr: `\bonboarding\s+(is|takes?|slow|painful|difficult|hard|complex)`, Delta: 15},
				{Expr: `\bdev\s+(environment|setup|config)\s+(is|takes?|painful|slow|broken|complex)`, Delta: 15},
			}},
			{Name: "integration", Cap: 30, Patterns: []Pattern{
				{Expr: `\b(doesn't|don't|can't|no)\s+(integrat|connect|sync|work\s+with)\b`, Delta: 20},
				{Expr: `\bmissing\s+integration\b`, Delta: 20},
				{Expr: `\b(jira|linear|notion|slack|teams|discord)\s+(integration|sync|connect|bridge)`, Delta: 15},
				{Expr: `\bno\s+(native|built[- ]?in)\s+(support|integration|feature)\b`, Delta: 20},
				{Expr: `\bAPI\s+(limitation|missing|gap|doesn't|insufficient|rate\s+limit)`, Delta: 15},
				{Expr: `\bwebhooks?\s+(missing|unreliable|limitation|delay|broken)`, Delta: 15},
			}},
			{Name: "monorepo", Cap: 25, Patterns: []Pattern{
				{Expr: `\bmonorepo\b.*\b(pain|slow|problem|issue|hard|scale|limit|doesn't)`, Delta: 15},
				{Expr: `\bmonorepo\b`, Delta: 8},
				{Expr: `\bcode\s+own(er|ership)\b.*\b(confus|broken|limit|doesn't|wrong|pain)`, Delta: 15},
				{Expr: `\blarge\s+(repo|repository|codebase)\b.*\b(slow|pain|problem|scale)`, Delta: 15},
			}},
			{Name: "notifications", Cap: 20, Patterns: []Pattern{
				{Expr: `\bnotifications?\s+(noise|overload|flood|too\s+many|useless|overwhelm)`, Delta: 20},
			}},
			{Name: "release", Cap: 20, Patterns: []Pattern{
				{Expr: `\brelease\s+(process|management|automation)\b.*\b(pain|manual|tedious|complex)`, Delta: 15},
				{Expr: `\bchangelog\s+(generat|automat|maintain)\b`, Delta: 10},
				{Expr: `\brelease\s+notes?\b.*\b(manual|automat|generat|tedious)`, Delta: 10},
			}},
		},

		LowSignal: []Pattern{
			// Marketing and hype.
			{Expr: `\bexcited\s+to\s+announce\b`, Delta: -15},
			{Expr: `\bgame[- ]?changer\b`, Delta: -20},
			{Expr: `\brevolution(ary|ize)\b`, Delta: -15},
			{Expr: `\bunlock\s+(the\s+)?power\b`, Delta: -15},
			{Expr: `\b10x\s+(developer|engineer|productivity)\b`, Delta: -20},
			{Expr: `\bsynerg`, Delta: -20},
			{Expr: `\bdelighted\b`, Delta: -10},

			// Engagement bait.
			{Expr: `\bthis\s+is\s+huge\b`, Delta: -10},
			{Expr: `\byou\s+won't\s+believe\b`, Delta: -20},
			{Expr: `\bmind[- ]?blow(n|ing)\b`, Delta: -15},
			{Expr: `\bhot\s+take\b`, Delta: -10},

			// Generic opinion.
			{Expr: `\bmy\s+thoughts\s+on\b`, Delta: -5},
			{Expr: `\bunpopular\s+opinion\b`, Delta: -10},

			// Hiring posts.
			{Expr: `\bwe're\s+hiring\b`, Delta: -15},
			{Expr: `\bjoin\s+our\s+team\b`, Delta: -15},

			// Self-promotion.
			{Expr: `\bcheck\s+out\s+my\s+(app|action|tool|project|extension)\b`, Delta: -20},
			{Expr: `\bjust\s+(published|released|launched|shipped)\s+(my|our|a)\s+(app|action|tool)\b`, Delta: -15},
			{Expr: `\bintroducing\s+(my|our)\s+(new\s+)?(app|action|tool)\b`, Delta: -15},
			{Expr: `\bshow\s+HN\b`, Delta: -5},

			// Testimonials.
			{Expr: `\b(love|loving)\s+(this|the)\s+(tool|app|action)\b`, Delta: -10},
			{Expr: `\bbest\s+(tool|app|action)\s+(I've|ever)\b`, Delta: -10},

			// Tutorial content.
			{Expr: `\bstep[- ]by[- ]step\s+(guide|tutorial)\b`, Delta: -10},
			{Expr: `\bbeginner'?s?\s+guide\b`, Delta: -10},
		},
	}
}
