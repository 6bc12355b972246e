package store

// Item is one stored artifact. Identity is the positional hash of
// (source, source_id); rows are never updated or deleted.
type Item struct {
	Identity     string `json:"identity"`
	Source       string `json:"source"`
	SourceID     string `json:"source_id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	MetadataJSON string `json:"metadata_json"`
	Score        int    `json:"score"`
	ObservedAt   int64  `json:"observed_at"`
	CollectedAt  int64  `json:"collected_at"`
}

// ItemFilter narrows QueryItems. Zero values mean "no constraint".
type ItemFilter struct {
	Source   string
	MinScore int
	Since    int64 // collected_at lower bound, ms
	Limit    int
	Offset   int
}

// Digest is one synthesized report.
type Digest struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Content     string `json:"content"`
	ItemCount   int    `json:"item_count"`
	Model       string `json:"model"`
	GeneratedAt int64  `json:"generated_at"`
}

// Digest kinds.
const (
	DigestDaily       = "daily"
	DigestWeekly      = "weekly"
	DigestOpportunity = "opportunity"
)

// Run is one structured synthesis pass.
type Run struct {
	ID               int64  `json:"id"`
	DigestID         *int64 `json:"digest_id,omitempty"`
	ItemCount        int    `json:"item_count"`
	OpportunityCount int    `json:"opportunity_count"`
	Model            string `json:"model"`
	GeneratedAt      int64  `json:"generated_at"`
}

// Opportunity is one synthesized opportunity, versioned by (slug, run).
type Opportunity struct {
	Slug             string      `json:"slug"`
	RunID            int64       `json:"run_id"`
	Title            string      `json:"title"`
	Pain             string      `json:"pain"`
	TargetBuyer      string      `json:"target_buyer"`
	SolutionShape    string      `json:"solution_shape"`
	MarketType       string      `json:"market_type"`
	EffortEstimate   string      `json:"effort_estimate"`
	Monetization     string      `json:"monetization"`
	Moat             string      `json:"moat"`
	Confidence       int         `json:"confidence"`
	CompetitionNotes string      `json:"competition_notes"`
	GeneratedAt      int64       `json:"generated_at"`
	Evidence         []*Evidence `json:"evidence"`
}

// Evidence is one item citation attached to an opportunity.
type Evidence struct {
	ID           int64  `json:"id"`
	Slug         string `json:"-"`
	RunID        int64  `json:"-"`
	Source       string `json:"source"`
	ItemTitle    string `json:"item_title"`
	URL          string `json:"url"`
	Score        int    `json:"score"`
	ItemIdentity string `json:"item_identity,omitempty"`
}

// OpportunityFilter narrows QueryOpportunities.
type OpportunityFilter struct {
	MinConfidence int
	Buyer         string
	MarketType    string
	Since         int64 // generated_at lower bound, ms
	Limit         int
	Offset        int
}

// TrendPoint is one (run, confidence) observation for a slug.
type TrendPoint struct {
	RunID       int64 `json:"run_id"`
	Confidence  int   `json:"confidence"`
	GeneratedAt int64 `json:"generated_at"`
}

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendFlat       = "flat"
	TrendNone       = "none"
)

// CollectionLogEntry records one collector pass.
type CollectionLogEntry struct {
	ID           string `json:"id"`
	Collector    string `json:"collector"`
	Status       string `json:"status"`
	RawCount     int    `json:"raw_count"`
	KeptCount    int    `json:"kept_count"`
	StoredCount  int    `json:"stored_count"`
	ErrorMessage string `json:"error_message"`
	RulesVersion string `json:"rules_version"`
	DurationMs   int64  `json:"duration_ms"`
	StartedAt    int64  `json:"started_at"`
}

// Stats holds aggregate database counters.
type Stats struct {
	Items         int            `json:"items"`
	BySource      map[string]int `json:"by_source"`
	Digests       int            `json:"digests"`
	Runs          int            `json:"runs"`
	Opportunities int            `json:"opportunities"`
	LastCollected *int64         `json:"last_collected,omitempty"`
	AvgScore      float64        `json:"avg_score"`
}
