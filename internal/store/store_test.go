package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/happycoding7/signal-extract/dbopen"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func testItem(identity, source, sourceID string, score int) *Item {
	now := time.Now().UnixMilli()
	return &Item{
		Identity: identity, Source: source, SourceID: sourceID,
		URL: "https://example.com/" + sourceID, Title: "title " + sourceID,
		Body: "body", Score: score, ObservedAt: now, CollectedAt: now,
	}
}

func testOpportunity(slug string, confidence int) *Opportunity {
	return &Opportunity{
		Slug: slug, Title: "Title " + slug, Pain: "pain", TargetBuyer: "platform teams",
		SolutionShape: "cli", MarketType: "boring/growing", EffortEstimate: "1-2 weeks",
		Monetization: "subscription", Moat: "data", Confidence: confidence,
		Evidence: []*Evidence{
			{Source: "github_issue", ItemTitle: "ev", URL: "https://example.com", Score: 55, ItemIdentity: "aaaa111122223333"},
		},
	}
}

func TestApplySchema(t *testing.T) {
	// WHAT: Schema creates all tables and is idempotent.
	db := openTestDB(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	for _, table := range []string{"items", "collector_state", "digests",
		"opportunity_runs", "opportunities", "opportunity_evidence", "collection_log"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
	// Additive migration ran.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('opportunity_evidence') WHERE name='item_identity'`).Scan(&count); err != nil || count != 1 {
		t.Fatalf("item_identity column missing (count=%d, err=%v)", count, err)
	}
}

func TestInsertItemIdempotent(t *testing.T) {
	// WHAT: Re-inserting the same identity is a silent no-op.
	// WHY: Collectors re-observe items on every pass.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	it := testItem("id1111aaaa222211", "rss", "guid-1", 50)
	inserted, err := s.InsertItem(ctx, it)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}

	dup := testItem("id1111aaaa222211", "rss", "guid-1", 90)
	dup.Title = "edited later"
	inserted, err = s.InsertItem(ctx, dup)
	if err != nil || inserted {
		t.Fatalf("duplicate insert = %v, %v", inserted, err)
	}

	got, err := s.GetItem(ctx, "id1111aaaa222211")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "title guid-1" || got.Score != 50 {
		t.Fatalf("stored row changed by duplicate: %+v", got)
	}
}

func TestInsertItemIdentityCollision(t *testing.T) {
	// WHAT: The same identity from a different (source, id) pair is fatal.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	if _, err := s.InsertItem(ctx, testItem("samesame00000000", "rss", "a", 10)); err != nil {
		t.Fatal(err)
	}
	_, err := s.InsertItem(ctx, testItem("samesame00000000", "hackernews", "b", 10))
	if !errors.Is(err, ErrIdentityCollision) {
		t.Fatalf("err = %v, want ErrIdentityCollision", err)
	}
}

func TestHasItem(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	ok, err := s.HasItem(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("HasItem(missing) = %v, %v", ok, err)
	}
	s.InsertItem(ctx, testItem("present11112222a", "rss", "g", 10))
	ok, err = s.HasItem(ctx, "present11112222a")
	if err != nil || !ok {
		t.Fatalf("HasItem(present) = %v, %v", ok, err)
	}
}

func TestQueryItems(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	s.InsertItem(ctx, testItem("i1aaaaaaaaaaaaaa", "rss", "a", 80))
	s.InsertItem(ctx, testItem("i2aaaaaaaaaaaaaa", "rss", "b", 45))
	s.InsertItem(ctx, testItem("i3aaaaaaaaaaaaaa", "hackernews", "c", 60))
	s.InsertItem(ctx, testItem("i4aaaaaaaaaaaaaa", "rss", "d", 20))

	items, total, err := s.QueryItems(ctx, ItemFilter{MinScore: 40})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total = %d, len = %d, want 3, 3", total, len(items))
	}
	if items[0].Score != 80 || items[1].Score != 60 || items[2].Score != 45 {
		t.Fatalf("wrong order: %d %d %d", items[0].Score, items[1].Score, items[2].Score)
	}

	items, total, err = s.QueryItems(ctx, ItemFilter{Source: "rss", MinScore: 40})
	if err != nil || total != 2 {
		t.Fatalf("source filter: total = %d, err = %v", total, err)
	}

	items, total, err = s.QueryItems(ctx, ItemFilter{MinScore: 40, Limit: 1, Offset: 1})
	if err != nil || len(items) != 1 || total != 3 {
		t.Fatalf("pagination: len = %d, total = %d, err = %v", len(items), total, err)
	}
	if items[0].Score != 60 {
		t.Fatalf("page item score = %d, want 60", items[0].Score)
	}
}

func TestCheckpointAbsent(t *testing.T) {
	s := NewStore(openTestDB(t))
	state, err := s.GetCheckpoint(context.Background(), "github")
	if err != nil || state != nil {
		t.Fatalf("absent checkpoint = %q, %v, want nil, nil", state, err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	if err := s.SetCheckpoint(ctx, "github", []byte(`{"seen":["v1"]}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetCheckpoint(ctx, "github")
	if err != nil || string(got) != `{"seen":["v1"]}` {
		t.Fatalf("checkpoint = %q, %v", got, err)
	}

	// Overwrite replaces the whole state.
	if err := s.SetCheckpoint(ctx, "github", []byte(`{"seen":["v2"]}`)); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetCheckpoint(ctx, "github")
	if string(got) != `{"seen":["v2"]}` {
		t.Fatalf("checkpoint after overwrite = %q", got)
	}
}

func TestCheckpointIsolation(t *testing.T) {
	// WHAT: Writing one collector's checkpoint never touches another's.
	// WHY: A failing source must not disturb sibling ledger entries.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	s.SetCheckpoint(ctx, "rss", []byte(`{"etag":"abc"}`))
	s.SetCheckpoint(ctx, "nvd", []byte(`{"last":"2026-01-01"}`))
	s.SetCheckpoint(ctx, "rss", []byte(`{"etag":"def"}`))

	got, _ := s.GetCheckpoint(ctx, "nvd")
	if string(got) != `{"last":"2026-01-01"}` {
		t.Fatalf("nvd checkpoint disturbed: %q", got)
	}
}

func TestDigestRoundTrip(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	id, err := s.InsertDigest(ctx, &Digest{
		Kind: DigestDaily, Content: "# Digest", ItemCount: 7, Model: "m",
		GeneratedAt: time.Now().UnixMilli(),
	})
	if err != nil || id == 0 {
		t.Fatalf("insert digest: id = %d, err = %v", id, err)
	}

	d, err := s.GetDigest(ctx, id)
	if err != nil || d == nil || d.Content != "# Digest" {
		t.Fatalf("get digest = %+v, %v", d, err)
	}

	missing, err := s.GetDigest(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("missing digest = %+v, %v", missing, err)
	}

	list, err := s.ListDigests(ctx, DigestDaily, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list digests = %d, %v", len(list), err)
	}
}

func TestSaveRun(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	opps := []*Opportunity{testOpportunity("ci-flake-radar", 70), testOpportunity("drift-watch", 55)}
	runID, err := s.SaveRun(ctx, opps, 40, "test-model", nil)
	if err != nil || runID == 0 {
		t.Fatalf("SaveRun = %d, %v", runID, err)
	}

	r, err := s.GetRun(ctx, runID)
	if err != nil || r == nil {
		t.Fatalf("GetRun = %+v, %v", r, err)
	}
	if r.OpportunityCount != 2 || r.ItemCount != 40 {
		t.Fatalf("run counters = %+v", r)
	}

	got, total, err := s.QueryOpportunities(ctx, OpportunityFilter{})
	if err != nil || total != 2 {
		t.Fatalf("query = %d, %v", total, err)
	}
	for _, o := range got {
		if len(o.Evidence) != 1 {
			t.Fatalf("opportunity %s evidence = %d, want 1", o.Slug, len(o.Evidence))
		}
		if o.RunID != runID {
			t.Fatalf("opportunity run = %d, want %d", o.RunID, runID)
		}
	}
}

func TestSaveRunAtomic(t *testing.T) {
	// WHAT: A failure mid-run rolls back the run, opportunities, and evidence.
	// WHY: A partially recorded run would poison trend queries.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	// Duplicate slug violates the (slug, run_id) primary key on the second
	// insert, after the run row and first opportunity were written.
	opps := []*Opportunity{testOpportunity("dup", 70), testOpportunity("dup", 60)}
	if _, err := s.SaveRun(ctx, opps, 10, "m", nil); err == nil {
		t.Fatal("expected SaveRun to fail on duplicate slug")
	}

	for _, q := range []string{
		`SELECT COUNT(*) FROM opportunity_runs`,
		`SELECT COUNT(*) FROM opportunities`,
		`SELECT COUNT(*) FROM opportunity_evidence`,
	} {
		var n int
		if err := s.DB.QueryRow(q).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Fatalf("%s = %d after rollback, want 0", q, n)
		}
	}
}

func TestAddOpportunityNoSuchRun(t *testing.T) {
	s := NewStore(openTestDB(t))
	err := s.AddOpportunity(context.Background(), 42, testOpportunity("x", 50))
	if !errors.Is(err, ErrNoSuchRun) {
		t.Fatalf("err = %v, want ErrNoSuchRun", err)
	}
}

func TestAddEvidenceNoSuchOpportunity(t *testing.T) {
	// WHAT: Evidence targeting an unrecorded opportunity is rejected.
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	runID, err := s.SaveRun(ctx, []*Opportunity{testOpportunity("real", 50)}, 5, "m", nil)
	if err != nil {
		t.Fatal(err)
	}

	err = s.AddEvidence(ctx, "ghost", runID, &Evidence{Source: "rss", ItemTitle: "t"})
	if !errors.Is(err, ErrNoSuchOpportunity) {
		t.Fatalf("err = %v, want ErrNoSuchOpportunity", err)
	}

	if err := s.AddEvidence(ctx, "real", runID, &Evidence{Source: "rss", ItemTitle: "t"}); err != nil {
		t.Fatalf("valid evidence rejected: %v", err)
	}
}

func TestTrend(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	// Three runs with moving confidence for the same slug.
	for i, conf := range []int{50, 65, 60} {
		if _, err := s.SaveRun(ctx, []*Opportunity{testOpportunity("slug-a", conf)}, 5, "m", nil); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	points, err := s.Trend(ctx, "slug-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].GeneratedAt < points[i-1].GeneratedAt {
			t.Fatal("points not ordered by generated_at")
		}
	}
	if got := TrendDirection(points); got != TrendDecreasing {
		t.Fatalf("direction = %s, want decreasing (65 -> 60)", got)
	}
}

func TestTrendDirection(t *testing.T) {
	p := func(confs ...int) []TrendPoint {
		out := make([]TrendPoint, len(confs))
		for i, c := range confs {
			out[i] = TrendPoint{Confidence: c, GeneratedAt: int64(i)}
		}
		return out
	}
	tests := []struct {
		points []TrendPoint
		want   string
	}{
		{nil, TrendNone},
		{p(50), TrendNone},
		{p(50, 60), TrendIncreasing},
		{p(60, 50), TrendDecreasing},
		{p(10, 50, 50), TrendFlat},
		{p(90, 10, 50), TrendIncreasing},
	}
	for _, tt := range tests {
		if got := TrendDirection(tt.points); got != tt.want {
			t.Errorf("TrendDirection(%v) = %s, want %s", tt.points, got, tt.want)
		}
	}
}

func TestLatestOpportunity(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	s.SaveRun(ctx, []*Opportunity{testOpportunity("slug-b", 40)}, 5, "m", nil)
	s.SaveRun(ctx, []*Opportunity{testOpportunity("slug-b", 75)}, 5, "m", nil)

	o, err := s.LatestOpportunity(ctx, "slug-b")
	if err != nil || o == nil {
		t.Fatalf("latest = %+v, %v", o, err)
	}
	if o.Confidence != 75 {
		t.Fatalf("confidence = %d, want latest run's 75", o.Confidence)
	}
	if len(o.Evidence) != 1 {
		t.Fatalf("evidence = %d, want 1", len(o.Evidence))
	}

	missing, err := s.LatestOpportunity(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing slug = %+v, %v", missing, err)
	}
}

func TestQueryOpportunitiesFilters(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	a := testOpportunity("a", 80)
	b := testOpportunity("b", 40)
	b.TargetBuyer = "security teams"
	b.MarketType = "hype/crowded"
	s.SaveRun(ctx, []*Opportunity{a, b}, 10, "m", nil)

	_, total, err := s.QueryOpportunities(ctx, OpportunityFilter{MinConfidence: 60})
	if err != nil || total != 1 {
		t.Fatalf("min confidence: total = %d, %v", total, err)
	}
	_, total, err = s.QueryOpportunities(ctx, OpportunityFilter{Buyer: "security"})
	if err != nil || total != 1 {
		t.Fatalf("buyer: total = %d, %v", total, err)
	}
	_, total, err = s.QueryOpportunities(ctx, OpportunityFilter{MarketType: "boring"})
	if err != nil || total != 1 {
		t.Fatalf("market type: total = %d, %v", total, err)
	}
}

func TestCollectionLog(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	err := s.InsertCollectionLog(ctx, &CollectionLogEntry{
		ID: "log-1", Collector: "rss", Status: "ok",
		RawCount: 20, KeptCount: 5, StoredCount: 3,
		RulesVersion: "2026.2", DurationMs: 120, StartedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatal(err)
	}

	entries, err := s.RecentCollectionLog(ctx, 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("recent = %d, %v", len(entries), err)
	}
	if entries[0].KeptCount != 5 || entries[0].Status != "ok" {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func TestGetStats(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	s.InsertItem(ctx, testItem("s1aaaaaaaaaaaaaa", "rss", "a", 40))
	s.InsertItem(ctx, testItem("s2aaaaaaaaaaaaaa", "rss", "b", 60))
	s.InsertItem(ctx, testItem("s3aaaaaaaaaaaaaa", "nvd", "c", 80))
	s.SaveRun(ctx, []*Opportunity{testOpportunity("x", 50)}, 3, "m", nil)

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Items != 3 || stats.BySource["rss"] != 2 || stats.BySource["nvd"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Runs != 1 || stats.Opportunities != 1 {
		t.Fatalf("run counters = %+v", stats)
	}
	if stats.LastCollected == nil {
		t.Fatal("last collected missing")
	}
	if stats.AvgScore != 60 {
		t.Fatalf("avg score = %v, want 60", stats.AvgScore)
	}
}
