package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/happycoding7/signal-extract/dbopen"
	"github.com/happycoding7/signal-extract/llm"
	"github.com/happycoding7/signal-extract/internal/store"
)

// fakeProvider returns canned responses in order; each call is recorded.
type fakeProvider struct {
	responses []string
	calls     []llm.Request
	err       error
}

func (f *fakeProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.calls) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return &llm.Response{Text: f.responses[i], InputTokens: 10, OutputTokens: 5, Model: "fake-1"}, nil
}

func (f *fakeProvider) Name() string { return "fake/fake-1" }

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return store.NewStore(db)
}

func seedItem(t *testing.T, st *store.Store, identity string, score int) {
	t.Helper()
	now := time.Now().UnixMilli()
	_, err := st.InsertItem(context.Background(), &store.Item{
		Identity: identity, Source: "github_issue", SourceID: "acme/widget:issue:" + identity,
		URL: "https://example.com/" + identity, Title: "pain: " + identity, Body: "details",
		Score: score, ObservedAt: now, CollectedAt: now,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
}

const validOpportunity = `[{
	"id": "terraform-drift-detector",
	"title": "Terraform drift detection",
	"pain": "teams discover drift in incidents",
	"target_buyer": "Platform team",
	"solution_shape": "scheduled drift scans with diffs",
	"market_type": "boring/growing",
	"effort_estimate": "1-2 weeks",
	"monetization": "per-workspace subscription",
	"moat": "state history",
	"confidence": 72,
	"evidence": [{"identity": "item-a", "source": "github_issue", "item_title": "drift", "url": "https://example.com/item-a", "score": 60}],
	"competition_notes": "driftctl is unmaintained"
}]`

func TestDailyDigestEmptyWindow(t *testing.T) {
	// WHAT: an empty window produces a canned digest without a model call.
	p := &fakeProvider{responses: []string{"should not be called"}}
	s := New(p, testStore(t), nil)

	d, err := s.DailyDigest(context.Background())
	if err != nil {
		t.Fatalf("DailyDigest: %v", err)
	}
	if d.Content != "No clear opportunities today." {
		t.Errorf("content = %q", d.Content)
	}
	if len(p.calls) != 0 {
		t.Errorf("provider called %d times, want 0", len(p.calls))
	}
}

func TestDailyDigestSavesResult(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 60)
	p := &fakeProvider{responses: []string{"- [github_issue] drift pain."}}
	s := New(p, st, nil)

	d, err := s.DailyDigest(context.Background())
	if err != nil {
		t.Fatalf("DailyDigest: %v", err)
	}
	if d.ID == 0 {
		t.Error("digest not persisted")
	}
	if d.ItemCount != 1 || d.Model != "fake-1" {
		t.Errorf("digest = %+v", d)
	}
	if !strings.Contains(p.calls[0].User, "[score=60] [github_issue]") {
		t.Errorf("prompt = %q", p.calls[0].User)
	}
	if !strings.Contains(p.calls[0].User, "id: item-a") {
		t.Errorf("prompt missing item identity: %q", p.calls[0].User)
	}
}

func TestWeeklyUsesSevenDayWindow(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 35)
	p := &fakeProvider{responses: []string{"TOP OPPORTUNITIES\n..."}}
	s := New(p, st, nil)

	d, err := s.WeeklySynthesis(context.Background())
	if err != nil {
		t.Fatalf("WeeklySynthesis: %v", err)
	}
	// WHY: score 35 clears the weekly floor of 30 but not the daily 40;
	// the windows are deliberately different.
	if d.ItemCount != 1 {
		t.Errorf("item count = %d, want 1", d.ItemCount)
	}
}

func TestStructuredReportHappyPath(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 60)
	p := &fakeProvider{responses: []string{validOpportunity}}
	s := New(p, st, nil)

	opps, runID, err := s.StructuredReport(context.Background())
	if err != nil {
		t.Fatalf("StructuredReport: %v", err)
	}
	if len(opps) != 1 || runID == 0 {
		t.Fatalf("opps = %d, run = %d", len(opps), runID)
	}
	o := opps[0]
	if o.Slug != "terraform-drift-detector" || o.RunID != runID {
		t.Errorf("opportunity = %+v", o)
	}
	if len(o.Evidence) != 1 || o.Evidence[0].ItemIdentity != "item-a" {
		t.Errorf("evidence = %+v", o.Evidence)
	}

	// The run and the companion digest are both persisted.
	run, err := st.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.OpportunityCount != 1 || run.DigestID == nil {
		t.Errorf("run = %+v", run)
	}
}

func TestStructuredReportRepairPath(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 60)
	// First response is fenced prose, second is clean JSON.
	p := &fakeProvider{responses: []string{"Sure! Here you go: no json here", "```json\n" + validOpportunity + "\n```"}}
	s := New(p, st, nil)

	opps, _, err := s.StructuredReport(context.Background())
	if err != nil {
		t.Fatalf("StructuredReport: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("opps = %d, want 1", len(opps))
	}
	if len(p.calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(p.calls))
	}
	if !strings.Contains(p.calls[1].User, "not valid JSON") {
		t.Errorf("repair prompt = %q", p.calls[1].User)
	}
}

func TestStructuredReportRejectedAfterRetry(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 60)
	p := &fakeProvider{responses: []string{"garbage", "more garbage"}}
	s := New(p, st, nil)

	_, _, err := s.StructuredReport(context.Background())
	if !errors.Is(err, ErrInvalidSynthesis) {
		t.Fatalf("err = %v, want ErrInvalidSynthesis", err)
	}

	// WHY: whole-run rejection means nothing is persisted, not even the digest.
	digests, err := st.ListDigests(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListDigests: %v", err)
	}
	if len(digests) != 0 {
		t.Errorf("digests = %d, want 0", len(digests))
	}
}

func TestStructuredReportRejectsFabricatedEvidence(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 60)
	fabricated := strings.ReplaceAll(validOpportunity, "item-a", "item-x")
	p := &fakeProvider{responses: []string{fabricated, fabricated}}
	s := New(p, st, nil)

	_, _, err := s.StructuredReport(context.Background())
	if !errors.Is(err, ErrInvalidSynthesis) {
		t.Fatalf("err = %v, want ErrInvalidSynthesis", err)
	}
	if !strings.Contains(err.Error(), "item-x") {
		t.Errorf("err = %v, want unknown identity named", err)
	}
}

func TestStructuredReportEmptyArray(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 60)
	p := &fakeProvider{responses: []string{"[]"}}
	s := New(p, st, nil)

	opps, runID, err := s.StructuredReport(context.Background())
	if err != nil {
		t.Fatalf("StructuredReport: %v", err)
	}
	if len(opps) != 0 || runID != 0 {
		t.Errorf("opps = %d, run = %d, want none", len(opps), runID)
	}
}

func TestAsk(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 25)
	p := &fakeProvider{responses: []string{"Based on the data, yes."}}
	s := New(p, st, nil)

	res, err := s.Ask(context.Background(), "is drift detection viable?", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "Based on the data, yes." || res.SourcesUsed != 1 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(p.calls[0].User, "last 7 days") {
		t.Errorf("prompt = %q", p.calls[0].User)
	}
	if !strings.Contains(p.calls[0].User, "is drift detection viable?") {
		t.Errorf("prompt missing question: %q", p.calls[0].User)
	}
}

func TestProviderFailurePropagates(t *testing.T) {
	st := testStore(t)
	seedItem(t, st, "item-a", 60)
	p := &fakeProvider{err: llm.ErrProvider}
	s := New(p, st, nil)

	if _, err := s.DailyDigest(context.Background()); !errors.Is(err, llm.ErrProvider) {
		t.Errorf("err = %v, want ErrProvider", err)
	}
}
