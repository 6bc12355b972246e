package scout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/happycoding7/signal-extract/dbopen"
	"github.com/happycoding7/signal-extract/internal/canon"
	"github.com/happycoding7/signal-extract/internal/collect"
	"github.com/happycoding7/signal-extract/internal/score"
	"github.com/happycoding7/signal-extract/internal/store"
)

// fakeCollector returns its canned artifacts and next state, or fails.
type fakeCollector struct {
	name      string
	artifacts []*canon.Artifact
	nextState json.RawMessage
	err       error
	gotState  json.RawMessage
	calls     int
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(_ context.Context, prev json.RawMessage) ([]*canon.Artifact, json.RawMessage, error) {
	f.calls++
	f.gotState = prev
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.artifacts, f.nextState, nil
}

func testService(t *testing.T, collectors ...collect.Collector) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Service{
		store:      store.NewStore(db),
		collectors: collectors,
		rules:      score.DefaultRules(),
		limits:     canon.DefaultLimits(),
		threshold:  score.DefaultRules().Threshold,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func highSignalArtifact(sourceID string) *canon.Artifact {
	return &canon.Artifact{
		Source:   canon.SourceGitHubIssue,
		SourceID: sourceID,
		URL:      "https://example.com/" + sourceID,
		Title:    "SOC 2 audit evidence collection is manual and error prone",
		Body:     strings.Repeat("Compliance teams copy screenshots into spreadsheets every quarter. ", 10),
		Metadata: map[string]any{"reactions": 40, "comments": 12},
	}
}

func TestCollectAllStoresAndCheckpoints(t *testing.T) {
	fc := &fakeCollector{
		name:      "fake",
		artifacts: []*canon.Artifact{highSignalArtifact("acme/widget:issue:1")},
		nextState: json.RawMessage(`{"cursor":"abc"}`),
	}
	svc := testService(t, fc)

	results, err := svc.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	r := results[0]
	if r.Raw != 1 || r.Kept != 1 || r.Stored != 1 || r.Err != nil {
		t.Errorf("result = %+v", r)
	}

	// Checkpoint committed after the successful pass.
	state, err := svc.store.GetCheckpoint(context.Background(), "fake")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if string(state) != `{"cursor":"abc"}` {
		t.Errorf("state = %s", state)
	}

	// Collection log row written.
	entries, err := svc.store.RecentCollectionLog(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentCollectionLog: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != "ok" || entries[0].StoredCount != 1 {
		t.Errorf("log = %+v", entries)
	}
	if entries[0].RulesVersion == "" {
		t.Error("rules version not recorded")
	}
}

func TestCollectAllSecondPassIdempotent(t *testing.T) {
	fc := &fakeCollector{
		name:      "fake",
		artifacts: []*canon.Artifact{highSignalArtifact("acme/widget:issue:1")},
		nextState: json.RawMessage(`{}`),
	}
	svc := testService(t, fc)

	if _, err := svc.CollectAll(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	// Same artifact again; the collector sees its own checkpoint.
	fc.artifacts = []*canon.Artifact{highSignalArtifact("acme/widget:issue:1")}
	results, err := svc.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if results[0].Stored != 0 {
		t.Errorf("stored = %d, want 0", results[0].Stored)
	}
	if string(fc.gotState) != `{}` {
		t.Errorf("collector got state %s", fc.gotState)
	}
}

func TestCollectAllFailedCollectorKeepsCheckpoint(t *testing.T) {
	fc := &fakeCollector{name: "fake", err: errors.New("upstream down")}
	svc := testService(t, fc)
	if err := svc.store.SetCheckpoint(context.Background(), "fake", json.RawMessage(`{"cursor":"old"}`)); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	results, err := svc.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if results[0].Err == nil {
		t.Error("want collector error surfaced")
	}

	state, err := svc.store.GetCheckpoint(context.Background(), "fake")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if string(state) != `{"cursor":"old"}` {
		t.Errorf("state = %s, want unchanged", state)
	}

	entries, _ := svc.store.RecentCollectionLog(context.Background(), 10)
	if len(entries) != 1 || entries[0].Status != "error" {
		t.Errorf("log = %+v", entries)
	}
}

func TestCollectAllOneFailureDoesNotStopOthers(t *testing.T) {
	bad := &fakeCollector{name: "bad", err: errors.New("boom")}
	good := &fakeCollector{
		name:      "good",
		artifacts: []*canon.Artifact{highSignalArtifact("acme/widget:issue:2")},
		nextState: json.RawMessage(`{}`),
	}
	svc := testService(t, bad, good)

	results, err := svc.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Err == nil || results[1].Stored != 1 {
		t.Errorf("results = %+v", results)
	}
}

func TestCollectAllDropsMalformed(t *testing.T) {
	broken := &canon.Artifact{Source: canon.SourceGitHubIssue, SourceID: "x"} // no title
	fc := &fakeCollector{
		name:      "fake",
		artifacts: []*canon.Artifact{broken, highSignalArtifact("acme/widget:issue:3")},
		nextState: json.RawMessage(`{}`),
	}
	svc := testService(t, fc)

	results, err := svc.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if results[0].Raw != 2 || results[0].Stored != 1 {
		t.Errorf("result = %+v", results[0])
	}
}

func TestCollectAllIdentityCollisionFatal(t *testing.T) {
	fc := &fakeCollector{
		name:      "fake",
		artifacts: []*canon.Artifact{highSignalArtifact("acme/widget:issue:1")},
		nextState: json.RawMessage(`{"cursor":"new"}`),
	}
	svc := testService(t, fc)

	// Seed a row claiming the same identity for a different upstream key.
	a := highSignalArtifact("acme/widget:issue:1")
	_, err := svc.store.InsertItem(context.Background(), &store.Item{
		Identity: a.ID(), Source: "rss", SourceID: "other", Title: "t",
		ObservedAt: time.Now().UnixMilli(), CollectedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = svc.CollectAll(context.Background())
	if !errors.Is(err, ErrIdentityCollision) {
		t.Fatalf("err = %v, want ErrIdentityCollision", err)
	}

	// WHY: the checkpoint must not advance past a corrupt pass.
	state, _ := svc.store.GetCheckpoint(context.Background(), "fake")
	if state != nil {
		t.Errorf("state = %s, want none", state)
	}
}
