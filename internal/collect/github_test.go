package collect

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/happycoding7/signal-extract/internal/canon"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func githubFixture(t *testing.T, releases, issues string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, releases)
	})
	mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, issues)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubReleasesSeenOnlyOnce(t *testing.T) {
	// WHY: release listings are not windowed by time, so the checkpoint
	// seen-set is the only thing preventing re-emission every pass.
	srv := githubFixture(t,
		`[{"tag_name":"v1.2.0","body":"Fixes","html_url":"https://example.com/r/v1.2.0","author":{"login":"ana"}}]`,
		`[]`)

	g := NewGitHub(GitHubConfig{Repos: []string{"acme/widget"}, BaseURL: srv.URL, Logger: discardLogger()})

	arts, state, err := g.Collect(context.Background(), nil)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("first pass got %d artifacts, want 1", len(arts))
	}
	if arts[0].SourceID != "acme/widget:v1.2.0" {
		t.Errorf("source id = %q", arts[0].SourceID)
	}
	if arts[0].Source != canon.SourceGitHubRelease {
		t.Errorf("source = %q", arts[0].Source)
	}

	arts, _, err = g.Collect(context.Background(), state)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(arts) != 0 {
		t.Errorf("second pass got %d artifacts, want 0", len(arts))
	}
}

func TestGitHubIssueEngagementFilter(t *testing.T) {
	// WHAT: pull requests and low-engagement issues are dropped; an
	// issue passes with reactions >= 5 or comments >= 3.
	srv := githubFixture(t, `[]`, `[
		{"number":1,"title":"pr","html_url":"u1","pull_request":{},"comments":9,"reactions":{"total_count":9}},
		{"number":2,"title":"quiet","html_url":"u2","comments":1,"reactions":{"total_count":2}},
		{"number":3,"title":"loud","html_url":"u3","state":"open","comments":4,"user":{"login":"bo"},
		 "labels":[{"name":"bug"}],"reactions":{"total_count":1}}
	]`)

	g := NewGitHub(GitHubConfig{Repos: []string{"acme/widget"}, BaseURL: srv.URL, Logger: discardLogger()})
	arts, _, err := g.Collect(context.Background(), nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(arts))
	}
	a := arts[0]
	if a.SourceID != "acme/widget:issue:3" {
		t.Errorf("source id = %q", a.SourceID)
	}
	if a.Title != "[acme/widget] #3: loud" {
		t.Errorf("title = %q", a.Title)
	}
	labels, _ := a.Metadata["labels"].([]string)
	if len(labels) != 1 || labels[0] != "bug" {
		t.Errorf("labels = %v", a.Metadata["labels"])
	}
}

func TestGitHubAuthFallback(t *testing.T) {
	// WHY: an expired token should degrade to unauthenticated access
	// instead of killing every subsequent pass.
	var authedCalls, anonCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			authedCalls++
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		anonCalls++
		io.WriteString(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGitHub(GitHubConfig{Repos: []string{"acme/widget"}, Token: "stale", BaseURL: srv.URL, Logger: discardLogger()})
	if _, _, err := g.Collect(context.Background(), nil); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if authedCalls != 1 {
		t.Errorf("authed calls = %d, want 1", authedCalls)
	}
	if anonCalls < 2 {
		t.Errorf("anon calls = %d, want at least 2", anonCalls)
	}
}

func TestGitHubStatePreservedAcrossRepos(t *testing.T) {
	srv := githubFixture(t,
		`[{"tag_name":"v2.0.0","html_url":"u"}]`,
		`[]`)
	g := NewGitHub(GitHubConfig{Repos: []string{"acme/widget"}, BaseURL: srv.URL, Logger: discardLogger()})

	_, raw, err := g.Collect(context.Background(), nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var state githubState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.LastCollected == "" {
		t.Error("last_collected not set")
	}
	if got := state.ReleasesSeen["acme/widget"]; len(got) != 1 || got[0] != "v2.0.0" {
		t.Errorf("releases_seen = %v", state.ReleasesSeen)
	}
}
