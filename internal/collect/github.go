package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/happycoding7/signal-extract/internal/canon"
)

// GitHubConfig configures the GitHub REST collector.
type GitHubConfig struct {
	Repos   []string // "owner/name"
	Token   string   // optional; 401 falls back to unauthenticated
	BaseURL string   // default https://api.github.com
	Client  *http.Client
	Logger  *slog.Logger
}

// GitHub watches releases and high-engagement issues for configured repos
// over the REST API.
type GitHub struct {
	repos   []string
	token   string
	baseURL string
	client  *http.Client
	log     *slog.Logger

	authFailed bool
}

// NewGitHub creates the GitHub collector.
func NewGitHub(cfg GitHubConfig) *GitHub {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GitHub{
		repos:   cfg.Repos,
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
		log:     cfg.Logger,
	}
}

func (g *GitHub) Name() string { return "github" }

type githubState struct {
	LastCollected string              `json:"last_collected"`
	ReleasesSeen  map[string][]string `json:"releases_seen"`
}

type ghRelease struct {
	TagName    string `json:"tag_name"`
	Body       string `json:"body"`
	HTMLURL    string `json:"html_url"`
	Prerelease bool   `json:"prerelease"`
	Author     struct {
		Login string `json:"login"`
	} `json:"author"`
}

type ghIssue struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	State       string `json:"state"`
	Comments    int    `json:"comments"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
	User        struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Reactions struct {
		TotalCount int `json:"total_count"`
	} `json:"reactions"`
}

// Collect fetches unseen releases and recently updated high-engagement
// issues. A failing repo is logged and skipped; the pass continues.
func (g *GitHub) Collect(ctx context.Context, prev json.RawMessage) ([]*canon.Artifact, json.RawMessage, error) {
	var state githubState
	if len(prev) > 0 {
		if err := json.Unmarshal(prev, &state); err != nil {
			return nil, nil, fmt.Errorf("github: decode state: %w", err)
		}
	}
	if state.ReleasesSeen == nil {
		state.ReleasesSeen = map[string][]string{}
	}

	now := time.Now().UTC()
	since := state.LastCollected
	if since == "" {
		since = now.AddDate(0, 0, -7).Format(time.RFC3339)
	}

	var out []*canon.Artifact
	for _, repo := range g.repos {
		rels, err := g.collectReleases(ctx, repo, state.ReleasesSeen)
		if err != nil {
			g.log.Warn("github releases failed", "repo", repo, "error", err)
		} else {
			out = append(out, rels...)
		}

		issues, err := g.collectIssues(ctx, repo, since)
		if err != nil {
			g.log.Warn("github issues failed", "repo", repo, "error", err)
			continue
		}
		out = append(out, issues...)
	}

	state.LastCollected = now.Format(time.RFC3339)
	next, err := json.Marshal(state)
	if err != nil {
		return nil, nil, fmt.Errorf("github: encode state: %w", err)
	}
	return out, next, nil
}

func (g *GitHub) collectReleases(ctx context.Context, repo string, seen map[string][]string) ([]*canon.Artifact, error) {
	var releases []ghRelease
	u := fmt.Sprintf("%s/repos/%s/releases?per_page=5", g.baseURL, repo)
	if err := g.get(ctx, u, &releases); err != nil {
		return nil, err
	}

	seenSet := map[string]bool{}
	for _, tag := range seen[repo] {
		seenSet[tag] = true
	}

	var out []*canon.Artifact
	for _, rel := range releases {
		if rel.TagName == "" || seenSet[rel.TagName] {
			continue
		}
		seenSet[rel.TagName] = true
		seen[repo] = append(seen[repo], rel.TagName)

		out = append(out, &canon.Artifact{
			Source:   canon.SourceGitHubRelease,
			SourceID: repo + ":" + rel.TagName,
			URL:      rel.HTMLURL,
			Title:    fmt.Sprintf("[%s] Release %s", repo, rel.TagName),
			Body:     truncate(rel.Body, 3000),
			Metadata: map[string]any{
				"repo":       repo,
				"tag":        rel.TagName,
				"prerelease": rel.Prerelease,
				"author":     rel.Author.Login,
			},
			ObservedAt: time.Now().UTC(),
		})
	}

	// Bound checkpoint growth: keep the last 50 tags per repo.
	if tags := seen[repo]; len(tags) > 50 {
		seen[repo] = tags[len(tags)-50:]
	}
	return out, nil
}

func (g *GitHub) collectIssues(ctx context.Context, repo, since string) ([]*canon.Artifact, error) {
	var issues []ghIssue
	u := fmt.Sprintf("%s/repos/%s/issues?state=all&sort=updated&direction=desc&since=%s&per_page=15",
		g.baseURL, repo, url.QueryEscape(since))
	if err := g.get(ctx, u, &issues); err != nil {
		return nil, err
	}

	var out []*canon.Artifact
	for _, is := range issues {
		// The issues endpoint also returns pull requests.
		if is.PullRequest != nil {
			continue
		}
		if is.Reactions.TotalCount < 5 && is.Comments < 3 {
			continue
		}

		labels := make([]string, 0, len(is.Labels))
		for _, l := range is.Labels {
			labels = append(labels, l.Name)
		}

		out = append(out, &canon.Artifact{
			Source:   canon.SourceGitHubIssue,
			SourceID: fmt.Sprintf("%s:issue:%d", repo, is.Number),
			URL:      is.HTMLURL,
			Title:    fmt.Sprintf("[%s] #%d: %s", repo, is.Number, is.Title),
			Body:     truncate(is.Body, 2000),
			Metadata: map[string]any{
				"repo":      repo,
				"state":     is.State,
				"reactions": is.Reactions.TotalCount,
				"comments":  is.Comments,
				"labels":    labels,
				"author":    is.User.Login,
			},
			ObservedAt: time.Now().UTC(),
		})
	}
	return out, nil
}

// get performs an authenticated GET, falling back to unauthenticated once
// per collector lifetime when the token is rejected.
func (g *GitHub) get(ctx context.Context, url string, out any) error {
	header := http.Header{"Accept": []string{"application/vnd.github.v3+json"}}
	if g.token != "" && !g.authFailed {
		header.Set("Authorization", "token "+g.token)
	}
	err := getJSON(ctx, g.client, url, header, out)
	if err != nil && g.token != "" && !g.authFailed && isHTTPStatus(err, http.StatusUnauthorized) {
		g.log.Warn("github token rejected, retrying unauthenticated")
		g.authFailed = true
		header.Del("Authorization")
		return getJSON(ctx, g.client, url, header, out)
	}
	return err
}
