package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/happycoding7/signal-extract/internal/canon"
)

// discussionsQuery fetches the 25 most recently updated discussions of a
// repo. REST does not expose Discussions, so this collector is GraphQL.
const discussionsQuery = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    discussions(first: 25, orderBy: {field: UPDATED_AT, direction: DESC}) {
      nodes {
        number
        title
        body
        url
        upvoteCount
        comments { totalCount }
        category { name }
        labels(first: 10) { nodes { name } }
        answer { id }
      }
    }
  }
}`

// DiscussionsConfig configures the GitHub Discussions collector.
type DiscussionsConfig struct {
	Repos   []string // "owner/name"
	Token   string   // required (read:discussion scope)
	BaseURL string   // default https://api.github.com/graphql
	Client  *http.Client
	Logger  *slog.Logger
}

// Discussions collects GitHub Discussions. Unanswered, high-upvote
// discussions are the richest unmet-need signal the pipeline sees.
type Discussions struct {
	repos   []string
	token   string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewDiscussions creates the discussions collector.
func NewDiscussions(cfg DiscussionsConfig) *Discussions {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com/graphql"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discussions{
		repos:   cfg.Repos,
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
		log:     cfg.Logger,
	}
}

func (d *Discussions) Name() string { return "github_discussions" }

type discussionNode struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	URL         string `json:"url"`
	UpvoteCount int    `json:"upvoteCount"`
	Comments    struct {
		TotalCount int `json:"totalCount"`
	} `json:"comments"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	Answer *struct {
		ID string `json:"id"`
	} `json:"answer"`
}

type graphqlResponse struct {
	Data struct {
		Repository *struct {
			Discussions struct {
				Nodes []*discussionNode `json:"nodes"`
			} `json:"discussions"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Collect fetches discussions for every configured repo. Without a token
// the collector skips with a warning and an empty result. This collector
// keeps no checkpoint: the engagement filter plus store idempotency bound
// the rework.
func (d *Discussions) Collect(ctx context.Context, prev json.RawMessage) ([]*canon.Artifact, json.RawMessage, error) {
	if d.token == "" {
		d.log.Warn("github discussions collector requires a token, skipping")
		return nil, prev, nil
	}

	var out []*canon.Artifact
	for _, repo := range d.repos {
		arts, err := d.collectRepo(ctx, repo)
		if err != nil {
			d.log.Warn("discussions failed", "repo", repo, "error", err)
			continue
		}
		out = append(out, arts...)
	}
	return out, prev, nil
}

func (d *Discussions) collectRepo(ctx context.Context, repo string) ([]*canon.Artifact, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repo %q", repo)
	}

	payload, err := json.Marshal(map[string]any{
		"query":     discussionsQuery,
		"variables": map[string]any{"owner": owner, "name": name},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "bearer "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httpError{URL: d.baseURL, Status: resp.StatusCode}
	}

	var gr graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode graphql: %w", err)
	}
	if len(gr.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", gr.Errors[0].Message)
	}
	if gr.Data.Repository == nil {
		return nil, fmt.Errorf("no repository data for %s", repo)
	}

	var out []*canon.Artifact
	for _, disc := range gr.Data.Repository.Discussions.Nodes {
		if disc == nil {
			continue
		}
		if disc.UpvoteCount < 3 && disc.Comments.TotalCount < 2 {
			continue
		}

		labels := make([]string, 0, len(disc.Labels.Nodes))
		for _, l := range disc.Labels.Nodes {
			labels = append(labels, l.Name)
		}
		category := ""
		if disc.Category != nil {
			category = disc.Category.Name
		}

		out = append(out, &canon.Artifact{
			Source:   canon.SourceGitHubDiscussion,
			SourceID: fmt.Sprintf("%s:discussion:%d", repo, disc.Number),
			URL:      disc.URL,
			Title:    fmt.Sprintf("[%s] Discussion #%d: %s", repo, disc.Number, disc.Title),
			Body:     truncate(disc.Body, 3000),
			Metadata: map[string]any{
				"repo":     repo,
				"upvotes":  disc.UpvoteCount,
				"comments": disc.Comments.TotalCount,
				"category": category,
				"labels":   labels,
				"answered": disc.Answer != nil,
			},
			ObservedAt: time.Now().UTC(),
		})
	}
	return out, nil
}
