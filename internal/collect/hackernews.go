package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/happycoding7/signal-extract/internal/canon"
)

// HackerNewsConfig configures the Hacker News collector.
type HackerNewsConfig struct {
	MinScore       int // top-story threshold, default 100
	MaxItems       int // top-story ids fetched per pass, default 30
	SearchKeywords []string
	SearchMinScore int    // Algolia points threshold, default 50
	FirebaseURL    string // default https://hacker-news.firebaseio.com/v0
	AlgoliaURL     string // default https://hn.algolia.com/api/v1/search_by_date
	Client         *http.Client
	Logger         *slog.Logger
}

// HackerNews combines the official Firebase API (broad: top stories) with
// the Algolia search API (targeted: keyword hits). Neither needs auth.
type HackerNews struct {
	cfg HackerNewsConfig
}

// NewHackerNews creates the Hacker News collector.
func NewHackerNews(cfg HackerNewsConfig) *HackerNews {
	if cfg.MinScore <= 0 {
		cfg.MinScore = 100
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 30
	}
	if cfg.SearchMinScore <= 0 {
		cfg.SearchMinScore = 50
	}
	if cfg.FirebaseURL == "" {
		cfg.FirebaseURL = "https://hacker-news.firebaseio.com/v0"
	}
	if cfg.AlgoliaURL == "" {
		cfg.AlgoliaURL = "https://hn.algolia.com/api/v1/search_by_date"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HackerNews{cfg: cfg}
}

func (h *HackerNews) Name() string { return "hackernews" }

type hnStory struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
}

type algoliaHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	StoryText   string `json:"story_text"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	Author      string `json:"author"`
}

// Collect fetches top stories above the score threshold plus keyword
// search hits, deduplicated within the pass. This collector keeps no
// checkpoint: the score thresholds plus store idempotency bound rework.
func (h *HackerNews) Collect(ctx context.Context, prev json.RawMessage) ([]*canon.Artifact, json.RawMessage, error) {
	var out []*canon.Artifact
	seen := map[string]bool{}

	top, err := h.collectTopStories(ctx)
	if err != nil {
		h.cfg.Logger.Warn("hn top stories failed", "error", err)
	}
	for _, a := range top {
		if !seen[a.SourceID] {
			seen[a.SourceID] = true
			out = append(out, a)
		}
	}

	for _, keyword := range h.cfg.SearchKeywords {
		hits, err := h.searchStories(ctx, keyword)
		if err != nil {
			h.cfg.Logger.Warn("hn search failed", "keyword", keyword, "error", err)
			continue
		}
		for _, a := range hits {
			if !seen[a.SourceID] {
				seen[a.SourceID] = true
				out = append(out, a)
			}
		}
	}
	return out, prev, nil
}

func (h *HackerNews) collectTopStories(ctx context.Context) ([]*canon.Artifact, error) {
	var ids []int
	if err := getJSON(ctx, h.cfg.Client, h.cfg.FirebaseURL+"/topstories.json", nil, &ids); err != nil {
		return nil, err
	}
	if len(ids) > h.cfg.MaxItems {
		ids = ids[:h.cfg.MaxItems]
	}

	var out []*canon.Artifact
	for _, id := range ids {
		var story hnStory
		u := fmt.Sprintf("%s/item/%d.json", h.cfg.FirebaseURL, id)
		if err := getJSON(ctx, h.cfg.Client, u, nil, &story); err != nil {
			h.cfg.Logger.Warn("hn story fetch failed", "id", id, "error", err)
			continue
		}
		if story.Type != "story" || story.Score < h.cfg.MinScore {
			continue
		}

		hnURL := fmt.Sprintf("https://news.ycombinator.com/item?id=%d", id)
		storyURL := story.URL
		if storyURL == "" {
			storyURL = hnURL
		}
		out = append(out, &canon.Artifact{
			Source:   canon.SourceHackerNews,
			SourceID: "hn:" + strconv.Itoa(id),
			URL:      storyURL,
			Title:    story.Title,
			Body:     story.Text,
			Metadata: map[string]any{
				"score":    story.Score,
				"comments": story.Descendants,
				"author":   story.By,
			},
			ObservedAt: time.Now().UTC(),
		})
	}
	return out, nil
}

func (h *HackerNews) searchStories(ctx context.Context, keyword string) ([]*canon.Artifact, error) {
	q := url.Values{
		"query":          {keyword},
		"tags":           {"story"},
		"numericFilters": {fmt.Sprintf("points>%d", h.cfg.SearchMinScore)},
		"hitsPerPage":    {"10"},
	}
	var result struct {
		Hits []algoliaHit `json:"hits"`
	}
	if err := getJSON(ctx, h.cfg.Client, h.cfg.AlgoliaURL+"?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}

	var out []*canon.Artifact
	for _, hit := range result.Hits {
		if hit.ObjectID == "" {
			continue
		}
		hnURL := "https://news.ycombinator.com/item?id=" + hit.ObjectID
		storyURL := hit.URL
		if storyURL == "" {
			storyURL = hnURL
		}
		out = append(out, &canon.Artifact{
			Source:   canon.SourceHackerNews,
			SourceID: "hn:" + hit.ObjectID,
			URL:      storyURL,
			Title:    hit.Title,
			Body:     truncate(hit.StoryText, 3000),
			Metadata: map[string]any{
				"score":          hit.Points,
				"comments":       hit.NumComments,
				"author":         hit.Author,
				"search_keyword": keyword,
			},
			ObservedAt: time.Now().UTC(),
		})
	}
	return out, nil
}
