package collect

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/happycoding7/signal-extract/internal/canon"
	"github.com/happycoding7/signal-extract/internal/feed"
	"github.com/happycoding7/signal-extract/internal/fetch"
)

const maxEntriesPerFeed = 10

// RSSConfig configures the RSS/Atom collector.
type RSSConfig struct {
	Feeds   []string
	Fetcher *fetch.Fetcher
	Logger  *slog.Logger
}

// RSS polls a list of feeds with conditional requests. The checkpoint
// carries per-feed ETag and Last-Modified values so unchanged feeds
// cost a single 304 round trip.
type RSS struct {
	cfg         RSSConfig
	mdConverter *converter.Converter
	stripper    *bluemonday.Policy
}

// NewRSS creates the RSS collector.
func NewRSS(cfg RSSConfig) *RSS {
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.New(fetch.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RSS{
		cfg: cfg,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		stripper: bluemonday.StrictPolicy(),
	}
}

func (r *RSS) Name() string { return "rss" }

type rssFeedState struct {
	ETag    string `json:"etag,omitempty"`
	LastMod string `json:"last_modified,omitempty"`
	Hash    string `json:"hash,omitempty"`
}

type rssState struct {
	Feeds map[string]rssFeedState `json:"feeds"`
}

// Collect polls every configured feed. A failing feed is logged and
// skipped; its checkpoint entry keeps the previous values so the next
// pass retries the conditional request.
func (r *RSS) Collect(ctx context.Context, prev json.RawMessage) ([]*canon.Artifact, json.RawMessage, error) {
	state := rssState{Feeds: map[string]rssFeedState{}}
	if len(prev) > 0 {
		if err := json.Unmarshal(prev, &state); err != nil {
			r.cfg.Logger.Warn("rss checkpoint unreadable, starting fresh", "error", err)
			state = rssState{}
		}
		if state.Feeds == nil {
			state.Feeds = map[string]rssFeedState{}
		}
	}

	var out []*canon.Artifact
	for _, feedURL := range r.cfg.Feeds {
		fs := state.Feeds[feedURL]
		artifacts, next, err := r.collectFeed(ctx, feedURL, fs)
		if err != nil {
			r.cfg.Logger.Warn("feed fetch failed", "feed", feedURL, "error", err)
			continue
		}
		state.Feeds[feedURL] = next
		out = append(out, artifacts...)
	}

	nextState, err := json.Marshal(state)
	if err != nil {
		return nil, nil, err
	}
	return out, nextState, nil
}

func (r *RSS) collectFeed(ctx context.Context, feedURL string, fs rssFeedState) ([]*canon.Artifact, rssFeedState, error) {
	result, err := r.cfg.Fetcher.Fetch(ctx, feedURL, fs.ETag, fs.LastMod, fs.Hash)
	if err != nil {
		return nil, fs, err
	}
	next := rssFeedState{ETag: result.ETag, LastMod: result.LastMod, Hash: result.Hash}
	if !result.Changed {
		// A 304 may omit the validators; keep the ones that earned it.
		if next.ETag == "" {
			next.ETag = fs.ETag
		}
		if next.LastMod == "" {
			next.LastMod = fs.LastMod
		}
		if next.Hash == "" {
			next.Hash = fs.Hash
		}
		return nil, next, nil
	}

	parsed, err := feed.Parse(result.Body)
	if err != nil {
		return nil, fs, err
	}

	entries := parsed.Entries
	if len(entries) > maxEntriesPerFeed {
		entries = entries[:maxEntriesPerFeed]
	}

	var out []*canon.Artifact
	for _, e := range entries {
		if e.GUID == "" {
			continue
		}
		title := e.Title
		if parsed.Title != "" {
			title = "[" + parsed.Title + "] " + e.Title
		}
		observed := e.PublishedTime()
		if observed.IsZero() {
			observed = time.Now().UTC()
		}
		out = append(out, &canon.Artifact{
			Source:   canon.SourceRSS,
			SourceID: "rss:" + feedURL + ":" + e.GUID,
			URL:      e.Link,
			Title:    title,
			Body:     truncate(r.toMarkdown(e.Body(), e.Link), 3000),
			Metadata: map[string]any{
				"feed":       feedURL,
				"feed_title": parsed.Title,
				"author":     e.Author,
			},
			ObservedAt: observed,
		})
	}
	return out, next, nil
}

// toMarkdown converts entry HTML to markdown, falling back to a plain
// tag strip when conversion fails or produces nothing.
func (r *RSS) toMarkdown(html, sourceURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := r.mdConverter.ConvertString(html, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return strings.TrimSpace(r.stripper.Sanitize(html))
	}
	return strings.TrimSpace(md)
}
