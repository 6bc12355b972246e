// Package scout wires the collectors, the scoring rules and the store
// into the collection pipeline, and exposes the read-only query API.
package scout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/happycoding7/signal-extract/internal/canon"
	"github.com/happycoding7/signal-extract/internal/collect"
	"github.com/happycoding7/signal-extract/internal/score"
	"github.com/happycoding7/signal-extract/internal/store"
)

// ErrIdentityCollision is re-exported for callers outside the store.
var ErrIdentityCollision = store.ErrIdentityCollision

// Service runs collection passes over a set of collectors.
type Service struct {
	store      *store.Store
	collectors []collect.Collector
	rules      *score.RuleSet
	limits     canon.Limits
	threshold  int
	log        *slog.Logger
}

// NewService builds the pipeline from config. The rule set is compiled
// once at startup; all collectors share the config's credentials.
func NewService(cfg *Config, db *sql.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	rules := score.DefaultRules()
	if cfg.ScoreThreshold > 0 {
		r := *rules
		r.Threshold = cfg.ScoreThreshold
		rules = &r
	}
	collectors := []collect.Collector{
		collect.NewGitHub(collect.GitHubConfig{
			Repos:  cfg.GitHub.Repos,
			Token:  cfg.GitHub.Token,
			Logger: logger,
		}),
		collect.NewDiscussions(collect.DiscussionsConfig{
			Repos:  cfg.GitHub.DiscussionsRepos,
			Token:  cfg.GitHub.Token,
			Logger: logger,
		}),
		collect.NewHackerNews(collect.HackerNewsConfig{
			MinScore:       cfg.HN.MinScore,
			MaxItems:       cfg.HN.MaxItems,
			SearchKeywords: cfg.HN.SearchKeywords,
			SearchMinScore: cfg.HN.SearchMinScore,
			Logger:         logger,
		}),
		collect.NewRSS(collect.RSSConfig{
			Feeds:  cfg.RSSFeeds,
			Logger: logger,
		}),
		collect.NewNVD(collect.NVDConfig{
			MinCVSS:    cfg.NVD.MinCVSS,
			MaxResults: cfg.NVD.MaxResults,
			APIKey:     cfg.NVD.APIKey,
			Logger:     logger,
		}),
	}
	return &Service{
		store:      store.NewStore(db),
		collectors: collectors,
		rules:      rules,
		limits:     canon.DefaultLimits(),
		threshold:  rules.Threshold,
		log:        logger,
	}
}

// Store exposes the underlying store for synthesis and the API layer.
func (s *Service) Store() *store.Store { return s.store }

// CollectResult summarizes one collector's pass.
type CollectResult struct {
	Collector string
	Raw       int
	Kept      int
	Stored    int
	Err       error
}

// CollectAll runs every collector once. Each collector reads its own
// checkpoint before the pass and commits the next one only after every
// kept item is stored, so a failed pass replays instead of losing data.
// An identity collision aborts the whole run: it means two different
// upstream records hashed to the same identity, and storing either
// would corrupt the corpus.
func (s *Service) CollectAll(ctx context.Context) ([]CollectResult, error) {
	results := make([]CollectResult, 0, len(s.collectors))
	for _, c := range s.collectors {
		res, err := s.collectOne(ctx, c)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) collectOne(ctx context.Context, c collect.Collector) (CollectResult, error) {
	res := CollectResult{Collector: c.Name()}
	started := time.Now()

	logEntry := func(status, errMsg string) {
		entry := &store.CollectionLogEntry{
			ID:           uuid.NewString(),
			Collector:    c.Name(),
			Status:       status,
			RawCount:     res.Raw,
			KeptCount:    res.Kept,
			StoredCount:  res.Stored,
			ErrorMessage: errMsg,
			RulesVersion: s.rules.Version,
			DurationMs:   time.Since(started).Milliseconds(),
			StartedAt:    started.UnixMilli(),
		}
		if err := s.store.InsertCollectionLog(ctx, entry); err != nil {
			s.log.Warn("collection log insert failed", "collector", c.Name(), "error", err)
		}
	}

	state, err := s.store.GetCheckpoint(ctx, c.Name())
	if err != nil {
		res.Err = err
		logEntry("error", err.Error())
		return res, nil
	}

	artifacts, nextState, err := c.Collect(ctx, state)
	if err != nil {
		s.log.Error("collector failed", "collector", c.Name(), "error", err)
		res.Err = err
		logEntry("error", err.Error())
		return res, nil
	}
	res.Raw = len(artifacts)

	normalized := artifacts[:0]
	for _, a := range artifacts {
		if err := canon.Normalize(a, s.limits); err != nil {
			s.log.Warn("dropping malformed artifact", "collector", c.Name(), "error", err)
			continue
		}
		normalized = append(normalized, a)
	}

	kept, scores := score.Filter(normalized, s.rules)
	res.Kept = len(kept)

	for i, a := range kept {
		stored, err := s.insertArtifact(ctx, a, scores[i])
		if err != nil {
			if errors.Is(err, store.ErrIdentityCollision) {
				logEntry("error", err.Error())
				return res, err
			}
			s.log.Error("item insert failed", "collector", c.Name(), "identity", a.ID(), "error", err)
			res.Err = err
			logEntry("error", err.Error())
			return res, nil
		}
		if stored {
			res.Stored++
		}
	}

	// Checkpoint moves only after a fully successful pass.
	if len(nextState) > 0 {
		if err := s.store.SetCheckpoint(ctx, c.Name(), nextState); err != nil {
			res.Err = err
			logEntry("error", err.Error())
			return res, nil
		}
	}

	s.log.Info("collector pass complete", "collector", c.Name(),
		"raw", res.Raw, "kept", res.Kept, "stored", res.Stored,
		"duration", time.Since(started).Round(time.Millisecond))
	logEntry("ok", "")
	return res, nil
}

func (s *Service) insertArtifact(ctx context.Context, a *canon.Artifact, sc int) (bool, error) {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return false, err
	}
	return s.store.InsertItem(ctx, &store.Item{
		Identity:     a.ID(),
		Source:       a.Source,
		SourceID:     a.SourceID,
		URL:          a.URL,
		Title:        a.Title,
		Body:         a.Body,
		MetadataJSON: string(meta),
		Score:        sc,
		ObservedAt:   a.ObservedAt.UnixMilli(),
		CollectedAt:  time.Now().UnixMilli(),
	})
}
