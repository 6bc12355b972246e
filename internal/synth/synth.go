// Package synth turns stored items into digests, structured opportunity
// runs and Q&A answers through an llm.Provider.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/happycoding7/signal-extract/llm"
	"github.com/happycoding7/signal-extract/internal/store"
)

// ErrInvalidSynthesis marks a structured run rejected after the repair
// retry. Nothing from the run is persisted.
var ErrInvalidSynthesis = errors.New("invalid synthesis output")

// Synthesizer drives all model calls over the stored corpus.
type Synthesizer struct {
	provider llm.Provider
	store    *store.Store
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Synthesizer.
func New(provider llm.Provider, st *store.Store, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{provider: provider, store: st, log: logger, now: time.Now}
}

// QAResult is one answered question.
type QAResult struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	SourcesUsed int    `json:"sources_used"`
}

func (s *Synthesizer) itemsWindow(ctx context.Context, days, minScore int) ([]*store.Item, error) {
	since := s.now().UTC().AddDate(0, 0, -days).UnixMilli()
	return s.store.ItemsSince(ctx, since, minScore)
}

// formatItems renders items into the prompt block the models consume.
func formatItems(items []*store.Item, maxItems int) string {
	if len(items) == 0 {
		return "(no items collected)"
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		body := it.Body
		if len(body) > 500 {
			body = body[:500]
		}
		blocks = append(blocks, fmt.Sprintf("[score=%d] [%s] %s\n  id: %s\n  URL: %s\n  %s\n",
			it.Score, it.Source, it.Title, it.Identity, it.URL, body))
	}
	return strings.Join(blocks, "\n---\n")
}

// DailyDigest scans the last day's high-score items. An empty window
// yields a canned digest without a model call and is not persisted.
func (s *Synthesizer) DailyDigest(ctx context.Context) (*store.Digest, error) {
	items, err := s.itemsWindow(ctx, 1, 40)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		s.log.Info("no items to digest today")
		return &store.Digest{Kind: store.DigestDaily, Content: "No clear opportunities today."}, nil
	}
	return s.digest(ctx, store.DigestDaily, items, llm.Request{
		System:      dailySystem,
		User:        fmt.Sprintf(dailyUser, formatItems(items, 20)),
		Temperature: 0.2,
		MaxTokens:   1000,
	})
}

// WeeklySynthesis ranks the week's signals into an opportunity analysis.
func (s *Synthesizer) WeeklySynthesis(ctx context.Context) (*store.Digest, error) {
	items, err := s.itemsWindow(ctx, 7, 30)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		s.log.Info("no items for weekly synthesis")
		return &store.Digest{Kind: store.DigestWeekly, Content: "Quiet week. No notable signals."}, nil
	}
	return s.digest(ctx, store.DigestWeekly, items, llm.Request{
		System:      weeklySystem,
		User:        fmt.Sprintf(weeklyUser, formatItems(items, 40)),
		Temperature: 0.3,
		MaxTokens:   1500,
	})
}

// OpportunityReport produces the free-text deep report over a 14-day
// window, long enough for cross-source patterns to accumulate.
func (s *Synthesizer) OpportunityReport(ctx context.Context) (*store.Digest, error) {
	items, err := s.itemsWindow(ctx, 14, 35)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		s.log.Info("no items for opportunity report")
		return &store.Digest{
			Kind:    store.DigestOpportunity,
			Content: "Not enough data for opportunity analysis. Run 'collect' first and wait for data to accumulate.",
		}, nil
	}
	return s.digest(ctx, store.DigestOpportunity, items, llm.Request{
		System:      opportunitySystem,
		User:        fmt.Sprintf(opportunityUser, formatItems(items, 50)),
		Temperature: 0.3,
		MaxTokens:   2000,
	})
}

func (s *Synthesizer) digest(ctx context.Context, kind string, items []*store.Item, req llm.Request) (*store.Digest, error) {
	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s digest: %w", kind, err)
	}
	s.log.Info("digest generated", "kind", kind,
		"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens, "model", resp.Model)

	d := &store.Digest{Kind: kind, Content: resp.Text, ItemCount: len(items), Model: resp.Model}
	id, err := s.store.InsertDigest(ctx, d)
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

// StructuredReport produces the JSON opportunity run. The model gets one
// repair attempt on invalid output; a second failure rejects the whole
// run with ErrInvalidSynthesis and persists nothing.
func (s *Synthesizer) StructuredReport(ctx context.Context) ([]*store.Opportunity, int64, error) {
	items, err := s.itemsWindow(ctx, 14, 35)
	if err != nil {
		return nil, 0, err
	}
	if len(items) == 0 {
		s.log.Info("no items for structured opportunity report")
		return nil, 0, nil
	}

	req := llm.Request{
		System:      structuredSystem,
		User:        fmt.Sprintf(structuredUser, formatItems(items, 50)),
		Temperature: 0.2,
		MaxTokens:   3000,
	}
	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("structured report: %w", err)
	}
	s.log.Info("structured report generated",
		"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens, "model", resp.Model)

	raw, parseErr := s.parseAndResolve(ctx, resp.Text)
	if parseErr != nil {
		s.log.Warn("structured output invalid, attempting repair", "error", parseErr)

		excerpt := resp.Text
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		repairResp, err := s.provider.Complete(ctx, llm.Request{
			System:      structuredSystem,
			User:        fmt.Sprintf(structuredRepair, parseErr.Error(), excerpt),
			Temperature: 0.1,
			MaxTokens:   3000,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("structured report repair: %w", err)
		}
		raw, parseErr = s.parseAndResolve(ctx, repairResp.Text)
		if parseErr != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidSynthesis, parseErr)
		}
		resp = repairResp
		s.log.Info("repair succeeded")
	}

	if len(raw) == 0 {
		s.log.Info("model returned no qualifying opportunities")
		return nil, 0, nil
	}

	opps := make([]*store.Opportunity, 0, len(raw))
	for _, r := range raw {
		opps = append(opps, toStoreOpportunity(r))
	}

	summary := &store.Digest{
		Kind:      store.DigestOpportunity,
		Content:   opportunitiesToText(opps),
		ItemCount: len(items),
		Model:     resp.Model,
	}
	digestID, err := s.store.InsertDigest(ctx, summary)
	if err != nil {
		return nil, 0, err
	}

	runID, err := s.store.SaveRun(ctx, opps, len(items), resp.Model, &digestID)
	if err != nil {
		return nil, 0, err
	}
	for _, o := range opps {
		o.RunID = runID
	}
	s.log.Info("structured run saved", "run_id", runID, "opportunities", len(opps))
	return opps, runID, nil
}

// parseAndResolve validates the JSON shape and then checks every cited
// evidence identity against the store. A fabricated citation fails the
// run the same way a malformed one does.
func (s *Synthesizer) parseAndResolve(ctx context.Context, text string) ([]*rawOpportunity, error) {
	raw, err := parseOpportunities(text)
	if err != nil {
		return nil, err
	}
	for _, r := range raw {
		for i, ev := range r.Evidence {
			ok, err := s.store.HasItem(ctx, ev.Identity)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("opportunity %q evidence[%d] cites unknown item %q", r.ID, i, ev.Identity)
			}
		}
	}
	return raw, nil
}

func toStoreOpportunity(r *rawOpportunity) *store.Opportunity {
	o := &store.Opportunity{
		Slug:             r.ID,
		Title:            r.Title,
		Pain:             r.Pain,
		TargetBuyer:      r.TargetBuyer,
		SolutionShape:    r.SolutionShape,
		MarketType:       r.MarketType,
		EffortEstimate:   r.EffortEstimate,
		Monetization:     r.Monetization,
		Moat:             r.Moat,
		Confidence:       int(*r.Confidence),
		CompetitionNotes: r.CompetitionNotes,
	}
	for _, ev := range r.Evidence {
		o.Evidence = append(o.Evidence, &store.Evidence{
			Source:       ev.Source,
			ItemTitle:    ev.ItemTitle,
			URL:          ev.URL,
			Score:        int(ev.Score),
			ItemIdentity: ev.Identity,
		})
	}
	return o
}

// Ask answers a question over the last days of collected signal.
func (s *Synthesizer) Ask(ctx context.Context, question string, days int) (*QAResult, error) {
	if days <= 0 {
		days = 7
	}
	items, err := s.itemsWindow(ctx, days, 20)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.Complete(ctx, llm.Request{
		System:      qaSystem,
		User:        fmt.Sprintf(qaUser, days, formatItems(items, 30), question),
		Temperature: 0.4,
		MaxTokens:   1500,
	})
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	return &QAResult{Question: question, Answer: resp.Text, SourcesUsed: len(items)}, nil
}

// opportunitiesToText renders the structured run as a readable summary
// for the digest that accompanies it.
func opportunitiesToText(opps []*store.Opportunity) string {
	var b strings.Builder
	for i, o := range opps {
		fmt.Fprintf(&b, "%d. %s (confidence: %d/100)\n", i+1, o.Title, o.Confidence)
		fmt.Fprintf(&b, "   PAIN: %s\n", o.Pain)
		fmt.Fprintf(&b, "   TARGET BUYER: %s\n", o.TargetBuyer)
		fmt.Fprintf(&b, "   SOLUTION: %s\n", o.SolutionShape)
		fmt.Fprintf(&b, "   MARKET: %s\n", o.MarketType)
		fmt.Fprintf(&b, "   EFFORT: %s\n", o.EffortEstimate)
		fmt.Fprintf(&b, "   MONETIZATION: %s\n", o.Monetization)
		fmt.Fprintf(&b, "   MOAT: %s\n", o.Moat)
		if o.CompetitionNotes != "" {
			fmt.Fprintf(&b, "   COMPETITION: %s\n", o.CompetitionNotes)
		}
		if len(o.Evidence) > 0 {
			fmt.Fprintf(&b, "   EVIDENCE (%d sources):\n", len(o.Evidence))
			for _, ev := range o.Evidence {
				fmt.Fprintf(&b, "     - [%s] %s\n       %s\n", ev.Source, ev.ItemTitle, ev.URL)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
