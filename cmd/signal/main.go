// Command signal collects enterprise dev-tool signals, scores them,
// and synthesizes opportunity reports over the accumulated corpus.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/happycoding7/signal-extract/dbopen"
	"github.com/happycoding7/signal-extract/deliver"
	"github.com/happycoding7/signal-extract/internal/store"
	"github.com/happycoding7/signal-extract/internal/synth"
	"github.com/happycoding7/signal-extract/llm"
	"github.com/happycoding7/signal-extract/scout"
)

const usage = `Usage: signal <command> [flags]

Commands:
  collect             run all collectors once and store scored items
  digest              generate and print the daily digest
  weekly              generate and print the weekly synthesis
  opportunities       generate and print the opportunity report
  opportunities-json  generate a structured opportunity run as JSON
  ask <question>      answer a question over the recent corpus
  run                 collect, then digest if anything new was stored
  stats               print database counters
  serve               serve the read-only HTTP API

Flags:
  --config PATH   config file (YAML)
  --verbose       debug logging
  --days N        lookback window for ask (default 7)
  --out PATH      output file for opportunities-json (default stdout)
  --addr HOST     listen address for serve (default 127.0.0.1)
  --port N        listen port for serve (default 8712)
`

func main() {
	// A missing .env is fine; explicit env always wins.
	_ = godotenv.Load()

	flags := pflag.NewFlagSet("signal", pflag.ExitOnError)
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := flags.String("config", "", "config file (YAML)")
	verbose := flags.Bool("verbose", false, "debug logging")
	days := flags.Int("days", 7, "lookback window for ask")
	outPath := flags.String("out", "", "output file for opportunities-json")
	addr := flags.String("addr", "127.0.0.1", "listen address for serve")
	port := flags.Int("port", 8712, "listen port for serve")

	if len(os.Args) < 2 {
		flags.Usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	if err := flags.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	// Text for interactive commands, JSON for the long-running server.
	var handler slog.Handler
	if cmd == "serve" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := scout.LoadConfig(*configPath)
	if err != nil {
		fatal("load config", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &app{cfg: cfg, log: logger, days: *days, outPath: *outPath}

	switch cmd {
	case "collect":
		err = app.collect(ctx)
	case "digest":
		err = app.digest(ctx, store.DigestDaily)
	case "weekly":
		err = app.digest(ctx, store.DigestWeekly)
	case "opportunities":
		err = app.digest(ctx, store.DigestOpportunity)
	case "opportunities-json":
		err = app.opportunitiesJSON(ctx)
	case "ask":
		if flags.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "ask requires a question")
			os.Exit(2)
		}
		err = app.ask(ctx, flags.Arg(0))
	case "run":
		err = app.run(ctx)
	case "stats":
		err = app.stats(ctx)
	case "serve":
		err = app.serve(ctx, *addr, *port)
	case "help", "-h", "--help":
		flags.Usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(cmd, err)
	}
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "signal: %s: %v\n", what, err)
	os.Exit(1)
}

type app struct {
	cfg     *scout.Config
	log     *slog.Logger
	days    int
	outPath string
}

func (a *app) openDB() (*sql.DB, error) {
	db, err := dbopen.Open(a.cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	if err := store.ApplySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (a *app) synthesizer(db *sql.DB) (*synth.Synthesizer, error) {
	provider, err := llm.New(llm.Config{
		Provider: a.cfg.LLM.Provider,
		APIKey:   a.cfg.LLM.APIKey,
		Model:    a.cfg.LLM.Model,
	})
	if err != nil {
		return nil, err
	}
	return synth.New(provider, store.NewStore(db), a.log), nil
}

func (a *app) collect(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = a.collectWith(ctx, db)
	return err
}

// collectWith runs one collection pass and prints per-source counts.

func (a *app) collectWith(ctx context.Context, db *sql.DB) (int, error) {
	svc := scout.NewService(a.cfg, db, a.log)
	results, err := svc.CollectAll(ctx)

	var raw, stored int
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %-14s FAILED: %v\n", r.Collector, r.Err)
			continue
		}
		fmt.Printf("  %-14s %d raw, %d kept, %d stored\n", r.Collector, r.Raw, r.Kept, r.Stored)
		raw += r.Raw
		stored += r.Stored
	}
	if err != nil {
		return stored, err
	}
	fmt.Printf("Collected: %d raw -> %d stored\n", raw, stored)
	return stored, nil
}

func (a *app) digest(ctx context.Context, kind string) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	syn, err := a.synthesizer(db)
	if err != nil {
		return err
	}

	var d *store.Digest
	switch kind {
	case store.DigestDaily:
		d, err = syn.DailyDigest(ctx)
	case store.DigestWeekly:
		d, err = syn.WeeklySynthesis(ctx)
	case store.DigestOpportunity:
		d, err = syn.OpportunityReport(ctx)
	}
	if err != nil {
		return err
	}
	deliver.WriteDigest(os.Stdout, d)

	if ec := emailConfig(a.cfg); ec.Enabled() && d.ID != 0 {
		if err := deliver.SendDigest(ec, d); err != nil {
			a.log.Warn("email delivery failed", "error", err)
		}
	}
	return nil
}

func (a *app) opportunitiesJSON(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	syn, err := a.synthesizer(db)
	if err != nil {
		return err
	}

	opps, runID, err := syn.StructuredReport(ctx)
	if errors.Is(err, synth.ErrInvalidSynthesis) {
		fmt.Fprintf(os.Stderr, "signal: run rejected: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		return err
	}
	if len(opps) == 0 {
		fmt.Println("No qualifying opportunities found in the last 14 days.")
		return nil
	}

	out := struct {
		RunID         int64                `json:"run_id"`
		Opportunities []*store.Opportunity `json:"opportunities"`
	}{runID, opps}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if a.outPath != "" {
		if err := os.WriteFile(a.outPath, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %d opportunities to %s\n", len(opps), a.outPath)
		return nil
	}
	os.Stdout.Write(data)
	return nil
}

func (a *app) ask(ctx context.Context, question string) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	syn, err := a.synthesizer(db)
	if err != nil {
		return err
	}
	res, err := syn.Ask(ctx, question, a.days)
	if err != nil {
		return err
	}
	deliver.WriteAnswer(os.Stdout, res)
	return nil
}

// run is the cron entry: collect, then digest only when the pass
// stored something new.
func (a *app) run(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}

	stored, err := a.collectWith(ctx, db)
	db.Close()
	if err != nil {
		return err
	}
	if stored == 0 {
		fmt.Println("Nothing new to digest.")
		return nil
	}
	return a.digest(ctx, store.DigestDaily)
}

func (a *app) stats(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := store.NewStore(db).GetStats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Items:         %d (avg score %.1f)\n", st.Items, st.AvgScore)
	for src, n := range st.BySource {
		fmt.Printf("  %-14s %d\n", src, n)
	}
	fmt.Printf("Digests:       %d\n", st.Digests)
	fmt.Printf("Runs:          %d\n", st.Runs)
	fmt.Printf("Opportunities: %d\n", st.Opportunities)
	if st.LastCollected != nil {
		fmt.Printf("Last collect:  %s\n",
			time.UnixMilli(*st.LastCollected).UTC().Format("2006-01-02 15:04 UTC"))
	}
	return nil
}

func (a *app) serve(ctx context.Context, addr string, port int) error {
	// The API never writes; a read-only handle lets collect cron jobs
	// run against the same file without lock contention surprises.
	db, err := dbopen.Open(a.cfg.DBPath, dbopen.WithReadOnly())
	if err != nil {
		return err
	}
	defer db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", addr, port),
		Handler:           scout.NewAPI(db).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		a.log.Info("api server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func emailConfig(cfg *scout.Config) deliver.EmailConfig {
	return deliver.EmailConfig{
		Host: cfg.Email.Host,
		Port: cfg.Email.Port,
		User: cfg.Email.User,
		Pass: cfg.Email.Pass,
		To:   cfg.Email.To,
		From: cfg.Email.From,
	}
}
