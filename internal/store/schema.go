package store

import "database/sql"

// Schema is the complete signal database schema. All timestamps are
// INTEGER Unix milliseconds.
const Schema = `
-- Raw collected items, keyed by positional identity. Append-only.
CREATE TABLE IF NOT EXISTS items (
    identity       TEXT PRIMARY KEY,
    source         TEXT NOT NULL,
    source_id      TEXT NOT NULL,
    url            TEXT NOT NULL DEFAULT '',
    title          TEXT NOT NULL,
    body           TEXT NOT NULL DEFAULT '',
    metadata_json  TEXT NOT NULL DEFAULT '{}',
    score          INTEGER NOT NULL DEFAULT 0,
    observed_at    INTEGER NOT NULL,
    collected_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
CREATE INDEX IF NOT EXISTS idx_items_score ON items(score DESC, collected_at DESC);
CREATE INDEX IF NOT EXISTS idx_items_collected ON items(collected_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_source_local ON items(source, source_id);

-- One opaque checkpoint per collector, written only after a clean pass.
CREATE TABLE IF NOT EXISTS collector_state (
    collector   TEXT PRIMARY KEY,
    state_json  TEXT NOT NULL DEFAULT '{}',
    updated_at  INTEGER NOT NULL
);

-- Synthesized digests (daily, weekly, opportunity prose). Append-only.
CREATE TABLE IF NOT EXISTS digests (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    kind         TEXT NOT NULL,
    content      TEXT NOT NULL,
    item_count   INTEGER NOT NULL DEFAULT 0,
    model        TEXT NOT NULL DEFAULT '',
    generated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_digests_kind ON digests(kind, generated_at DESC);

-- One row per structured synthesis run.
CREATE TABLE IF NOT EXISTS opportunity_runs (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    digest_id         INTEGER REFERENCES digests(id),
    item_count        INTEGER NOT NULL DEFAULT 0,
    opportunity_count INTEGER NOT NULL DEFAULT 0,
    model             TEXT NOT NULL DEFAULT '',
    generated_at      INTEGER NOT NULL
);

-- Opportunities are versioned by run: the same slug may recur across runs
-- with different confidence. History is never overwritten.
CREATE TABLE IF NOT EXISTS opportunities (
    slug              TEXT NOT NULL,
    run_id            INTEGER NOT NULL REFERENCES opportunity_runs(id),
    title             TEXT NOT NULL,
    pain              TEXT NOT NULL,
    target_buyer      TEXT NOT NULL,
    solution_shape    TEXT NOT NULL,
    market_type       TEXT NOT NULL,
    effort_estimate   TEXT NOT NULL,
    monetization      TEXT NOT NULL DEFAULT '',
    moat              TEXT NOT NULL DEFAULT '',
    confidence        INTEGER NOT NULL,
    competition_notes TEXT NOT NULL DEFAULT '',
    generated_at      INTEGER NOT NULL,
    PRIMARY KEY (slug, run_id)
);
CREATE INDEX IF NOT EXISTS idx_opportunities_run ON opportunities(run_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_confidence ON opportunities(confidence);
CREATE INDEX IF NOT EXISTS idx_opportunities_buyer ON opportunities(target_buyer);
CREATE INDEX IF NOT EXISTS idx_opportunities_slug ON opportunities(slug, generated_at);

CREATE TABLE IF NOT EXISTS opportunity_evidence (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    opportunity_id TEXT NOT NULL,
    run_id         INTEGER NOT NULL,
    source         TEXT NOT NULL,
    item_title     TEXT NOT NULL,
    url            TEXT NOT NULL DEFAULT '',
    score          INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (opportunity_id, run_id) REFERENCES opportunities(slug, run_id)
);
CREATE INDEX IF NOT EXISTS idx_evidence_opportunity ON opportunity_evidence(opportunity_id, run_id);

-- One row per collector per collection pass (observability).
CREATE TABLE IF NOT EXISTS collection_log (
    id            TEXT PRIMARY KEY,
    collector     TEXT NOT NULL,
    status        TEXT NOT NULL,
    raw_count     INTEGER NOT NULL DEFAULT 0,
    kept_count    INTEGER NOT NULL DEFAULT 0,
    stored_count  INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    rules_version TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    started_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_collection_log_time ON collection_log(collector, started_at DESC);
`

// Migration001EvidenceIdentity links evidence rows back to the raw item
// they cite. Earlier databases carried only title and URL.
const Migration001EvidenceIdentity = `
ALTER TABLE opportunity_evidence ADD COLUMN item_identity TEXT NOT NULL DEFAULT '';
`

// ApplySchema creates all tables and indexes on the given database.
// Safe to run on every startup; migrations are additive only.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return err
	}
	applyColumnMigration(db, "opportunity_evidence", "item_identity", Migration001EvidenceIdentity)
	return nil
}

// applyColumnMigration adds a column if it doesn't exist (idempotent).
func applyColumnMigration(db *sql.DB, table, column, ddl string) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil || count > 0 {
		return
	}
	db.Exec(ddl)
}
