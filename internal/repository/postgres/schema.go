package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// pageviewSchema creates the pageviews table and its indexes. The partial
// unique index is the duplicate-suppression key: one record per
// (day, path, session, hostname), with NULL sessions exempt.
const pageviewSchema = `
CREATE TABLE IF NOT EXISTS pageviews (
	page_id              TEXT PRIMARY KEY,
	session_id           TEXT,
	added_iso            TIMESTAMPTZ NOT NULL,
	added_day            DATE NOT NULL,
	hostname             TEXT NOT NULL,
	path                 TEXT NOT NULL,
	title                TEXT NOT NULL DEFAULT '',
	referrer             TEXT NOT NULL DEFAULT '',
	internal_referrer    BOOLEAN NOT NULL DEFAULT FALSE,
	device_type          TEXT NOT NULL,
	viewport_width       INTEGER NOT NULL DEFAULT 0,
	browser              TEXT NOT NULL DEFAULT '',
	os                   TEXT NOT NULL DEFAULT '',
	language             TEXT NOT NULL DEFAULT '',
	timezone             TEXT NOT NULL DEFAULT '',
	utm_source           TEXT NOT NULL DEFAULT '',
	utm_medium           TEXT NOT NULL DEFAULT '',
	utm_campaign         TEXT NOT NULL DEFAULT '',
	utm_term             TEXT NOT NULL DEFAULT '',
	utm_content          TEXT NOT NULL DEFAULT '',
	duration_seconds     INTEGER NOT NULL DEFAULT 0,
	scrolled_percentage  INTEGER,
	visibility_changes   INTEGER NOT NULL DEFAULT 0,
	time_on_page_seconds INTEGER NOT NULL DEFAULT 0,
	is_bot               BOOLEAN NOT NULL DEFAULT FALSE,
	is_unique            BOOLEAN NOT NULL DEFAULT FALSE,
	country_code         TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS pageviews_daily_visit_key
	ON pageviews (added_day, path, session_id, hostname)
	WHERE session_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS pageviews_added_iso_idx
	ON pageviews (added_iso);
`

// EnsureSchema creates the pageviews table and indexes if absent.
// Idempotent; called once at process start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, pageviewSchema); err != nil {
		return fmt.Errorf("ensure pageview schema: %w", err)
	}
	return nil
}
