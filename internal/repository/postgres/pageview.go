package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sitepulse/collector/internal/domain"
	"github.com/sitepulse/collector/internal/service/pageview"
)

// uniqueViolation is the Postgres error code raised when the daily
// composite index rejects an insert.
const uniqueViolation = "23505"

// PageviewRepo implements pageview.Repository against PostgreSQL. Every
// write runs inside a transaction bounded by txTimeout; exceeding the
// budget fails the request atomically with no partial write.
type PageviewRepo struct {
	db        *sql.DB
	txTimeout time.Duration
}

// NewPageviewRepo creates a Postgres-backed pageview repository.
func NewPageviewRepo(db *sql.DB, txTimeout time.Duration) *PageviewRepo {
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	return &PageviewRepo{db: db, txTimeout: txTimeout}
}

const insertPageviewSQL = `
	INSERT INTO pageviews (
		page_id, session_id, added_iso, added_day, hostname, path, title,
		referrer, internal_referrer, device_type, viewport_width, browser,
		os, language, timezone, utm_source, utm_medium, utm_campaign,
		utm_term, utm_content, duration_seconds, scrolled_percentage,
		visibility_changes, time_on_page_seconds, is_bot, is_unique,
		country_code
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
	)`

func (r *PageviewRepo) Insert(ctx context.Context, pv *domain.Pageview) error {
	ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, insertPageviewSQL,
		pv.PageID, pv.SessionID, pv.AddedISO, pv.Day(), pv.Hostname,
		pv.Path, pv.Title, pv.Referrer, pv.InternalReferrer, pv.DeviceType,
		pv.ViewportWidth, pv.Browser, pv.OS, pv.Language, pv.Timezone,
		pv.UTMSource, pv.UTMMedium, pv.UTMCampaign, pv.UTMTerm,
		pv.UTMContent, pv.DurationSeconds, pv.ScrolledPercentage,
		pv.VisibilityChanges, pv.TimeOnPageSeconds, pv.IsBot, pv.IsUnique,
		pv.CountryCode,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pageview.ErrDuplicate
		}
		return fmt.Errorf("insert pageview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return pageview.ErrDuplicate
		}
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return nil
}

func (r *PageviewRepo) AppendEngagement(ctx context.Context, pageID string, durationSeconds int, scrolledPercentage *int) error {
	ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT page_id FROM pageviews WHERE page_id = $1 FOR UPDATE`,
		pageID,
	).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return pageview.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup pageview %s: %w", pageID, err)
	}

	// Unconditional overwrite: concurrent appends resolve by last write
	// wins at the storage layer. time_on_page mirrors duration for now.
	_, err = tx.ExecContext(ctx, `
		UPDATE pageviews
		SET duration_seconds = $2,
		    scrolled_percentage = $3,
		    time_on_page_seconds = $2
		WHERE page_id = $1`,
		pageID, durationSeconds, scrolledPercentage,
	)
	if err != nil {
		return fmt.Errorf("append engagement %s: %w", pageID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

const selectPageviewSQL = `
	SELECT page_id, session_id, added_iso, hostname, path, title, referrer,
	       internal_referrer, device_type, viewport_width, browser, os,
	       language, timezone, utm_source, utm_medium, utm_campaign,
	       utm_term, utm_content, duration_seconds, scrolled_percentage,
	       visibility_changes, time_on_page_seconds, is_bot, is_unique,
	       country_code
	FROM pageviews
	WHERE page_id = $1`

func (r *PageviewRepo) FindByPageID(ctx context.Context, pageID string) (*domain.Pageview, error) {
	var pv domain.Pageview
	err := r.db.QueryRowContext(ctx, selectPageviewSQL, pageID).Scan(
		&pv.PageID, &pv.SessionID, &pv.AddedISO, &pv.Hostname, &pv.Path,
		&pv.Title, &pv.Referrer, &pv.InternalReferrer, &pv.DeviceType,
		&pv.ViewportWidth, &pv.Browser, &pv.OS, &pv.Language, &pv.Timezone,
		&pv.UTMSource, &pv.UTMMedium, &pv.UTMCampaign, &pv.UTMTerm,
		&pv.UTMContent, &pv.DurationSeconds, &pv.ScrolledPercentage,
		&pv.VisibilityChanges, &pv.TimeOnPageSeconds, &pv.IsBot,
		&pv.IsUnique, &pv.CountryCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pageview.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find pageview %s: %w", pageID, err)
	}
	return &pv, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
