package worker

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sitepulse/collector/internal/config"
	"github.com/sitepulse/collector/internal/pkg/distlock"
	"github.com/sitepulse/collector/internal/pkg/logger"
)

// Pageviews older than the retention cutoff are deleted in bounded batches
// to avoid long-running transactions that could lock the table and block
// ingestion traffic. The sweeper is single-threaded and strictly sequential
// across batches, trading throughput for bounded lock contention.

const (
	// sweepBatchSize limits each DELETE.
	sweepBatchSize = 10000

	// batchTimeout bounds one DELETE round trip.
	batchTimeout = 60 * time.Second

	// batchPause reduces load between full batches.
	batchPause = 100 * time.Millisecond
)

// Batches select victims by age; a growing OFFSET lets the sweep advance
// past a range that keeps failing for non-connection reasons, so the loop
// always terminates. Skipped rows are picked up by the next run, deletion
// being idempotent.
const sweepSQL = `
	DELETE FROM pageviews
	WHERE ctid IN (
		SELECT ctid FROM pageviews
		WHERE added_iso < $1
		ORDER BY added_iso
		LIMIT $2 OFFSET $3
	)`

// SweepResult reports the outcome of one retention sweep.
type SweepResult struct {
	TotalDeleted     int64    `json:"total_deleted"`
	BatchesProcessed int      `json:"batches_processed"`
	DurationMs       int64    `json:"duration_ms"`
	Errors           []string `json:"errors,omitempty"`
	Aborted          bool     `json:"aborted"`
	Skipped          bool     `json:"skipped"`
}

// Sweeper deletes pageviews past the retention window.
type Sweeper struct {
	db              *sql.DB
	retentionMonths int
	batchSize       int
	lock            *distlock.AdvisoryLock
	now             func() time.Time
}

// NewSweeper creates a retention sweeper. A non-positive retention window
// logs a warning and falls back to the default.
func NewSweeper(db *sql.DB, retentionMonths int) *Sweeper {
	if retentionMonths <= 0 {
		logger.Warn("invalid retention window, falling back to default",
			"months", retentionMonths, "default", config.DefaultRetentionMonths)
		retentionMonths = config.DefaultRetentionMonths
	}
	return &Sweeper{
		db:              db,
		retentionMonths: retentionMonths,
		batchSize:       sweepBatchSize,
		lock:            distlock.New(db, "retention_sweep"),
		now:             time.Now,
	}
}

// Sweep deletes records strictly older than now − retention_months. At
// most one sweep runs against the store at a time; a run that finds the
// lock held returns immediately with Skipped set. Connection-class errors
// abort the run immediately, preserving partial progress; all other batch
// errors are logged, counted, and skipped over.
func (s *Sweeper) Sweep(ctx context.Context) *SweepResult {
	start := s.now()
	cutoff := start.AddDate(0, -s.retentionMonths, 0)
	result := &SweepResult{}

	acquired, err := s.lock.TryAcquire(ctx)
	if err != nil {
		logger.Error("retention sweep lock unavailable", "error", err)
		result.Errors = append(result.Errors, err.Error())
		result.Aborted = true
		return result
	}
	if !acquired {
		logger.Warn("retention sweep already running, skipping")
		result.Skipped = true
		return result
	}
	defer s.lock.Release(context.WithoutCancel(ctx))

	logger.Info("retention sweep starting",
		"cutoff", cutoff.UTC().Format(time.RFC3339), "batch_size", s.batchSize)

	offset := 0
	for {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			result.Aborted = true
			break
		}

		batchCtx, cancel := context.WithTimeout(ctx, batchTimeout)
		res, err := s.db.ExecContext(batchCtx, sweepSQL, cutoff, s.batchSize, offset)
		cancel()
		result.BatchesProcessed++

		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			if isConnectionError(err) {
				logger.Error("retention sweep aborted on connection failure",
					"batch", result.BatchesProcessed, "error", err)
				result.Aborted = true
				break
			}
			logger.Warn("retention sweep batch failed, advancing",
				"batch", result.BatchesProcessed, "error", err)
			offset += s.batchSize
			continue
		}

		deleted, err := res.RowsAffected()
		if err != nil {
			// Without the row count the partial-batch exit test is
			// meaningless; skip the window like any other batch failure.
			result.Errors = append(result.Errors, err.Error())
			logger.Warn("retention sweep batch count unavailable, advancing",
				"batch", result.BatchesProcessed, "error", err)
			offset += s.batchSize
			continue
		}
		result.TotalDeleted += deleted
		if deleted < int64(s.batchSize) {
			break
		}
		time.Sleep(batchPause)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	logger.Info("retention sweep finished",
		"total_deleted", result.TotalDeleted,
		"batches", result.BatchesProcessed,
		"duration_ms", result.DurationMs,
		"errors", len(result.Errors))
	return result
}

// connectionErrorFragments classify failures that make further batches
// pointless: the database itself is unreachable, not a single batch.
var connectionErrorFragments = []string{
	"connection refused",
	"no such host",
	"timed out",
	"deadline exceeded",
	"connection closed",
	"connection terminated",
	"connection reset",
	"broken pipe",
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range connectionErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
