package pageview

import (
	"context"

	"github.com/sitepulse/collector/internal/domain"
)

// Repository defines the data access contract for pageview records.
type Repository interface {
	// Insert persists a new pageview in a single bounded transaction.
	// Returns ErrDuplicate on a composite-key collision (records with a
	// NULL session id are exempt and never collide).
	Insert(ctx context.Context, pv *domain.Pageview) error

	// AppendEngagement looks the record up by page_id and unconditionally
	// overwrites duration_seconds, scrolled_percentage and the derived
	// time_on_page_seconds. Returns ErrNotFound when no record exists;
	// concurrent appends resolve by last write wins.
	AppendEngagement(ctx context.Context, pageID string, durationSeconds int, scrolledPercentage *int) error

	// FindByPageID returns the record for page_id, or ErrNotFound.
	FindByPageID(ctx context.Context, pageID string) (*domain.Pageview, error)
}
