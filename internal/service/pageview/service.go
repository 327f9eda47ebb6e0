package pageview

import (
	"context"
	"errors"
	"time"

	"github.com/sitepulse/collector/internal/domain"
	"github.com/sitepulse/collector/internal/pkg/logger"
)

// defaultEnrichTimeout bounds each enrichment call independently. None of
// the collaborators is retried inline, so total request latency stays
// bounded without retry storms.
const defaultEnrichTimeout = 2 * time.Second

// UAInfo is the outcome of classifying a raw user-agent string.
type UAInfo struct {
	Browser    string
	OS         string
	DeviceType string
	Bot        bool
}

// UAClassifier derives browser, OS, device type and bot-ness from a raw
// user agent. An error means the string was unrecognizable.
type UAClassifier interface {
	Classify(ctx context.Context, userAgent string) (UAInfo, error)
}

// GeoResolver maps an IP address to an ISO country code. A miss or failure
// is reported as an error and downgrades to a NULL country.
type GeoResolver interface {
	CountryCode(ctx context.Context, ip string) (string, error)
}

// UniqueChecker answers the first-visit-today question. Implementations
// must degrade store failures to false internally; the only error they may
// return is a programming error such as empty inputs.
type UniqueChecker interface {
	FirstVisitToday(ctx context.Context, ip, userAgent string) (bool, error)
}

// ClientInfo carries the request-observed IP and user agent. Both live for
// the duration of Create only and are never persisted.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Service implements pageview ingestion and engagement appends. It is safe
// for concurrent use; the only cross-request coordination points are the
// persistence store and the dedup store, which provide their own atomicity.
type Service struct {
	repo          Repository
	ua            UAClassifier
	geo           GeoResolver
	unique        UniqueChecker
	enrichTimeout time.Duration
}

// NewService creates a pageview service with the given collaborators.
func NewService(repo Repository, ua UAClassifier, geo GeoResolver, unique UniqueChecker) *Service {
	return &Service{
		repo:          repo,
		ua:            ua,
		geo:           geo,
		unique:        unique,
		enrichTimeout: defaultEnrichTimeout,
	}
}

// Create validates, enriches and persists a new pageview. The returned
// field errors are client-fixable; a non-nil error is a server fault.
// A composite-key duplicate is suppressed and reported as success.
func (s *Service) Create(ctx context.Context, req *CreateRequest, client ClientInfo) ([]FieldError, error) {
	if errs := ValidateCreate(req); len(errs) > 0 {
		return errs, nil
	}

	addedAt, err := parseISO(req.AddedISO)
	if err != nil {
		// Unreachable after validation; belt and braces for direct callers.
		return []FieldError{{Field: "added_iso", Message: "must be an ISO-8601 timestamp"}}, nil
	}

	pv := &domain.Pageview{
		PageID:             req.PageID,
		SessionID:          req.SessionID,
		AddedISO:           addedAt,
		Hostname:           req.Hostname,
		Path:               sanitizePath(req.Path),
		Title:              req.Title,
		Referrer:           req.Referrer,
		InternalReferrer:   req.InternalReferrer,
		DeviceType:         req.DeviceType,
		ViewportWidth:      req.ViewportWidth,
		Language:           req.Language,
		Timezone:           req.Timezone,
		UTMSource:          req.UTMSource,
		UTMMedium:          req.UTMMedium,
		UTMCampaign:        req.UTMCampaign,
		UTMTerm:            req.UTMTerm,
		UTMContent:         req.UTMContent,
		DurationSeconds:    req.DurationSeconds,
		ScrolledPercentage: req.ScrolledPercentage,
		VisibilityChanges:  req.VisibilityChanges,
		TimeOnPageSeconds:  req.DurationSeconds,
	}

	if err := s.enrich(ctx, pv, client); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, pv); err != nil {
		if errors.Is(err, ErrDuplicate) {
			logger.Debug("duplicate pageview suppressed",
				"day", pv.Day(), "path", pv.Path, "hostname", pv.Hostname)
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}

// enrich fills the computed fields. Each collaborator runs under its own
// timeout with a documented fallback; client.IP is discarded when this
// returns and never reaches the persisted record. The only returned error
// is the uniqueness checker's programming-error path (empty ip/ua), which
// must fail loudly rather than silently skew unique counts.
func (s *Service) enrich(ctx context.Context, pv *domain.Pageview, client ClientInfo) error {
	uaCtx, cancel := context.WithTimeout(ctx, s.enrichTimeout)
	info, err := s.ua.Classify(uaCtx, client.UserAgent)
	cancel()
	if err != nil {
		// Fallback: keep the client-reported device type, no browser/os, not a bot.
		logger.Warn("user-agent classification failed", "user_agent", client.UserAgent, "error", err)
	} else {
		pv.Browser = info.Browser
		pv.OS = info.OS
		pv.IsBot = info.Bot
		// A successful parse is authoritative over the client's self-report.
		if info.DeviceType != "" {
			pv.DeviceType = info.DeviceType
		}
	}

	geoCtx, cancel := context.WithTimeout(ctx, s.enrichTimeout)
	cc, err := s.geo.CountryCode(geoCtx, client.IP)
	cancel()
	if err != nil || cc == "" {
		if err != nil {
			logger.Warn("geoip lookup failed", "ip", client.IP, "error", err)
		}
		// country_code stays NULL
	} else {
		pv.CountryCode = &cc
	}

	// Computed exactly once, never recomputed: the outcome is persisted
	// with the record and appends never touch it.
	dedupCtx, cancel := context.WithTimeout(ctx, s.enrichTimeout)
	unique, err := s.unique.FirstVisitToday(dedupCtx, client.IP, client.UserAgent)
	cancel()
	if err != nil {
		// Only programming errors (empty ip/ua) reach here; the checker
		// degrades store failures internally.
		return err
	}
	pv.IsUnique = unique
	return nil
}

// Append overwrites the engagement metrics of an existing pageview.
// Returns ErrNotFound (wrapped by the repository) for an unknown page_id.
func (s *Service) Append(ctx context.Context, req *AppendRequest) ([]FieldError, error) {
	if errs := ValidateAppend(req); len(errs) > 0 {
		return errs, nil
	}
	return nil, s.repo.AppendEngagement(ctx, req.PageID, req.DurationSeconds, req.ScrolledPercentage)
}
