package pageview

import (
	"regexp"
	"strings"
	"time"
)

// CreateRequest is the wire payload accepted by the ingestion endpoint.
// The client IP and user agent are never part of the payload; they are
// observed from the request itself.
type CreateRequest struct {
	PageID           string  `json:"page_id"`
	SessionID        *string `json:"session_id"`
	AddedISO         string  `json:"added_iso"`
	Hostname         string  `json:"hostname"`
	Path             string  `json:"path"`
	Title            string  `json:"title"`
	Referrer         string  `json:"referrer"`
	InternalReferrer bool    `json:"internal_referrer"`

	DeviceType    string `json:"device_type"`
	ViewportWidth int    `json:"viewport_width"`
	Language      string `json:"language"`
	Timezone      string `json:"timezone"`

	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`

	DurationSeconds    int  `json:"duration_seconds"`
	ScrolledPercentage *int `json:"scrolled_percentage"`
	VisibilityChanges  int  `json:"visibility_changes"`
}

// AppendRequest is the wire payload accepted by the engagement endpoint.
type AppendRequest struct {
	PageID             string `json:"page_id"`
	DurationSeconds    int    `json:"duration_seconds"`
	ScrolledPercentage *int   `json:"scrolled_percentage"`
}

// FieldError reports one validation failure. Validation errors are
// client-fixable and never logged as server faults.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// pageIDPattern: fixed 16 characters, literal leading "p", id-safe
// alphabet for the remainder.
var pageIDPattern = regexp.MustCompile(`^p[A-Za-z0-9_-]{15}$`)

var deviceTypes = map[string]bool{"mobile": true, "tablet": true, "desktop": true}

// fieldRule is one declarative per-field constraint. All rules are
// evaluated so the client sees every violation at once.
type fieldRule struct {
	field   string
	message string
	ok      func() bool
}

func evaluate(rules []fieldRule) []FieldError {
	var errs []FieldError
	for _, r := range rules {
		if !r.ok() {
			errs = append(errs, FieldError{Field: r.field, Message: r.message})
		}
	}
	return errs
}

// ValidateCreate checks the create payload against its declared constraints.
func ValidateCreate(r *CreateRequest) []FieldError {
	return evaluate([]fieldRule{
		{"page_id", `must be a 16-character id starting with "p"`,
			func() bool { return pageIDPattern.MatchString(r.PageID) }},
		{"added_iso", "must be an ISO-8601 timestamp",
			func() bool { _, err := parseISO(r.AddedISO); return err == nil }},
		{"hostname", "is required",
			func() bool { return strings.TrimSpace(r.Hostname) != "" }},
		{"path", `must start with "/"`,
			func() bool { return strings.HasPrefix(r.Path, "/") }},
		{"device_type", "must be one of mobile, tablet, desktop",
			func() bool { return deviceTypes[r.DeviceType] }},
		{"viewport_width", "must be greater than or equal to 0",
			func() bool { return r.ViewportWidth >= 0 }},
		{"duration_seconds", "must be greater than or equal to 0",
			func() bool { return r.DurationSeconds >= 0 }},
		{"scrolled_percentage", "must be between 0 and 100",
			func() bool { return inScrollRange(r.ScrolledPercentage) }},
		{"visibility_changes", "must be greater than or equal to 0",
			func() bool { return r.VisibilityChanges >= 0 }},
	})
}

// ValidateAppend checks the append payload.
func ValidateAppend(r *AppendRequest) []FieldError {
	return evaluate([]fieldRule{
		{"page_id", `must be a 16-character id starting with "p"`,
			func() bool { return pageIDPattern.MatchString(r.PageID) }},
		{"duration_seconds", "must be greater than or equal to 0",
			func() bool { return r.DurationSeconds >= 0 }},
		{"scrolled_percentage", "must be between 0 and 100",
			func() bool { return inScrollRange(r.ScrolledPercentage) }},
	})
}

func inScrollRange(p *int) bool {
	return p == nil || (*p >= 0 && *p <= 100)
}

func parseISO(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// sanitizePath strips ASCII control characters (0–31, 127) before storage.
// Defense in depth only; the persistence layer already parameterizes values.
func sanitizePath(p string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, p)
}
