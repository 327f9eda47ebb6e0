package domain

import "time"

// Pageview is one logical page view. It is created exactly once by the
// ingestion endpoint, mutated in place zero or more times by engagement
// appends, and eventually deleted by the retention sweeper.
//
// Privacy invariant: a Pageview never carries a raw IP address or raw
// user-agent string. Enrichment derives country_code, browser, os, is_bot
// and is_unique from them at create time, then the raw values are discarded.
type Pageview struct {
	PageID           string    `json:"page_id"`
	SessionID        *string   `json:"session_id,omitempty"`
	AddedISO         time.Time `json:"added_iso"`
	Hostname         string    `json:"hostname"`
	Path             string    `json:"path"`
	Title            string    `json:"title,omitempty"`
	Referrer         string    `json:"referrer,omitempty"`
	InternalReferrer bool      `json:"internal_referrer"`

	DeviceType    string `json:"device_type"`
	ViewportWidth int    `json:"viewport_width,omitempty"`
	Browser       string `json:"browser,omitempty"`
	OS            string `json:"os,omitempty"`

	Language string `json:"language,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`

	DurationSeconds    int  `json:"duration_seconds"`
	ScrolledPercentage *int `json:"scrolled_percentage,omitempty"`
	VisibilityChanges  int  `json:"visibility_changes"`
	TimeOnPageSeconds  int  `json:"time_on_page_seconds"`

	// Computed exactly once at creation, never recomputed.
	IsBot       bool    `json:"is_bot"`
	IsUnique    bool    `json:"is_unique"`
	CountryCode *string `json:"country_code,omitempty"`
}

// Day returns the normalized UTC calendar day of the view, the first
// component of the daily duplicate-suppression key.
func (p *Pageview) Day() string {
	return p.AddedISO.UTC().Format("2006-01-02")
}
