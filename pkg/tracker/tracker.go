package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"
)

// State is the tracker lifecycle phase.
type State int

const (
	StateInit State = iota
	StateActive
	StateClosed
)

// scrollDebounce drops scroll samples arriving within this window of the
// previously processed one.
const scrollDebounce = 250 * time.Millisecond

// scrollMilestones are the depth thresholds that each emit one engagement
// update the first time they are crossed. A milestone never re-fires.
var scrollMilestones = [...]int{25, 50, 75, 100}

// Config configures a Tracker.
type Config struct {
	// Endpoint is the collector base URL, e.g. "https://stats.example.com".
	Endpoint string

	// Page is the initial page snapshot.
	Page PageContext

	// Sessions supplies the tab-scoped session id. Defaults to an
	// in-memory store.
	Sessions SessionStore

	// Pipeline is the delivery chain. Defaults to DefaultPipeline.
	Pipeline *Pipeline

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// createPayload is the wire form of a "pageview open" event.
type createPayload struct {
	PageID           string `json:"page_id"`
	SessionID        string `json:"session_id,omitempty"`
	AddedISO         string `json:"added_iso"`
	Hostname         string `json:"hostname"`
	Path             string `json:"path"`
	Title            string `json:"title,omitempty"`
	Referrer         string `json:"referrer,omitempty"`
	InternalReferrer bool   `json:"internal_referrer"`

	DeviceType    string `json:"device_type"`
	ViewportWidth int    `json:"viewport_width,omitempty"`
	Language      string `json:"language,omitempty"`
	Timezone      string `json:"timezone,omitempty"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`

	DurationSeconds   int `json:"duration_seconds"`
	VisibilityChanges int `json:"visibility_changes"`
}

// appendPayload is the wire form of an "engagement update" event.
type appendPayload struct {
	PageID             string `json:"page_id"`
	DurationSeconds    int    `json:"duration_seconds"`
	ScrolledPercentage *int   `json:"scrolled_percentage,omitempty"`
}

// Tracker drives the pageview lifecycle for one surface:
// INIT → ACTIVE(page) → ACTIVE(page′) on in-app navigation → CLOSED.
// All methods are safe for concurrent use, though the intended caller is a
// single cooperative UI loop.
type Tracker struct {
	createURL string
	appendURL string
	sessions  SessionStore
	pipeline  *Pipeline
	now       func() time.Time

	mu        sync.Mutex
	state     State
	page      PageContext
	pageID    string
	sessionID string
	device    DeviceType
	openedAt  time.Time

	lastSample time.Time
	maxDepth   int
	milestones map[int]bool

	visibilityChanges int
	internalReferrer  bool
}

// New creates a tracker and immediately opens the first pageview.
func New(cfg Config) (*Tracker, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("tracker: endpoint is required")
	}
	if cfg.Page.Path == "" {
		return nil, errors.New("tracker: page path is required")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = &MemorySessionStore{}
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = DefaultPipeline()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	t := &Tracker{
		createURL: cfg.Endpoint + "/api/v1/pageview",
		appendURL: cfg.Endpoint + "/api/v1/engagement",
		sessions:  cfg.Sessions,
		pipeline:  cfg.Pipeline,
		now:       cfg.Now,
		state:     StateInit,
	}

	t.mu.Lock()
	t.open(cfg.Page, false)
	t.mu.Unlock()
	return t, nil
}

// open resets per-page state and emits the "pageview open" event.
// Callers hold t.mu.
func (t *Tracker) open(page PageContext, internal bool) {
	t.page = page
	t.pageID = NewPageID()
	t.sessionID = t.sessions.SessionID()
	t.device = ClassifyViewport(page.ViewportWidth)
	t.openedAt = t.now()
	t.lastSample = time.Time{}
	t.maxDepth = 0
	t.milestones = make(map[int]bool, len(scrollMilestones))
	t.visibilityChanges = 0
	t.internalReferrer = internal
	t.state = StateActive

	t.deliver(t.createURL, createPayload{
		PageID:            t.pageID,
		SessionID:         t.sessionID,
		AddedISO:          t.openedAt.UTC().Format(time.RFC3339),
		Hostname:          page.Hostname,
		Path:              page.Path,
		Title:             page.Title,
		Referrer:          page.Referrer,
		InternalReferrer:  internal,
		DeviceType:        string(t.device),
		ViewportWidth:     page.ViewportWidth,
		Language:          page.Language,
		Timezone:          page.Timezone,
		UTMSource:         page.UTMSource,
		UTMMedium:         page.UTMMedium,
		UTMCampaign:       page.UTMCampaign,
		UTMTerm:           page.UTMTerm,
		UTMContent:        page.UTMContent,
		DurationSeconds:   0,
		VisibilityChanges: 0,
	})
}

// SampleScroll feeds one scroll position sample. Samples within 250ms of
// the previously processed one are dropped; crossing a milestone for the
// first time emits an engagement update.
func (t *Tracker) SampleScroll(scrollTop, clientHeight, scrollHeight int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive || scrollHeight <= 0 {
		return
	}

	now := t.now()
	if !t.lastSample.IsZero() && now.Sub(t.lastSample) < scrollDebounce {
		return
	}
	t.lastSample = now

	pct := float64(scrollTop+clientHeight) / float64(scrollHeight) * 100
	if pct > 100 {
		pct = 100
	}
	// Milestones cross on the rounded depth; the reported running max is
	// floored, so a 24.6% sample fires the 25 milestone yet reports 24.
	depth := int(math.Round(pct))
	if floored := int(math.Floor(pct)); floored > t.maxDepth {
		t.maxDepth = floored
	}

	crossed := false
	for _, m := range scrollMilestones {
		if depth >= m && !t.milestones[m] {
			t.milestones[m] = true
			crossed = true
		}
	}
	if crossed {
		t.emitEngagement()
	}
}

// RecordVisibilityChange counts a visibility transition. Going hidden is a
// terminal-risk signal, so it emits a best-effort engagement update.
func (t *Tracker) RecordVisibilityChange(hidden bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return
	}
	t.visibilityChanges++
	if hidden {
		t.emitEngagement()
	}
}

// Navigate handles an in-app navigation. When the resolved path actually
// changed it emits a final engagement update for the outgoing page, then
// resets and opens a new pageview marked as internally referred.
func (t *Tracker) Navigate(next PageContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return
	}
	if resolvePath(next.Path) == resolvePath(t.page.Path) {
		return
	}

	t.emitEngagement()

	next.Referrer = t.page.Hostname + t.page.Path
	t.open(next, true)
}

// End closes the pageview with one last best-effort engagement update.
// No acknowledgement is possible; further calls are no-ops.
func (t *Tracker) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive {
		return
	}
	t.emitEngagement()
	t.state = StateClosed
}

// emitEngagement sends the current duration and floored scroll depth.
// Callers hold t.mu.
func (t *Tracker) emitEngagement() {
	payload := appendPayload{
		PageID:          t.pageID,
		DurationSeconds: int(t.now().Sub(t.openedAt).Seconds()),
	}
	if t.maxDepth > 0 {
		depth := t.maxDepth
		payload.ScrolledPercentage = &depth
	}
	t.deliver(t.appendURL, payload)
}

func (t *Tracker) deliver(url string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	// Fire and forget: a false return means every tier rejected, and the
	// event is gone. That is the contract.
	t.pipeline.Deliver(context.Background(), url, body)
}

// State returns the current lifecycle phase.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PageID returns the id of the currently open pageview.
func (t *Tracker) PageID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageID
}

// SessionID returns the tab-scoped session id.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Device returns the device class derived from the viewport width.
func (t *Tracker) Device() DeviceType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.device
}
