package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/collector/internal/config"
	"github.com/sitepulse/collector/internal/domain"
	"github.com/sitepulse/collector/internal/service/pageview"
	"github.com/sitepulse/collector/internal/worker"
)

// inMemRepo is a minimal pageview.Repository for handler tests.
type inMemRepo struct {
	mu    sync.Mutex
	store map[string]*domain.Pageview
}

func newInMemRepo() *inMemRepo {
	return &inMemRepo{store: make(map[string]*domain.Pageview)}
}

func (m *inMemRepo) Insert(_ context.Context, pv *domain.Pageview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pv
	m.store[pv.PageID] = &cp
	return nil
}

func (m *inMemRepo) AppendEngagement(_ context.Context, pageID string, duration int, scrolled *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pv, ok := m.store[pageID]
	if !ok {
		return pageview.ErrNotFound
	}
	pv.DurationSeconds = duration
	pv.ScrolledPercentage = scrolled
	pv.TimeOnPageSeconds = duration
	return nil
}

func (m *inMemRepo) FindByPageID(_ context.Context, pageID string) (*domain.Pageview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pv, ok := m.store[pageID]
	if !ok {
		return nil, pageview.ErrNotFound
	}
	cp := *pv
	return &cp, nil
}

type stubUA struct{}

func (stubUA) Classify(context.Context, string) (pageview.UAInfo, error) {
	return pageview.UAInfo{Browser: "Firefox", OS: "Linux", DeviceType: "desktop"}, nil
}

type stubGeo struct{}

func (stubGeo) CountryCode(context.Context, string) (string, error) { return "DE", nil }

type stubUnique struct{}

func (stubUnique) FirstVisitToday(context.Context, string, string) (bool, error) {
	return true, nil
}

type stubSweeper struct{ result *worker.SweepResult }

func (s stubSweeper) Sweep(context.Context) *worker.SweepResult { return s.result }

func setupServer(t *testing.T) (*httptest.Server, *inMemRepo) {
	t.Helper()
	repo := newInMemRepo()
	svc := pageview.NewService(repo, stubUA{}, stubGeo{}, stubUnique{})
	h := NewHandler(svc, stubSweeper{result: &worker.SweepResult{TotalDeleted: 42, BatchesProcessed: 1}})

	cfg := &config.Config{}
	cfg.CORS.AllowedOrigins = []string{"https://example.com"}

	srv := httptest.NewServer(h.Routes(cfg))
	t.Cleanup(srv.Close)
	return srv, repo
}

func validBody() map[string]any {
	return map[string]any{
		"page_id":          "pAbCdEfGh1234_-Z",
		"session_id":       "session-1",
		"added_iso":        "2026-03-14T10:30:00Z",
		"hostname":         "example.com",
		"path":             "/pricing",
		"device_type":      "desktop",
		"duration_seconds": 3,
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateReturnsNoContent(t *testing.T) {
	srv, repo := setupServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/pageview", validBody())
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	pv, err := repo.FindByPageID(context.Background(), "pAbCdEfGh1234_-Z")
	require.NoError(t, err)
	assert.Equal(t, "/pricing", pv.Path)
	assert.Equal(t, "Firefox", pv.Browser)
	assert.True(t, pv.IsUnique)
}

func TestCreateValidationErrorNamesField(t *testing.T) {
	srv, _ := setupServer(t)

	body := validBody()
	body["duration_seconds"] = -1
	resp := postJSON(t, srv.URL+"/api/v1/pageview", body)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Errors []pageview.FieldError `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "duration_seconds", out.Errors[0].Field)
}

func TestCreatePixelGET(t *testing.T) {
	srv, repo := setupServer(t)

	payload, err := json.Marshal(validBody())
	require.NoError(t, err)
	encoded := base64.URLEncoding.EncodeToString(payload)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/pageview?data="+encoded, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pixelGIF, buf.Bytes())

	_, err = repo.FindByPageID(context.Background(), "pAbCdEfGh1234_-Z")
	assert.NoError(t, err, "GET form must persist identically to POST")
}

func TestCreatePixelBadBase64(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/pageview?data=%25%25not-base64")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAppendUnknownPageIDIsNotFound(t *testing.T) {
	srv, _ := setupServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/engagement", map[string]any{
		"page_id":          "pMissing12345678",
		"duration_seconds": 10,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAppendOverwritesEngagement(t *testing.T) {
	srv, repo := setupServer(t)

	postJSON(t, srv.URL+"/api/v1/pageview", validBody()).Body.Close()

	resp := postJSON(t, srv.URL+"/api/v1/engagement", map[string]any{
		"page_id":             "pAbCdEfGh1234_-Z",
		"duration_seconds":    55,
		"scrolled_percentage": 80,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	pv, err := repo.FindByPageID(context.Background(), "pAbCdEfGh1234_-Z")
	require.NoError(t, err)
	assert.Equal(t, 55, pv.DurationSeconds)
	assert.Equal(t, 55, pv.TimeOnPageSeconds)
	require.NotNil(t, pv.ScrolledPercentage)
	assert.Equal(t, 80, *pv.ScrolledPercentage)
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestAdminSweepReportsResult(t *testing.T) {
	srv, _ := setupServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/admin/sweep", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out worker.SweepResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(42), out.TotalDeleted)
}

func TestRealIPPrefersForwardedForFirstHop(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/pageview", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", realIP(r))

	r = httptest.NewRequest(http.MethodPost, "/api/v1/pageview", nil)
	r.RemoteAddr = "192.0.2.9:54321"
	assert.Equal(t, "192.0.2.9", realIP(r))
}

func TestRealIPSkipsEmptyForwardedForHops(t *testing.T) {
	// A leading comma must not turn the whole header into the "IP".
	r := httptest.NewRequest(http.MethodPost, "/api/v1/pageview", nil)
	r.Header.Set("X-Forwarded-For", ", 203.0.113.7")
	assert.Equal(t, "203.0.113.7", realIP(r))

	// Nothing but separators falls back to the peer.
	r = httptest.NewRequest(http.MethodPost, "/api/v1/pageview", nil)
	r.Header.Set("X-Forwarded-For", " , ,")
	r.RemoteAddr = "192.0.2.9:54321"
	assert.Equal(t, "192.0.2.9", realIP(r))
}

func getWithOrigin(t *testing.T, url, origin string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", origin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCORSGrantsOnlyListedOrigins(t *testing.T) {
	srv, _ := setupServer(t)

	resp := getWithOrigin(t, srv.URL+"/health", "https://example.com")
	defer resp.Body.Close()
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = getWithOrigin(t, srv.URL+"/health", "https://evil.example")
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSEmptyAllowListFailsClosed(t *testing.T) {
	repo := newInMemRepo()
	svc := pageview.NewService(repo, stubUA{}, stubGeo{}, stubUnique{})
	h := NewHandler(svc, stubSweeper{result: &worker.SweepResult{}})

	srv := httptest.NewServer(h.Routes(&config.Config{}))
	defer srv.Close()

	resp := getWithOrigin(t, srv.URL+"/health", "https://evil.example")
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"),
		"unconfigured allow-list must not grant any origin")
}
