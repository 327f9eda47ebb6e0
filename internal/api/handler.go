package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sitepulse/collector/internal/pkg/httputil"
	"github.com/sitepulse/collector/internal/service/pageview"
	"github.com/sitepulse/collector/internal/worker"
)

// 1x1 transparent GIF served to image-beacon clients.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// SweepRunner triggers a retention sweep on demand.
type SweepRunner interface {
	Sweep(ctx context.Context) *worker.SweepResult
}

// Handler carries the collector's HTTP endpoints.
type Handler struct {
	svc     *pageview.Service
	sweeper SweepRunner
}

// NewHandler creates the API handler.
func NewHandler(svc *pageview.Service, sweeper SweepRunner) *Handler {
	return &Handler{svc: svc, sweeper: sweeper}
}

// HandleCreate ingests a pageview from a JSON POST body.
// Success is an empty 204; the caller is fire-and-forget.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req pageview.CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	h.create(w, r, &req, false)
}

// HandleCreatePixel ingests a pageview from a GET request carrying the
// identical JSON payload base64-encoded in the "data" query parameter.
// The image-beacon fallback cannot read a response body, so success is a
// 1x1 transparent GIF; error semantics match the POST form.
func (h *Handler) HandleCreatePixel(w http.ResponseWriter, r *http.Request) {
	encoded := r.URL.Query().Get("data")
	if encoded == "" {
		httputil.BadRequest(w, "missing data parameter")
		return
	}

	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		httputil.BadRequest(w, "data is not valid base64")
		return
	}

	var req pageview.CreateRequest
	if err := json.Unmarshal(decoded, &req); err != nil {
		httputil.BadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	h.create(w, r, &req, true)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, req *pageview.CreateRequest, pixel bool) {
	client := pageview.ClientInfo{IP: realIP(r), UserAgent: r.UserAgent()}

	fieldErrs, err := h.svc.Create(r.Context(), req, client)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if len(fieldErrs) > 0 {
		httputil.ValidationFailed(w, fieldErrs)
		return
	}
	if pixel {
		servePixel(w)
		return
	}
	httputil.NoContent(w)
}

// HandleAppend overwrites the engagement metrics of an existing pageview.
func (h *Handler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	var req pageview.AppendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	fieldErrs, err := h.svc.Append(r.Context(), &req)
	if errors.Is(err, pageview.ErrNotFound) {
		httputil.NotFound(w, "pageview not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if len(fieldErrs) > 0 {
		httputil.ValidationFailed(w, fieldErrs)
		return
	}
	httputil.NoContent(w)
}

// HandleSweep runs a retention sweep and reports its result. Meant for
// operators and external schedulers; ingestion never calls this.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.sweeper.Sweep(r.Context()))
}

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// realIP returns the first hop of a forwarded-for chain, else the direct
// peer. The value is used for GeoIP and the dedup fingerprint within the
// request, then discarded; it is never persisted.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The first non-empty hop wins; a malformed chain with only empty
		// hops falls through to the peer address.
		for _, hop := range strings.Split(xff, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				return hop
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
