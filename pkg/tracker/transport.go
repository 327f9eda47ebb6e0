package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"time"
)

// Transport attempts one delivery of an event payload. The returned bool
// means "accepted for send" only, never a delivery receipt. A
// transport that cannot even attempt the send returns false so the next
// tier gets a chance; once a transport accepts, a silently lost event is
// not retried anywhere.
type Transport interface {
	Send(ctx context.Context, endpoint string, body []byte) bool
}

// Pipeline tries transports in strict priority order; the first acceptance
// wins. If every tier rejects, the event is dropped silently.
type Pipeline struct {
	transports []Transport
}

// NewPipeline creates a delivery pipeline over the given ordered transports.
func NewPipeline(transports ...Transport) *Pipeline {
	return &Pipeline{transports: transports}
}

// DefaultPipeline is the three-tier fallback: beacon, keepalive request,
// image-beacon GET.
func DefaultPipeline() *Pipeline {
	return NewPipeline(NewBeaconTransport(), NewKeepaliveTransport(), NewPixelTransport())
}

// Deliver reports whether any transport accepted the event.
func (p *Pipeline) Deliver(ctx context.Context, endpoint string, body []byte) bool {
	for _, t := range p.transports {
		if t.Send(ctx, endpoint, body) {
			return true
		}
	}
	return false
}

// maxBeaconBody mirrors the browser beacon quota: payloads beyond it are
// refused up front rather than enqueued and truncated.
const maxBeaconBody = 64 << 10

// BeaconTransport models the unload-safe one-way beacon primitive: the
// payload is handed off asynchronously and the send is accepted
// immediately. Outcomes are unobservable.
type BeaconTransport struct {
	client *http.Client
}

// NewBeaconTransport creates the first-tier transport.
func NewBeaconTransport() *BeaconTransport {
	return &BeaconTransport{client: &http.Client{Timeout: 10 * time.Second}}
}

func (b *BeaconTransport) Send(_ context.Context, endpoint string, body []byte) bool {
	if len(body) > maxBeaconBody {
		return false
	}
	payload := make([]byte, len(body))
	copy(payload, body)
	// Detached on purpose: the beacon must survive the caller going away.
	go func() {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := b.client.Do(req)
		if err != nil {
			return
		}
		resp.Body.Close()
	}()
	return true
}

// KeepaliveTransport is the second tier: a synchronous request with
// page-survival semantics. It accepts once the request has been written;
// an immediate transport failure rejects so the last tier can try.
type KeepaliveTransport struct {
	client *http.Client
}

// NewKeepaliveTransport creates the second-tier transport.
func NewKeepaliveTransport() *KeepaliveTransport {
	return &KeepaliveTransport{client: &http.Client{Timeout: 5 * time.Second}}
}

func (k *KeepaliveTransport) Send(ctx context.Context, endpoint string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := k.client.Do(req)
	if err != nil {
		return false
	}
	// The request went out; the response status is nobody's business here.
	resp.Body.Close()
	return true
}

// maxPixelURL bounds the last-resort GET: URLs past common ~2000-character
// limits are rejected rather than truncated.
const maxPixelURL = 2000

// PixelTransport is the last resort: the payload rides base64-encoded in
// the URL of an image-beacon GET.
type PixelTransport struct {
	client *http.Client
}

// NewPixelTransport creates the third-tier transport.
func NewPixelTransport() *PixelTransport {
	return &PixelTransport{client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *PixelTransport) Send(ctx context.Context, endpoint string, body []byte) bool {
	url := endpoint + "?data=" + base64.URLEncoding.EncodeToString(body)
	if len(url) > maxPixelURL {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
