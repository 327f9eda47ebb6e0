// Package enrich contains the swappable enrichment collaborators: user-agent
// classification and GeoIP resolution. Callers treat every failure here as a
// degradation, never as a request failure.
package enrich

import (
	"context"
	"errors"
	"strings"

	ua "github.com/mileusna/useragent"

	"github.com/sitepulse/collector/internal/service/pageview"
)

// ErrUnrecognizedUserAgent is returned when the string yields no usable
// browser, OS or device signal.
var ErrUnrecognizedUserAgent = errors.New("enrich: unrecognized user agent")

// UAClassifier classifies raw user-agent strings. The zero value is ready
// to use; classification is pure computation with no I/O.
type UAClassifier struct{}

// Classify derives browser, OS, device type and bot-ness. When the parse
// succeeds the returned device type is authoritative over any
// client-reported value.
func (UAClassifier) Classify(_ context.Context, raw string) (pageview.UAInfo, error) {
	if strings.TrimSpace(raw) == "" {
		return pageview.UAInfo{}, ErrUnrecognizedUserAgent
	}

	parsed := ua.Parse(raw)
	info := pageview.UAInfo{
		Browser: parsed.Name,
		OS:      parsed.OS,
		Bot:     parsed.Bot,
	}
	switch {
	case parsed.Mobile:
		info.DeviceType = "mobile"
	case parsed.Tablet:
		info.DeviceType = "tablet"
	case parsed.Desktop:
		info.DeviceType = "desktop"
	}

	if info.Browser == "" && info.OS == "" && !info.Bot {
		return pageview.UAInfo{}, ErrUnrecognizedUserAgent
	}
	return info, nil
}
