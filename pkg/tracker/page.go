package tracker

import "net/url"

// DeviceType is the coarse device class reported with a pageview.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// ClassifyViewport maps a viewport width in CSS pixels to a device class:
// under 768 is mobile, 768–1024 is tablet, above 1024 is desktop.
func ClassifyViewport(width int) DeviceType {
	switch {
	case width < 768:
		return DeviceMobile
	case width <= 1024:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// PageContext is the page snapshot taken when a pageview opens: location,
// acquisition (referrer + UTM) and environment. The tracker copies it on
// open, so later mutation by the caller has no effect.
type PageContext struct {
	Path     string
	Hostname string
	Title    string
	Referrer string

	Language string
	Timezone string

	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string

	ViewportWidth int
}

// resolvePath reduces a location to its comparable path: query and
// fragment changes are not navigations.
func resolvePath(p string) string {
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		return u.Path
	}
	return p
}
