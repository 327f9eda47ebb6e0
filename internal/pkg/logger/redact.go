package logger

import (
	"regexp"
	"strings"
)

var ipv4Regex = regexp.MustCompile(`\b(\d{1,3})\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

// RedactIP masks an IP address for safe logging.
// "203.0.113.42" → "203.***"; anything non-IPv4 (including IPv6) is fully masked.
func RedactIP(ip string) string {
	m := ipv4Regex.FindStringSubmatch(ip)
	if m == nil {
		return "***"
	}
	return m[1] + ".***"
}

// RedactUserAgent keeps only the leading product token of a user-agent string.
// "Mozilla/5.0 (X11; Linux x86_64) ..." → "Mozilla/*"
func RedactUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ""
	}
	if idx := strings.IndexAny(ua, "/ "); idx > 0 {
		return ua[:idx] + "/*"
	}
	return ua + "/*"
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if key == "ip" || key == "remote_addr" || strings.HasSuffix(key, "_ip") || strings.Contains(key, "ip_address") {
		return RedactIP(val)
	}
	if strings.Contains(key, "user_agent") {
		return RedactUserAgent(val)
	}
	// Redact any embedded IPv4 addresses in generic fields (error strings
	// from the GeoIP resolver may quote the looked-up address)
	return ipv4Regex.ReplaceAllStringFunc(val, RedactIP)
}
