package logger

import "testing"

func TestRedactIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.42": "203.***",
		"8.8.8.8":      "8.***",
		"2001:db8::1":  "***",
		"not an ip":    "***",
		"":             "***",
	}
	for in, want := range cases {
		if got := RedactIP(in); got != want {
			t.Errorf("RedactIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactUserAgent(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36": "Mozilla/*",
		"curl/8.4.0": "curl/*",
		"Googlebot":  "Googlebot/*",
		"":           "",
	}
	for in, want := range cases {
		if got := RedactUserAgent(in); got != want {
			t.Errorf("RedactUserAgent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactPIIValueByKey(t *testing.T) {
	if got := redactPIIValue("client_ip", "203.0.113.42"); got != "203.***" {
		t.Errorf("client_ip not redacted: %q", got)
	}
	if got := redactPIIValue("user_agent", "Mozilla/5.0"); got != "Mozilla/*" {
		t.Errorf("user_agent not redacted: %q", got)
	}
	// Embedded IPs in generic values are masked too
	if got := redactPIIValue("error", "lookup failed for 10.0.0.9"); got != "lookup failed for 10.***" {
		t.Errorf("embedded ip not redacted: %q", got)
	}
	// Keys like "description" must not trip the ip match
	if got := redactPIIValue("description", "zip code lookup"); got != "zip code lookup" {
		t.Errorf("unexpected redaction: %q", got)
	}
}
