package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// ErrGeoIPUnavailable is returned by Unavailable, the resolver used when no
// MaxMind database is configured.
var ErrGeoIPUnavailable = errors.New("enrich: geoip database not configured")

// GeoIPResolver resolves country codes from a local MaxMind database.
// Lookups are read-only and safe for concurrent use.
type GeoIPResolver struct {
	reader *geoip2.Reader
}

// NewGeoIPResolver opens the MaxMind country database at path.
func NewGeoIPResolver(path string) (*GeoIPResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &GeoIPResolver{reader: reader}, nil
}

// CountryCode returns the ISO 3166-1 alpha-2 code for ip, or "" when the
// database has no record for it.
func (g *GeoIPResolver) CountryCode(_ context.Context, ipStr string) (string, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", fmt.Errorf("enrich: not an ip address: %q", ipStr)
	}
	record, err := g.reader.Country(ip)
	if err != nil {
		return "", fmt.Errorf("geoip lookup: %w", err)
	}
	return record.Country.IsoCode, nil
}

// Close releases the underlying database handle.
func (g *GeoIPResolver) Close() error { return g.reader.Close() }

// Unavailable is a GeoResolver that always misses. Wired in when the
// collector runs without a GeoIP database; every record gets a NULL country.
type Unavailable struct{}

// CountryCode always reports the database as unavailable.
func (Unavailable) CountryCode(context.Context, string) (string, error) {
	return "", ErrGeoIPUnavailable
}
