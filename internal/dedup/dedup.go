// Package dedup answers "has this visitor been seen today?" without
// storing identity. The only stored artifact is a "seen" bit keyed by a
// salted fingerprint that expires at the end of the UTC day.
package dedup

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitepulse/collector/internal/pkg/logger"
)

const keyPrefix = "uv:"

// ErrEmptyFingerprintInput signals a caller bug: fingerprinting an empty IP
// or user agent. This must fail loudly rather than silently degrade into
// counting every such visitor as one.
var ErrEmptyFingerprintInput = errors.New("dedup: ip and user agent must be non-empty")

// Fingerprint computes the keyed hash over (ip, user_agent, UTC calendar
// day). It is the only form in which visitor identity ever leaves this
// package, and it rotates daily by construction.
func Fingerprint(secret, ip, userAgent string, day time.Time) (string, error) {
	if ip == "" || userAgent == "" {
		return "", ErrEmptyFingerprintInput
	}
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s|%s|%s", ip, userAgent, day.UTC().Format("2006-01-02"))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Service performs the atomic first-visit check against Redis.
type Service struct {
	client *redis.Client
	secret string
	now    func() time.Time
}

// NewService creates a dedup service backed by the given Redis client.
func NewService(client *redis.Client, secret string) *Service {
	return &Service{client: client, secret: secret, now: time.Now}
}

// FirstVisitToday reports whether this (ip, user agent) pair is being seen
// for the first time on the current UTC day. The check is a single atomic
// SET NX round trip, so two concurrent first visits can never both win.
//
// Any store error degrades to "not unique" and is never surfaced to the
// caller; a flapping Redis must undercount uniques, not fail ingestion.
// The returned error is non-nil only for empty inputs.
func (s *Service) FirstVisitToday(ctx context.Context, ip, userAgent string) (bool, error) {
	now := s.now().UTC()

	fp, err := Fingerprint(s.secret, ip, userAgent, now)
	if err != nil {
		return false, err
	}

	ttl := endOfUTCDay(now).Sub(now)
	ok, err := s.client.SetNX(ctx, keyPrefix+fp, 1, ttl).Result()
	if err != nil {
		logger.Warn("dedup store unavailable, counting visit as not unique", "error", err)
		return false, nil
	}
	return ok, nil
}

// endOfUTCDay returns midnight after t, so the seen bit expires exactly
// when the fingerprint rotates.
func endOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
