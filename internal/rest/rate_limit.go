package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Reset values above this are Unix timestamps, below it seconds from now.
const unixTimestampThreshold = 1_000_000_000

// RateLimitInfo holds parsed rate limit header values.
type RateLimitInfo struct {
	Limit     *int
	Remaining *int
	ResetAt   *time.Time
	ResetRaw  string
}

// Meta returns a JSON-ready map for CLI output metadata.
func (r *RateLimitInfo) Meta() map[string]any {
	if r == nil {
		return nil
	}
	meta := map[string]any{}
	if r.Limit != nil {
		meta["limit"] = *r.Limit
	}
	if r.Remaining != nil {
		meta["remaining"] = *r.Remaining
	}
	if r.ResetAt != nil {
		meta["reset_at"] = r.ResetAt.UTC().Format(time.RFC3339)
	} else if r.ResetRaw != "" {
		meta["reset"] = r.ResetRaw
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// RateLimit parses the rate limit headers of the response, or returns nil
// when none are present.
func (r *Response) RateLimit() *RateLimitInfo {
	if r == nil {
		return nil
	}
	return parseRateLimitInfo(r.Header, time.Now())
}

func parseRateLimitInfo(h http.Header, now time.Time) *RateLimitInfo {
	limitVal := firstHeader(h, "X-RateLimit-Limit", "RateLimit-Limit")
	remainingVal := firstHeader(h, "X-RateLimit-Remaining", "RateLimit-Remaining")
	resetVal := firstHeader(h, "X-RateLimit-Reset", "RateLimit-Reset")
	if limitVal == "" && remainingVal == "" && resetVal == "" {
		return nil
	}

	info := &RateLimitInfo{ResetRaw: resetVal}
	if v, err := strconv.Atoi(limitVal); err == nil {
		info.Limit = &v
	}
	if v, err := strconv.Atoi(remainingVal); err == nil {
		info.Remaining = &v
	}
	if t, ok := parseRateLimitReset(resetVal, now); ok {
		info.ResetAt = &t
	}
	if info.Limit == nil && info.Remaining == nil && info.ResetAt == nil && info.ResetRaw == "" {
		return nil
	}
	return info
}

func firstHeader(h http.Header, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(h.Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseRateLimitReset(value string, now time.Time) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		switch {
		case secs > unixTimestampThreshold:
			return time.Unix(secs, 0).UTC(), true
		case secs >= 0:
			return now.Add(time.Duration(secs) * time.Second).UTC(), true
		}
	}
	if t, err := http.ParseTime(value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
