package rest

import "net/http"

// MergeHeaders combines per-call headers with client defaults. The caller's
// values win on key collision: a default is only added for keys the caller
// did not set. Without caller headers the defaults are used as-is. The
// inputs are never modified.
func MergeHeaders(defaults, caller http.Header) http.Header {
	if caller == nil {
		return defaults.Clone()
	}
	merged := make(http.Header, len(caller)+len(defaults))
	for key, values := range caller {
		for _, v := range values {
			merged.Add(key, v)
		}
	}
	for key, values := range defaults {
		if _, ok := merged[http.CanonicalHeaderKey(key)]; ok {
			continue
		}
		for _, v := range values {
			merged.Add(key, v)
		}
	}
	return merged
}
