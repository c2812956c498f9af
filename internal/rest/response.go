package rest

import (
	"net/http"
	"time"
)

// Response is the raw side of a call. StatusCode, Header and Body are zero
// when the request never completed a round trip.
type Response struct {
	// ID numbers requests per client, starting at 1.
	ID         int64
	Request    *http.Request
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Succeeded reports whether the status code is 2xx.
func (r *Response) Succeeded() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) method() string {
	if r == nil || r.Request == nil {
		return ""
	}
	return r.Request.Method
}

func (r *Response) url() string {
	if r == nil || r.Request == nil || r.Request.URL == nil {
		return ""
	}
	return r.Request.URL.String()
}
