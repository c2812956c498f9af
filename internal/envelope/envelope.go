// Package envelope unwraps the {"status": ..., "data"|"message": ...}
// response convention into rest Results.
package envelope

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/typedrest/typedrest/internal/rest"
)

// ErrUnexpectedResponse is the cause of the failure reported for payloads
// without a numeric status.
var ErrUnexpectedResponse = errors.New(rest.UnexpectedResponseMessage)

// Message is the status/message envelope.
type Message struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Data is the status/data envelope.
type Data[T any] struct {
	Status int `json:"status"`
	Data   T   `json:"data"`
}

// Unwrap is a rest.ResponseModifier. A non-null "data" member becomes the
// success payload. Otherwise a status of 400 or more is a *rest.APIError
// failure and anything lower passes the whole object through. A payload
// without a numeric status is a failure with the unexpected response message.
func Unwrap(_ *rest.Response, payload any) rest.Result[any, any] {
	obj, ok := payload.(map[string]any)
	if !ok {
		return unexpected()
	}
	status, ok := statusOf(obj["status"])
	if !ok {
		return unexpected()
	}

	if data, ok := obj["data"]; ok && data != nil {
		return rest.OK[any, any](data)
	}

	if status >= http.StatusBadRequest {
		message, _ := obj["message"].(string)
		return rest.Fail[any, any](&rest.APIError{Status: status, Message: message})
	}
	return rest.OK[any, any](obj)
}

func unexpected() rest.Result[any, any] {
	return rest.Fail[any, any](&rest.APIError{Message: rest.UnexpectedResponseMessage, Err: ErrUnexpectedResponse})
}

func statusOf(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
