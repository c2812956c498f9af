package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

var errNoPayload = errors.New("no payload to decode")

// intercept turns a completed response into a Result.
//
// A body that parses as JSON is offered to the response modifier, then the
// payload is tried against S and afterwards against F. A modifier Failure
// skips the S attempt. Bodies that are not JSON are only accepted by byte
// slice types.
func intercept[S, F any](ctx context.Context, c *Client, resp *Response) Result[S, F] {
	var payload any = resp.Body
	source := resp.Body
	forceFailure := false

	if parsed, err := parseJSON(resp.Body); err == nil && len(resp.Body) > 0 {
		payload = parsed
		if c.cfg.ResponseModifier != nil {
			modified := c.cfg.ResponseModifier(resp, parsed)
			switch modified.Kind() {
			case KindOK:
				payload = modified.value
				source = nil
			case KindFailure:
				payload = modified.failure
				source = nil
				forceFailure = true
			default:
				return Err[S, F](modified.err)
			}
		}
	}

	derr := &DecodeError{
		Message:     c.cfg.decodeErrorMessage(),
		PayloadType: payloadType(payload),
		SuccessType: typeName[S](),
		FailureType: typeName[F](),
	}

	if !forceFailure {
		v, err := decodeAs[S](payload, source, c.cfg.Decoding)
		if err == nil {
			return OK[S, F](v)
		}
		derr.SuccessErr = err
	}

	f, err := decodeAs[F](payload, source, c.cfg.Decoding)
	if err == nil {
		return Fail[S, F](f)
	}
	derr.FailureErr = err

	c.logDecodeFailure(ctx, resp, derr)
	return Err[S, F](derr)
}

var rawDataType = reflect.TypeFor[RawData]()

// decodeAs converts payload to T by direct type match, then through its JSON
// representation. source holds the body bytes when payload was parsed from
// them unmodified; RawData targets receive those bytes verbatim.
func decodeAs[T any](payload any, source []byte, policy DecodePolicy) (T, error) {
	var zero T
	if payload == nil {
		return zero, errNoPayload
	}
	if v, ok := payload.(T); ok {
		return v, nil
	}
	if source != nil && reflect.TypeFor[T]() == rawDataType {
		return any(RawData(source)).(T), nil
	}

	if raw, ok := payload.([]byte); ok {
		rt := reflect.TypeFor[T]()
		if rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.Uint8 {
			return reflect.ValueOf(raw).Convert(rt).Interface().(T), nil
		}
		if len(raw) == 0 {
			return zero, errNoPayload
		}
		return zero, fmt.Errorf("payload is not JSON and %s does not accept raw bytes", rt)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("payload cannot be re-encoded as JSON: %w", err)
	}
	var out T
	if err := policy.Decode(data, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

func payloadType(payload any) string {
	switch payload.(type) {
	case nil:
		return "nil"
	case []byte:
		return "raw bytes"
	case map[string]any:
		return "JSON object"
	case []any:
		return "JSON array"
	case string:
		return "JSON string"
	case json.Number:
		return "JSON number"
	case bool:
		return "JSON boolean"
	}
	return fmt.Sprintf("%T", payload)
}
