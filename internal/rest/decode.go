package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Tokens used for non-finite floating point values on the wire.
const (
	PositiveInfinity = "+Infinity"
	NegativeInfinity = "-Infinity"
	NotANumber       = "NaN"
)

// RawData keeps a field's raw JSON bytes without interpreting them.
type RawData = json.RawMessage

// Validator is implemented by decode targets that check their own
// invariants after decoding.
type Validator interface {
	Validate() error
}

// DecodePolicy controls how payloads are decoded into Success and Failure
// types.
//
// Decoding is strict by default: struct fields that are neither pointers nor
// tagged omitempty/omitzero must be present and non-null in the payload. This
// is what lets a response be tried against the Success type and then the
// Failure type.
type DecodePolicy struct {
	// DisallowUnknownFields rejects payload keys with no matching field.
	DisallowUnknownFields bool
	// Lenient turns off the required-field check.
	Lenient bool
}

// Decode decodes one JSON document into target, which must be a pointer.
func (p DecodePolicy) Decode(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if p.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(target); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after top-level value")
	}

	if !p.Lenient {
		raw, err := parseJSON(data)
		if err != nil {
			return err
		}
		if err := checkRequired(reflect.TypeOf(target).Elem(), raw, ""); err != nil {
			return err
		}
	}

	return validate(target)
}

func validate(target any) error {
	if v, ok := target.(Validator); ok {
		return v.Validate()
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		elem := rv.Elem()
		if elem.Kind() == reflect.Pointer && !elem.IsNil() {
			if v, ok := elem.Interface().(Validator); ok {
				return v.Validate()
			}
		}
	}
	return nil
}

// parseJSON parses a JSON document keeping numbers as json.Number.
func parseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

var unmarshalerType = reflect.TypeFor[json.Unmarshaler]()

// checkRequired walks the decoded type alongside the parsed payload and
// reports the first required field that is missing or null.
func checkRequired(t reflect.Type, raw any, path string) error {
	if t.Kind() == reflect.Pointer {
		if raw == nil {
			return nil
		}
		t = t.Elem()
	}
	if t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType) {
		return nil
	}

	switch t.Kind() {
	case reflect.Struct:
		obj, ok := raw.(map[string]any)
		if !ok {
			if raw == nil {
				return fmt.Errorf("expected object at %s, got null", displayPath(path))
			}
			return nil
		}
		return checkStructFields(t, obj, path)
	case reflect.Slice, reflect.Array:
		items, ok := raw.([]any)
		if !ok {
			return nil
		}
		for i, item := range items {
			if err := checkElem(t.Elem(), item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil
		}
		for k, item := range obj {
			if err := checkElem(t.Elem(), item, joinPath(path, k)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkElem(t reflect.Type, raw any, path string) error {
	if raw == nil && !nullable(t) {
		return fmt.Errorf("value at %s is null", displayPath(path))
	}
	return checkRequired(t, raw, path)
}

func checkStructFields(t reflect.Type, obj map[string]any, path string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue
		}
		name, opts := parseTag(f.Tag.Get("json"))
		if name == "-" && opts == "" {
			continue
		}

		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				continue
			}
			if ft.Kind() == reflect.Struct {
				if err := checkStructFields(ft, obj, path); err != nil {
					return err
				}
				continue
			}
		}
		if f.PkgPath != "" {
			continue
		}
		if name == "" {
			name = f.Name
		}

		value, present := lookupKey(obj, name)
		optional := strings.Contains(opts, "omitempty") || strings.Contains(opts, "omitzero") || nullable(f.Type)
		if !present {
			if optional {
				continue
			}
			return fmt.Errorf("missing required field %q", joinPath(path, name))
		}
		if value == nil {
			if optional {
				continue
			}
			return fmt.Errorf("field %q is null", joinPath(path, name))
		}
		if err := checkRequired(f.Type, value, joinPath(path, name)); err != nil {
			return err
		}
	}
	return nil
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface:
		return true
	}
	return t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType)
}

// lookupKey mirrors encoding/json: exact key first, then case-insensitive.
func lookupKey(obj map[string]any, name string) (any, bool) {
	if v, ok := obj[name]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func parseTag(tag string) (string, string) {
	name, opts, _ := strings.Cut(tag, ",")
	return name, opts
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "top level"
	}
	return strconv.Quote(path)
}

// Timestamp is a time decoded from seconds since the Unix epoch.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts integer or fractional epoch seconds.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be seconds since epoch, got %s", s)
	}
	whole, frac := math.Modf(secs)
	t.Time = time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
	return nil
}

// MarshalJSON writes epoch seconds, fractional only when needed.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Nanosecond() == 0 {
		return []byte(strconv.FormatInt(t.Unix(), 10)), nil
	}
	secs := float64(t.UnixNano()) / 1e9
	return []byte(strconv.FormatFloat(secs, 'f', -1, 64)), nil
}

// Float is a float64 whose non-finite values travel as the string tokens
// "+Infinity", "-Infinity" and "NaN".
type Float float64

// UnmarshalJSON accepts JSON numbers and the non-finite tokens.
func (f *Float) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case PositiveInfinity:
			*f = Float(math.Inf(1))
		case NegativeInfinity:
			*f = Float(math.Inf(-1))
		case NotANumber:
			*f = Float(math.NaN())
		default:
			return fmt.Errorf("invalid float token %q", s)
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid float %s: %w", b, err)
	}
	*f = Float(v)
	return nil
}

// MarshalJSON writes non-finite values as their string tokens.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"` + PositiveInfinity + `"`), nil
	case math.IsInf(v, -1):
		return []byte(`"` + NegativeInfinity + `"`), nil
	case math.IsNaN(v):
		return []byte(`"` + NotANumber + `"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}
