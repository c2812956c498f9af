package rest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

// Params is the usual root of a parameter tree. Values may be scalars,
// slices, maps, File attachments or raw []byte blobs, nested arbitrarily.
// Trees must be acyclic.
type Params = map[string]any

// Part is one named field of a multipart body.
type Part struct {
	Name     string
	FileName string
	MimeType string
	Data     []byte
	// Path is read at write time when set.
	Path string
}

// IsFile reports whether the part carries a file attachment.
func (p Part) IsFile() bool {
	return p.FileName != "" || p.MimeType != "" || p.Path != ""
}

// ParamsFrom converts an encodable value (usually a struct) into a parameter
// tree through its JSON representation.
func ParamsFrom(v any) (Params, error) {
	if v == nil {
		return nil, nil
	}
	if p, ok := v.(Params); ok {
		return p, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	var out Params
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parameters must encode to a JSON object: %w", err)
	}
	return out, nil
}

// ContainsFile reports whether a File appears anywhere in the tree.
func ContainsFile(tree any) bool {
	switch v := tree.(type) {
	case nil, []byte:
		return false
	case File:
		return true
	case *File:
		return v != nil
	case []any:
		for _, item := range v {
			if ContainsFile(item) {
				return true
			}
		}
		return false
	case map[string]any:
		for _, item := range v {
			if ContainsFile(item) {
				return true
			}
		}
		return false
	}

	rv := reflect.ValueOf(tree)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if isByteSlice(rv) {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if ContainsFile(rv.Index(i).Interface()) {
				return true
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if ContainsFile(iter.Value().Interface()) {
				return true
			}
		}
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			return ContainsFile(rv.Elem().Interface())
		}
	}
	return false
}

// Flatten turns a parameter tree into multipart parts using bracket
// notation: list items become key[i], map entries key[name]. Map keys are
// visited in sorted order. Leaves that cannot be encoded as UTF-8 text are
// dropped with a warning.
func Flatten(tree any, prefix string) []Part {
	var parts []Part
	flatten(tree, prefix, slog.Default(), &parts)
	return parts
}

func flatten(tree any, key string, logger *slog.Logger, parts *[]Part) {
	switch v := tree.(type) {
	case File:
		*parts = append(*parts, filePart(key, v))
		return
	case *File:
		if v != nil {
			*parts = append(*parts, filePart(key, *v))
		}
		return
	case []byte:
		*parts = append(*parts, Part{Name: key, Data: v})
		return
	}

	rv := reflect.ValueOf(tree)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if isByteSlice(rv) {
			*parts = append(*parts, Part{Name: key, Data: rv.Bytes()})
			return
		}
		for i := 0; i < rv.Len(); i++ {
			flatten(rv.Index(i).Interface(), indexKey(key, i), logger, parts)
		}
		return
	case reflect.Map:
		for _, e := range sortedEntries(rv) {
			flatten(e.value, childKey(key, e.key), logger, parts)
		}
		return
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			flatten(rv.Elem().Interface(), key, logger, parts)
			return
		}
	}

	text, ok := formatScalar(tree)
	if !ok || !utf8.ValidString(text) {
		logger.Warn("failed to encode multipart field", "field", key, "value", fmt.Sprintf("%v", tree))
		return
	}
	*parts = append(*parts, Part{Name: key, Data: []byte(text)})
}

func filePart(key string, f File) Part {
	p := Part{Name: key, FileName: f.FileName, MimeType: f.MimeType}
	if f.Path != "" {
		p.Path = f.Path
	} else {
		p.Data = f.Data
	}
	return p
}

func indexKey(key string, i int) string {
	return key + "[" + strconv.Itoa(i) + "]"
}

func childKey(key, name string) string {
	if key == "" {
		return name
	}
	return key + "[" + name + "]"
}

type entry struct {
	key   string
	value any
}

func sortedEntries(rv reflect.Value) []entry {
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: fmt.Sprint(iter.Key().Interface()), value: iter.Value().Interface()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries
}

func isByteSlice(rv reflect.Value) bool {
	return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8
}

// formatScalar renders a leaf value as locale-independent text.
func formatScalar(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case json.Number:
		return x.String(), true
	case fmt.Stringer:
		return x.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

// queryPairs flattens a tree into URL query pairs: nested maps use
// key[name], lists use key[].
func queryPairs(tree any, key string, out *[][2]string) {
	rv := reflect.ValueOf(tree)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if isByteSlice(rv) {
			*out = append(*out, [2]string{key, string(rv.Bytes())})
			return
		}
		for i := 0; i < rv.Len(); i++ {
			queryPairs(rv.Index(i).Interface(), key+"[]", out)
		}
		return
	case reflect.Map:
		for _, e := range sortedEntries(rv) {
			queryPairs(e.value, childKey(key, e.key), out)
		}
		return
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			queryPairs(rv.Elem().Interface(), key, out)
		}
		return
	}
	if text, ok := formatScalar(tree); ok {
		*out = append(*out, [2]string{key, text})
	}
}

// Describe replaces files and blobs in a parameter tree with printable
// descriptors so the tree can be logged or previewed.
func Describe(params any) any {
	return describeParams(params)
}

func describeParams(tree any) any {
	switch v := tree.(type) {
	case File:
		return v.Describe()
	case *File:
		if v == nil {
			return nil
		}
		return v.Describe()
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = describeParams(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = describeParams(item)
		}
		return out
	}
	rv := reflect.ValueOf(tree)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = describeParams(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, e := range sortedEntries(rv) {
			out[e.key] = describeParams(e.value)
		}
		return out
	}
	return tree
}
