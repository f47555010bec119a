package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// fields reads typed values out of a schemaless document and remembers the first error.
type fields struct {
	data map[string]any
	err  error
}

func (f *fields) fail(key, want string, v any) {
	if f.err == nil {
		f.err = fmt.Errorf("field %q: want %s, got %T", key, want, v)
	}
}

func (f *fields) requiredString(key string) string {
	v, ok := f.data[key]
	if !ok || v == nil {
		if f.err == nil {
			f.err = fmt.Errorf("field %q: missing", key)
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(key, "string", v)
	}
	return s
}

func (f *fields) stringOr(key, def string) string {
	v, ok := f.data[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		f.fail(key, "string", v)
		return def
	}
	return s
}

func (f *fields) optionalString(key string) *string {
	v, ok := f.data[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		f.fail(key, "string", v)
		return nil
	}
	return &s
}

func (f *fields) optionalFloat(key string) *float64 {
	v, ok := f.data[key]
	if !ok || v == nil {
		return nil
	}
	n, ok := toFloat(v)
	if !ok {
		f.fail(key, "number", v)
		return nil
	}
	return &n
}

func (f *fields) boolOr(key string, def bool) bool {
	v, ok := f.data[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		f.fail(key, "bool", v)
		return def
	}
	return b
}

func (f *fields) timeOr(key string, def time.Time) time.Time {
	t := f.optionalTime(key)
	if t == nil {
		return def
	}
	return *t
}

func (f *fields) optionalTime(key string) *time.Time {
	v, ok := f.data[key]
	if !ok || v == nil {
		return nil
	}
	t, ok := toTime(v)
	if !ok {
		f.fail(key, "timestamp", v)
		return nil
	}
	return &t
}

func (f *fields) stringSlice(key string) []string {
	v, ok := f.data[key]
	if !ok || v == nil {
		f.fail(key, "array", v)
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				f.fail(key, "array of strings", e)
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	f.fail(key, "array", v)
	return nil
}

func (f *fields) stringMap(key string) map[string]string {
	v, ok := f.data[key]
	if !ok || v == nil {
		f.fail(key, "map", v)
		return nil
	}
	switch vv := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(vv))
		for k, s := range vv {
			out[k] = s
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(vv))
		for k, e := range vv {
			s, ok := e.(string)
			if !ok {
				f.fail(key, "map of strings", e)
				return nil
			}
			out[k] = s
		}
		return out
	}
	f.fail(key, "map", v)
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// toTime accepts the store's native time.Time as well as RFC3339 strings and epoch seconds.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	if secs, ok := toFloat(v); ok {
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// relativeTime renders "3 minutes ago" style strings relative to now.
func relativeTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}
