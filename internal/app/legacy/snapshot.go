// Package legacy is the boundary to the remote legacy system: the HTTP
// client for its API and the typed parsing of its loosely-typed payloads.
//
// Remote payloads are untyped key/value maps. They are converted into a
// Snapshot exactly once, here, so the reconciliation code never touches
// raw maps:
//   - keys ending in "_id" are coerced to integers
//   - keys ending in "_at" are parsed as timestamps (epoch sentinels are absent)
//   - every other value is kept as a trimmed string
//
// A key that is missing, null, or unparseable is "absent"; callers treat
// absent and blank the same way and never overwrite local data with it.
package legacy

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Snapshot is a parsed point-in-time view of one remote entity.
type Snapshot struct {
	strs  map[string]string
	ids   map[string]int64
	times map[string]time.Time
}

// timestamp layouts accepted from the legacy API, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseSnapshot converts a raw remote record into a Snapshot.
func ParseSnapshot(raw map[string]any) Snapshot {
	s := Snapshot{
		strs:  make(map[string]string, len(raw)),
		ids:   make(map[string]int64),
		times: make(map[string]time.Time),
	}
	for k, v := range raw {
		str, ok := stringify(v)
		if !ok {
			continue
		}
		switch {
		case strings.HasSuffix(k, "_id"):
			if n, err := strconv.ParseInt(str, 10, 64); err == nil {
				s.ids[k] = n
			}
		case strings.HasSuffix(k, "_at"):
			if t, ok := parseTime(str, time.UTC); ok {
				s.times[k] = t
			}
		default:
			s.strs[k] = str
		}
	}
	return s
}

// stringify renders a decoded JSON value as a trimmed string.
// Nested objects and arrays are not scalar fields and are skipped.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// isEpochSentinel reports values the legacy system uses to mean "no date".
func isEpochSentinel(s string) bool {
	return strings.HasPrefix(s, "0000-00-00") || strings.HasPrefix(s, "1970-01-01")
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	if s == "" || isEpochSentinel(s) {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			if t.Unix() == 0 {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// IsEmpty reports whether the snapshot carries no fields at all.
func (s Snapshot) IsEmpty() bool {
	return len(s.strs) == 0 && len(s.ids) == 0 && len(s.times) == 0
}

// String returns the trimmed value for key if present and non-blank.
func (s Snapshot) String(key string) (string, bool) {
	v, ok := s.strs[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Int returns the integer value of an "_id" key.
func (s Snapshot) Int(key string) (int64, bool) {
	v, ok := s.ids[key]
	return v, ok
}

// Time returns the parsed value of an "_at" key.
func (s Snapshot) Time(key string) (time.Time, bool) {
	v, ok := s.times[key]
	return v, ok
}

// TimeIn parses a date or datetime stored under a non-"_at" key
// (e.g. arrival_date, invited_on) in the given location.
func (s Snapshot) TimeIn(key string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	v, ok := s.String(key)
	if !ok {
		return time.Time{}, false
	}
	return parseTime(v, loc)
}

// Bool coerces truthy representations ("true", "1") to a boolean.
// The second result is false when the key is absent or blank.
func (s Snapshot) Bool(key string) (bool, bool) {
	v, ok := s.String(key)
	if !ok {
		return false, false
	}
	switch strings.ToLower(v) {
	case "true", "1", "t", "yes":
		return true, true
	default:
		return false, true
	}
}

// With returns a copy of s with key set to the string value.
func (s Snapshot) With(key, value string) Snapshot {
	out := s.clone()
	out.strs[key] = strings.TrimSpace(value)
	return out
}

// Keys returns every present key in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.strs)+len(s.ids)+len(s.times))
	for k := range s.strs {
		keys = append(keys, k)
	}
	for k := range s.ids {
		keys = append(keys, k)
	}
	for k := range s.times {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw renders the snapshot back into a plain map for pushing to the API.
func (s Snapshot) Raw() map[string]any {
	out := make(map[string]any, len(s.strs)+len(s.ids)+len(s.times))
	for k, v := range s.strs {
		out[k] = v
	}
	for k, v := range s.ids {
		out[k] = v
	}
	for k, v := range s.times {
		out[k] = v.UTC().Format(time.RFC3339)
	}
	return out
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		strs:  make(map[string]string, len(s.strs)+1),
		ids:   make(map[string]int64, len(s.ids)),
		times: make(map[string]time.Time, len(s.times)),
	}
	for k, v := range s.strs {
		out.strs[k] = v
	}
	for k, v := range s.ids {
		out.ids[k] = v
	}
	for k, v := range s.times {
		out.times[k] = v
	}
	return out
}
