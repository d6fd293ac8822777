package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// number covers both encoding/json.Number and decoders that mimic it.
type number interface {
	Float64() (float64, error)
	String() string
}

// boxed widens a typed coercion result for the canonical map.
func boxed[T any](v T, ok bool) (any, bool) {
	if !ok {
		return nil, false
	}
	return v, true
}

func toString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case number:
		return x.String(), true
	}
	return "", false
}

func toStringList(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out, true
	case []any:
		out := make([]string, 0, len(x))
		for _, el := range x {
			if s, ok := elementID(el); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

// elementID turns one list element into its string identifier. Objects
// contribute their "id" or "_id".
func elementID(el any) (string, bool) {
	if m, ok := el.(map[string]any); ok {
		for _, k := range []string{"id", "_id"} {
			if id, ok := m[k]; ok && id != nil {
				return elementID(id)
			}
		}
		return "", false
	}
	return toString(el)
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "y":
			return true, true
		case "false", "0", "no", "n":
			return false, true
		}
		return false, false
	}
	if f, ok := toFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// toFloat accepts finite numbers only. NaN and infinities cannot be
// serialized back to JSON.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	if f, ok := toFloat(v); ok {
		return fromEpoch(f), true
	}
	return time.Time{}, false
}

func fromEpoch(f float64) time.Time {
	if f > epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}
