package orm

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Attrs is an unordered attribute map used for inserts, updates, and
// construction.  Keys are applied in sorted order.
type Attrs map[string]any

func (a Attrs) sortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// attributes is an insertion-ordered bag.  Row columns keep select order;
// later Sets of new keys append.
type attributes struct {
	keys []string
	vals map[string]any
}

func (a *attributes) get(k string) (any, bool) {
	v, ok := a.vals[k]
	return v, ok
}

func (a *attributes) set(k string, v any) {
	if a.vals == nil {
		a.vals = make(map[string]any)
	}
	if _, ok := a.vals[k]; !ok {
		a.keys = append(a.keys, k)
	}
	a.vals[k] = v
}

func (a *attributes) clone() map[string]any {
	out := make(map[string]any, len(a.vals))
	for k, v := range a.vals {
		out[k] = v
	}
	return out
}

func (a *attributes) reset() {
	a.keys = nil
	a.vals = make(map[string]any)
}

// normalize converts driver values into the small set of Go types the
// accessors understand.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int16:
		return int64(t), true
	case int8:
		return int64(t), true
	case uint64:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint:
		return int64(t), true
	case float64:
		return int64(t), t == float64(int64(t))
	case float32:
		return int64(t), float64(t) == float64(int64(t))
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case nil:
		return false
	}
	n, _ := toInt64(v)
	return n != 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, l := range timeLayouts {
			if ts, err := time.Parse(l, t); err == nil {
				return ts, true
			}
		}
	case int64:
		return time.Unix(t, 0).UTC(), true
	}
	return time.Time{}, false
}

// keyOf reduces a key value to a comparable string so an int64 id matches
// a driver-returned int or numeric string.
func keyOf(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	if n, ok := toInt64(v); ok {
		if _, isBool := v.(bool); !isBool {
			return strconv.FormatInt(n, 10), true
		}
	}
	return fmt.Sprint(v), true
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
