// Package timeval turns the date encodings found in stored documents into
// time.Time values. It is the only place that parses dates.
package timeval

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Epoch values below this magnitude are seconds, above it milliseconds.
// 1e11 seconds is the year 5138; 1e11 milliseconds is March 1973.
const secondsCutoff = 1e11

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Jan 2, 2006",
	"January 2, 2006",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04 PM",
	"3:04PM",
	"3:04 pm",
}

type toDater interface{ ToDate() time.Time }
type asTimer interface{ AsTime() time.Time }
type timer interface{ Time() time.Time }

// Normalize converts v to a time in loc. The second result is false when v
// is nil, empty, unparseable or of an unsupported type.
func Normalize(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	t, ok := normalize(v, loc)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t.In(loc), true
}

func normalize(v any, loc *time.Location) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case toDater:
		return x.ToDate(), true
	case asTimer:
		return x.AsTime(), true
	case timer:
		return x.Time(), true
	case string:
		return parseString(x, loc)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return fromEpoch(f)
		}
		return time.Time{}, false
	case float64:
		return fromEpoch(x)
	case float32:
		return fromEpoch(float64(x))
	case int:
		return fromEpoch(float64(x))
	case int8:
		return fromEpoch(float64(x))
	case int16:
		return fromEpoch(float64(x))
	case int32:
		return fromEpoch(float64(x))
	case int64:
		return fromEpoch(float64(x))
	case uint:
		return fromEpoch(float64(x))
	case uint8:
		return fromEpoch(float64(x))
	case uint16:
		return fromEpoch(float64(x))
	case uint32:
		return fromEpoch(float64(x))
	case uint64:
		return fromEpoch(float64(x))
	case map[string]any:
		return fromTimestampMap(x)
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return time.Time{}, false
	}
	if math.Abs(f) < secondsCutoff {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)), true
	}
	return time.UnixMilli(int64(f)), true
}

// fromTimestampMap handles serialized timestamps such as
// {"seconds": 1717200000, "nanoseconds": 0} or {"_seconds": ..., "_nanoseconds": ...}.
func fromTimestampMap(m map[string]any) (time.Time, bool) {
	secV, ok := firstKey(m, "seconds", "_seconds")
	if !ok {
		return time.Time{}, false
	}
	sec, ok := toFloat(secV)
	if !ok {
		return time.Time{}, false
	}
	var nanos float64
	if nv, ok := firstKey(m, "nanoseconds", "_nanoseconds", "nanos"); ok {
		nanos, _ = toFloat(nv)
	}
	return time.Unix(int64(sec), int64(nanos)), true
}

func firstKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func parseString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseClock reads a wall-clock value ("14:30", "14:30:15", "2:30 PM").
func parseClock(v any, loc *time.Location) (h, m, s int, ok bool) {
	str, isStr := v.(string)
	if isStr {
		str = strings.TrimSpace(str)
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, str); err == nil {
				return t.Hour(), t.Minute(), t.Second(), true
			}
		}
	}
	// A full timestamp in the time field contributes its clock.
	if t, ok := Normalize(v, loc); ok {
		return t.Hour(), t.Minute(), t.Second(), true
	}
	return 0, 0, 0, false
}

// Combine merges a separate date field and time-of-day field into one instant.
// When both resolve, the calendar day comes from date and the clock from
// clock. Otherwise whichever field resolves on its own is used. A bare clock
// with no date does not resolve.
func Combine(date, clock any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	d, dateOK := Normalize(date, loc)
	if dateOK {
		if h, m, s, ok := parseClock(clock, loc); ok {
			return time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, loc), true
		}
		return d, true
	}
	return Normalize(clock, loc)
}

// IsBlank reports whether a raw field value carries no information.
func IsBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}
