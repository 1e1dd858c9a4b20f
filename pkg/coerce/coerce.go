// Package coerce decodes loosely typed values coming from database rows and
// external services into Go scalars. Every externally sourced number or
// string passes through here before arithmetic or display.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ToNumber parses v as a float64. Anything that does not produce a finite
// number (nil, empty or non-numeric strings, NaN, ±Inf) yields 0.
func ToNumber(v interface{}) float64 {
	n, ok := Number(v)
	if !ok {
		return 0
	}
	return n
}

// Number reports the numeric value of v and whether v was numeric at all.
// Booleans, nil, empty strings and non-finite results are not numeric.
func Number(v interface{}) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int8:
		n = float64(x)
	case int16:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint:
		n = float64(x)
	case uint8:
		n = float64(x)
	case uint16:
		n = float64(x)
	case uint32:
		n = float64(x)
	case uint64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		n = f
	case *float64:
		if x == nil {
			return 0, false
		}
		n = *x
	case *string:
		if x == nil {
			return 0, false
		}
		return Number(*x)
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// ToString renders v the way it is shown to operators: nil becomes "",
// numbers use the shortest representation, times are RFC 3339.
func ToString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Float returns *p or 0.
func Float(p *float64) float64 {
	return ToNumber(p)
}

// Str returns *p or "".
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Time reports v as a time. Strings are read as YYYY-MM-DD dates or RFC 3339
// timestamps; dateOnly is set for the former.
func Time(v interface{}) (t time.Time, dateOnly bool, ok bool) {
	switch x := v.(type) {
	case time.Time:
		return x, false, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false, false
		}
		return *x, false, true
	case *string:
		if x == nil {
			return time.Time{}, false, false
		}
		return Time(*x)
	case string:
		s := strings.TrimSpace(x)
		if d, err := time.Parse("2006-01-02", s); err == nil {
			return d, true, true
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, false, true
		}
	}
	return time.Time{}, false, false
}
