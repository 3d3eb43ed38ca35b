package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParsePrice coerces a numeric or locale-formatted price into a finite,
// non-negative float. Anything unparseable becomes 0.
//
// Both "1.234,56" and "1,234.56" parse to 1234.56: the last separator is the
// decimal mark when both appear. A lone separator is a decimal mark, except a
// single dot followed by exactly three digits ("1.299"), which is a thousands
// separator.
func ParsePrice(v any) float64 {
	var f float64
	switch tv := v.(type) {
	case float64:
		f = tv
	case float32:
		f = float64(tv)
	case int:
		f = float64(tv)
	case int64:
		f = float64(tv)
	case int32:
		f = float64(tv)
	case json.Number:
		f = parsePriceString(tv.String())
	case string:
		f = parsePriceString(tv)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func parsePriceString(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimRight(b.String(), "-")
	if clean == "" || strings.Count(clean, "-") > 1 || strings.LastIndex(clean, "-") > 0 {
		return 0
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(clean, ".") > 1 || (len(clean)-lastDot-1 == 3 && lastDot > 0) {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}
	clean = strings.TrimSuffix(clean, ".")

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return f
}
