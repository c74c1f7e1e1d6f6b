package ml

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// toNumber coerces a decoded JSON value into the float the model consumes.
// The returned reason is empty on success.
func toNumber(value interface{}) (float64, string) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, "not a number"
		}
		f = parsed
	case bool:
		if v {
			return 1, ""
		}
		return 0, ""
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, "cannot be coerced to a number"
		}
		f = parsed
	default:
		return 0, "unsupported value type"
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "value is not finite"
	}
	return f, ""
}

// isLabel reports whether a value is a categorical label rather than a number.
func isLabel(value interface{}) (string, bool) {
	s, ok := value.(string)
	return s, ok
}
