package output

import "time"

// DateTimeLayout is the layout used for normalized date/time values.
const DateTimeLayout = "2006-01-02 15:04:05"

// NormalizeDateTimes returns a shallow copy of m. When dateTimeToString is
// set, top-level time.Time and *time.Time values are replaced by their
// DateTimeLayout rendering. Nested values are left alone.
func NormalizeDateTimes(m map[string]any, dateTimeToString bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
		if !dateTimeToString {
			continue
		}
		switch t := v.(type) {
		case time.Time:
			out[k] = t.Format(DateTimeLayout)
		case *time.Time:
			if t != nil {
				out[k] = t.Format(DateTimeLayout)
			}
		}
	}
	return out
}

// EncodeJSON encodes m as a JSON object, rendering top-level date/time
// values as DateTimeLayout strings when dateTimeToString is set.
func EncodeJSON(m map[string]any, dateTimeToString bool) ([]byte, error) {
	return marshal(NormalizeDateTimes(m, dateTimeToString))
}
