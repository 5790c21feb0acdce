package caddy

import (
	"net/url"
	"strconv"
	"time"
)

// yearBase is the epoch of the controller's two-digit year field.
const yearBase = 2000

// TimeFields is the controller's clock encoding as served by /bootTime.json
// and /dateTime.json and accepted by /setClock.htm. Keys: year (offset from
// 2000), month, date (day of month), day (weekday, 1 = Sunday), hr, min, sec.
// An absent key means the controller omitted the field.
type TimeFields map[string]int

// DecodeTime converts controller clock fields to a local time. It never
// fails: the firmware is known to omit fields, so missing or out-of-range
// values fall back to the start of their range.
func DecodeTime(f TimeFields) time.Time {
	year := yearBase + f["year"]
	month := inRange(f["month"], 1, 12, 1)
	day := inRange(f["date"], 1, 31, 1)
	hour := inRange(f["hr"], 0, 23, 0)
	minute := inRange(f["min"], 0, 59, 0)
	second := inRange(f["sec"], 0, 59, 0)
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
}

// EncodeTime converts t to controller clock fields in local wall time, the
// zone DecodeTime reads them back in. Dates before 2000 yield a negative
// year, which the controller cannot represent.
func EncodeTime(t time.Time) TimeFields {
	t = t.In(time.Local)
	return TimeFields{
		"year":  t.Year() - yearBase,
		"month": int(t.Month()),
		"date":  t.Day(),
		"day":   int(t.Weekday()) + 1,
		"hr":    t.Hour(),
		"min":   t.Minute(),
		"sec":   t.Second(),
	}
}

// Values returns the fields as form parameters for /setClock.htm.
func (f TimeFields) Values() url.Values {
	v := make(url.Values, len(f))
	for k, n := range f {
		v.Set(k, strconv.Itoa(n))
	}
	return v
}

func inRange(v, lo, hi, def int) int {
	if v < lo || v > hi {
		return def
	}
	return v
}

// timeFieldsFrom extracts integer clock fields from a decoded JSON object.
// Non-numeric values are treated as absent.
func timeFieldsFrom(body any) TimeFields {
	m, ok := body.(map[string]any)
	if !ok {
		return TimeFields{}
	}
	f := make(TimeFields, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case float64:
			f[k] = int(n)
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				f[k] = i
			}
		case bool:
			if n {
				f[k] = 1
			}
		}
	}
	return f
}
