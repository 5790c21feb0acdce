package caddy

import (
	"testing"
	"time"
)

func TestDecodeTime(t *testing.T) {
	tests := []struct {
		name   string
		fields TimeFields
		want   time.Time
	}{
		{
			name:   "only hour and minute",
			fields: TimeFields{"hr": 7, "min": 26},
			want:   time.Date(2000, 1, 1, 7, 26, 0, 0, time.Local),
		},
		{
			name:   "all fields",
			fields: TimeFields{"hr": 7, "min": 26, "sec": 32, "day": 6, "date": 14, "month": 6, "year": 13},
			want:   time.Date(2013, 6, 14, 7, 26, 32, 0, time.Local),
		},
		{
			name:   "empty",
			fields: TimeFields{},
			want:   time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name:   "zero month and date",
			fields: TimeFields{"year": 20, "month": 0, "date": 0},
			want:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name:   "out of range clock",
			fields: TimeFields{"year": 21, "month": 13, "date": 40, "hr": 24, "min": 60, "sec": -1},
			want:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeTime(tt.fields)
			if !got.Equal(tt.want) {
				t.Errorf("DecodeTime(%v) = %v, want %v", tt.fields, got, tt.want)
			}
		})
	}
}

func TestEncodeTime(t *testing.T) {
	// 2013-06-14 was a Friday.
	f := EncodeTime(time.Date(2013, 6, 14, 7, 26, 32, 0, time.Local))
	want := TimeFields{"year": 13, "month": 6, "date": 14, "day": 6, "hr": 7, "min": 26, "sec": 32}
	for k, v := range want {
		if f[k] != v {
			t.Errorf("%s = %d, want %d", k, f[k], v)
		}
	}
	if len(f) != len(want) {
		t.Errorf("fields = %v, want %v", f, want)
	}
}

func TestEncodeTimeSundayIsOne(t *testing.T) {
	f := EncodeTime(time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local))
	if f["day"] != 1 {
		t.Errorf("day = %d, want 1", f["day"])
	}
}

func TestTimeRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local),
		time.Date(2013, 6, 14, 7, 26, 32, 0, time.Local),
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.Local),
		time.Date(2099, 12, 31, 12, 30, 15, 0, time.Local),
		time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 6, 45, 0, 0, time.FixedZone("UTC+9", 9*60*60)),
		time.Date(2024, 11, 3, 23, 15, 0, 0, time.FixedZone("UTC-5", -5*60*60)),
	}
	for _, in := range times {
		got := DecodeTime(EncodeTime(in))
		if !got.Equal(in) {
			t.Errorf("round trip %v = %v", in, got)
		}
	}
}

func TestEncodeTimeUsesLocalWallClock(t *testing.T) {
	in := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	local := in.In(time.Local)
	f := EncodeTime(in)
	if f["hr"] != local.Hour() || f["min"] != local.Minute() || f["date"] != local.Day() {
		t.Errorf("fields = %v, want local wall clock of %v", f, local)
	}
}

func TestTimeFieldsValues(t *testing.T) {
	v := TimeFields{"year": 13, "hr": 7}.Values()
	if v.Get("year") != "13" || v.Get("hr") != "7" {
		t.Errorf("values = %v", v)
	}
}

func TestTimeFieldsFrom(t *testing.T) {
	f := timeFieldsFrom(map[string]any{
		"year":  float64(13),
		"month": "6",
		"date":  "x",
		"hr":    true,
	})
	if f["year"] != 13 || f["month"] != 6 || f["hr"] != 1 {
		t.Errorf("fields = %v", f)
	}
	if _, ok := f["date"]; ok {
		t.Error("non-numeric date should be absent")
	}
	if len(timeFieldsFrom([]any{1, 2})) != 0 {
		t.Error("non-object body should yield no fields")
	}
}
