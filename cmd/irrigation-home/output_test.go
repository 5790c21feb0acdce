package main

import (
	"strings"
	"testing"
	"time"
)

type row struct {
	Address string    `json:"address"`
	Seen    time.Time `json:"last_seen"`
	Zones   []string  `json:"zones"`
	secret  string
	Skipped string `json:"-"`
}

func TestTableFormatterSlice(t *testing.T) {
	out := NewFormatter("table").Format([]row{
		{Address: "10.0.0.5", Seen: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), Zones: []string{"Front", "Back"}},
		{Address: "10.0.0.6"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), out)
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "ADDRESS LAST_SEEN ZONES" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2024-05-01T12:00:00Z") || !strings.Contains(lines[1], "Front, Back") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if fields := strings.Fields(lines[2]); len(fields) != 3 || fields[1] != "-" || fields[2] != "-" {
		t.Errorf("row 2 = %q, want placeholders for empty cells", lines[2])
	}
}

func TestTableFormatterEmpty(t *testing.T) {
	if got := NewFormatter("").Format([]row{}); got != "No results.\n" {
		t.Errorf("empty = %q", got)
	}
}

func TestTableFormatterStructAndMap(t *testing.T) {
	out := NewFormatter("table").Format(&row{Address: "10.0.0.5"})
	if !strings.Contains(out, "address:") || strings.Contains(out, "secret") || strings.Contains(out, "Skipped") {
		t.Errorf("struct = %q", out)
	}

	out = NewFormatter("table").Format(map[string]any{"zoneNumber": 2, "allowRun": true})
	if strings.Index(out, "allowRun") > strings.Index(out, "zoneNumber") {
		t.Errorf("map keys not sorted: %q", out)
	}
}

func TestJSONAndYAMLFormatters(t *testing.T) {
	v := []row{{Address: "10.0.0.5", Zones: []string{"Front"}}}

	js := NewFormatter("json").Format(v)
	if !strings.Contains(js, `"address": "10.0.0.5"`) {
		t.Errorf("json = %s", js)
	}

	y := NewFormatter("YAML").Format(v)
	if !strings.Contains(y, "address: 10.0.0.5") || !strings.Contains(y, "- Front") {
		t.Errorf("yaml = %s", y)
	}
}
