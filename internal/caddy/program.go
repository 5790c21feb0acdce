package caddy

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"irrigation-go-home/internal/jsobj"
)

// ZoneDuration is one zone's run time within a program.
type ZoneDuration struct {
	Hours   jsobj.Int `json:"hr"`
	Minutes jsobj.Int `json:"min"`
}

// Duration converts the run time to a time.Duration.
func (d ZoneDuration) Duration() time.Duration {
	return time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute
}

// Program is a watering program as served by /js/indexVarsDyn.js.
type Program struct {
	Number           jsobj.Int      `json:"progNumber"`
	AllowRun         jsobj.Flag     `json:"progAllowRun"`
	Days             []jsobj.Flag   `json:"days"` // Sunday first
	StartHours       []jsobj.Int    `json:"progStartTimeHr"`
	StartMinutes     []jsobj.Int    `json:"progStartTimeMin"`
	IsAM             []jsobj.Flag   `json:"isAM"`
	ZoneNames        []string       `json:"zNames"`
	ZoneDurations    []ZoneDuration `json:"zDur"`
	MaxZoneRunTime   jsobj.Int      `json:"maxZRunTime"`
	MaxZones         jsobj.Int      `json:"maxZones"`
	EveryNDays       jsobj.Int      `json:"everyNDays"`
	EvenOdd          jsobj.Int      `json:"evenOdd"`
	MaxPrograms      jsobj.Int      `json:"maxProgs"`
	StartTimesStatus []jsobj.Int    `json:"startTimesStatus"`
	Hostname         string         `json:"hostname"`
	IPAddress        string         `json:"ipAddress"`

	// Raw is the full decoded object, including keys not mapped above.
	Raw map[string]any `json:"-"`
}

// Zone pairs a zone name with its run time.
type Zone struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Zones returns the program's zones in controller order.
func (p *Program) Zones() []Zone {
	zones := make([]Zone, len(p.ZoneNames))
	for i, name := range p.ZoneNames {
		zones[i] = Zone{Index: i, Name: name}
		if i < len(p.ZoneDurations) {
			zones[i].Duration = p.ZoneDurations[i].Duration()
		}
	}
	return zones
}

// MarshalJSON emits every key the controller sent, with the mapped fields
// in their normalized form.
func (p Program) MarshalJSON() ([]byte, error) {
	type plain Program
	typed, err := json.Marshal(plain(p))
	if err != nil || len(p.Raw) == 0 {
		return typed, err
	}
	var fields map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	merged := maps.Clone(p.Raw)
	maps.Copy(merged, fields)
	return json.Marshal(merged)
}

// ParseProgram decodes an indexVarsDyn.js body.
func ParseProgram(src []byte) (*Program, error) {
	var p Program
	if err := jsobj.Unmarshal(src, &p); err != nil {
		return nil, fmt.Errorf("parse program: %w", err)
	}
	if err := jsobj.Unmarshal(src, &p.Raw); err != nil {
		return nil, fmt.Errorf("parse program: %w", err)
	}
	if len(p.ZoneNames) != len(p.ZoneDurations) {
		return nil, fmt.Errorf("parse program: %w", &jsobj.DecodeError{
			Offset: -1,
			Err:    fmt.Errorf("%d zone names but %d zone durations", len(p.ZoneNames), len(p.ZoneDurations)),
		})
	}
	return &p, nil
}
