package store

import (
	"time"

	"github.com/google/uuid"
)

// Controller is a known irrigation controller.
type Controller struct {
	Address      string         `json:"address"`
	Hostname     string         `json:"hostname,omitempty"`
	FriendlyName string         `json:"friendly_name,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	ZoneNames    []string       `json:"zone_names,omitempty"`
	Online       bool           `json:"online"`
	Manual       bool           `json:"manual,omitempty"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastSeen     time.Time      `json:"last_seen"`
	BootTime     time.Time      `json:"boot_time"`
	Status       map[string]any `json:"status,omitempty"`
}

// Name returns the friendly name, falling back to hostname and address.
func (c *Controller) Name() string {
	switch {
	case c.FriendlyName != "":
		return c.FriendlyName
	case c.Hostname != "":
		return c.Hostname
	default:
		return c.Address
	}
}

// ScanRecord is one completed discovery run.
type ScanRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Prefixes   []string  `json:"prefixes"`
	Probes     int       `json:"probes"`
	Found      []string  `json:"found"`
}

// NewScanRecord returns a record with a time-ordered ID.
func NewScanRecord(startedAt time.Time) *ScanRecord {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &ScanRecord{ID: id.String(), StartedAt: startedAt}
}
