// Package caddy talks to IrrigationCaddy irrigation controllers over their
// undocumented HTTP interface.
//
// The controller has no authentication and speaks IPv4 only. Some endpoints
// return JSON, others return JavaScript object literals with a non-JSON
// content type (see package jsobj).
package caddy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Device is the set of operations supported by a controller.
type Device interface {
	// Address returns the host (optionally host:port) the device is bound to.
	Address() string

	// Liveness
	IsAlive(ctx context.Context) bool

	// Reads
	Status(ctx context.Context) (map[string]any, error)
	BootTime(ctx context.Context) (time.Time, error)
	SystemTime(ctx context.Context) (time.Time, error)
	Calendar(ctx context.Context, start, end time.Time) ([]any, error)
	Program(ctx context.Context, n int) (*Program, error)
	ZoneNames(ctx context.Context) ([]string, error)

	// Writes report success as the device answering HTTP 200.
	SetSystemTime(ctx context.Context, t time.Time) bool
	SetNTP(ctx context.Context, s NTPSettings) bool
	SetZoneNames(ctx context.Context, names []string) bool
}

// NTPSettings is the payload of /saveNTP.htm.
type NTPSettings struct {
	Enabled  bool   `json:"enabled"`
	Server   string `json:"server"`
	Timezone string `json:"timezone"`
	DST      bool   `json:"dst"`
}

var (
	// ErrTimeout is reported when connecting or reading exceeds the client timeouts.
	ErrTimeout = errors.New("controller request timed out")
	// ErrUnreachable is reported for any other connection-level failure.
	ErrUnreachable = errors.New("controller unreachable")
)

// StatusError is returned by the typed accessors when the controller did not
// answer 200. Failure is set when the status is a synthetic transport one.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Failure    error
}

func (e *StatusError) Error() string {
	if e.Failure != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Failure)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Failure }
