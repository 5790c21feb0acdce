package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Controller operations, keyed by address.
	SaveController(c *Controller) error
	GetController(addr string) (*Controller, error)
	DeleteController(addr string) error
	ListControllers() ([]*Controller, error)

	// UpdateController atomically reads, modifies, and saves a controller in a
	// single transaction. Returns ErrNotFound if the controller does not exist.
	UpdateController(addr string, fn func(c *Controller) error) error

	// Scan history
	SaveScan(rec *ScanRecord) error
	ListScans(limit int) ([]*ScanRecord, error)

	// Close the store
	Close() error
}
