// Package kv persists whole JSON blobs under fixed keys. Values are always
// read and written wholesale; there are no partial updates or indexes.
package kv

import "errors"

// Keys used by the application.
const (
	KeyReceipts    = "receipts"
	KeyCurrentUser = "currentUser"
	KeyTheme       = "theme"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("key not found")

// Store defines the interface for key-value operations
type Store interface {
	// Get returns a copy of the value stored under key
	Get(key string) ([]byte, error)

	// Put replaces the value stored under key
	Put(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close closes the underlying database
	Close() error
}

// Open opens a store with the named driver ("bolt" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "bolt":
		return NewBolt(path)
	case "sqlite":
		return NewSQLite(path)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
