// Package idgen mints the run identifier rambler stamps on each trace
// directory, one per invocation of cmd/rambler.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings:
// time-sortable, so trace directories named after them sort in run order
// on disk.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Default is the generator New uses.
var Default Generator = UUIDv7()

// New produces a run ID using the Default generator.
func New() string {
	return Default()
}
