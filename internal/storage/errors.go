package storage

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnknownIndex is returned when an operation references an index_id (or
// index name) absent from the catalog.
var ErrUnknownIndex = errors.New("unknown index")

// ErrDuplicateIndexName is returned by CreateIndex when the human-facing
// index name is already taken.
var ErrDuplicateIndexName = errors.New("duplicate index name")

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite surfaces constraint errors as plain strings,
// so this matches on the canonical message prefix.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
