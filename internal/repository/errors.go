// Package repository defines the persistence contract of the booking engine
// and its MySQL implementation.  The sentinel errors below are shared by
// every Store implementation so that the service layer can distinguish
// between failure scenarios without knowing which backend is in use.
package repository

import "errors"

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule, such
// as a second live claim on the same seat or a reused reservation number.
var ErrDuplicate = errors.New("duplicate")

// ErrReadOnly is returned when a mutation is attempted inside View.
var ErrReadOnly = errors.New("read-only transaction")
