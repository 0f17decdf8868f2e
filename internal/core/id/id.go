// Package id generates entity identifiers.
//
// Identifiers are UUIDv7, so they sort by creation time. Oldest-first batch
// consumption leans on this as the tie-break between rows that share an
// effective date.
package id

import "github.com/google/uuid"

// ID identifies a ledger entry, batch, record, or catalog item.
type ID = uuid.UUID

// New returns a fresh time-ordered identifier.
func New() ID {
	v7, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to
		// random rather than aborting a write.
		return uuid.New()
	}
	return v7
}

// Parse validates and converts a string form.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse is Parse for fixtures and constants. Panics on bad input.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil is the zero identifier.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether the identifier is unset.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
