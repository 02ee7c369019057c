package resolver

import "errors"

// Domain errors for the resolver package.
var (
	// ErrNotFound is returned by Lookup when no device currently serves
	// the requested bulb name.
	ErrNotFound = errors.New("resolver: bulb name not bound")
)
