package dispatch

import "errors"

// Domain errors for the dispatch package.
var (
	// ErrShutdown is returned for commands that were queued but not yet
	// dispatched when the dispatcher stopped, and for any Enqueue after
	// Stop.
	ErrShutdown = errors.New("dispatch: dispatcher stopped")
)
