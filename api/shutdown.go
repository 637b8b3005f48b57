// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown unifies orderly teardown across components.
type GracefulShutdown interface {
	// Shutdown stops internal services and releases held resources.
	// Returns an error when teardown could not complete cleanly.
	Shutdown() error
}
