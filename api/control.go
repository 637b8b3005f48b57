// File: api/control.go
// Package api defines observability contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Probe exposes a named set of counters for one component.
type Probe interface {
	// Name identifies the probe within a registry.
	Name() string
	// Snapshot returns the current counter values. Implementations must be
	// safe to call concurrently with the probed component's operation.
	Snapshot() map[string]int64
}

// Registry manages dynamic probe registration and aggregate snapshots.
type Registry interface {
	// Register adds a probe. Registering a name twice replaces the probe.
	Register(p Probe)
	// Unregister removes a probe by name.
	Unregister(name string)
	// Snapshot collects all probes keyed by probe name.
	Snapshot() map[string]map[string]int64
}
