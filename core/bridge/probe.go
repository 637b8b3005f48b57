// File: core/bridge/probe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Probe views over the bridges' internal counters. Snapshots read the
// same atomics the machines run on, so collecting them perturbs nothing
// and needs no locks.

package bridge

import (
	"math"

	"github.com/momentics/hioload-streams/api"
)

// machineProbe exposes one bridge's counters under a registry name.
type machineProbe struct {
	name    string
	collect func() map[string]int64
}

func (p machineProbe) Name() string               { return p.name }
func (p machineProbe) Snapshot() map[string]int64 { return p.collect() }

// counter clamps a uint64 counter into the int64 snapshot domain.
// Unbounded demand clamps to MaxInt64.
func counter(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// Probe exposes the bridge's counters under name: buffers delivered to the
// consumer, demand still outstanding, and the lifecycle state code.
func (b *ReadBridge) Probe(name string) api.Probe {
	return machineProbe{name: name, collect: func() map[string]int64 {
		return map[string]int64{
			"delivered": counter(b.delivered.Load()),
			"demand":    counter(b.demand.get()),
			"state":     int64(b.state.load()),
		}
	}}
}

// Probe exposes the bridge's counters under name: buffers fully written,
// whether a one-item request is outstanding, and the state code.
func (b *WriteBridge) Probe(name string) api.Probe {
	return machineProbe{name: name, collect: func() map[string]int64 {
		st := b.state.load()
		var awaiting int64
		if st == wsRequested {
			awaiting = 1
		}
		return map[string]int64{
			"written":  counter(b.written.Load()),
			"awaiting": awaiting,
			"state":    int64(st),
		}
	}}
}

// Probe exposes the bridge's counters under name: flush units sealed,
// flushes taken against the sink, and the state code.
func (b *FlushBridge) Probe(name string) api.Probe {
	return machineProbe{name: name, collect: func() map[string]int64 {
		return map[string]int64{
			"units":   counter(b.units.Load()),
			"flushes": counter(b.flushes.Load()),
			"state":   int64(b.state.load()),
		}
	}}
}
