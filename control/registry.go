// control/registry.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe probe registry with dynamic registration and aggregate
// snapshots.

package control

import (
	"runtime"
	"sync"

	"github.com/momentics/hioload-streams/api"
)

var _ api.Registry = (*Registry)(nil)

// Registry maps probe names to probes. Snapshots copy; readers never see
// a live map.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]api.Probe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]api.Probe)}
}

// Register inserts a probe. A name collision replaces the old probe.
func (r *Registry) Register(p api.Probe) {
	r.mu.Lock()
	r.probes[p.Name()] = p
	r.mu.Unlock()
}

// Unregister removes a probe by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.probes, name)
	r.mu.Unlock()
}

// Snapshot collects every probe's counters keyed by probe name. Probe
// snapshots run outside the registry lock.
func (r *Registry) Snapshot() map[string]map[string]int64 {
	r.mu.RLock()
	probes := make([]api.Probe, 0, len(r.probes))
	for _, p := range r.probes {
		probes = append(probes, p)
	}
	r.mu.RUnlock()

	out := make(map[string]map[string]int64, len(probes))
	for _, p := range probes {
		out[p.Name()] = p.Snapshot()
	}
	return out
}

var _ api.Probe = (*FuncProbe)(nil)

// FuncProbe adapts a snapshot function into a probe.
type FuncProbe struct {
	ProbeName string
	Collect   func() map[string]int64
}

func (p *FuncProbe) Name() string { return p.ProbeName }

func (p *FuncProbe) Snapshot() map[string]int64 {
	if p.Collect == nil {
		return map[string]int64{}
	}
	return p.Collect()
}

// RuntimeProbe reports process-level counters.
func RuntimeProbe() *FuncProbe {
	return &FuncProbe{
		ProbeName: "runtime",
		Collect: func() map[string]int64 {
			return map[string]int64{
				"goroutines": int64(runtime.NumGoroutine()),
				"cpus":       int64(runtime.NumCPU()),
			}
		},
	}
}

// PoolProbe reports a buffer pool's accounting counters.
func PoolProbe(name string, p api.BufferPool) *FuncProbe {
	return &FuncProbe{
		ProbeName: name,
		Collect: func() map[string]int64 {
			st := p.Stats()
			return map[string]int64{
				"total_alloc":  st.TotalAlloc,
				"total_free":   st.TotalFree,
				"in_use":       st.InUse,
				"double_frees": st.DoubleFrees,
			}
		},
	}
}
