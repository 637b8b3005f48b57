// File: facade/streams.go
// Unified facade layer for hioload-streams library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the Streams struct, which aggregates the library's
// moving parts behind a single facade: a buffer pool for read chunks, an
// executor for teardown epilogues, a resume notifier for deferred write
// continuations, and a probe registry for observability. The facade
// exposes composition methods that wire io.Reader/io.Writer endpoints
// through the bridges and hand back Operations in the Go idiom.

package facade

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-streams/adapters"
	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/control"
	"github.com/momentics/hioload-streams/core/bridge"
	"github.com/momentics/hioload-streams/core/concurrency"
	"github.com/momentics/hioload-streams/pool"
)

// Config holds parameters immutable per run.
// All fields influence the initialization of internal components and the
// shape of the pipelines the facade composes; they cannot be changed once
// New has run.
type Config struct {
	ChunkSize         int   // Size of pooled chunks pulled from blocking readers
	ReadInboxDepth    int   // Chunks buffered between a reader pump and its bridge
	WritePendingDepth int   // Buffers staged ahead of a blocking writer
	BufferClasses     []int // Buffer pool size classes, ascending
	PoolDepth         int   // Free-list depth per size class
	NumWorkers        int   // Executor workers for teardown epilogues
	NotifyDepth       int   // Resume notifier queue depth
	EagerWrites       bool  // Continue write chains synchronously while the sink stays writable
	EnableProbes      bool  // Register pool and runtime probes on construction
}

// DefaultConfig returns default configuration values.
// These sane defaults support typical use cases without extensive tuning.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:         4 * 1024,                   // 4 KiB read chunks
		ReadInboxDepth:    8,                          // 8 chunks ahead of the bridge
		WritePendingDepth: 16,                         // 16 buffers ahead of the writer
		BufferClasses:     []int{4 * 1024, 64 * 1024}, // small and large chunk classes
		PoolDepth:         256,                        // 256 free buffers per class
		NumWorkers:        4,                          // four epilogue workers
		NotifyDepth:       256,                        // 256 coalesced resume slots
		EagerWrites:       true,                       // synchronous continuation by default
		EnableProbes:      true,                       // observability on
	}
}

// BindableSource is a ReadableSource that accepts its bridge's callbacks
// after construction. Every source in adapters and fake satisfies it.
type BindableSource interface {
	api.ReadableSource
	Bind(cb api.ReadCallbacks)
}

// BindableSink is the writable counterpart.
type BindableSink interface {
	api.WritableSink
	Bind(cb api.WriteCallbacks)
}

// Streams is the main facade type.
// It implements api.GracefulShutdown to allow unified shutdown logic.
type Streams struct {
	cfg      *Config
	pool     api.BufferPool
	bytes    api.BytePool
	exec     *concurrency.Executor
	notifier *adapters.ResumeNotifier
	registry *control.Registry

	seq atomic.Uint64 // probe name sequencing

	mu     sync.Mutex
	closed bool
	nextID uint64
	held   map[uint64]io.Closer
	wg     sync.WaitGroup // outstanding epilogue teardowns
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Streams)(nil)

// New constructs Streams with the given configuration. A nil cfg selects
// DefaultConfig. The buffer pool, executor, notifier, and probe registry
// live for the facade's lifetime; per-operation adapters are created and
// torn down by the composition methods.
func New(cfg *Config) *Streams {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Streams{
		cfg:      cfg,
		pool:     pool.NewBufferPool(cfg.BufferClasses, cfg.PoolDepth),
		bytes:    pool.NewBytePool(),
		exec:     concurrency.NewExecutor(cfg.NumWorkers),
		notifier: adapters.NewResumeNotifier(cfg.NotifyDepth),
		registry: control.NewRegistry(),
		held:     make(map[uint64]io.Closer),
	}
	if cfg.EnableProbes {
		s.registry.Register(control.PoolProbe("buffer_pool", s.pool))
		s.registry.Register(control.RuntimeProbe())
	}
	return s
}

// ReadFrom adapts a blocking reader into a demand-driven publisher of
// pooled buffers. The pump behind it is owned by the facade and closed on
// Close; wrap the publisher in Pipe or Send to get per-operation teardown.
func (s *Streams) ReadFrom(r io.Reader) api.Publisher[api.Buffer] {
	src := adapters.NewAsyncReaderSource(r, s.pool, s.cfg.ChunkSize, s.cfg.ReadInboxDepth)
	s.track(src)
	return s.Publish(src)
}

// Publish wires a read bridge over src and hands back the publisher side.
// The bridge's probe stays registered for the facade's lifetime.
func (s *Streams) Publish(src BindableSource) api.Publisher[api.Buffer] {
	rb := bridge.NewReadBridge(src)
	s.register(rb.Probe(s.probeName("read_bridge")))
	src.Bind(rb)
	return rb
}

// Send drives pub into a blocking writer through a write bridge. The
// staging sink is owned by the facade: once the operation settles, its
// backlog is drained and the writer closed on an executor worker.
func (s *Streams) Send(pub api.Publisher[api.Buffer], w io.Writer) *Operation {
	sink := adapters.NewAsyncWriterSink(w, s.cfg.WritePendingDepth)
	id := s.track(sink)
	return s.sendTo(pub, sink, sink.Bind, nil, []uint64{id})
}

// SendTo drives pub into a caller-owned sink. The caller keeps the sink's
// lifecycle; the facade only wires the bridge and the operation.
func (s *Streams) SendTo(pub api.Publisher[api.Buffer], sink BindableSink) *Operation {
	return s.sendTo(pub, sink, sink.Bind, nil, nil)
}

// SendFlushed drives a stream of buffer streams into a blocking writer
// with a flush boundary after each unit. The staging sink is owned by the
// facade and closed once the operation settles.
func (s *Streams) SendFlushed(units api.Publisher[api.Publisher[api.Buffer]], w io.Writer) *Operation {
	fsink := adapters.NewFlushWriterSink(w, s.bytes)
	id := s.track(fsink)
	return s.sendFlushedTo(units, fsink, []uint64{id})
}

// SendFlushedTo drives unit streams into a caller-owned flushable sink.
func (s *Streams) SendFlushedTo(units api.Publisher[api.Publisher[api.Buffer]], fsink api.FlushableSink) *Operation {
	return s.sendFlushedTo(units, fsink, nil)
}

// Commit defers the commit side effect until source proves viable: data
// or completion first runs commit and streams through the publisher view
// it receives; an error first bypasses commit and settles the operation
// with that error.
func (s *Streams) Commit(source api.Publisher[api.Buffer], commit bridge.CommitFunc) *Operation {
	d := bridge.NewDeferredCommit(source, commit)
	op := newOperation(nil)
	d.Subscribe(op)
	return op
}

// Pipe streams r into w through pooled buffers: one read bridge feeding
// one write bridge under the one-item discipline. The operation settles
// when the reader ends and every buffer reached the staging sink; the
// sink then drains and both endpoints close on an executor worker.
func (s *Streams) Pipe(r io.Reader, w io.Writer) *Operation {
	src := adapters.NewAsyncReaderSource(r, s.pool, s.cfg.ChunkSize, s.cfg.ReadInboxDepth)
	srcID := s.track(src)
	rname := s.probeName("read_bridge")
	rb := bridge.NewReadBridge(src)
	s.register(rb.Probe(rname))
	src.Bind(rb)

	sink := adapters.NewAsyncWriterSink(w, s.cfg.WritePendingDepth)
	sinkID := s.track(sink)
	return s.sendTo(rb, sink, sink.Bind, []string{rname}, []uint64{srcID, sinkID})
}

// sendTo wires one write operation: bridge over sink, operation observer,
// probe registration, and the settle epilogue that tears it all down.
// With EagerWrites off, the bridge's synchronous writability probe is
// rerouted through the resume notifier so continuation chains run on the
// notifier loop with bounded stack depth.
func (s *Streams) sendTo(pub api.Publisher[api.Buffer], sink api.WritableSink, bind func(api.WriteCallbacks), names []string, ids []uint64) *Operation {
	var wb *bridge.WriteBridge
	if s.cfg.EagerWrites {
		wb = bridge.NewWriteBridge(sink)
	} else {
		ds := &deferredSink{WritableSink: sink}
		wb = bridge.NewWriteBridge(ds)
		ds.target = s.notifier.Target(wb.OnWritePossible)
	}
	name := s.probeName("write_bridge")
	s.register(wb.Probe(name))
	op := newOperation(func() { s.teardown(append(names, name), ids) })
	wb.Subscribe(op)
	if bind != nil {
		bind(wb)
	}
	pub.Subscribe(wb)
	return op
}

func (s *Streams) sendFlushedTo(units api.Publisher[api.Publisher[api.Buffer]], fsink api.FlushableSink, ids []uint64) *Operation {
	fb := bridge.NewFlushBridge(fsink)
	name := s.probeName("flush_bridge")
	s.register(fb.Probe(name))
	op := newOperation(func() { s.teardown([]string{name}, ids) })
	fb.Subscribe(op)
	units.Subscribe(fb)
	return op
}

// deferredSink reroutes the bridge's synchronous writability probe: the
// probe reports not-writable and queues a coalesced readiness callback
// instead. Real container notifications bound to the inner sink still
// reach the bridge directly.
type deferredSink struct {
	api.WritableSink
	target *adapters.ResumeTarget
}

func (d *deferredSink) IsWritePossible() bool {
	if d.WritableSink.IsWritePossible() {
		d.target.Notify()
	}
	return false
}

// Submit dispatches a task to the executor pool for asynchronous execution.
func (s *Streams) Submit(task func()) error {
	return s.exec.Submit(task)
}

// Stats snapshots every registered probe: the buffer pool, the runtime,
// and each live bridge.
func (s *Streams) Stats() map[string]map[string]int64 {
	return s.registry.Snapshot()
}

// GetRegistry returns the probe registry for caller-supplied probes.
func (s *Streams) GetRegistry() api.Registry {
	return s.registry
}

// GetBufferPool returns the pool backing ReadFrom and Pipe chunks.
func (s *Streams) GetBufferPool() api.BufferPool {
	return s.pool
}

// Close tears the facade down: every adapter still held is closed, the
// epilogues of already-settled operations are waited out, and the
// notifier and executor stop. Operations still running fail as their
// endpoints close under them. Idempotent.
func (s *Streams) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rest := s.held
	s.held = nil
	s.mu.Unlock()

	var firstErr error
	for _, c := range rest {
		if err := c.Close(); err != nil {
			log.Printf("[facade] close: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.wg.Wait()
	s.notifier.Close()
	s.exec.Close()
	return firstErr
}

// Shutdown implements api.GracefulShutdown by delegating to Close().
func (s *Streams) Shutdown() error {
	return s.Close()
}

// track retains an adapter for teardown and returns its claim ticket.
// On a closed facade the adapter is closed immediately and 0 is returned.
func (s *Streams) track(c io.Closer) uint64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := c.Close(); err != nil {
			log.Printf("[facade] close: %v", err)
		}
		return 0
	}
	s.nextID++
	id := s.nextID
	s.held[id] = c
	s.mu.Unlock()
	return id
}

// claim removes one held adapter for closing. The claim and Close's drain
// are serialized under mu, so each adapter closes exactly once; a claim on
// the epilogue path also joins the WaitGroup Close waits on.
func (s *Streams) claim(id uint64) io.Closer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.held[id]
	if !ok {
		return nil
	}
	delete(s.held, id)
	s.wg.Add(1)
	return c
}

// teardown runs when an operation settles: its bridge probes leave the
// registry and its held adapters drain and close off the delivering
// goroutine. A writer sink's Close blocks on its own flusher, so closing
// inline here could deadlock when the terminal was delivered from that
// flusher.
func (s *Streams) teardown(names []string, ids []uint64) {
	for _, n := range names {
		s.registry.Unregister(n)
	}
	if len(ids) == 0 {
		return
	}
	release := func() {
		for _, id := range ids {
			c := s.claim(id)
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				log.Printf("[facade] close: %v", err)
			}
			s.wg.Done()
		}
	}
	if err := s.exec.Submit(release); err != nil {
		go release()
	}
}

func (s *Streams) register(p api.Probe) {
	if !s.cfg.EnableProbes {
		return
	}
	s.registry.Register(p)
}

func (s *Streams) probeName(kind string) string {
	return fmt.Sprintf("%s_%d", kind, s.seq.Add(1))
}
