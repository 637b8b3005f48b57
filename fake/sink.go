// File: fake/sink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-streams/api"
)

var _ api.WritableSink = (*Sink)(nil)

type writeOutcome struct {
	full bool
	err  error
}

// Sink is a scripted api.WritableSink. Write outcomes are consumed from
// the script one per call; an empty script means every write fully
// succeeds. Toggling writability through SetWritable drives the bound
// bridge's OnWritePossible hook.
type Sink struct {
	// Async delivers OnWritePossible from a new goroutine.
	Async bool

	mu       sync.Mutex
	cb       api.WriteCallbacks
	outcomes *queue.Queue
	writable bool

	written   []string
	discards  []string
	pauses    int
	completes int
	failures  []error
}

// NewSink returns a writable sink with an empty (always succeed) script.
func NewSink() *Sink {
	return &Sink{outcomes: queue.New(), writable: true}
}

// Bind wires the bridge's write callbacks into the sink.
func (s *Sink) Bind(cb api.WriteCallbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// QueuePartial scripts one partial-consumption outcome: the bridge must
// offer the same buffer again after the next OnWritePossible.
func (s *Sink) QueuePartial() {
	s.mu.Lock()
	s.outcomes.Add(writeOutcome{full: false})
	s.mu.Unlock()
}

// QueueFull scripts one fully-written outcome.
func (s *Sink) QueueFull() {
	s.mu.Lock()
	s.outcomes.Add(writeOutcome{full: true})
	s.mu.Unlock()
}

// QueueError scripts one failing write.
func (s *Sink) QueueError(err error) {
	s.mu.Lock()
	s.outcomes.Add(writeOutcome{err: err})
	s.mu.Unlock()
}

// SetWritable flips write readiness. A false-to-true transition invokes
// the bound OnWritePossible hook.
func (s *Sink) SetWritable(v bool) {
	s.mu.Lock()
	fire := v && !s.writable && s.cb != nil
	s.writable = v
	cb := s.cb
	s.mu.Unlock()
	if !fire {
		return
	}
	if s.Async {
		go cb.OnWritePossible()
		return
	}
	cb.OnWritePossible()
}

// FailAsync invokes the bound OnError hook, modeling a container-detected
// failure arriving outside any write.
func (s *Sink) FailAsync(err error) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb == nil {
		return
	}
	if s.Async {
		go cb.OnError(err)
		return
	}
	cb.OnError(err)
}

func (s *Sink) IsWritePossible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

func (s *Sink) Write(buf api.Buffer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, string(buf.Bytes()))
	if s.outcomes.Length() == 0 {
		return true, nil
	}
	o := s.outcomes.Remove().(writeOutcome)
	return o.full, o.err
}

func (s *Sink) WritingPaused() {
	s.mu.Lock()
	s.pauses++
	s.mu.Unlock()
}

func (s *Sink) WritingComplete() {
	s.mu.Lock()
	s.completes++
	s.mu.Unlock()
}

func (s *Sink) WritingFailed(err error) {
	s.mu.Lock()
	s.failures = append(s.failures, err)
	s.mu.Unlock()
}

func (s *Sink) DiscardData(buf api.Buffer) {
	s.mu.Lock()
	s.discards = append(s.discards, string(buf.Bytes()))
	s.mu.Unlock()
}

// Written returns every payload offered to Write, partial retries included.
func (s *Sink) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

// Discards returns the payloads handed back through DiscardData.
func (s *Sink) Discards() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.discards...)
}

func (s *Sink) Pauses() int    { s.mu.Lock(); defer s.mu.Unlock(); return s.pauses }
func (s *Sink) Completes() int { s.mu.Lock(); defer s.mu.Unlock(); return s.completes }

func (s *Sink) Failures() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.failures...)
}

var _ api.FlushableSink = (*FlushSink)(nil)

type flushOutcome struct {
	err     error
	pending bool
}

// FlushSink is a scripted api.FlushableSink. Unit processors come from
// the factory handed to NewFlushSink, keeping this package free of bridge
// imports; flush outcomes are consumed from a script, where an empty
// script means every flush succeeds and clears the pending flag.
type FlushSink struct {
	// Async delivers OnWritePossible from a new goroutine.
	Async bool

	mu          sync.Mutex
	cb          api.WriteCallbacks
	newProc     func() api.WriteProcessor
	flushScript *queue.Queue
	writable    bool
	pending     bool

	procs   int
	flushes int
	fails   []error
}

// NewFlushSink returns a writable flush sink whose CreateWriteProcessor
// delegates to factory.
func NewFlushSink(factory func() api.WriteProcessor) *FlushSink {
	return &FlushSink{
		newProc:     factory,
		flushScript: queue.New(),
		writable:    true,
	}
}

// Bind wires the flush bridge's write callbacks into the sink.
func (f *FlushSink) Bind(cb api.WriteCallbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

// QueueFlushError scripts one failing flush.
func (f *FlushSink) QueueFlushError(err error) {
	f.mu.Lock()
	f.flushScript.Add(flushOutcome{err: err})
	f.mu.Unlock()
}

// QueueFlushPending scripts a flush that succeeds but leaves staged
// output behind, so IsFlushPending keeps reporting true.
func (f *FlushSink) QueueFlushPending() {
	f.mu.Lock()
	f.flushScript.Add(flushOutcome{pending: true})
	f.mu.Unlock()
}

// SetWritable flips flush readiness. A false-to-true transition invokes
// the bound OnWritePossible hook.
func (f *FlushSink) SetWritable(v bool) {
	f.mu.Lock()
	fire := v && !f.writable && f.cb != nil
	f.writable = v
	cb := f.cb
	f.mu.Unlock()
	if !fire {
		return
	}
	if f.Async {
		go cb.OnWritePossible()
		return
	}
	cb.OnWritePossible()
}

// SetPending forces the staged-output flag, parking the next final flush.
func (f *FlushSink) SetPending(v bool) {
	f.mu.Lock()
	f.pending = v
	f.mu.Unlock()
}

func (f *FlushSink) CreateWriteProcessor() api.WriteProcessor {
	f.mu.Lock()
	f.procs++
	f.mu.Unlock()
	return f.newProc()
}

func (f *FlushSink) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	if f.flushScript.Length() == 0 {
		f.pending = false
		return nil
	}
	o := f.flushScript.Remove().(flushOutcome)
	f.pending = o.pending
	return o.err
}

func (f *FlushSink) IsWritePossible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writable
}

func (f *FlushSink) IsFlushPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *FlushSink) FlushingFailed(err error) {
	f.mu.Lock()
	f.fails = append(f.fails, err)
	f.mu.Unlock()
}

func (f *FlushSink) Procs() int   { f.mu.Lock(); defer f.mu.Unlock(); return f.procs }
func (f *FlushSink) Flushes() int { f.mu.Lock(); defer f.mu.Unlock(); return f.flushes }

func (f *FlushSink) Fails() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.fails...)
}
