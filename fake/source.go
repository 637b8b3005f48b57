// File: fake/source.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"io"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-streams/api"
)

var _ api.ReadableSource = (*Source)(nil)

type readOutcome struct {
	buf api.Buffer
	err error
}

// Source is a scripted api.ReadableSource. Tests queue read outcomes and
// the source replays them one per Read call; an empty script reads as
// (nil, nil) and arms a readiness notification for the next queued item.
//
// Readiness callbacks fire synchronously by default; set Async before
// binding to deliver them from a fresh goroutine instead.
type Source struct {
	// Async delivers OnDataAvailable from a new goroutine, modeling a
	// container with its own notification thread.
	Async bool

	mu     sync.Mutex
	cb     api.ReadCallbacks
	script *queue.Queue
	armed  bool

	reads    int
	checks   int
	pauses   int
	discards int
}

func NewSource() *Source {
	return &Source{script: queue.New()}
}

// Bind wires the bridge's re-entrant callbacks into the source. Call it
// before queueing data that should trigger notifications.
func (s *Source) Bind(cb api.ReadCallbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// QueueData appends one data outcome carrying payload.
func (s *Source) QueueData(payload string) *Buffer {
	buf := NewStringBuffer(payload)
	s.queueOutcome(readOutcome{buf: buf})
	return buf
}

// QueueBuffer appends one data outcome carrying an externally built buffer.
func (s *Source) QueueBuffer(buf api.Buffer) {
	s.queueOutcome(readOutcome{buf: buf})
}

// QueueError appends a failing read outcome.
func (s *Source) QueueError(err error) {
	s.queueOutcome(readOutcome{err: err})
}

// QueueEOF appends a clean end-of-input outcome.
func (s *Source) QueueEOF() {
	s.queueOutcome(readOutcome{err: io.EOF})
}

func (s *Source) queueOutcome(o readOutcome) {
	s.mu.Lock()
	s.script.Add(o)
	cb, fire := s.disarmLocked()
	s.mu.Unlock()
	s.notify(cb, fire)
}

// CheckAvailable arms readiness and answers immediately when the script
// already holds outcomes.
func (s *Source) CheckAvailable() {
	s.mu.Lock()
	s.checks++
	s.armed = true
	var (
		cb   api.ReadCallbacks
		fire bool
	)
	if s.script.Length() > 0 {
		cb, fire = s.disarmLocked()
	}
	s.mu.Unlock()
	s.notify(cb, fire)
}

func (s *Source) Read() (api.Buffer, error) {
	s.mu.Lock()
	s.reads++
	if s.script.Length() == 0 {
		s.armed = true
		s.mu.Unlock()
		return nil, nil
	}
	o := s.script.Remove().(readOutcome)
	s.mu.Unlock()
	return o.buf, o.err
}

func (s *Source) ReadingPaused() {
	s.mu.Lock()
	s.pauses++
	s.armed = false
	s.mu.Unlock()
}

// DiscardData drops and releases every outcome still queued.
func (s *Source) DiscardData() {
	s.mu.Lock()
	s.discards++
	for s.script.Length() > 0 {
		o := s.script.Remove().(readOutcome)
		if o.buf != nil {
			o.buf.Release()
		}
	}
	s.mu.Unlock()
}

// disarmLocked consumes one armed notification. Caller holds mu.
func (s *Source) disarmLocked() (api.ReadCallbacks, bool) {
	if !s.armed || s.cb == nil {
		return nil, false
	}
	s.armed = false
	return s.cb, true
}

func (s *Source) notify(cb api.ReadCallbacks, fire bool) {
	if !fire {
		return
	}
	if s.Async {
		go cb.OnDataAvailable()
		return
	}
	cb.OnDataAvailable()
}

// FailAsync invokes the bound OnError hook, modeling a container-detected
// failure arriving outside any read.
func (s *Source) FailAsync(err error) {
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

// EndAsync invokes the bound OnAllDataRead hook.
func (s *Source) EndAsync() {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb == nil {
		return
	}
	if s.Async {
		go cb.OnAllDataRead()
		return
	}
	cb.OnAllDataRead()
}

func (s *Source) Reads() int    { s.mu.Lock(); defer s.mu.Unlock(); return s.reads }
func (s *Source) Checks() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.checks }
func (s *Source) Pauses() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.pauses }
func (s *Source) Discards() int { s.mu.Lock(); defer s.mu.Unlock(); return s.discards }

// Queued reports how many outcomes remain unread.
func (s *Source) Queued() int { s.mu.Lock(); defer s.mu.Unlock(); return s.script.Length() }
