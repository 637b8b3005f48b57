// File: core/bridge/support_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deterministic doubles shared by the bridge tests. Everything here is
// synchronous and single-goroutine: each double records the hook calls it
// receives and lets the test drive the machines by hand.

package bridge_test

import (
	"sync/atomic"

	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/core/bridge"
)

// testBuffer counts releases; slices share the parent's counter.
type testBuffer struct {
	data     []byte
	releases *int32
}

func newTestBuffer(s string) *testBuffer {
	return &testBuffer{data: []byte(s), releases: new(int32)}
}

func (b *testBuffer) Bytes() []byte { return b.data }

func (b *testBuffer) Slice(from, to int) api.Buffer {
	return &testBuffer{data: b.data[from:to], releases: b.releases}
}

func (b *testBuffer) Release()     { atomic.AddInt32(b.releases, 1) }
func (b *testBuffer) Copy() []byte { return append([]byte(nil), b.data...) }

func (b *testBuffer) released() int { return int(atomic.LoadInt32(b.releases)) }

// recordingSubscriber consumes buffers, releasing each one on arrival.
type recordingSubscriber struct {
	sub       api.Subscription
	items     []string
	errs      []error
	completes int

	requestOnSubscribe uint64
	requestOnNext      uint64
	cancelAfter        int
}

func (r *recordingSubscriber) OnSubscribe(s api.Subscription) {
	r.sub = s
	if r.requestOnSubscribe > 0 {
		s.Request(r.requestOnSubscribe)
	}
}

func (r *recordingSubscriber) OnNext(buf api.Buffer) {
	r.items = append(r.items, string(buf.Bytes()))
	buf.Release()
	if r.cancelAfter > 0 && len(r.items) == r.cancelAfter {
		r.sub.Cancel()
		return
	}
	if r.requestOnNext > 0 {
		r.sub.Request(r.requestOnNext)
	}
}

func (r *recordingSubscriber) OnError(err error) { r.errs = append(r.errs, err) }
func (r *recordingSubscriber) OnComplete()       { r.completes++ }

// signalRecorder observes a completion side.
type signalRecorder struct {
	handle    api.CompletionHandle
	completes int
	errs      []error
}

func (r *signalRecorder) OnSubscribe(h api.CompletionHandle) { r.handle = h }
func (r *signalRecorder) OnComplete()                        { r.completes++ }
func (r *signalRecorder) OnError(err error)                  { r.errs = append(r.errs, err) }

// manualSub records demand and cancellation flowing upstream.
type manualSub struct {
	requests []uint64
	cancels  int
}

func (m *manualSub) Request(n uint64) { m.requests = append(m.requests, n) }
func (m *manualSub) Cancel()          { m.cancels++ }

// manualPublisher captures its subscriber so the test can push signals by
// hand. Used both as a buffer source and as a nested flush unit.
type manualPublisher struct {
	ms         manualSub
	sub        api.Subscriber[api.Buffer]
	subscribes int
}

func (p *manualPublisher) Subscribe(s api.Subscriber[api.Buffer]) {
	p.subscribes++
	p.sub = s
	s.OnSubscribe(&p.ms)
}

type readStep struct {
	buf api.Buffer
	err error
}

// scriptedSource replays a fixed read script. cb must point at the bridge
// under test before the first hook fires.
type scriptedSource struct {
	cb     api.ReadCallbacks
	script []readStep
	pos    int

	reads    int
	checks   int
	pauses   int
	discards int

	// notifyOnCheck makes CheckAvailable answer OnDataAvailable
	// synchronously, the way an in-thread container does.
	notifyOnCheck bool
	// endOnPause makes ReadingPaused report OnAllDataRead once the
	// script is exhausted, the way a container that tracks its own
	// input end does.
	endOnPause bool
	// allDataReadAtRead fires OnAllDataRead from inside the Nth read
	// call (1-based), modeling a container notification that lands
	// mid-loop. Zero disables it.
	allDataReadAtRead int
}

func (s *scriptedSource) CheckAvailable() {
	s.checks++
	if s.notifyOnCheck && s.cb != nil {
		s.cb.OnDataAvailable()
	}
}

func (s *scriptedSource) Read() (api.Buffer, error) {
	s.reads++
	if s.allDataReadAtRead == s.reads && s.cb != nil {
		s.cb.OnAllDataRead()
	}
	if s.pos >= len(s.script) {
		return nil, nil
	}
	step := s.script[s.pos]
	s.pos++
	return step.buf, step.err
}

func (s *scriptedSource) ReadingPaused() {
	s.pauses++
	if s.endOnPause && s.pos >= len(s.script) && s.cb != nil {
		s.cb.OnAllDataRead()
	}
}

func (s *scriptedSource) DiscardData() { s.discards++ }

type writeResult struct {
	full bool
	err  error
}

// collectSink records write traffic. Write results are consumed from the
// script one per call; an empty script means every write fully succeeds.
// With saturates set, a partial result also flips the sink unwritable,
// the way a staging sink that just refused a buffer reports itself.
type collectSink struct {
	writable  bool
	saturates bool
	results   []writeResult

	written   []string
	discards  []string
	pauses    int
	completes int
	failures  []error
}

func (s *collectSink) IsWritePossible() bool { return s.writable }

func (s *collectSink) Write(buf api.Buffer) (bool, error) {
	s.written = append(s.written, string(buf.Bytes()))
	if len(s.results) == 0 {
		return true, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	if !r.full && r.err == nil && s.saturates {
		s.writable = false
	}
	return r.full, r.err
}

func (s *collectSink) WritingPaused()          { s.pauses++ }
func (s *collectSink) WritingComplete()        { s.completes++ }
func (s *collectSink) WritingFailed(err error) { s.failures = append(s.failures, err) }

func (s *collectSink) DiscardData(buf api.Buffer) {
	s.discards = append(s.discards, string(buf.Bytes()))
}

// scriptedFlushSink hands out real write bridges over a shared inner sink
// and records flush traffic.
type scriptedFlushSink struct {
	inner *collectSink

	procs        []api.WriteProcessor
	flushes      int
	flushErrs    []error
	flushPending bool
	flushFails   []error

	// flushHook runs inside Flush, standing in for a readiness callback
	// that lands while the flush call is still on the stack.
	flushHook func()
}

func (s *scriptedFlushSink) CreateWriteProcessor() api.WriteProcessor {
	wp := bridge.NewWriteBridge(s.inner)
	s.procs = append(s.procs, wp)
	return wp
}

func (s *scriptedFlushSink) Flush() error {
	s.flushes++
	if s.flushHook != nil {
		s.flushHook()
	}
	if len(s.flushErrs) > 0 {
		err := s.flushErrs[0]
		s.flushErrs = s.flushErrs[1:]
		return err
	}
	return nil
}

func (s *scriptedFlushSink) IsWritePossible() bool { return s.inner.writable }
func (s *scriptedFlushSink) IsFlushPending() bool  { return s.flushPending }

func (s *scriptedFlushSink) FlushingFailed(err error) {
	s.flushFails = append(s.flushFails, err)
}
