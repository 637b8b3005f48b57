// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// reentrancy_test.go: synchronous re-entrant callbacks, hooks invoked
// from inside hooks. Bridges must absorb nested Request, Cancel, and
// readiness notifications without recursion blowups, duplicate delivery,
// or lost terminals.
package tests

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/core/bridge"
	"github.com/momentics/hioload-streams/fake"
)

// cancelOnSubscribe cancels the subscription before Subscribe returns.
type cancelOnSubscribe struct {
	items     int
	terminals int
}

func (c *cancelOnSubscribe) OnSubscribe(s api.Subscription) { s.Cancel() }
func (c *cancelOnSubscribe) OnNext(buf api.Buffer)          { c.items++; buf.Release() }
func (c *cancelOnSubscribe) OnError(error)                  { c.terminals++ }
func (c *cancelOnSubscribe) OnComplete()                    { c.terminals++ }

func TestRequestInsideOnNextContinuesDrain(t *testing.T) {
	src := fake.NewSource()
	rb := bridge.NewReadBridge(src)
	src.Bind(rb)

	const total = 50
	want := make([]string, total)
	for i := range want {
		want[i] = fmt.Sprintf("row-%02d", i)
		src.QueueData(want[i])
	}
	src.QueueEOF()

	col := fake.NewCollector()
	col.RequestOnSubscribe = 1
	col.RequestOnNext = 1
	// The whole drain runs inside Subscribe: every OnNext re-enters
	// Request while the read loop is live.
	rb.Subscribe(col)

	require.NoError(t, col.Wait(time.Second))
	assert.Equal(t, want, col.Items())
	assert.Equal(t, 1, col.Completes())
	assert.Empty(t, col.Errs())
}

func TestCancelInsideOnSubscribeSuppressesDelivery(t *testing.T) {
	src := fake.NewSource()
	rb := bridge.NewReadBridge(src)
	src.Bind(rb)

	bufs := make([]*fake.Buffer, 5)
	for i := range bufs {
		bufs[i] = src.QueueData(fmt.Sprintf("dead-%d", i))
	}

	sub := &cancelOnSubscribe{}
	rb.Subscribe(sub)

	assert.Zero(t, sub.items, "delivery after cancel-in-OnSubscribe")
	assert.Zero(t, sub.terminals, "terminal after cancel is a contract break")
	for i, b := range bufs {
		assert.Equal(t, 1, b.Releases(), "buffer %d", i)
	}
	assert.Equal(t, 1, src.Discards())
}

func TestReadinessReentryInsideWriteHook(t *testing.T) {
	// The sink re-enters the readiness hook from inside Write. The nested
	// OnWritePossible lands while the bridge is mid-write and must be
	// absorbed, not acted on.
	var written []string
	var completes, discards int
	sink := &api.MockSink{
		WritingCompleteFunc: func() { completes++ },
		DiscardDataFunc:     func(api.Buffer) { discards++ },
	}
	wb := bridge.NewWriteBridge(sink)
	sink.WriteFunc = func(buf api.Buffer) (bool, error) {
		written = append(written, string(buf.Bytes()))
		wb.OnWritePossible()
		return true, nil
	}
	rec := fake.NewSignalRecorder()
	wb.Subscribe(rec)

	em := fake.NewBufferEmitter()
	em.Subscribe(wb)

	const total = 25
	want := make([]string, total)
	bufs := make([]*fake.Buffer, total)
	for i := range want {
		want[i] = fmt.Sprintf("w-%02d", i)
		bufs[i] = fake.NewStringBuffer(want[i])
		em.Emit(bufs[i])
	}
	em.Complete()

	require.NoError(t, rec.Wait(time.Second))
	assert.Equal(t, 1, rec.Completes())
	assert.Equal(t, want, written, "nested readiness must not duplicate writes")
	assert.Equal(t, 1, completes)
	assert.Zero(t, discards)
	for i, b := range bufs {
		assert.Equal(t, 1, b.Releases(), "buffer %d", i)
	}
}

func TestSynchronousRedeliveryDrainsWholeBacklog(t *testing.T) {
	em := fake.NewBufferEmitter()
	const total = 5000
	for i := 0; i < total; i++ {
		em.Emit(fake.NewStringBuffer(fmt.Sprintf("n-%04d", i)))
	}
	em.Complete()

	sink := fake.NewSink()
	wb := bridge.NewWriteBridge(sink)
	rec := fake.NewSignalRecorder()
	wb.Subscribe(rec)
	sink.Bind(wb)

	// The backlog was scripted up front, so this single call replays the
	// full write/request cascade; the emitter's trampoline keeps it
	// iterative instead of five thousand frames deep.
	em.Subscribe(wb)

	require.NoError(t, rec.Wait(time.Second))
	assert.Equal(t, 1, rec.Completes())
	got := sink.Written()
	require.Len(t, got, total)
	for i, payload := range got {
		if payload != fmt.Sprintf("n-%04d", i) {
			t.Fatalf("write %d = %q, out of order", i, payload)
		}
	}
}

func TestUnitChainRunsInsideSingleEmit(t *testing.T) {
	staging := fake.NewSink()
	fsink := fake.NewFlushSink(func() api.WriteProcessor { return bridge.NewWriteBridge(staging) })
	fb := bridge.NewFlushBridge(fsink)
	rec := fake.NewSignalRecorder()
	fb.Subscribe(rec)
	fsink.Bind(fb)

	units := fake.NewEmitter[api.Publisher[api.Buffer]]()
	units.Subscribe(fb)

	first := fake.NewBufferEmitter()
	first.Emit(fake.NewStringBuffer("u1-a"))
	first.Emit(fake.NewStringBuffer("u1-b"))
	first.Complete()

	// Delivering the unit runs its entire chain before Emit returns:
	// processor creation, both writes, and the boundary flush.
	units.Emit(first)
	assert.Equal(t, []string{"u1-a", "u1-b"}, staging.Written())
	assert.Equal(t, 1, fsink.Flushes())

	second := fake.NewBufferEmitter()
	second.Emit(fake.NewStringBuffer("u2-a"))
	second.Complete()
	units.Emit(second)
	units.Complete()

	require.NoError(t, rec.Wait(time.Second))
	assert.Equal(t, 1, rec.Completes())
	assert.Equal(t, []string{"u1-a", "u1-b", "u2-a"}, staging.Written())
	assert.Equal(t, 2, fsink.Flushes())
	assert.Equal(t, 2, fsink.Procs())
}
