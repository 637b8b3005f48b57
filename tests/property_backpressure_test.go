// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// property_backpressure_test.go: randomized demand/chunk interleavings
// checking the backpressure invariants: delivery never exceeds demand,
// arrival order survives retries and pauses, and every releasable buffer
// is released exactly once on every path.
package tests

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/momentics/hioload-streams/adapters"
	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/core/bridge"
	"github.com/momentics/hioload-streams/fake"
	"github.com/momentics/hioload-streams/pool"
)

// collapseRuns drops consecutive repeats, folding partial-write retries
// of one buffer into a single entry.
func collapseRuns(in []string) []string {
	var out []string
	for _, s := range in {
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}

func TestPropertyDeliveryNeverExceedsDemand(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		src := fake.NewSource()
		rb := bridge.NewReadBridge(src)
		src.Bind(rb)
		col := fake.NewCollector()
		rb.Subscribe(col)
		sub := col.Subscription()

		var queued []string
		var bufs []*fake.Buffer
		requested := uint64(0)
		for step := 0; step < 400; step++ {
			switch rng.Intn(3) {
			case 0:
				payload := fmt.Sprintf("chunk-%02d-%03d", seed, len(queued))
				bufs = append(bufs, src.QueueData(payload))
				queued = append(queued, payload)
			case 1:
				n := uint64(rng.Intn(3) + 1)
				requested += n
				sub.Request(n)
			case 2:
				// Settle step: only the invariants below.
			}
			items := col.Items()
			if uint64(len(items)) > requested {
				t.Fatalf("seed %d step %d: delivered %d items on %d demand", seed, step, len(items), requested)
			}
			for j := range items {
				if items[j] != queued[j] {
					t.Fatalf("seed %d step %d: item %d = %q, want %q", seed, step, j, items[j], queued[j])
				}
			}
		}

		sub.Request(api.Unbounded)
		src.QueueEOF()
		if got := col.Completes(); got != 1 {
			t.Fatalf("seed %d: completes = %d, want 1", seed, got)
		}
		if got := len(col.Items()); got != len(queued) {
			t.Fatalf("seed %d: drained %d items, queued %d", seed, got, len(queued))
		}
		for j, b := range bufs {
			if n := b.Releases(); n != 1 {
				t.Fatalf("seed %d: buffer %d released %d times", seed, j, n)
			}
		}
	}
}

func TestPropertyWriteRetriesPreserveOrderAndRelease(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		em := fake.NewBufferEmitter()
		sink := fake.NewSink()
		wb := bridge.NewWriteBridge(sink)
		rec := fake.NewSignalRecorder()
		wb.Subscribe(rec)
		sink.Bind(wb)
		em.Subscribe(wb)

		const items = 120
		var want []string
		for i := 0; i < items; i++ {
			payload := fmt.Sprintf("item-%02d-%04d", seed, i)
			want = append(want, payload)
			buf := fake.NewStringBuffer(payload)

			for p := rng.Intn(3); p > 0; p-- {
				sink.QueuePartial()
			}
			if rng.Intn(4) == 0 {
				sink.SetWritable(false)
			}
			em.Emit(buf)
			for spins := 0; buf.Releases() == 0; spins++ {
				if spins > 8 {
					t.Fatalf("seed %d: item %d never fully written", seed, i)
				}
				sink.SetWritable(false)
				sink.SetWritable(true)
			}
			if n := buf.Releases(); n != 1 {
				t.Fatalf("seed %d: item %d released %d times", seed, i, n)
			}
		}
		em.Complete()
		if err := rec.Wait(time.Second); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if rec.Completes() != 1 || rec.Err() != nil {
			t.Fatalf("seed %d: terminal = (%d, %v), want clean completion", seed, rec.Completes(), rec.Err())
		}

		reqs := em.Requests()
		if len(reqs) != items+1 {
			t.Fatalf("seed %d: %d demand signals, want %d", seed, len(reqs), items+1)
		}
		for i, n := range reqs {
			if n != 1 {
				t.Fatalf("seed %d: request %d asked for %d items, want single in-flight", seed, i, n)
			}
		}
		if got := collapseRuns(sink.Written()); !equalStrings(got, want) {
			t.Fatalf("seed %d: write order diverged\n got %v\nwant %v", seed, got, want)
		}
	}
}

func TestPropertyCancelReleasesEveryBuffer(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		total := 5 + rng.Intn(40)
		cancelAt := 1 + rng.Intn(total)

		src := fake.NewSource()
		rb := bridge.NewReadBridge(src)
		src.Bind(rb)
		col := fake.NewCollector()
		col.RequestOnSubscribe = uint64(1 + rng.Intn(3))
		col.RequestOnNext = 1
		col.CancelAfter = cancelAt

		var bufs []*fake.Buffer
		for i := 0; i < total; i++ {
			bufs = append(bufs, src.QueueData(fmt.Sprintf("b%02d", i)))
		}
		rb.Subscribe(col)

		// Everything above is synchronous, so the cancel has already run.
		if got := len(col.Items()); got != cancelAt {
			t.Fatalf("seed %d: delivered %d items, want %d", seed, got, cancelAt)
		}
		if col.Completes() != 0 || len(col.Errs()) != 0 {
			t.Fatalf("seed %d: terminal after cancel (%d, %v)", seed, col.Completes(), col.Errs())
		}
		for i, b := range bufs {
			if n := b.Releases(); n != 1 {
				t.Fatalf("seed %d: buffer %d released %d times", seed, i, n)
			}
		}
	}
}

func TestPropertyPooledPipeBalancesAccounting(t *testing.T) {
	defer leaktest.Check(t)()

	const letters = "abcdefghijklmnopqrstuvwxyz"
	for seed := int64(0); seed < 8; seed++ {
		rng := rand.New(rand.NewSource(seed))
		payload := make([]byte, 1+rng.Intn(64*1024))
		for i := range payload {
			payload[i] = letters[rng.Intn(len(letters))]
		}
		chunk := 1 << (4 + rng.Intn(6))
		depth := 1 + rng.Intn(8)

		bufs := pool.NewBufferPool([]int{chunk}, 32)
		src := adapters.NewAsyncReaderSource(bytes.NewReader(payload), bufs, chunk, depth)
		rb := bridge.NewReadBridge(src)
		src.Bind(rb)
		col := fake.NewCollector()
		col.RequestOnSubscribe = 1
		col.RequestOnNext = 1
		rb.Subscribe(col)

		if err := col.Wait(2 * time.Second); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if col.Completes() != 1 {
			t.Fatalf("seed %d: completes = %d, errs = %v", seed, col.Completes(), col.Errs())
		}
		if got := strings.Join(col.Items(), ""); got != string(payload) {
			t.Fatalf("seed %d: payload diverged (%d bytes vs %d)", seed, len(got), len(payload))
		}
		if err := src.Close(); err != nil {
			t.Fatalf("seed %d: close: %v", seed, err)
		}

		st := bufs.Stats()
		if st.InUse != 0 {
			t.Fatalf("seed %d: %d pooled chunks still out", seed, st.InUse)
		}
		if st.TotalAlloc != st.TotalFree {
			t.Fatalf("seed %d: alloc %d != free %d", seed, st.TotalAlloc, st.TotalFree)
		}
		if st.DoubleFrees != 0 {
			t.Fatalf("seed %d: %d double frees", seed, st.DoubleFrees)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
