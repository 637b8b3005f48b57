// File: core/bridge/read_bridge_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge_test

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/core/bridge"
)

func newReadFixture(src *scriptedSource) (*bridge.ReadBridge, *recordingSubscriber) {
	rb := bridge.NewReadBridge(src)
	src.cb = rb
	rec := &recordingSubscriber{}
	rb.Subscribe(rec)
	return rb, rec
}

func TestReadBridgeExactDemandThenCompletion(t *testing.T) {
	ab := newTestBuffer("AB")
	cd := newTestBuffer("CD")
	src := &scriptedSource{
		script:        []readStep{{buf: ab}, {buf: cd}},
		notifyOnCheck: true,
		endOnPause:    true,
	}
	_, rec := newReadFixture(src)

	rec.sub.Request(2)

	if want := []string{"AB", "CD"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if rec.completes != 1 || len(rec.errs) != 0 {
		t.Fatalf("terminal: completes=%d errs=%v", rec.completes, rec.errs)
	}
	if src.reads != 2 {
		t.Errorf("reads = %d, want 2 (none beyond end of input)", src.reads)
	}
	if src.checks != 1 {
		t.Errorf("checks = %d, want 1", src.checks)
	}
	if ab.released() != 1 || cd.released() != 1 {
		t.Errorf("buffer releases: AB=%d CD=%d, want 1 each", ab.released(), cd.released())
	}
}

func TestReadBridgeEndOfInputDuringDrain(t *testing.T) {
	src := &scriptedSource{
		script: []readStep{
			{buf: newTestBuffer("AB")},
			{buf: newTestBuffer("CD")},
			{err: io.EOF},
		},
		notifyOnCheck: true,
	}
	_, rec := newReadFixture(src)

	rec.sub.Request(3)

	if want := []string{"AB", "CD"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if rec.completes != 1 {
		t.Fatalf("completes = %d, want 1", rec.completes)
	}
	if src.reads != 3 {
		t.Errorf("reads = %d, want 3 (none beyond the end-of-input result)", src.reads)
	}
	if src.pauses != 0 {
		t.Errorf("pauses = %d, want 0 on the end-of-input path", src.pauses)
	}
}

func TestReadBridgePausesWhenDemandExhausted(t *testing.T) {
	src := &scriptedSource{
		script:        []readStep{{buf: newTestBuffer("AB")}, {buf: newTestBuffer("CD")}},
		notifyOnCheck: true,
	}
	_, rec := newReadFixture(src)

	rec.sub.Request(1)
	if want := []string{"AB"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if src.pauses != 1 {
		t.Fatalf("pauses = %d, want 1", src.pauses)
	}

	rec.sub.Request(1)
	if want := []string{"AB", "CD"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if src.checks != 2 {
		t.Errorf("checks = %d, want 2 (one probe per demand transition)", src.checks)
	}
	if rec.completes != 0 {
		t.Error("stream completed without an end-of-input signal")
	}
}

func TestReadBridgeSkipsEmptyBuffers(t *testing.T) {
	empty := newTestBuffer("")
	x := newTestBuffer("X")
	src := &scriptedSource{
		script:        []readStep{{buf: empty}, {buf: x}},
		notifyOnCheck: true,
	}
	_, rec := newReadFixture(src)

	rec.sub.Request(1)

	if want := []string{"X"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if empty.released() != 1 {
		t.Errorf("empty buffer releases = %d, want 1", empty.released())
	}
}

func TestReadBridgeReadFailureFunnelsOnce(t *testing.T) {
	boom := fmt.Errorf("device gone")
	src := &scriptedSource{
		script:        []readStep{{buf: newTestBuffer("AB")}, {err: boom}},
		notifyOnCheck: true,
	}
	_, rec := newReadFixture(src)

	rec.sub.Request(2)

	if want := []string{"AB"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], boom) {
		t.Fatalf("errs = %v, want exactly the read failure", rec.errs)
	}
	if rec.completes != 0 {
		t.Error("completion followed an error")
	}
	if src.discards != 1 {
		t.Errorf("discards = %d, want 1 on the error path", src.discards)
	}
}

func TestReadBridgeCompletionLatchedMidRead(t *testing.T) {
	src := &scriptedSource{
		script:            []readStep{{buf: newTestBuffer("AB")}},
		notifyOnCheck:     true,
		allDataReadAtRead: 1,
	}
	_, rec := newReadFixture(src)

	rec.sub.Request(1)

	if want := []string{"AB"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if rec.completes != 1 {
		t.Fatalf("completes = %d, want 1 (latched signal replayed after the loop)", rec.completes)
	}
}

func TestReadBridgeCancelDiscardsAndSilences(t *testing.T) {
	src := &scriptedSource{
		script:        []readStep{{buf: newTestBuffer("AB")}, {buf: newTestBuffer("CD")}},
		notifyOnCheck: true,
	}
	rb := bridge.NewReadBridge(src)
	src.cb = rb
	rec := &recordingSubscriber{cancelAfter: 1}
	rb.Subscribe(rec)

	rec.sub.Request(2)

	if want := []string{"AB"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if src.discards != 1 {
		t.Fatalf("discards = %d, want 1", src.discards)
	}
	if src.reads != 1 {
		t.Errorf("reads = %d, want 1 (loop stops at cancellation)", src.reads)
	}

	// Notifications after cancel are inert.
	rb.OnDataAvailable()
	rb.OnAllDataRead()
	if src.reads != 1 || rec.completes != 0 || len(rec.errs) != 0 {
		t.Error("signals leaked past cancellation")
	}
}

func TestReadBridgeSecondSubscriberRejected(t *testing.T) {
	src := &scriptedSource{notifyOnCheck: true}
	rb := bridge.NewReadBridge(src)
	src.cb = rb
	first := &recordingSubscriber{}
	second := &recordingSubscriber{}
	rb.Subscribe(first)
	rb.Subscribe(second)

	if len(second.errs) != 1 || !errors.Is(second.errs[0], api.ErrAlreadySubscribed) {
		t.Fatalf("second subscriber errs = %v, want rejection", second.errs)
	}
	if len(first.errs) != 0 || first.completes != 0 {
		t.Error("rejection leaked to the first subscriber")
	}
}

func TestReadBridgeZeroRequestIsViolation(t *testing.T) {
	src := &scriptedSource{}
	_, rec := newReadFixture(src)

	rec.sub.Request(0)

	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], api.ErrInvalidDemand) {
		t.Fatalf("errs = %v, want invalid-demand violation", rec.errs)
	}
	if src.discards != 1 {
		t.Errorf("discards = %d, want 1 (error funnel discards input)", src.discards)
	}
}

func TestReadBridgeReentrantRequestStaysInLoop(t *testing.T) {
	src := &scriptedSource{
		script:        []readStep{{buf: newTestBuffer("AB")}, {buf: newTestBuffer("CD")}},
		notifyOnCheck: true,
	}
	rb := bridge.NewReadBridge(src)
	src.cb = rb
	rec := &recordingSubscriber{requestOnNext: 1}
	rb.Subscribe(rec)

	rec.sub.Request(1)

	if want := []string{"AB", "CD"}; !reflect.DeepEqual(rec.items, want) {
		t.Fatalf("items = %v, want %v", rec.items, want)
	}
	if src.checks != 1 {
		t.Errorf("checks = %d, want 1 (re-entrant demand folds into the running loop)", src.checks)
	}
}
