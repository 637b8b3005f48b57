//go:build linux

// File: adapters/socket_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package adapters_test

import (
	"bytes"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-streams/adapters"
	"github.com/momentics/hioload-streams/api"
	"github.com/momentics/hioload-streams/core/concurrency"
	"github.com/momentics/hioload-streams/fake"
	"github.com/momentics/hioload-streams/reactor"
)

func newSocketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestSocketSourceReadsAvailableData(t *testing.T) {
	local, peer := newSocketPair(t)
	src, err := adapters.NewSocketSource(local, nil, 0)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	if _, err := unix.Write(peer, []byte("hello")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	buf, err := src.Read()
	if err != nil || buf == nil {
		t.Fatalf("read = (%v, %v), want data", buf, err)
	}
	if string(buf.Bytes()) != "hello" {
		t.Fatalf("payload = %q", buf.Bytes())
	}
	buf.Release()

	// Dry socket reads as would-block.
	if buf, err := src.Read(); buf != nil || err != nil {
		t.Fatalf("dry read = (%v, %v), want (nil, nil)", buf, err)
	}

	// Peer close reads as end of input.
	unix.Close(peer)
	if _, err := src.Read(); !api.EndOfInput(err) {
		t.Fatalf("read after close = %v, want io.EOF", err)
	}
}

func TestSocketSinkResumesPartialWrites(t *testing.T) {
	local, peer := newSocketPair(t)
	if err := unix.SetsockoptInt(local, unix.SOL_SOCKET, unix.SO_SNDBUF, 2048); err != nil {
		t.Fatalf("shrink sndbuf: %v", err)
	}
	if err := unix.SetNonblock(peer, true); err != nil {
		t.Fatalf("peer nonblock: %v", err)
	}
	sink, err := adapters.NewSocketSink(local)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	buf := fake.NewBuffer(payload)

	var received bytes.Buffer
	drain := func() {
		chunk := make([]byte, 64<<10)
		for {
			n, err := unix.Read(peer, chunk)
			if n > 0 {
				received.Write(chunk[:n])
			}
			if err != nil || n <= 0 {
				return
			}
		}
	}

	// Re-offering the same buffer after draining the peer must resume at
	// the consumed offset, byte for byte.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("partial write never completed")
		}
		full, err := sink.Write(buf)
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		if full {
			break
		}
		if sink.IsWritePossible() {
			t.Fatal("blocked sink still reports writable")
		}
		drain()
	}
	for received.Len() < len(payload) {
		drain()
	}
	if !bytes.Equal(received.Bytes(), payload) {
		t.Fatalf("reassembled payload diverges after %d bytes", received.Len())
	}
}

func TestWatchSocketDeliversReadiness(t *testing.T) {
	local, peer := newSocketPair(t)

	ra, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor: %v", err)
	}
	exec := concurrency.NewExecutor(1)
	d := adapters.NewReadinessDispatcher(ra, exec, 8)
	t.Cleanup(func() {
		d.Close()
		ra.Close()
		exec.Close()
	})

	src, err := adapters.NewSocketSource(local, nil, 0)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	rec := &readCallbackRecorder{}
	src.Bind(rec)
	if err := adapters.WatchSocket(d, local, src, nil); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if _, err := unix.Write(peer, []byte("x")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return rec.availableCount() >= 1 }, "readiness edge")

	buf, err := src.Read()
	if err != nil || buf == nil {
		t.Fatalf("read = (%v, %v), want data", buf, err)
	}
	if string(buf.Bytes()) != "x" {
		t.Fatalf("payload = %q", buf.Bytes())
	}
	buf.Release()
}
