// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for event-driven IO reactors
// used to multiplex descriptors across poll-mode backends (epoll, IOCP, io_uring, etc.)

package api

// Ops is a bitmask of readiness conditions a descriptor is watched for
// or was reported with.
type Ops uint32

const (
	// OpReadable indicates the descriptor has data to read.
	OpReadable Ops = 1 << iota
	// OpWritable indicates the descriptor accepts more output.
	OpWritable
	// OpError indicates an error condition on the descriptor.
	OpError
	// OpHangup indicates the peer closed its end.
	OpHangup
)

// Readable reports whether the mask contains OpReadable.
func (o Ops) Readable() bool { return o&OpReadable != 0 }

// Writable reports whether the mask contains OpWritable.
func (o Ops) Writable() bool { return o&OpWritable != 0 }

// Failed reports whether the mask carries an error or hangup condition.
func (o Ops) Failed() bool { return o&(OpError|OpHangup) != 0 }

// Event is one OS-level readiness notification.
type Event struct {
	FD  int // file descriptor or system handle
	Ops Ops // readiness conditions observed
}

// Reactor is the common contract for an edge-triggered readiness poller.
// Implementations dispatch I/O events regardless of the specific polling
// mechanism used.
type Reactor interface {
	// Register associates a descriptor with the poller for the given ops.
	Register(fd int, ops Ops) error

	// Modify replaces the watched ops of an already registered descriptor.
	Modify(fd int, ops Ops) error

	// Deregister removes a descriptor from the poller.
	Deregister(fd int) error

	// Poll blocks up to timeoutMs milliseconds and fills events with ready
	// notifications. timeoutMs < 0 blocks indefinitely. Returns the number
	// of events written.
	Poll(events []Event, timeoutMs int) (int, error)

	// Wakeup interrupts a concurrent Poll before its timeout elapses.
	Wakeup() error

	// Close releases the poller backend.
	Close() error
}
