// File: core/bridge/completion.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CompletionSignal is the single-fire outcome notifier behind every write
// operation. It is decoupled from the producing machine's own lifecycle:
// the machine publishes into the signal whenever it terminates, and the
// signal latches the outcome until the single observer attaches.

package bridge

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

type sigState int32

const (
	sigUnsubscribed sigState = iota
	sigSubscribing
	sigSubscribed
	sigCompleted
)

// CompletionSignal publishes the terminal outcome of one operation to a
// single observer. Terminal publications before the observer attaches are
// latched and replayed on attach; an error publication wins over a
// completion when both are latched. Observer cancellation before a
// terminal signal runs the owner-supplied hook exactly once and silences
// every later publication.
type CompletionSignal struct {
	state    cell[sigState]
	err      errSlot
	done     atomic.Bool
	observer api.CompletionObserver
	onCancel func()
}

// NewCompletionSignal creates a signal owned by one bridge. onCancel may
// be nil; otherwise it runs at most once when the observer abandons the
// operation before a terminal signal.
func NewCompletionSignal(onCancel func()) *CompletionSignal {
	return &CompletionSignal{onCancel: onCancel}
}

// Subscribe attaches the single observer. A second Subscribe is rejected
// through the late observer's OnError after an inert handle.
func (s *CompletionSignal) Subscribe(obs api.CompletionObserver) {
	if !s.state.cas(sigUnsubscribed, sigSubscribing) {
		obs.OnSubscribe(inertHandle{})
		obs.OnError(errors.WithMessage(api.ErrAlreadySubscribed, "completion signal supports one observer"))
		return
	}
	s.observer = obs
	obs.OnSubscribe(signalHandle{s: s})
	// The CAS fails when the observer cancelled from inside OnSubscribe;
	// nothing may be delivered then.
	if s.state.cas(sigSubscribing, sigSubscribed) {
		s.replay()
	}
}

// PublishComplete reports success. Dropped after a terminal delivery or
// cancellation.
func (s *CompletionSignal) PublishComplete() {
	s.done.Store(true)
	s.replay()
}

// PublishError reports failure. Only the first terminal publication wins;
// later ones are dropped.
func (s *CompletionSignal) PublishError(err error) {
	s.err.set(err)
	s.replay()
}

// replay delivers a latched outcome once the observer is attached. The
// CAS into sigCompleted picks exactly one delivering goroutine.
func (s *CompletionSignal) replay() {
	for {
		if s.state.load() != sigSubscribed {
			return
		}
		if err := s.err.get(); err != nil {
			if s.state.cas(sigSubscribed, sigCompleted) {
				s.observer.OnError(err)
				return
			}
			continue
		}
		if !s.done.Load() {
			return
		}
		if s.state.cas(sigSubscribed, sigCompleted) {
			s.observer.OnComplete()
			return
		}
	}
}

type signalHandle struct{ s *CompletionSignal }

// Cancel abandons interest in the outcome. The state CAS admits exactly
// one winner, so the owner hook cannot run twice and a racing terminal
// publication either beats the cancel or is dropped.
func (h signalHandle) Cancel() {
	s := h.s
	for {
		st := s.state.load()
		if st == sigCompleted {
			return
		}
		if s.state.cas(st, sigCompleted) {
			if s.onCancel != nil {
				s.onCancel()
			}
			return
		}
	}
}
