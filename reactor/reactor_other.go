//go:build !linux

// File: reactor/reactor_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-streams/api"
)

// New reports that no readiness backend exists on this platform.
// Higher layers fall back to blocking adapters.
func New() (api.Reactor, error) {
	return nil, errors.WithMessage(api.ErrNotSupported, "no readiness reactor backend on this platform")
}
