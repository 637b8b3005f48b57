// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides edge-triggered readiness polling behind the
// api.Reactor contract: an epoll backend with an eventfd wakeup channel
// on Linux, and a stub reporting api.ErrNotSupported elsewhere.
package reactor
