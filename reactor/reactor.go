// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Shared declarations for the platform backends.

package reactor

import "errors"

// ErrClosed reports use of a reactor after Close.
var ErrClosed = errors.New("reactor is closed")
