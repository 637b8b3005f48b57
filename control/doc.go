// Package control
// Author: momentics <momentics@gmail.com>
//
// Probe registry for runtime introspection. Components export named
// counter sets; the registry aggregates them into one snapshot for the
// facade's Stats surface.
package control
