// File: fake/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fake provides scripted collaborators for testing the streaming
// bridges: a release-counting Buffer, a ReadableSource and WritableSink
// driven by outcome scripts, a FlushableSink with a flush script, and
// demand-aware Emitter/Collector stream endpoints.
//
// All fakes are safe for concurrent use and record the hook calls they
// receive so tests can assert on traffic instead of timing.
package fake
