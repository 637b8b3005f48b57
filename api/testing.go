// Package api
// Author: momentics
//
// Mock/testing utilities for the collaborator contracts; extendable for new interfaces.

package api

// MockSource is a test and mock-friendly implementation of ReadableSource.
// Unset funcs fall back to inert defaults so tests only wire what they probe.
type MockSource struct {
	CheckAvailableFunc func()
	ReadFunc           func() (Buffer, error)
	ReadingPausedFunc  func()
	DiscardDataFunc    func()
}

func (m *MockSource) CheckAvailable() {
	if m.CheckAvailableFunc != nil {
		m.CheckAvailableFunc()
	}
}

func (m *MockSource) Read() (Buffer, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc()
	}
	return nil, nil
}

func (m *MockSource) ReadingPaused() {
	if m.ReadingPausedFunc != nil {
		m.ReadingPausedFunc()
	}
}

func (m *MockSource) DiscardData() {
	if m.DiscardDataFunc != nil {
		m.DiscardDataFunc()
	}
}

// MockSink is a test and mock-friendly implementation of WritableSink.
type MockSink struct {
	IsWritePossibleFunc func() bool
	WriteFunc           func(Buffer) (bool, error)
	WritingPausedFunc   func()
	WritingCompleteFunc func()
	WritingFailedFunc   func(error)
	DiscardDataFunc     func(Buffer)
}

func (m *MockSink) IsWritePossible() bool {
	if m.IsWritePossibleFunc != nil {
		return m.IsWritePossibleFunc()
	}
	return true
}

func (m *MockSink) Write(buf Buffer) (bool, error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(buf)
	}
	return true, nil
}

func (m *MockSink) WritingPaused() {
	if m.WritingPausedFunc != nil {
		m.WritingPausedFunc()
	}
}

func (m *MockSink) WritingComplete() {
	if m.WritingCompleteFunc != nil {
		m.WritingCompleteFunc()
	}
}

func (m *MockSink) WritingFailed(err error) {
	if m.WritingFailedFunc != nil {
		m.WritingFailedFunc(err)
	}
}

func (m *MockSink) DiscardData(buf Buffer) {
	if m.DiscardDataFunc != nil {
		m.DiscardDataFunc(buf)
	}
}

// MockFlushSink is a test and mock-friendly implementation of FlushableSink.
type MockFlushSink struct {
	CreateWriteProcessorFunc func() WriteProcessor
	FlushFunc                func() error
	IsWritePossibleFunc      func() bool
	IsFlushPendingFunc       func() bool
	FlushingFailedFunc       func(error)
}

func (m *MockFlushSink) CreateWriteProcessor() WriteProcessor {
	return m.CreateWriteProcessorFunc()
}

func (m *MockFlushSink) Flush() error {
	if m.FlushFunc != nil {
		return m.FlushFunc()
	}
	return nil
}

func (m *MockFlushSink) IsWritePossible() bool {
	if m.IsWritePossibleFunc != nil {
		return m.IsWritePossibleFunc()
	}
	return true
}

func (m *MockFlushSink) IsFlushPending() bool {
	if m.IsFlushPendingFunc != nil {
		return m.IsFlushPendingFunc()
	}
	return false
}

func (m *MockFlushSink) FlushingFailed(err error) {
	if m.FlushingFailedFunc != nil {
		m.FlushingFailedFunc(err)
	}
}

// Extend with mocks for additional contracts as the architecture evolves.
