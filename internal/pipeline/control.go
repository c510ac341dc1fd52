package pipeline

import (
	"sync"
	"sync/atomic"
)

// KillFlag is the single cooperative shutdown signal shared by every
// worker in a pipeline. It is monotonic: once set it never resets. One
// writer (whoever decides to shut down), many readers (every worker loop
// checks it once per poll iteration).
type KillFlag struct {
	flag atomic.Bool
}

// NewKillFlag returns an unset flag.
func NewKillFlag() *KillFlag {
	return &KillFlag{}
}

// Set raises the flag. Safe to call repeatedly from any goroutine.
func (k *KillFlag) Set() {
	k.flag.Store(true)
}

// IsSet reports whether the flag has been raised.
func (k *KillFlag) IsSet() bool {
	return k.flag.Load()
}

// ReadyEvent is a one-shot signal a worker sets exactly once after its
// initialization completes. The orchestrator reads it; nothing ever
// clears it.
type ReadyEvent struct {
	once sync.Once
	ch   chan struct{}
}

// NewReadyEvent returns an unset event.
func NewReadyEvent() *ReadyEvent {
	return &ReadyEvent{ch: make(chan struct{})}
}

// Set marks the event. Subsequent calls are no-ops.
func (e *ReadyEvent) Set() {
	e.once.Do(func() { close(e.ch) })
}

// IsSet reports whether the event has been set.
func (e *ReadyEvent) IsSet() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the event is set.
func (e *ReadyEvent) Done() <-chan struct{} {
	return e.ch
}
