// Package ringbuf implements the fixed-capacity ring buffer that carries
// raw frames from the intake path into a camera worker. It stands in for
// the capture layer's shared-memory ring at the pipeline boundary: one
// writer (the orchestrator routing a payload), one reader (the camera
// worker polling for work).
//
// Writes never block; when the reader falls behind by more than the ring
// capacity, the oldest unread frames are overwritten and counted as
// dropped.
package ringbuf

import (
	"fmt"
	"sync"

	"github.com/banshee-data/camrig/internal/frames"
)

// ReadMode selects which unread frame TryRead returns.
type ReadMode int

const (
	// ReadNext returns the oldest unread frame, preserving capture order.
	// This is the mode the synchronized pipeline requires: every frame
	// number is seen exactly once per camera.
	ReadNext ReadMode = iota

	// ReadLatest skips to the most recently written frame and marks
	// everything older as consumed. Useful for display paths that only
	// care about freshness.
	ReadLatest
)

// String returns the tuning-file name for the mode.
func (m ReadMode) String() string {
	switch m {
	case ReadNext:
		return "next"
	case ReadLatest:
		return "latest"
	default:
		return fmt.Sprintf("ReadMode(%d)", int(m))
	}
}

// ParseReadMode converts a tuning-file string into a ReadMode.
func ParseReadMode(s string) (ReadMode, error) {
	switch s {
	case "next", "":
		return ReadNext, nil
	case "latest":
		return ReadLatest, nil
	default:
		return 0, fmt.Errorf("unknown read mode %q (want \"next\" or \"latest\")", s)
	}
}

// DefaultCapacity is the ring size used when none is configured. Eight
// frames absorbs short reader stalls without hiding sustained skew.
const DefaultCapacity = 8

// Ring is a fixed-capacity single-writer single-reader frame buffer.
type Ring struct {
	mu      sync.Mutex
	slots   []*frames.RawFrame
	written uint64 // total frames ever written
	read    uint64 // total frames consumed (or skipped) by the reader
	dropped uint64 // unread frames lost to overwrite
}

// New creates a ring with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{slots: make([]*frames.RawFrame, capacity)}
}

// Capacity returns the number of slots in the ring.
func (r *Ring) Capacity() int { return len(r.slots) }

// Write stores a frame, overwriting the oldest slot if the ring is full.
// It never blocks.
func (r *Ring) Write(frame *frames.RawFrame) {
	r.mu.Lock()
	capacity := uint64(len(r.slots))
	if r.written-r.read >= capacity {
		// Reader is a full ring behind; the slot being overwritten holds
		// an unread frame.
		r.dropped++
		r.read++
	}
	r.slots[r.written%capacity] = frame
	r.written++
	r.mu.Unlock()
}

// TryRead returns an unread frame according to mode, or reports false when
// nothing unread is available. It never blocks.
func (r *Ring) TryRead(mode ReadMode) (*frames.RawFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.read == r.written {
		return nil, false
	}
	capacity := uint64(len(r.slots))
	switch mode {
	case ReadLatest:
		frame := r.slots[(r.written-1)%capacity]
		r.read = r.written
		return frame, true
	default: // ReadNext
		frame := r.slots[r.read%capacity]
		r.read++
		return frame, true
	}
}

// Unread returns the number of frames written but not yet consumed.
func (r *Ring) Unread() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.written - r.read)
}

// Dropped returns the number of unread frames lost to overwrite.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
