// Package frames defines the data model shared by every stage of the
// capture pipeline: raw per-camera frames, the synchronized multi-frame
// payload that groups them, and the per-stage output records produced as
// frames move through camera and aggregation workers.
package frames

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CameraID is a human-readable camera name like "cam/left-0" or "cam/2".
type CameraID string

// FrameMetadata describes one captured frame. Immutable after capture.
type FrameMetadata struct {
	CameraID    CameraID  // which camera produced this frame
	FrameNumber int64     // shared capture sequence number (multi-frame number)
	CapturedAt  time.Time // capture timestamp from the camera layer
	RetrievedAt time.Time // wall-clock time the frame was read out of the ring
}

// RawFrame is a single camera's image plus its metadata.
//
// Pixels is row-major with BytesPerPixel channels per pixel. The buffer is
// owned by the producer until written into a ring; readers must not mutate
// it except through an annotator working on its own intake copy.
type RawFrame struct {
	Metadata      FrameMetadata
	Width         int
	Height        int
	BytesPerPixel int
	Pixels        []byte
}

// FrameNumber returns the shared capture sequence number for this frame.
func (f *RawFrame) FrameNumber() int64 { return f.Metadata.FrameNumber }

// PixelAt returns the first channel value at (x, y). Out-of-range
// coordinates return zero.
func (f *RawFrame) PixelAt(x, y int) byte {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	idx := (y*f.Width + x) * f.BytesPerPixel
	if idx >= len(f.Pixels) {
		return 0
	}
	return f.Pixels[idx]
}

// MultiFramePayload carries one RawFrame per camera, all captured at the
// same multi-frame number.
type MultiFramePayload struct {
	PayloadID        string // unique id for tracing a payload through the pipeline
	MultiFrameNumber int64
	Frames           map[CameraID]*RawFrame
}

// NewMultiFramePayload builds a payload around the given frames and stamps
// it with a fresh payload id. It does not validate frame numbers; call
// Validate before routing.
func NewMultiFramePayload(multiFrameNumber int64, perCamera map[CameraID]*RawFrame) *MultiFramePayload {
	return &MultiFramePayload{
		PayloadID:        uuid.NewString(),
		MultiFrameNumber: multiFrameNumber,
		Frames:           perCamera,
	}
}

// CameraIDs returns the payload's camera ids in sorted order.
func (p *MultiFramePayload) CameraIDs() []CameraID {
	ids := make([]CameraID, 0, len(p.Frames))
	for id := range p.Frames {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Validate checks that every member frame carries the payload's declared
// multi-frame number. A mismatch means the capture layer handed us frames
// from different capture instants, which must never be routed.
func (p *MultiFramePayload) Validate() error {
	for id, frame := range p.Frames {
		if frame == nil {
			return fmt.Errorf("payload %s: camera %s has nil frame", p.PayloadID, id)
		}
		if frame.FrameNumber() != p.MultiFrameNumber {
			return fmt.Errorf("payload %s: camera %s frame number %d does not match multi-frame number %d: %w",
				p.PayloadID, id, frame.FrameNumber(), p.MultiFrameNumber, ErrFrameNumberMismatch)
		}
	}
	return nil
}
