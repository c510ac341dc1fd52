package frames

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrFrameNumberMismatch reports frames or stage outputs that disagree on
// the multi-frame number they belong to. This is a consistency violation,
// never silently resolved.
var ErrFrameNumberMismatch = errors.New("frame number mismatch")

// CameraNodeOutput is the per-camera, per-frame result emitted by a camera
// worker: the source frame's metadata, timing instrumentation, and the
// opaque result of the integrator's frame processor.
type CameraNodeOutput struct {
	CameraID CameraID
	Metadata FrameMetadata

	// TimeToRetrieve is how long the worker spent reading the frame out
	// of its ring buffer; TimeToProcess how long the processor ran. Both
	// are measured at nanosecond resolution.
	TimeToRetrieve time.Duration
	TimeToProcess  time.Duration

	// Data is whatever the integrator's FrameProcessor returned. The
	// aggregation strategy downcasts it; the core never inspects it.
	Data interface{}
}

// FrameNumber returns the multi-frame number of the source frame.
func (o *CameraNodeOutput) FrameNumber() int64 { return o.Metadata.FrameNumber }

// AggregationOutput is the fused result for one multi-frame number: a
// mapping from owner-defined keys to 3-D points. The key set belongs to
// the aggregation strategy and is not validated by the core.
type AggregationOutput struct {
	MultiFrameNumber int64
	Points           map[string]r3.Vec
}

// PipelineOutput pairs every camera's output for one frame with the fused
// aggregation result.
type PipelineOutput struct {
	CameraOutputs map[CameraID]CameraNodeOutput
	Aggregation   AggregationOutput
}

// MultiFrameNumber recomputes the output's frame number from its member
// camera outputs and verifies they all agree with each other and with the
// aggregation result. Disagreement is fatal to the pipeline that produced
// it.
func (o *PipelineOutput) MultiFrameNumber() (int64, error) {
	if len(o.CameraOutputs) == 0 {
		return 0, errors.New("pipeline output has no camera outputs")
	}
	var frameNumber int64
	first := true
	for id, out := range o.CameraOutputs {
		if first {
			frameNumber = out.FrameNumber()
			first = false
			continue
		}
		if out.FrameNumber() != frameNumber {
			return 0, fmt.Errorf("camera %s reports frame %d, others report %d: %w",
				id, out.FrameNumber(), frameNumber, ErrFrameNumberMismatch)
		}
	}
	if o.Aggregation.MultiFrameNumber != frameNumber {
		return 0, fmt.Errorf("aggregation reports frame %d, cameras report %d: %w",
			o.Aggregation.MultiFrameNumber, frameNumber, ErrFrameNumberMismatch)
	}
	return frameNumber, nil
}
