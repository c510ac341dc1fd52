package pipeline

import (
	"github.com/banshee-data/camrig/internal/config"
	"github.com/banshee-data/camrig/internal/frames"
)

// FrameProcessor is the integrator-supplied per-frame transform run
// inside a camera worker. Implementations are owned by a single worker
// and need not be safe for concurrent use. An error return is fatal to
// that worker.
type FrameProcessor interface {
	ProcessFrame(frame *frames.RawFrame) (interface{}, error)
}

// ProcessorFactory builds one FrameProcessor per camera stage. It runs at
// pipeline construction, before any worker starts.
type ProcessorFactory func(stage config.StageConfig) (FrameProcessor, error)

// Aggregator is the integrator-supplied fusion strategy run inside the
// aggregation worker once every camera's output for a frame number has
// been collected. An error return is fatal to the aggregation worker.
type Aggregator interface {
	Aggregate(outputs map[frames.CameraID]frames.CameraNodeOutput) (frames.AggregationOutput, error)
}

// Annotator overlays aggregation results onto the original per-camera
// frames for display. Stateless from the pipeline's point of view: given
// a nil output it must return the payload unchanged, and it must never
// block.
type Annotator interface {
	Annotate(payload *frames.MultiFramePayload, output *frames.PipelineOutput) *frames.MultiFramePayload
}

// Deps bundles the pluggable capabilities an integrator must supply to
// New. Every field is required; a nil field is an integration error
// reported at construction, not a runtime fallback.
type Deps struct {
	NewProcessor ProcessorFactory
	Aggregator   Aggregator
	Annotator    Annotator
}
