// Package config defines the immutable per-stage configuration records
// for the capture pipeline and the JSON tuning file they are built from.
package config

import (
	"fmt"
	"time"

	"github.com/banshee-data/camrig/internal/frames"
	"github.com/banshee-data/camrig/internal/ringbuf"
)

// DefaultPollInterval is the sleep between worker poll iterations. It
// bounds both shutdown latency (each worker re-checks the kill flag once
// per interval) and consumer latency (how stale a just-missed frame can
// get before the next poll).
const DefaultPollInterval = time.Millisecond

// StageConfig is the immutable configuration for one pipeline stage:
// either a single camera worker or the aggregation worker. Constructed
// once by NewPipelineConfig and never mutated.
type StageConfig struct {
	// CameraID names the camera this stage serves. Empty for the
	// aggregation stage.
	CameraID frames.CameraID

	// PollInterval is the sleep between poll iterations of the stage's
	// worker loop.
	PollInterval time.Duration

	// ReadMode selects how the camera worker consumes its ring buffer.
	// The synchronized pipeline requires ReadNext; ReadLatest is only
	// safe for display-style consumers that tolerate skipped frames.
	ReadMode ringbuf.ReadMode

	// RingCapacity is the slot count of the camera's raw-frame ring.
	RingCapacity int

	// QueueWarnDepth, when > 0, logs a diagnostic whenever the stage's
	// output queue backlog reaches this depth. A growing backlog means
	// the downstream consumer is not keeping up.
	QueueWarnDepth int
}

// PipelineConfig holds one StageConfig per camera plus one for the
// aggregation stage. Immutable after construction.
type PipelineConfig struct {
	CameraStages     map[frames.CameraID]StageConfig
	AggregationStage StageConfig
}

// CameraIDs returns the configured camera ids (unordered).
func (c *PipelineConfig) CameraIDs() []frames.CameraID {
	ids := make([]frames.CameraID, 0, len(c.CameraStages))
	for id := range c.CameraStages {
		ids = append(ids, id)
	}
	return ids
}

// NewPipelineConfig builds one StageConfig per camera id plus one for the
// aggregation stage. A nil tuning applies defaults for every knob.
func NewPipelineConfig(cameraIDs []frames.CameraID, tuning *TuningConfig) (*PipelineConfig, error) {
	if len(cameraIDs) == 0 {
		return nil, fmt.Errorf("pipeline config requires at least one camera id")
	}
	if tuning == nil {
		tuning = EmptyTuningConfig()
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}

	readMode, err := ringbuf.ParseReadMode(tuning.GetReadMode())
	if err != nil {
		return nil, err
	}

	cameraStages := make(map[frames.CameraID]StageConfig, len(cameraIDs))
	for _, id := range cameraIDs {
		if id == "" {
			return nil, fmt.Errorf("empty camera id in camera list")
		}
		if _, dup := cameraStages[id]; dup {
			return nil, fmt.Errorf("duplicate camera id %q", id)
		}
		cameraStages[id] = StageConfig{
			CameraID:       id,
			PollInterval:   tuning.GetPollInterval(),
			ReadMode:       readMode,
			RingCapacity:   tuning.GetRingCapacity(),
			QueueWarnDepth: tuning.GetQueueWarnDepth(),
		}
	}

	return &PipelineConfig{
		CameraStages: cameraStages,
		AggregationStage: StageConfig{
			PollInterval:   tuning.GetPollInterval(),
			QueueWarnDepth: tuning.GetQueueWarnDepth(),
		},
	}, nil
}
