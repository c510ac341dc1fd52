package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/camrig/internal/config"
	"github.com/banshee-data/camrig/internal/frames"
	"github.com/banshee-data/camrig/internal/queue"
	"github.com/banshee-data/camrig/internal/ringbuf"
	"github.com/banshee-data/camrig/internal/timeutil"
)

// Pipeline is the orchestrator for one worker group: per-camera workers,
// the aggregation worker, and the annotator. It owns the readiness
// barrier, intake validation, output retrieval, and cooperative shutdown.
//
// The fetch operations (GetNext, GetNextCtx, GetLatest,
// GetOutputForFrame, ProcessMultiFramePayload) assume a single logical
// consumer. They share the output queue and the cached latest output
// without internal arbitration; concurrent callers race.
type Pipeline struct {
	cfg       *config.PipelineConfig
	annotator Annotator
	kill      *KillFlag
	clock     timeutil.Clock

	rings           map[frames.CameraID]*ringbuf.Ring
	cameraNodes     map[frames.CameraID]*CameraNode
	aggregationNode *AggregationNode
	outQueue        *queue.Queue[frames.PipelineOutput]

	started atomic.Bool

	// latest caches the most recently drained output. Guarded by the
	// single-consumer contract, not a lock.
	latest *frames.PipelineOutput
}

// NewRings builds one raw-frame ring per configured camera, sized per
// stage. Convenience for integrators that do not bring their own capture
// layer handles.
func NewRings(cfg *config.PipelineConfig) map[frames.CameraID]*ringbuf.Ring {
	rings := make(map[frames.CameraID]*ringbuf.Ring, len(cfg.CameraStages))
	for id, stage := range cfg.CameraStages {
		rings[id] = ringbuf.New(stage.RingCapacity)
	}
	return rings
}

// New wires one camera worker per configured camera plus the aggregation
// worker and annotator, all stopped. It fails if any configured camera id
// lacks a ring handle or any required capability is missing: a nil
// capability is an incomplete integration, reported here rather than
// discovered mid-run.
func New(cfg *config.PipelineConfig, rings map[frames.CameraID]*ringbuf.Ring, kill *KillFlag, deps Deps) (*Pipeline, error) {
	if cfg == nil || len(cfg.CameraStages) == 0 {
		return nil, fmt.Errorf("pipeline requires a config with at least one camera stage")
	}
	if deps.NewProcessor == nil {
		return nil, fmt.Errorf("integration error: no frame processor factory supplied")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("integration error: no aggregation strategy supplied")
	}
	if deps.Annotator == nil {
		return nil, fmt.Errorf("integration error: no annotator supplied")
	}
	if kill == nil {
		kill = NewKillFlag()
	}

	clock := timeutil.Clock(timeutil.RealClock{})

	cameraNodes := make(map[frames.CameraID]*CameraNode, len(cfg.CameraStages))
	inputQueues := make(map[frames.CameraID]*queue.Queue[frames.CameraNodeOutput], len(cfg.CameraStages))
	for id, stage := range cfg.CameraStages {
		ring, ok := rings[id]
		if !ok || ring == nil {
			return nil, fmt.Errorf("configured camera %s has no ring buffer handle", id)
		}
		processor, err := deps.NewProcessor(stage)
		if err != nil {
			return nil, fmt.Errorf("integration error: processor for camera %s: %w", id, err)
		}
		if processor == nil {
			return nil, fmt.Errorf("integration error: processor factory returned nil for camera %s", id)
		}
		out := queue.New[frames.CameraNodeOutput]()
		inputQueues[id] = out
		cameraNodes[id] = newCameraNode(stage, ring, out, processor, kill, clock)
	}

	outQueue := queue.New[frames.PipelineOutput]()
	aggregationNode := newAggregationNode(cfg.AggregationStage, inputQueues, outQueue, deps.Aggregator, kill, clock)

	return &Pipeline{
		cfg:             cfg,
		annotator:       deps.Annotator,
		kill:            kill,
		clock:           clock,
		rings:           rings,
		cameraNodes:     cameraNodes,
		aggregationNode: aggregationNode,
		outQueue:        outQueue,
	}, nil
}

// Start launches the aggregation worker first, then every camera worker.
// Aggregation must already be draining its inputs before producers begin
// emitting, otherwise early frames sit unread while readiness reports
// true.
func (p *Pipeline) Start() {
	diagf("[Pipeline] starting aggregation worker and %d camera workers", len(p.cameraNodes))
	p.aggregationNode.Start()
	for _, node := range p.cameraNodes {
		node.Start()
	}
	p.started.Store(true)
}

// Alive reports whether every worker goroutine is still running.
func (p *Pipeline) Alive() bool {
	for _, node := range p.cameraNodes {
		if !node.Alive() {
			return false
		}
	}
	return p.aggregationNode.Alive()
}

// NodesReady reports whether every worker has signalled initialization.
func (p *Pipeline) NodesReady() bool {
	for _, node := range p.cameraNodes {
		if !node.Ready().IsSet() {
			return false
		}
	}
	return p.aggregationNode.Ready().IsSet()
}

// ReadyToIntake is the readiness barrier: true iff every worker is alive,
// every worker has signalled ready, the kill flag is unset, and Start has
// run. There is no partial-readiness state.
func (p *Pipeline) ReadyToIntake() bool {
	return p.Alive() && p.NodesReady() && !p.kill.IsSet() && p.started.Load()
}

// Err returns the first fatal worker error, if any worker has died.
func (p *Pipeline) Err() error {
	if err := p.aggregationNode.Err(); err != nil {
		return err
	}
	for _, node := range p.cameraNodes {
		if err := node.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Intake validates a payload and routes each camera's raw frame into that
// camera's ring buffer. Validation is all-or-nothing: an unconfigured
// camera id or a frame-number disagreement rejects the payload before any
// frame is routed.
func (p *Pipeline) Intake(payload *frames.MultiFramePayload) error {
	if payload == nil {
		return fmt.Errorf("intake: nil payload")
	}
	if !p.ReadyToIntake() {
		return fmt.Errorf("intake payload %s: %w", payload.PayloadID, ErrNotReady)
	}
	for id := range payload.Frames {
		if _, ok := p.cameraNodes[id]; !ok {
			return fmt.Errorf("intake payload %s: camera %s: %w", payload.PayloadID, id, ErrUnknownCamera)
		}
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	for id, frame := range payload.Frames {
		p.rings[id].Write(frame)
	}
	tracef("[Pipeline] payload %s (frame %d) routed to %d cameras",
		payload.PayloadID, payload.MultiFrameNumber, len(payload.Frames))
	return nil
}

// GetNext pops and returns the oldest queued output, or nil if the queue
// is currently empty. Never blocks.
func (p *Pipeline) GetNext() *frames.PipelineOutput {
	out, ok := p.outQueue.TryPop()
	if !ok {
		return nil
	}
	return &out
}

// GetNextCtx blocks (cooperative poll, one aggregation poll interval per
// iteration) until an output is available, the context is cancelled, or
// the kill flag is raised.
func (p *Pipeline) GetNextCtx(ctx context.Context) (*frames.PipelineOutput, error) {
	for {
		if out := p.GetNext(); out != nil {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.kill.IsSet() {
			return nil, ErrShutdown
		}
		p.clock.Sleep(p.cfg.AggregationStage.PollInterval)
	}
}

// GetLatest drains the output queue keeping only the most recently
// produced item and returns the cached latest. The cache survives empty
// queues: two calls with no new output in between return the same item.
// Returns nil if nothing has ever arrived.
func (p *Pipeline) GetLatest() *frames.PipelineOutput {
	for {
		out, ok := p.outQueue.TryPop()
		if !ok {
			return p.latest
		}
		p.latest = &out
	}
}

// GetOutputForFrame drains the queue looking for the output whose frame
// number equals target. It returns nil while the queue is exhausted and
// still strictly behind target. A drained output past target means the
// target was superseded and alignment is no longer possible: that is
// ErrTargetFrameMissed, and by then the caller's frame is gone for good.
func (p *Pipeline) GetOutputForFrame(target int64) (*frames.PipelineOutput, error) {
	for {
		out, ok := p.outQueue.TryPop()
		if !ok {
			return nil, nil
		}
		p.latest = &out
		frameNumber, err := out.MultiFrameNumber()
		if err != nil {
			return nil, fmt.Errorf("get output for frame %d: %w", target, err)
		}
		tracef("[Pipeline] drained output for frame %d while seeking %d", frameNumber, target)
		if frameNumber > target {
			return nil, fmt.Errorf("sought frame %d but queue already at %d: %w",
				target, frameNumber, ErrTargetFrameMissed)
		}
		if frameNumber == target {
			return &out, nil
		}
	}
}

// ProcessMultiFramePayload runs the full synchronous path: intake the
// payload, await the matching output, annotate, and return both the
// annotated payload and the raw output. A frame-number mismatch after the
// wait should be unreachable given FIFO ordering and is reported as a
// fatal consistency error.
func (p *Pipeline) ProcessMultiFramePayload(ctx context.Context, payload *frames.MultiFramePayload) (*frames.MultiFramePayload, *frames.PipelineOutput, error) {
	if err := p.Intake(payload); err != nil {
		return nil, nil, err
	}
	out, err := p.GetNextCtx(ctx)
	if err != nil {
		return nil, nil, err
	}
	frameNumber, err := out.MultiFrameNumber()
	if err != nil {
		return nil, nil, err
	}
	if frameNumber != payload.MultiFrameNumber {
		return nil, nil, fmt.Errorf("processed payload %s: intake frame %d but output frame %d: %w",
			payload.PayloadID, payload.MultiFrameNumber, frameNumber, frames.ErrFrameNumberMismatch)
	}
	return p.Annotate(payload, out), out, nil
}

// Annotate overlays an output onto the payload's frames. A nil output
// passes the payload through unchanged.
func (p *Pipeline) Annotate(payload *frames.MultiFramePayload, out *frames.PipelineOutput) *frames.MultiFramePayload {
	if out == nil {
		return payload
	}
	return p.annotator.Annotate(payload, out)
}

// PendingOutputs returns the number of fused outputs awaiting a consumer.
func (p *Pipeline) PendingOutputs() int {
	return p.outQueue.Len()
}

// Shutdown stops the worker group: clears the started flag, raises the
// kill flag, then joins the aggregation worker and every camera worker.
// Joins are unbounded; each worker's per-iteration kill check bounds its
// exit latency to one poll interval. Idempotent.
func (p *Pipeline) Shutdown() {
	diagf("[Pipeline] shutting down worker group")
	p.started.Store(false)
	p.kill.Set()
	p.aggregationNode.Stop()
	for _, node := range p.cameraNodes {
		node.Stop()
	}
}
