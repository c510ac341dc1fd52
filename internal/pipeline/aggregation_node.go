package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/camrig/internal/config"
	"github.com/banshee-data/camrig/internal/frames"
	"github.com/banshee-data/camrig/internal/queue"
	"github.com/banshee-data/camrig/internal/timeutil"
)

// AggregationNode is the single worker that joins per-camera outputs by
// frame number and fuses them. For each frame it polls every camera's
// queue until all of them have yielded exactly one output, then runs the
// integrator's Aggregator and emits a PipelineOutput.
//
// If one camera never produces the awaited frame, the node blocks
// indefinitely until the kill flag is raised. It never skips a frame and
// never substitutes stale data.
//
// Emitted frame numbers are strictly increasing: per-camera queues are
// FIFO and every frame number is fused exactly once, so any regression
// observed here is a fatal consistency failure, not a recoverable state.
type AggregationNode struct {
	stage      config.StageConfig
	inputs     map[frames.CameraID]*queue.Queue[frames.CameraNodeOutput]
	out        *queue.Queue[frames.PipelineOutput]
	aggregator Aggregator
	kill       *KillFlag
	ready      *ReadyEvent
	clock      timeutil.Clock

	started atomic.Bool
	alive   atomic.Bool
	done    chan struct{}

	errMu sync.Mutex
	err   error
}

func newAggregationNode(stage config.StageConfig,
	inputs map[frames.CameraID]*queue.Queue[frames.CameraNodeOutput],
	out *queue.Queue[frames.PipelineOutput],
	aggregator Aggregator, kill *KillFlag, clock timeutil.Clock) *AggregationNode {
	return &AggregationNode{
		stage:      stage,
		inputs:     inputs,
		out:        out,
		aggregator: aggregator,
		kill:       kill,
		ready:      NewReadyEvent(),
		clock:      clock,
		done:       make(chan struct{}),
	}
}

// Start launches the worker. Subsequent calls are no-ops.
func (n *AggregationNode) Start() {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	n.alive.Store(true)
	go n.run()
}

// Stop raises the shared kill flag and joins the worker.
func (n *AggregationNode) Stop() {
	n.kill.Set()
	if n.started.Load() {
		<-n.done
	}
}

// Alive reports whether the worker goroutine is still running.
func (n *AggregationNode) Alive() bool { return n.alive.Load() }

// Ready returns the worker's one-shot readiness event.
func (n *AggregationNode) Ready() *ReadyEvent { return n.ready }

// Err returns the fatal error that terminated the worker, if any.
func (n *AggregationNode) Err() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	return n.err
}

func (n *AggregationNode) setErr(err error) {
	n.errMu.Lock()
	if n.err == nil {
		n.err = err
	}
	n.errMu.Unlock()
}

func (n *AggregationNode) run() {
	defer func() {
		if r := recover(); r != nil {
			n.setErr(fmt.Errorf("aggregation: strategy panic: %v", r))
			opsf("[AggregationNode] aggregation strategy panic: %v", r)
		}
		n.alive.Store(false)
		close(n.done)
	}()

	n.ready.Set()
	diagf("[AggregationNode] ready, joining %d camera streams", len(n.inputs))

	lastEmitted := int64(-1)
	emittedAny := false

	for !n.kill.IsSet() {
		// Collect exactly one output per camera for the frame currently
		// being assembled. Blocks (poll + sleep) until complete or killed.
		pending := make(map[frames.CameraID]frames.CameraNodeOutput, len(n.inputs))
		for len(pending) < len(n.inputs) {
			if n.kill.IsSet() {
				return
			}
			progressed := false
			for id, q := range n.inputs {
				if _, have := pending[id]; have {
					continue
				}
				if item, ok := q.TryPop(); ok {
					pending[id] = item
					progressed = true
				}
			}
			if len(pending) == len(n.inputs) {
				break
			}
			if !progressed {
				n.clock.Sleep(n.stage.PollInterval)
			}
		}

		var frameNumber int64
		first := true
		mismatch := false
		for _, out := range pending {
			if first {
				frameNumber = out.FrameNumber()
				first = false
				continue
			}
			if out.FrameNumber() != frameNumber {
				mismatch = true
				break
			}
		}
		if mismatch {
			err := fmt.Errorf("aggregation: camera outputs disagree on frame number: %w",
				frames.ErrFrameNumberMismatch)
			n.setErr(err)
			opsf("[AggregationNode] %v, worker exiting", err)
			return
		}
		if emittedAny && frameNumber <= lastEmitted {
			err := fmt.Errorf("aggregation: frame number regressed from %d to %d", lastEmitted, frameNumber)
			n.setErr(err)
			opsf("[AggregationNode] %v, worker exiting", err)
			return
		}

		aggregated, err := n.aggregator.Aggregate(pending)
		if err != nil {
			n.setErr(fmt.Errorf("aggregation: frame %d: %w", frameNumber, err))
			opsf("[AggregationNode] frame %d aggregation failed, worker exiting: %v", frameNumber, err)
			return
		}
		// Stamp the joined frame number; the strategy owns the points,
		// the node owns the alignment.
		aggregated.MultiFrameNumber = frameNumber

		n.out.Push(frames.PipelineOutput{
			CameraOutputs: pending,
			Aggregation:   aggregated,
		})
		lastEmitted = frameNumber
		emittedAny = true
		tracef("[AggregationNode] frame %d fused from %d cameras", frameNumber, len(pending))
	}
	diagf("[AggregationNode] kill flag observed, exiting")
}
