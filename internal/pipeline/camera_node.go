package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/camrig/internal/config"
	"github.com/banshee-data/camrig/internal/frames"
	"github.com/banshee-data/camrig/internal/queue"
	"github.com/banshee-data/camrig/internal/ringbuf"
	"github.com/banshee-data/camrig/internal/timeutil"
)

// CameraNode is the per-camera worker. It polls its raw-frame ring,
// runs the integrator's FrameProcessor on each frame, and pushes a timed
// CameraNodeOutput onto its output queue. The loop re-checks the shared
// kill flag every iteration, so shutdown latency is bounded by one poll
// interval.
//
// A processor error or panic is fatal to this worker only: the node
// records the error, marks itself dead, and exits. Nothing is raised to
// the orchestrator; callers observe the death through Alive.
type CameraNode struct {
	cameraID  frames.CameraID
	stage     config.StageConfig
	ring      *ringbuf.Ring
	out       *queue.Queue[frames.CameraNodeOutput]
	processor FrameProcessor
	kill      *KillFlag
	ready     *ReadyEvent
	clock     timeutil.Clock

	started atomic.Bool
	alive   atomic.Bool
	done    chan struct{}

	errMu sync.Mutex
	err   error
}

func newCameraNode(stage config.StageConfig, ring *ringbuf.Ring, out *queue.Queue[frames.CameraNodeOutput],
	processor FrameProcessor, kill *KillFlag, clock timeutil.Clock) *CameraNode {
	return &CameraNode{
		cameraID:  stage.CameraID,
		stage:     stage,
		ring:      ring,
		out:       out,
		processor: processor,
		kill:      kill,
		ready:     NewReadyEvent(),
		clock:     clock,
		done:      make(chan struct{}),
	}
}

// Start launches the worker. Subsequent calls are no-ops.
func (n *CameraNode) Start() {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	n.alive.Store(true)
	go n.run()
}

// Stop raises the shared kill flag and joins the worker. The join is
// unbounded; it relies on the loop's per-iteration kill check. Safe to
// call repeatedly, and a no-op for a never-started node.
func (n *CameraNode) Stop() {
	n.kill.Set()
	if n.started.Load() {
		<-n.done
	}
}

// Alive reports whether the worker goroutine is still running.
func (n *CameraNode) Alive() bool { return n.alive.Load() }

// Ready returns the worker's one-shot readiness event.
func (n *CameraNode) Ready() *ReadyEvent { return n.ready }

// CameraID returns the camera this node serves.
func (n *CameraNode) CameraID() frames.CameraID { return n.cameraID }

// Err returns the fatal error that terminated the worker, if any.
func (n *CameraNode) Err() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	return n.err
}

func (n *CameraNode) setErr(err error) {
	n.errMu.Lock()
	if n.err == nil {
		n.err = err
	}
	n.errMu.Unlock()
}

func (n *CameraNode) run() {
	defer func() {
		if r := recover(); r != nil {
			n.setErr(fmt.Errorf("camera %s: frame processor panic: %v", n.cameraID, r))
			opsf("[CameraNode %s] frame processor panic: %v", n.cameraID, r)
		}
		n.alive.Store(false)
		close(n.done)
	}()

	n.ready.Set()
	diagf("[CameraNode %s] ready, polling every %v (read mode %s)",
		n.cameraID, n.stage.PollInterval, n.stage.ReadMode)

	for !n.kill.IsSet() {
		retrieveStart := n.clock.Now()
		frame, ok := n.ring.TryRead(n.stage.ReadMode)
		if !ok {
			n.clock.Sleep(n.stage.PollInterval)
			continue
		}
		timeToRetrieve := n.clock.Since(retrieveStart)

		processStart := n.clock.Now()
		data, err := n.processor.ProcessFrame(frame)
		if err != nil {
			n.setErr(fmt.Errorf("camera %s: frame %d: %w", n.cameraID, frame.FrameNumber(), err))
			opsf("[CameraNode %s] frame %d processing failed, worker exiting: %v",
				n.cameraID, frame.FrameNumber(), err)
			return
		}
		timeToProcess := n.clock.Since(processStart)

		metadata := frame.Metadata
		metadata.RetrievedAt = retrieveStart.Add(timeToRetrieve)

		n.out.Push(frames.CameraNodeOutput{
			CameraID:       n.cameraID,
			Metadata:       metadata,
			TimeToRetrieve: timeToRetrieve,
			TimeToProcess:  timeToProcess,
			Data:           data,
		})
		tracef("[CameraNode %s] frame %d processed (retrieve %v, process %v)",
			n.cameraID, frame.FrameNumber(), timeToRetrieve, timeToProcess)

		if warn := n.stage.QueueWarnDepth; warn > 0 {
			if depth := n.out.Len(); depth >= warn && depth%warn == 0 {
				diagf("[CameraNode %s] output backlog at %d, aggregation not keeping up", n.cameraID, depth)
			}
		}
	}
	diagf("[CameraNode %s] kill flag observed, exiting", n.cameraID)
}
