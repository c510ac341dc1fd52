package pipeline_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camrig/internal/centroid"
	"github.com/banshee-data/camrig/internal/config"
	"github.com/banshee-data/camrig/internal/frames"
	"github.com/banshee-data/camrig/internal/monitoring"
	"github.com/banshee-data/camrig/internal/pipeline"
	"github.com/banshee-data/camrig/internal/ringbuf"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

const frameSize = 16

var testCameras = []frames.CameraID{"cam/a", "cam/b"}

func fastTuning() *config.TuningConfig {
	interval := "100us"
	// Rings sized well past any test's burst so intake never overwrites
	// frames the camera workers have not yet drained.
	ringCapacity := 64
	return &config.TuningConfig{PollInterval: &interval, RingCapacity: &ringCapacity}
}

func centroidDeps() pipeline.Deps {
	return pipeline.Deps{
		NewProcessor: centroid.NewProcessorFactory(),
		Aggregator:   centroid.NewAggregator(),
		Annotator:    centroid.NewAnnotator(testCameras),
	}
}

func newTestPipeline(t *testing.T) (*pipeline.Pipeline, map[frames.CameraID]*ringbuf.Ring, *pipeline.KillFlag) {
	t.Helper()
	cfg, err := config.NewPipelineConfig(testCameras, fastTuning())
	require.NoError(t, err)

	rings := pipeline.NewRings(cfg)
	kill := pipeline.NewKillFlag()
	p, err := pipeline.New(cfg, rings, kill, centroidDeps())
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p, rings, kill
}

// brightFrame returns a frame whose brightest pixel moves with the frame
// number, so fused outputs are distinguishable.
func brightFrame(id frames.CameraID, n int64) *frames.RawFrame {
	frame := &frames.RawFrame{
		Metadata:      frames.FrameMetadata{CameraID: id, FrameNumber: n, CapturedAt: time.Now()},
		Width:         frameSize,
		Height:        frameSize,
		BytesPerPixel: 1,
		Pixels:        make([]byte, frameSize*frameSize),
	}
	x := int(n) % frameSize
	y := (int(n) / frameSize) % frameSize
	frame.Pixels[y*frameSize+x] = 250
	return frame
}

func fullPayload(n int64) *frames.MultiFramePayload {
	perCamera := make(map[frames.CameraID]*frames.RawFrame, len(testCameras))
	for _, id := range testCameras {
		perCamera[id] = brightFrame(id, n)
	}
	return frames.NewMultiFramePayload(n, perCamera)
}

func startAndAwaitReady(t *testing.T, p *pipeline.Pipeline) {
	t.Helper()
	p.Start()
	waitFor(t, time.Second, "pipeline ready", p.ReadyToIntake)
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPipeline_OutputsPreserveIntakeOrder(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	const n = 10
	for i := int64(0); i < n; i++ {
		require.NoError(t, p.Intake(fullPayload(i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := int64(0); i < n; i++ {
		out, err := p.GetNextCtx(ctx)
		require.NoError(t, err)
		num, err := out.MultiFrameNumber()
		require.NoError(t, err)
		require.Equal(t, i, num, "outputs reordered or duplicated")
	}
	require.Equal(t, 0, p.PendingOutputs())
}

func TestPipeline_IntakeRejectsUnknownCamera(t *testing.T) {
	p, rings, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	payload := fullPayload(0)
	payload.Frames["cam/ghost"] = brightFrame("cam/ghost", 0)

	err := p.Intake(payload)
	require.ErrorIs(t, err, pipeline.ErrUnknownCamera)

	// Rejection is all-or-nothing: no frame may have been routed.
	for id, ring := range rings {
		require.Equal(t, 0, ring.Unread(), "camera %s received a frame from a rejected payload", id)
	}
}

func TestPipeline_IntakeRejectsFrameNumberMismatch(t *testing.T) {
	p, rings, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	payload := fullPayload(3)
	payload.Frames["cam/b"] = brightFrame("cam/b", 4) // disagrees with declared 3

	err := p.Intake(payload)
	require.ErrorIs(t, err, frames.ErrFrameNumberMismatch)
	for id, ring := range rings {
		require.Equal(t, 0, ring.Unread(), "camera %s received a frame from a rejected payload", id)
	}
}

func TestPipeline_ReadinessBarrier(t *testing.T) {
	p, _, kill := newTestPipeline(t)

	require.False(t, p.ReadyToIntake(), "pipeline must not be ready before Start")
	err := p.Intake(fullPayload(0))
	require.ErrorIs(t, err, pipeline.ErrNotReady)

	startAndAwaitReady(t, p)
	require.True(t, p.NodesReady())
	require.True(t, p.Alive())

	p.Shutdown()
	require.True(t, kill.IsSet())
	require.False(t, p.ReadyToIntake(), "kill flag must drop readiness immediately")
	require.ErrorIs(t, p.Intake(fullPayload(1)), pipeline.ErrNotReady)
}

func TestPipeline_GetOutputForFrame(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, p.Intake(fullPayload(i)))
	}
	waitFor(t, 2*time.Second, "all outputs fused", func() bool { return p.PendingOutputs() == 3 })

	// Exactly once: frame 2 is found after draining 1.
	out, err := p.GetOutputForFrame(2)
	require.NoError(t, err)
	require.NotNil(t, out)
	num, err := out.MultiFrameNumber()
	require.NoError(t, err)
	require.Equal(t, int64(2), num)

	// Frame 2 is now superseded; asking again drains 3 and fails.
	_, err = p.GetOutputForFrame(2)
	require.ErrorIs(t, err, pipeline.ErrTargetFrameMissed)

	// Still strictly behind a future frame: nil result, no error.
	out, err = p.GetOutputForFrame(9)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestPipeline_GetLatestCachesAcrossEmptyQueue(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	require.Nil(t, p.GetLatest(), "nothing has ever arrived")

	require.NoError(t, p.Intake(fullPayload(0)))
	require.NoError(t, p.Intake(fullPayload(1)))
	waitFor(t, 2*time.Second, "outputs fused", func() bool { return p.PendingOutputs() == 2 })

	first := p.GetLatest()
	require.NotNil(t, first)
	num, err := first.MultiFrameNumber()
	require.NoError(t, err)
	require.Equal(t, int64(1), num, "GetLatest must keep only the newest")

	// No new output in between: identical cached item both times.
	second := p.GetLatest()
	require.Same(t, first, second)
}

func TestPipeline_StarvedCameraBlocksAggregation(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	// Frame 5 for camera A only.
	partial := frames.NewMultiFramePayload(5, map[frames.CameraID]*frames.RawFrame{
		"cam/a": brightFrame("cam/a", 5),
	})
	require.NoError(t, p.Intake(partial))

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 0, p.PendingOutputs(), "aggregation must not emit while camera B is starved")
	require.Nil(t, p.GetNext())

	// Camera B's frame 5 arrives; the frame completes.
	rest := frames.NewMultiFramePayload(5, map[frames.CameraID]*frames.RawFrame{
		"cam/b": brightFrame("cam/b", 5),
	})
	require.NoError(t, p.Intake(rest))
	waitFor(t, 2*time.Second, "fused output", func() bool { return p.PendingOutputs() == 1 })
}

func TestPipeline_ShutdownIdempotentAndBounded(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	start := time.Now()
	p.Shutdown()
	elapsed := time.Since(start)

	require.False(t, p.Alive(), "all workers must be joined after Shutdown")
	require.Less(t, elapsed, time.Second, "shutdown latency should be a small multiple of the poll interval")

	p.Shutdown() // second call must be a clean no-op
	require.False(t, p.Alive())
}

func TestPipeline_ProcessMultiFramePayload(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := fullPayload(0)
	annotated, out, err := p.ProcessMultiFramePayload(ctx, payload)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Same(t, payload, annotated, "reference annotator marks frames in place")

	num, err := out.MultiFrameNumber()
	require.NoError(t, err)
	require.Equal(t, int64(0), num)

	// The brightest pixel of frame 0 is at (0,0); the crosshair must
	// have touched it.
	require.EqualValues(t, 255, annotated.Frames["cam/a"].PixelAt(0, 0))
}

func TestPipeline_GetNextCtxRespectsContext(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	startAndAwaitReady(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.GetNextCtx(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeline_GetNextCtxUnblocksOnKill(t *testing.T) {
	p, _, kill := newTestPipeline(t)
	startAndAwaitReady(t, p)

	go func() {
		time.Sleep(10 * time.Millisecond)
		kill.Set()
	}()
	_, err := p.GetNextCtx(context.Background())
	require.ErrorIs(t, err, pipeline.ErrShutdown)
}

func TestPipeline_WorkerDeathDropsReadiness(t *testing.T) {
	cfg, err := config.NewPipelineConfig(testCameras, fastTuning())
	require.NoError(t, err)

	deps := centroidDeps()
	deps.NewProcessor = func(stage config.StageConfig) (pipeline.FrameProcessor, error) {
		return failingProcessor{}, nil
	}

	rings := pipeline.NewRings(cfg)
	p, err := pipeline.New(cfg, rings, nil, deps)
	require.NoError(t, err)
	defer p.Shutdown()

	startAndAwaitReady(t, p)
	require.NoError(t, p.Intake(fullPayload(0)))

	// The first processed frame kills camera workers; the death is
	// observable only through liveness, not as a raised error.
	waitFor(t, 2*time.Second, "worker death", func() bool { return !p.Alive() })
	require.False(t, p.ReadyToIntake())
	require.Error(t, p.Err())
	require.ErrorIs(t, p.Intake(fullPayload(1)), pipeline.ErrNotReady)
}

type failingProcessor struct{}

func (failingProcessor) ProcessFrame(frame *frames.RawFrame) (interface{}, error) {
	return nil, errors.New("integration broken on purpose")
}

func TestPipeline_ConstructionValidation(t *testing.T) {
	cfg, err := config.NewPipelineConfig(testCameras, nil)
	require.NoError(t, err)
	rings := pipeline.NewRings(cfg)

	t.Run("missing ring handle", func(t *testing.T) {
		incomplete := map[frames.CameraID]*ringbuf.Ring{"cam/a": rings["cam/a"]}
		_, err := pipeline.New(cfg, incomplete, nil, centroidDeps())
		require.Error(t, err)
	})

	t.Run("nil processor factory", func(t *testing.T) {
		deps := centroidDeps()
		deps.NewProcessor = nil
		_, err := pipeline.New(cfg, rings, nil, deps)
		require.Error(t, err)
	})

	t.Run("nil aggregator", func(t *testing.T) {
		deps := centroidDeps()
		deps.Aggregator = nil
		_, err := pipeline.New(cfg, rings, nil, deps)
		require.Error(t, err)
	})

	t.Run("nil annotator", func(t *testing.T) {
		deps := centroidDeps()
		deps.Annotator = nil
		_, err := pipeline.New(cfg, rings, nil, deps)
		require.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := pipeline.New(nil, rings, nil, centroidDeps())
		require.Error(t, err)
	})
}

func TestNewRings_SizedPerStage(t *testing.T) {
	capacity := 4
	tuning := fastTuning()
	tuning.RingCapacity = &capacity

	cfg, err := config.NewPipelineConfig(testCameras, tuning)
	require.NoError(t, err)

	rings := pipeline.NewRings(cfg)
	require.Len(t, rings, len(testCameras))
	for id, ring := range rings {
		require.Equal(t, capacity, ring.Capacity(), "ring for %s", id)
	}
}
