// Package centroid is the reference integration for the capture pipeline:
// a per-camera brightest-point detector, a fusion strategy that places
// each camera's detection in a shared space and averages them, and an
// annotator that marks the detection on each frame. It exists to exercise
// the pluggable pipeline surface end to end; real deployments supply
// their own strategies.
package centroid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/camrig/internal/config"
	"github.com/banshee-data/camrig/internal/frames"
	"github.com/banshee-data/camrig/internal/pipeline"
)

// Observation is the per-camera detection: the brightest pixel's position
// normalized to [0,1] in both axes, plus its brightness.
type Observation struct {
	X          float64 // normalized column, 0 = left edge
	Y          float64 // normalized row, 0 = top edge
	Brightness byte
}

// Processor finds the brightest pixel in each frame. First channel only;
// multi-channel frames are treated as if their leading channel were
// luminance.
type Processor struct {
	cameraID frames.CameraID
}

// NewProcessorFactory returns a pipeline.ProcessorFactory producing one
// Processor per camera stage.
func NewProcessorFactory() pipeline.ProcessorFactory {
	return func(stage config.StageConfig) (pipeline.FrameProcessor, error) {
		return &Processor{cameraID: stage.CameraID}, nil
	}
}

// ProcessFrame scans the frame for its brightest pixel.
func (p *Processor) ProcessFrame(frame *frames.RawFrame) (interface{}, error) {
	if frame.Width <= 0 || frame.Height <= 0 || frame.BytesPerPixel <= 0 {
		return nil, fmt.Errorf("camera %s: frame %d has invalid dimensions %dx%dx%d",
			p.cameraID, frame.FrameNumber(), frame.Width, frame.Height, frame.BytesPerPixel)
	}
	if len(frame.Pixels) < frame.Width*frame.Height*frame.BytesPerPixel {
		return nil, fmt.Errorf("camera %s: frame %d pixel buffer truncated (%d bytes)",
			p.cameraID, frame.FrameNumber(), len(frame.Pixels))
	}

	bestIdx := 0
	var best byte
	stride := frame.BytesPerPixel
	for i := 0; i < frame.Width*frame.Height; i++ {
		if v := frame.Pixels[i*stride]; v > best {
			best = v
			bestIdx = i
		}
	}
	return Observation{
		X:          float64(bestIdx%frame.Width) / float64(frame.Width),
		Y:          float64(bestIdx/frame.Width) / float64(frame.Height),
		Brightness: best,
	}, nil
}

// Aggregator averages the per-camera observations into a single fused
// point. Each observation maps to an r3 vector (x, y, brightness/255);
// the fused "centroid" key is their mean, and each camera also gets its
// own "cam/<id>" key so consumers can see the spread.
type Aggregator struct{}

// NewAggregator returns the reference fusion strategy.
func NewAggregator() *Aggregator { return &Aggregator{} }

// Aggregate fuses one Observation per camera.
func (a *Aggregator) Aggregate(outputs map[frames.CameraID]frames.CameraNodeOutput) (frames.AggregationOutput, error) {
	if len(outputs) == 0 {
		return frames.AggregationOutput{}, fmt.Errorf("aggregate called with no camera outputs")
	}
	points := make(map[string]r3.Vec, len(outputs)+1)
	var sum r3.Vec
	for id, out := range outputs {
		obs, ok := out.Data.(Observation)
		if !ok {
			return frames.AggregationOutput{}, fmt.Errorf("camera %s output carries %T, want centroid.Observation", id, out.Data)
		}
		v := r3.Vec{X: obs.X, Y: obs.Y, Z: float64(obs.Brightness) / 255}
		points["cam/"+string(id)] = v
		sum = r3.Add(sum, v)
	}
	points["centroid"] = r3.Scale(1/float64(len(outputs)), sum)
	return frames.AggregationOutput{Points: points}, nil
}

// Annotator draws a crosshair at each camera's observation. One
// sub-annotator per camera; cameras without a fused observation are left
// untouched.
type Annotator struct {
	byCamera map[frames.CameraID]*cameraAnnotator
}

type cameraAnnotator struct {
	cameraID frames.CameraID
	arm      int // crosshair arm length in pixels
}

// NewAnnotator builds one sub-annotator per camera id.
func NewAnnotator(cameraIDs []frames.CameraID) *Annotator {
	byCamera := make(map[frames.CameraID]*cameraAnnotator, len(cameraIDs))
	for _, id := range cameraIDs {
		byCamera[id] = &cameraAnnotator{cameraID: id, arm: 3}
	}
	return &Annotator{byCamera: byCamera}
}

// Annotate marks each frame in place with its camera's detection. Nil
// output passes the payload through unchanged.
func (a *Annotator) Annotate(payload *frames.MultiFramePayload, out *frames.PipelineOutput) *frames.MultiFramePayload {
	if out == nil {
		return payload
	}
	for id, frame := range payload.Frames {
		sub, ok := a.byCamera[id]
		if !ok {
			continue
		}
		cameraOut, ok := out.CameraOutputs[id]
		if !ok {
			continue
		}
		obs, ok := cameraOut.Data.(Observation)
		if !ok {
			continue
		}
		sub.drawCrosshair(frame, obs)
	}
	return payload
}

func (c *cameraAnnotator) drawCrosshair(frame *frames.RawFrame, obs Observation) {
	x := int(obs.X * float64(frame.Width))
	y := int(obs.Y * float64(frame.Height))
	for d := -c.arm; d <= c.arm; d++ {
		setPixel(frame, x+d, y)
		setPixel(frame, x, y+d)
	}
}

func setPixel(frame *frames.RawFrame, x, y int) {
	if x < 0 || y < 0 || x >= frame.Width || y >= frame.Height {
		return
	}
	idx := (y*frame.Width + x) * frame.BytesPerPixel
	if idx < len(frame.Pixels) {
		frame.Pixels[idx] = 255
	}
}
