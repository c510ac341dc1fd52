// Package pipeline implements the multi-camera processing pipeline core:
// one worker per camera turning raw frames into per-camera results, one
// aggregation worker fusing those results by frame number, and the
// orchestrator that owns the worker group's readiness barrier, intake
// validation, output retrieval, and cooperative shutdown.
//
// This package is the composition root: it imports frames, queue,
// ringbuf, config, and timeutil, but none of those packages import
// pipeline.
//
// The numerical work is pluggable. Integrators supply a FrameProcessor
// factory, an Aggregator, and an Annotator at construction; the core only
// guarantees sequencing, readiness, and shutdown of the worker graph and
// frame-number alignment of its outputs.
package pipeline
