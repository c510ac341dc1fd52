package pipeline

import "errors"

var (
	// ErrNotReady reports intake attempted before the readiness barrier
	// passed: workers not alive or not ready, pipeline not started, or
	// the kill flag already raised.
	ErrNotReady = errors.New("pipeline not ready to intake")

	// ErrUnknownCamera reports a payload referencing a camera id this
	// pipeline was not configured with.
	ErrUnknownCamera = errors.New("payload references unconfigured camera")

	// ErrTargetFrameMissed reports that the requested frame number was
	// already superseded in the output queue; alignment with it is no
	// longer possible.
	ErrTargetFrameMissed = errors.New("target frame missed")

	// ErrShutdown reports a blocking fetch interrupted by the kill flag.
	ErrShutdown = errors.New("pipeline shutting down")
)
