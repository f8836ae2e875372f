// Package device provides frame sources for the emulated camera: a
// synthetic generator, an image file watched for changes, and a V4L2
// webcam on Linux. Every source delivers frames in the NV21 layout
// described in package yuv.
package device

import (
	"errors"

	"github.com/google/uuid"
)

// Capture lifecycle errors.
var (
	// ErrAlreadyStarted indicates Start was called on a running source.
	ErrAlreadyStarted = errors.New("capture already started")

	// ErrNotStarted indicates Stop was called on an idle source.
	ErrNotStarted = errors.New("capture not started")

	// ErrBadFrameRate indicates a non-positive capture frame rate.
	ErrBadFrameRate = errors.New("invalid capture frame rate")
)

// Failure codes reported through Listener.OnCaptureError.
const (
	// ErrorUnknown is an unclassified device failure.
	ErrorUnknown int32 = 1
	// ErrorServerDied means the capture backend is gone and the source
	// will produce no more frames.
	ErrorServerDied int32 = 100
)

// Frame is one captured frame plus its capture metadata. Data holds the
// NV21 payload; it belongs to the listener once delivered.
type Frame struct {
	Seq            uint64
	TimestampNanos int64
	Width          int
	Height         int
	Data           []byte
	TraceID        uuid.UUID
}

// Listener consumes the output of a running source. Both methods are
// invoked from the source's capture goroutine.
type Listener interface {
	// OnFrame receives each captured frame.
	OnFrame(frame Frame)
	// OnCaptureError receives a failure code when capture breaks.
	OnCaptureError(code int32)
}

// Source produces frames at a fixed geometry. Start and Stop bracket a
// capture session; geometry accessors are valid at any time.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// FrameWidth returns the width of captured frames in pixels.
	FrameWidth() int
	// FrameHeight returns the height of captured frames in pixels.
	FrameHeight() int
	// FrameBufferSize returns the byte length of one captured frame.
	FrameBufferSize() int
	// Start begins capture, delivering to the listener until Stop.
	Start(listener Listener) error
	// Stop ends capture and waits for the capture goroutine to exit.
	Stop() error
}
