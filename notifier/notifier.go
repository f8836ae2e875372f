package notifier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/buffer"
	"github.com/opd-ai/emucam/params"
)

// CaptureState tracks the one-shot still-capture intent.
type CaptureState uint8

const (
	// CaptureIdle means no still capture is pending.
	CaptureIdle CaptureState = iota
	// CaptureRequested means the next dispatched frame triggers the
	// still-capture sequence.
	CaptureRequested
)

// String returns "idle" or "requested".
func (s CaptureState) String() string {
	if s == CaptureRequested {
		return "requested"
	}
	return "idle"
}

// Notifier dispatches frame and event notifications to a registered set
// of client callbacks. The zero value is not usable; construct with
// NewNotifier.
type Notifier struct {
	mu sync.Mutex

	cb Callbacks

	// mask mirrors the enabled-message Set in one word so the dispatch
	// path reads it without taking mu. Writers hold mu.
	mask atomic.Uint32

	recording          bool
	minFrameInterval   int64 // nanoseconds between admitted video frames
	lastFrameNanos     int64
	awaitingFirstFrame bool

	capture CaptureState

	snap params.Snapshot

	// outstanding holds delivered recording buffers in delivery order
	// until the client releases them.
	outstanding []*buffer.Buffer

	compressor StillCompressor
	metadata   MetadataBuilder
}

// NewNotifier creates a notifier with no callbacks, no enabled
// messages, and default parameters. The collaborators may be nil; a
// still capture then skips its compressed-image step as a compression
// failure.
func NewNotifier(compressor StillCompressor, metadata MetadataBuilder) *Notifier {
	logrus.WithFields(logrus.Fields{
		"function":       "NewNotifier",
		"has_compressor": compressor != nil,
		"has_metadata":   metadata != nil,
	}).Info("Creating callback notifier")

	return &Notifier{
		snap:               params.Default(),
		awaitingFirstFrame: true,
		compressor:         compressor,
		metadata:           metadata,
	}
}

// SetCallbacks replaces all four endpoints and the opaque context in
// one step. Passing the zero Callbacks clears them.
func (n *Notifier) SetCallbacks(cb Callbacks) {
	n.mu.Lock()
	n.cb = cb
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "SetCallbacks",
		"notify":         cb.Notify != nil,
		"data":           cb.Data != nil,
		"data_timestamp": cb.DataTimestamp != nil,
		"allocate":       cb.Allocate != nil,
	}).Info("Registered client callbacks")
}

// EnableMessages adds the given kinds to the enabled set.
func (n *Notifier) EnableMessages(kinds ...Kind) {
	n.mu.Lock()
	mask := Set(n.mask.Load()).With(kinds...)
	n.mask.Store(uint32(mask))
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "EnableMessages",
		"requested": NewSet(kinds...).String(),
		"enabled":   mask.String(),
	}).Debug("Enabled messages")
}

// DisableMessages removes the given kinds from the enabled set.
func (n *Notifier) DisableMessages(kinds ...Kind) {
	n.mu.Lock()
	mask := Set(n.mask.Load()).Without(kinds...)
	n.mask.Store(uint32(mask))
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "DisableMessages",
		"requested": NewSet(kinds...).String(),
		"enabled":   mask.String(),
	}).Debug("Disabled messages")
}

// IsMessageEnabled reports whether kind is currently enabled. It reads
// one atomic word and is safe from any goroutine; a concurrent toggle
// may or may not be observed.
func (n *Notifier) IsMessageEnabled(kind Kind) bool {
	return Set(n.mask.Load()).Contains(kind)
}

// EnabledMessages returns the current enabled set.
func (n *Notifier) EnabledMessages() Set {
	return Set(n.mask.Load())
}

// EnableVideoRecording starts video-frame pacing at fps frames per
// second. Pacing state resets so the next frame is always admitted.
// A non-positive fps is rejected without touching any state.
func (n *Notifier) EnableVideoRecording(fps int) error {
	if fps <= 0 {
		logrus.WithFields(logrus.Fields{
			"function": "EnableVideoRecording",
			"fps":      fps,
		}).Error("Rejecting invalid recording frame rate")
		return fmt.Errorf("%w: %d fps", ErrInvalidFrameRate, fps)
	}

	interval := int64(time.Second) / int64(fps)

	n.mu.Lock()
	n.recording = true
	n.minFrameInterval = interval
	n.lastFrameNanos = 0
	n.awaitingFirstFrame = true
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "EnableVideoRecording",
		"fps":            fps,
		"interval_nanos": interval,
	}).Info("Video recording enabled")
	return nil
}

// DisableVideoRecording stops video-frame delivery and clears pacing
// state. Buffers already delivered stay in the outstanding registry
// until the client releases them.
func (n *Notifier) DisableVideoRecording() {
	n.mu.Lock()
	n.recording = false
	n.minFrameInterval = 0
	n.lastFrameNanos = 0
	n.awaitingFirstFrame = true
	n.mu.Unlock()

	logrus.WithField("function", "DisableVideoRecording").Info("Video recording disabled")
}

// IsVideoRecordingEnabled reports whether video recording is active.
func (n *Notifier) IsVideoRecordingEnabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recording
}

// IsNewVideoFrameTime runs the pacing admission test for a frame
// captured at the given timestamp: admitted when it is the first frame
// since a pacing reset, or at least the minimum interval after the last
// admitted frame. Admission records the timestamp; check and update are
// one critical section, so concurrent callers admit at most one frame
// per interval.
func (n *Notifier) IsNewVideoFrameTime(timestampNanos int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.awaitingFirstFrame || timestampNanos-n.lastFrameNanos >= n.minFrameInterval {
		n.awaitingFirstFrame = false
		n.lastFrameNanos = timestampNanos
		return true
	}
	return false
}

// RequestStillCapture arms the one-shot capture intent: the next
// dispatched frame runs the still-capture sequence. Requesting again
// before the intent is consumed has no further effect.
func (n *Notifier) RequestStillCapture() {
	n.mu.Lock()
	prev := n.capture
	n.capture = CaptureRequested
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "RequestStillCapture",
		"previous": prev.String(),
	}).Info("Still capture requested")
}

// CaptureState returns the current capture-intent state.
func (n *Notifier) CaptureState() CaptureState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.capture
}

// consumeCaptureIntent performs the requested-to-idle transition and
// reports whether this call consumed a pending intent.
func (n *Notifier) consumeCaptureIntent() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.capture != CaptureRequested {
		return false
	}
	n.capture = CaptureIdle
	return true
}

// StoreMetadataInBuffers reports whether video frames can be delivered
// as metadata buffers: they cannot, so enabling fails. Disabling is
// accepted as a no-op since frames are already passed as real data.
func (n *Notifier) StoreMetadataInBuffers(enable bool) error {
	if enable {
		logrus.WithField("function", "StoreMetadataInBuffers").
			Warn("Rejecting metadata buffering request")
		return ErrMetadataBufferingUnsupported
	}
	return nil
}

// SetParameters stores the snapshot the still-capture path reads for
// quality, thumbnail geometry, and metadata fields. The notifier keeps
// a copy and never mutates it.
func (n *Notifier) SetParameters(snap params.Snapshot) {
	n.mu.Lock()
	n.snap = snap
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SetParameters",
		"quality":  snap.JPEGQuality,
		"preview":  fmt.Sprintf("%dx%d", snap.PreviewWidth, snap.PreviewHeight),
	}).Debug("Parameters updated")
}

// Parameters returns the snapshot currently in effect.
func (n *Notifier) Parameters() params.Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snap
}

// Cleanup resets the notification plane: enabled messages, callbacks,
// pacing, recording and capture state, and the parameter snapshot
// (JPEG quality returns to its default). The outstanding registry is
// left alone; buffers the client still holds remain its to release.
func (n *Notifier) Cleanup() {
	n.mu.Lock()
	n.mask.Store(0)
	n.cb = Callbacks{}
	n.recording = false
	n.minFrameInterval = 0
	n.lastFrameNanos = 0
	n.awaitingFirstFrame = true
	n.capture = CaptureIdle
	n.snap = params.Default()
	outstanding := len(n.outstanding)
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Cleanup",
		"outstanding": outstanding,
	}).Info("Notifier state reset")
}
