package emucam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/device"
	"github.com/opd-ai/emucam/jpegenc"
	"github.com/opd-ai/emucam/notifier"
	"github.com/opd-ai/emucam/params"
	"github.com/opd-ai/emucam/web"
)

// shutdownTimeout bounds how long Stop waits for the preview server.
const shutdownTimeout = 5 * time.Second

// Options contains configuration for creating a Camera.
type Options struct {
	// Params is the initial parameter snapshot.
	Params params.Snapshot

	// PreviewAddr enables the HTTP preview server on the given listen
	// address. Empty disables it.
	PreviewAddr string

	// PreviewQuality is the JPEG quality of the preview tee.
	PreviewQuality int
}

// NewOptions creates a new default Options: default parameters, preview
// server disabled.
func NewOptions() *Options {
	return &Options{
		Params:         params.Default(),
		PreviewQuality: 60,
	}
}

// Camera is an emulated camera instance. It implements device.Listener
// so a Source can drive it directly.
type Camera struct {
	// Core components
	src      device.Source
	notifier *notifier.Notifier
	preview  *web.PreviewServer

	// previewEnc encodes the preview tee; separate from the still
	// compressor so a capture never clobbers the preview.
	previewEnc     *jpegenc.Compressor
	previewQuality int

	// State
	mu      sync.Mutex
	running bool
}

// New creates a Camera reading from the given source.
//
// Parameters:
//   - src: the frame source to capture from
//   - opts: configuration, nil for defaults
//
// Returns:
//   - *Camera: the new camera instance
//   - error: any error in the configuration
func New(src device.Source, opts *Options) (*Camera, error) {
	if src == nil {
		return nil, errors.New("frame source cannot be nil")
	}
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial parameters: %w", err)
	}

	n := notifier.NewNotifier(jpegenc.NewCompressor(), newMetadataAdapter())
	n.SetParameters(opts.Params)

	c := &Camera{
		src:            src,
		notifier:       n,
		previewEnc:     jpegenc.NewCompressor(),
		previewQuality: opts.PreviewQuality,
	}
	if opts.PreviewAddr != "" {
		c.preview = web.NewPreviewServer(opts.PreviewAddr)
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"source":   src.Name(),
		"preview":  opts.PreviewAddr != "",
	}).Info("Created camera")
	return c, nil
}

// Start begins capture and, when configured, the preview server.
func (c *Camera) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return device.ErrAlreadyStarted
	}
	c.running = true
	c.mu.Unlock()

	if c.preview != nil {
		if err := c.preview.Start(); err != nil {
			c.setStopped()
			return fmt.Errorf("starting preview server: %w", err)
		}
	}

	if err := c.src.Start(c); err != nil {
		if c.preview != nil {
			c.shutdownPreview()
		}
		c.setStopped()
		return fmt.Errorf("starting %s: %w", c.src.Name(), err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"source":   c.src.Name(),
	}).Info("Camera started")
	return nil
}

// Stop ends capture and disconnects preview viewers.
func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return device.ErrNotStarted
	}
	c.running = false
	c.mu.Unlock()

	err := c.src.Stop()
	if c.preview != nil {
		c.shutdownPreview()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"source":   c.src.Name(),
	}).Info("Camera stopped")
	return err
}

// Close stops capture if it is running and resets the notification
// plane. Recording buffers the client still holds stay valid to
// release.
func (c *Camera) Close() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	if running {
		if err := c.Stop(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Close",
				"error":    err,
			}).Warn("Stopping capture during close failed")
		}
	}
	c.notifier.Cleanup()
}

// IsRunning reports whether capture is active.
func (c *Camera) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// PreviewAddr returns the preview server's bound address, or "" when
// the preview server is disabled.
func (c *Camera) PreviewAddr() string {
	if c.preview == nil {
		return ""
	}
	return c.preview.Addr()
}

func (c *Camera) setStopped() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Camera) shutdownPreview() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.preview.Shutdown(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "shutdownPreview",
			"error":    err,
		}).Warn("Preview server shutdown failed")
	}
}

// OnFrame implements device.Listener: each captured frame runs through
// callback dispatch and, when the preview server is up, the JPEG tee.
func (c *Camera) OnFrame(f device.Frame) {
	c.notifier.OnFrameAvailable(f.Data, f.TimestampNanos, c.src)

	if c.preview != nil {
		c.publishPreview(f)
	}
}

// OnCaptureError implements device.Listener.
func (c *Camera) OnCaptureError(code int32) {
	c.notifier.OnDeviceError(code)
}

// publishPreview encodes one frame for the preview server. Encoding
// failures skip the frame.
func (c *Camera) publishPreview(f device.Frame) {
	err := c.previewEnc.Compress(f.Data, f.Width, f.Height, c.previewQuality, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "publishPreview",
			"trace_id": f.TraceID,
			"error":    err,
		}).Debug("Skipping preview frame")
		return
	}

	out := make([]byte, c.previewEnc.CompressedSize())
	if err := c.previewEnc.CopyOutput(out); err != nil {
		return
	}
	c.preview.Publish(out)
}
