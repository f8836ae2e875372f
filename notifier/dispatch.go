package notifier

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/buffer"
	"github.com/opd-ai/emucam/params"
)

// OnFrameAvailable runs the per-frame dispatch for a captured frame:
// the video branch (paced, registry-tracked), the preview branch
// (single-shot), and the still-capture sequence when an intent is
// pending. The branches are independent; all three may fire for one
// frame. Callbacks run on the calling goroutine, outside the lock.
func (n *Notifier) OnFrameAvailable(frame []byte, timestampNanos int64, dev Device) {
	if dev == nil {
		logrus.WithField("function", "OnFrameAvailable").
			Error("Dropping frame without device geometry")
		return
	}

	n.mu.Lock()
	cb := n.cb
	snap := n.snap
	recording := n.recording
	n.mu.Unlock()

	metricFrames.Inc()

	n.dispatchVideoFrame(frame, timestampNanos, dev, cb, recording)
	n.dispatchPreviewFrame(frame, dev, cb)
	n.dispatchStillCapture(frame, dev, cb, snap)
}

// dispatchVideoFrame delivers a recording frame through the timestamped
// data callback when the message is enabled, recording is active, and
// the pacing test admits the timestamp. The buffer joins the
// outstanding registry after the callback returns; releasing it is the
// client's job.
func (n *Notifier) dispatchVideoFrame(frame []byte, timestampNanos int64, dev Device, cb Callbacks, recording bool) {
	if !n.IsMessageEnabled(KindVideoFrame) || !recording || cb.DataTimestamp == nil {
		return
	}
	if !n.IsNewVideoFrameTime(timestampNanos) {
		return
	}

	buf := allocate(cb, dev.FrameBufferSize())
	if buf == nil {
		metricAllocFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "dispatchVideoFrame",
			"bytes":    dev.FrameBufferSize(),
		}).Error("Memory failure delivering video frame")
		return
	}

	copy(buf.Data(), frame)
	cb.DataTimestamp(timestampNanos, KindVideoFrame, buf, cb.Context)
	n.registerOutstanding(buf)
	metricNotifications.WithLabelValues(KindVideoFrame.String()).Inc()
}

// dispatchPreviewFrame delivers a preview copy through the data
// callback and releases it as soon as the callback returns.
func (n *Notifier) dispatchPreviewFrame(frame []byte, dev Device, cb Callbacks) {
	if !n.IsMessageEnabled(KindPreviewFrame) || cb.Data == nil {
		return
	}

	buf := allocate(cb, dev.FrameBufferSize())
	if buf == nil {
		metricAllocFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "dispatchPreviewFrame",
			"bytes":    dev.FrameBufferSize(),
		}).Error("Memory failure delivering preview frame")
		return
	}

	copy(buf.Data(), frame)
	cb.Data(KindPreviewFrame, buf, cb.Context)
	buf.Release()
	metricNotifications.WithLabelValues(KindPreviewFrame.String()).Inc()
}

// dispatchStillCapture consumes a pending capture intent and runs the
// shutter, raw-image-notify, and compressed-image notifications for
// this frame. Consumption does not depend on the message mask; each
// notification step checks its own kind.
func (n *Notifier) dispatchStillCapture(frame []byte, dev Device, cb Callbacks, snap params.Snapshot) {
	if !n.consumeCaptureIntent() {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "dispatchStillCapture",
		"quality":  snap.JPEGQuality,
	}).Info("Running still-capture sequence")

	if n.IsMessageEnabled(KindShutter) && cb.Notify != nil {
		cb.Notify(KindShutter, 0, 0, cb.Context)
		metricNotifications.WithLabelValues(KindShutter.String()).Inc()
	}

	// No raw payload is ever produced; raw availability is announced
	// through the notify endpoint only.
	if n.IsMessageEnabled(KindRawImageNotify) && cb.Notify != nil {
		cb.Notify(KindRawImageNotify, 0, 0, cb.Context)
		metricNotifications.WithLabelValues(KindRawImageNotify.String()).Inc()
	}

	if n.IsMessageEnabled(KindCompressedImage) && cb.Data != nil {
		n.deliverCompressedImage(frame, dev, cb, snap)
	}
}

// deliverCompressedImage compresses the frame with embedded metadata
// and delivers the result single-shot through the data callback.
// Compression, allocation, and copy-out failures are absorbed, skipping
// the delivery. The metadata handle is released on every path.
func (n *Notifier) deliverCompressedImage(frame []byte, dev Device, cb Callbacks, snap params.Snapshot) {
	if n.compressor == nil || n.metadata == nil {
		metricCompressFailures.Inc()
		logrus.WithField("function", "deliverCompressedImage").
			Error("Still compression unavailable without collaborators")
		return
	}

	meta := n.metadata.Build(snap)
	defer n.metadata.Release(meta)

	if snap.ThumbnailEnabled() {
		ok := n.metadata.AttachThumbnail(meta, frame,
			dev.FrameWidth(), dev.FrameHeight(),
			snap.ThumbnailWidth, snap.ThumbnailHeight, snap.JPEGQuality)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function":  "deliverCompressedImage",
				"thumbnail": fmt.Sprintf("%dx%d", snap.ThumbnailWidth, snap.ThumbnailHeight),
			}).Warn("Continuing capture without thumbnail")
		}
	}

	err := n.compressor.Compress(frame, dev.FrameWidth(), dev.FrameHeight(),
		snap.JPEGQuality, n.metadata.Payload(meta))
	if err != nil {
		metricCompressFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "deliverCompressedImage",
			"error":    err,
		}).Error("Compression failure for still capture")
		return
	}

	size := n.compressor.CompressedSize()
	buf := allocate(cb, size)
	if buf == nil {
		metricAllocFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "deliverCompressedImage",
			"bytes":    size,
		}).Error("Memory failure delivering compressed image")
		return
	}

	if err := n.compressor.CopyOutput(buf.Data()); err != nil {
		metricCompressFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "deliverCompressedImage",
			"error":    err,
		}).Error("Compressed image copy-out failed")
		buf.Release()
		return
	}

	cb.Data(KindCompressedImage, buf, cb.Context)
	buf.Release()
	metricNotifications.WithLabelValues(KindCompressedImage.String()).Inc()
}

// allocate requests one delivery buffer from the client allocator.
func allocate(cb Callbacks, size int) *buffer.Buffer {
	if cb.Allocate == nil {
		return nil
	}
	return cb.Allocate(size, 1, cb.Context)
}

// OnDeviceError forwards a device failure code through the notify
// endpoint when the error message is enabled and an endpoint exists.
// No notifier state changes either way.
func (n *Notifier) OnDeviceError(code int32) {
	n.mu.Lock()
	notify := n.cb.Notify
	ctx := n.cb.Context
	n.mu.Unlock()

	if !n.IsMessageEnabled(KindError) || notify == nil {
		logrus.WithFields(logrus.Fields{
			"function": "OnDeviceError",
			"code":     code,
		}).Debug("Dropping device error with no listener")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "OnDeviceError",
		"code":     code,
	}).Warn("Reporting device error")
	notify(KindError, code, 0, ctx)
	metricNotifications.WithLabelValues(KindError.String()).Inc()
}

// CompleteAutoFocus reports autofocus completion through the notify
// endpoint. The emulated device cannot fail to focus, so the result is
// always success, and the message mask is deliberately not consulted.
// A missing notify endpoint suppresses the report.
func (n *Notifier) CompleteAutoFocus() {
	n.mu.Lock()
	notify := n.cb.Notify
	ctx := n.cb.Context
	n.mu.Unlock()

	if notify == nil {
		return
	}

	logrus.WithField("function", "CompleteAutoFocus").Debug("Reporting focus completion")
	notify(KindFocus, 1, 0, ctx)
	metricNotifications.WithLabelValues(KindFocus.String()).Inc()
}
