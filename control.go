package emucam

import (
	"fmt"

	"github.com/opd-ai/emucam/buffer"
	"github.com/opd-ai/emucam/exif"
	"github.com/opd-ai/emucam/notifier"
	"github.com/opd-ai/emucam/params"
)

// metadataAdapter adapts the EXIF builder to the dispatcher's metadata
// contract. This keeps package exif free of dispatcher types.
type metadataAdapter struct {
	builder *exif.Builder
}

func newMetadataAdapter() *metadataAdapter {
	return &metadataAdapter{builder: exif.NewBuilder()}
}

// Build implements notifier.MetadataBuilder.
func (a *metadataAdapter) Build(snap params.Snapshot) notifier.MetadataHandle {
	return a.builder.Build(snap)
}

// AttachThumbnail implements notifier.MetadataBuilder.
func (a *metadataAdapter) AttachThumbnail(h notifier.MetadataHandle, raw []byte, srcWidth, srcHeight, thumbWidth, thumbHeight, quality int) bool {
	d, ok := h.(*exif.Data)
	if !ok {
		return false
	}
	return a.builder.AttachThumbnail(d, raw, srcWidth, srcHeight, thumbWidth, thumbHeight, quality)
}

// Payload implements notifier.MetadataBuilder.
func (a *metadataAdapter) Payload(h notifier.MetadataHandle) []byte {
	d, ok := h.(*exif.Data)
	if !ok {
		return nil
	}
	return d.Payload()
}

// Release implements notifier.MetadataBuilder.
func (a *metadataAdapter) Release(h notifier.MetadataHandle) {
	if d, ok := h.(*exif.Data); ok {
		a.builder.Release(d)
	}
}

// SetCallbacks registers the client's callback endpoints and opaque
// context. The zero Callbacks clears them.
func (c *Camera) SetCallbacks(cb notifier.Callbacks) {
	c.notifier.SetCallbacks(cb)
}

// EnableMessages adds the given kinds to the enabled set.
func (c *Camera) EnableMessages(kinds ...notifier.Kind) {
	c.notifier.EnableMessages(kinds...)
}

// DisableMessages removes the given kinds from the enabled set.
func (c *Camera) DisableMessages(kinds ...notifier.Kind) {
	c.notifier.DisableMessages(kinds...)
}

// IsMessageEnabled reports whether the given kind is enabled.
func (c *Camera) IsMessageEnabled(kind notifier.Kind) bool {
	return c.notifier.IsMessageEnabled(kind)
}

// EnabledMessages returns the current enabled set.
func (c *Camera) EnabledMessages() notifier.Set {
	return c.notifier.EnabledMessages()
}

// StartVideoRecording begins paced video-frame delivery at fps frames
// per second.
func (c *Camera) StartVideoRecording(fps int) error {
	return c.notifier.EnableVideoRecording(fps)
}

// StopVideoRecording ends video-frame delivery. Buffers already
// delivered remain the client's to release.
func (c *Camera) StopVideoRecording() {
	c.notifier.DisableVideoRecording()
}

// IsVideoRecordingEnabled reports whether video recording is active.
func (c *Camera) IsVideoRecordingEnabled() bool {
	return c.notifier.IsVideoRecordingEnabled()
}

// ReleaseRecordingFrame returns a recording buffer the client is done
// with. Unknown handles are tolerated.
func (c *Camera) ReleaseRecordingFrame(buf *buffer.Buffer) {
	c.notifier.ReleaseRecordingFrame(buf)
}

// OutstandingBuffers returns the number of recording buffers delivered
// and not yet released.
func (c *Camera) OutstandingBuffers() int {
	return c.notifier.OutstandingBuffers()
}

// TakePicture requests a still capture: the next captured frame runs
// the shutter, raw-notify, and compressed-image sequence.
func (c *Camera) TakePicture() {
	c.notifier.RequestStillCapture()
}

// CaptureState returns the pending capture intent.
func (c *Camera) CaptureState() notifier.CaptureState {
	return c.notifier.CaptureState()
}

// AutoFocus runs the focus cycle. The emulated device focuses
// instantly, so completion is reported before this returns.
func (c *Camera) AutoFocus() {
	c.notifier.CompleteAutoFocus()
}

// StoreMetadataInBuffers requests metadata-buffer delivery for video
// frames, which this device does not support: enabling fails with
// notifier.ErrMetadataBufferingUnsupported.
func (c *Camera) StoreMetadataInBuffers(enable bool) error {
	return c.notifier.StoreMetadataInBuffers(enable)
}

// SetParameters validates and applies a parameter snapshot.
func (c *Camera) SetParameters(snap params.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("rejecting parameters: %w", err)
	}
	c.notifier.SetParameters(snap)
	return nil
}

// Parameters returns the parameter snapshot in effect.
func (c *Camera) Parameters() params.Snapshot {
	return c.notifier.Parameters()
}

// InjectDeviceError feeds a device failure code into the notification
// path, as a broken capture backend would.
func (c *Camera) InjectDeviceError(code int32) {
	c.notifier.OnDeviceError(code)
}
