// Package notifier implements the frame/event callback dispatcher of the
// emulated camera: it decides, for each captured frame, which client
// callbacks fire, in what order, with what buffered payload, and under
// what timing constraints.
//
// # Dispatch Model
//
// One capture goroutine drives OnFrameAvailable and OnDeviceError (the
// data plane). Any number of control goroutines register callbacks,
// enable or disable message kinds, start or stop video pacing, and
// request still captures (the control plane). A single mutex guards all
// state mutations; the enabled-message set additionally lives in one
// atomic word so the dispatch path reads it without the lock. A message
// toggled mid-dispatch may or may not apply to the frame in flight; it
// never corrupts state.
//
// Client callbacks are never invoked while the lock is held, so a
// callback may re-enter the notifier freely. A slow callback stalls the
// capture goroutine that invoked it; backpressure is implicit.
//
// # Frame Dispatch
//
// Each frame runs three independent branches:
//
//  1. Video: when the video-frame message is enabled, recording is
//     active, and the pacing admission test passes, the frame is copied
//     into an allocated buffer and delivered through the timestamped
//     data callback. The buffer then enters the outstanding registry;
//     releasing it is the client's job (ReleaseRecordingFrame).
//  2. Preview: when the preview-frame message is enabled, a copy is
//     delivered through the plain data callback and released as soon as
//     the callback returns.
//  3. Still capture: when a capture request is pending it is consumed,
//     and this frame triggers the shutter, raw-image-notify, and
//     compressed-image notifications, each gated by its own message
//     kind. Compression embeds metadata built from the current
//     parameter snapshot, with an optional thumbnail.
//
// Allocation and compression failures are logged and absorbed; they
// skip one delivery, never abort dispatch.
//
// # Usage
//
//	n := notifier.NewNotifier(jpegenc.NewCompressor(), metadataAdapter)
//	n.SetCallbacks(notifier.Callbacks{
//	    Notify: func(kind notifier.Kind, ext1, ext2 int32, ctx any) {
//	        fmt.Printf("notify: %s\n", kind)
//	    },
//	    Data:     onData,
//	    Allocate: allocate,
//	})
//	n.EnableMessages(notifier.KindShutter, notifier.KindCompressedImage)
//	n.RequestStillCapture()
//
//	// on the capture goroutine:
//	n.OnFrameAvailable(frame, timestamp, dev)
package notifier
