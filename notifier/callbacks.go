package notifier

import (
	"github.com/opd-ai/emucam/buffer"
	"github.com/opd-ai/emucam/params"
)

// NotifyFunc receives a payload-free notification: the message kind and
// two status words whose meaning depends on the kind, plus the opaque
// context registered with the callbacks.
type NotifyFunc func(kind Kind, ext1, ext2 int32, ctx any)

// DataFunc receives a notification carrying a payload buffer. The
// buffer is only valid for the duration of the call unless the contract
// for the kind says otherwise.
type DataFunc func(kind Kind, buf *buffer.Buffer, ctx any)

// DataTimestampFunc receives a payload buffer together with its capture
// timestamp in nanoseconds. Used for recording frames; the client owns
// the buffer until it releases it back through the notifier.
type DataTimestampFunc func(timestampNanos int64, kind Kind, buf *buffer.Buffer, ctx any)

// AllocateFunc supplies delivery buffers on demand. Returning nil
// signals allocation failure; the affected delivery is skipped.
type AllocateFunc func(bufSize, bufCount int, ctx any) *buffer.Buffer

// Callbacks bundles the client endpoints with the opaque context passed
// back on every invocation. A nil endpoint suppresses the notification
// paths that need it.
type Callbacks struct {
	Notify        NotifyFunc
	Data          DataFunc
	DataTimestamp DataTimestampFunc
	Allocate      AllocateFunc
	Context       any
}

// Device exposes the frame geometry the dispatch path needs to size
// delivery buffers and drive compression.
type Device interface {
	// FrameWidth returns the width of captured frames in pixels.
	FrameWidth() int
	// FrameHeight returns the height of captured frames in pixels.
	FrameHeight() int
	// FrameBufferSize returns the byte length of one captured frame.
	FrameBufferSize() int
}

// MetadataHandle is an opaque reference to builder-owned capture
// metadata.
type MetadataHandle any

// MetadataBuilder constructs the metadata block embedded into
// compressed stills. Release must be safe to call on every handle
// Build returned, exactly once per handle, on every exit path.
type MetadataBuilder interface {
	// Build assembles metadata from the given parameter snapshot.
	Build(snap params.Snapshot) MetadataHandle
	// AttachThumbnail renders and attaches a thumbnail generated from
	// the raw frame. It reports whether the thumbnail was attached;
	// failure leaves the metadata usable without one.
	AttachThumbnail(h MetadataHandle, raw []byte, srcWidth, srcHeight, thumbWidth, thumbHeight, quality int) bool
	// Payload serializes the metadata into the block spliced into the
	// compressed output, or nil when there is nothing to embed.
	Payload(h MetadataHandle) []byte
	// Release frees the resources behind the handle.
	Release(h MetadataHandle)
}

// StillCompressor turns a raw frame into the compressed still payload.
// Implementations keep the result of the last successful Compress until
// the next one.
type StillCompressor interface {
	// Compress encodes the raw frame at the given quality, splicing the
	// metadata block into the output when app1 is non-empty.
	Compress(raw []byte, width, height, quality int, app1 []byte) error
	// CompressedSize returns the byte length of the last result.
	CompressedSize() int
	// CopyOutput copies the last result into dst.
	CopyOutput(dst []byte) error
}
