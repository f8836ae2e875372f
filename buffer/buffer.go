// Package buffer provides the payload handles exchanged between the
// camera core and its client callbacks.
//
// A Buffer pairs a writable byte payload with the release operation of
// whatever allocated it. The dispatcher hands Buffers to client
// callbacks; single-shot deliveries (preview, compressed stills) are
// released as soon as the callback returns, while recording buffers stay
// outstanding until the client releases them through the notifier.
//
// Buffers are compared by handle identity, never by payload content, so
// the same handle the client received is the one it must give back.
package buffer

import (
	"sync/atomic"
)

// Buffer is an opaque handle over an allocated payload. The zero value is
// not usable; construct with New or an Allocator.
type Buffer struct {
	data     []byte
	release  func(*Buffer)
	released atomic.Bool
}

// New wraps a payload and its release operation into a Buffer handle.
// release may be nil for payloads with no reclamation step.
func New(payload []byte, release func(*Buffer)) *Buffer {
	return &Buffer{data: payload, release: release}
}

// Data returns the writable payload.
func (b *Buffer) Data() []byte {
	return b.data
}

// Size returns the payload length in bytes.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Release runs the allocator's release operation. Only the first call has
// effect; repeated releases and releases through a nil handle are no-ops,
// matching the fire-and-forget client contract.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	if b.release != nil {
		b.release(b)
	}
}

// Released reports whether Release has already run.
func (b *Buffer) Released() bool {
	if b == nil {
		return false
	}
	return b.released.Load()
}
