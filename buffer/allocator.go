package buffer

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/limits"
)

// Allocator produces Buffers for callback payload delivery. A nil return
// signals allocation failure; the dispatcher logs it and skips the
// delivery for that frame.
type Allocator interface {
	Allocate(bufSize, bufCount int) *Buffer
}

// HeapAllocator is the default Allocator backed by plain heap slices. It
// tracks the live-allocation balance so leak-sensitive tests can observe
// whether every handed-out buffer came back.
type HeapAllocator struct {
	live atomic.Int64
}

// NewHeapAllocator creates a HeapAllocator with a zero balance.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{}
}

// Allocate returns a Buffer of bufSize*bufCount bytes, or nil when the
// requested size is non-positive or exceeds limits.MaxFrameBytes.
func (a *HeapAllocator) Allocate(bufSize, bufCount int) *Buffer {
	if bufSize <= 0 || bufCount <= 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "Allocate",
			"buf_size":  bufSize,
			"buf_count": bufCount,
		}).Warn("Rejecting non-positive allocation request")
		return nil
	}

	// The product check divides so that requests whose total would
	// overflow an int are rejected, never computed.
	if bufSize > limits.MaxFrameBytes/bufCount {
		logrus.WithFields(logrus.Fields{
			"function":  "Allocate",
			"buf_size":  bufSize,
			"buf_count": bufCount,
			"limit":     limits.MaxFrameBytes,
		}).Warn("Rejecting allocation request over frame byte limit")
		return nil
	}

	total := bufSize * bufCount

	a.live.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "Allocate",
		"total":    total,
		"live":     a.live.Load(),
	}).Trace("Allocated buffer")

	return New(make([]byte, total), func(*Buffer) {
		a.live.Add(-1)
	})
}

// Live returns the number of allocated buffers not yet released.
func (a *HeapAllocator) Live() int64 {
	return a.live.Load()
}
