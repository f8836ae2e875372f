package notifier

import (
	"fmt"
	"math/bits"
	"strings"
)

// Kind identifies one category of client notification.
type Kind uint8

const (
	// KindError reports a device failure code through the notify
	// endpoint.
	KindError Kind = iota
	// KindShutter marks the start of a still-capture sequence.
	KindShutter
	// KindFocus reports autofocus completion.
	KindFocus
	// KindZoom reports a smooth-zoom step.
	KindZoom
	// KindPreviewFrame delivers a preview frame payload.
	KindPreviewFrame
	// KindVideoFrame delivers a timestamped recording frame payload.
	KindVideoFrame
	// KindPostviewFrame delivers a postview frame payload.
	KindPostviewFrame
	// KindRawImage delivers a raw still payload.
	KindRawImage
	// KindCompressedImage delivers the compressed still payload.
	KindCompressedImage
	// KindRawImageNotify announces raw-image availability without a
	// payload.
	KindRawImageNotify
	// KindPreviewMetadata delivers preview metadata such as detected
	// faces.
	KindPreviewMetadata

	kindCount // keep last
)

var kindNames = [kindCount]string{
	KindError:           "error",
	KindShutter:         "shutter",
	KindFocus:           "focus",
	KindZoom:            "zoom",
	KindPreviewFrame:    "preview-frame",
	KindVideoFrame:      "video-frame",
	KindPostviewFrame:   "postview-frame",
	KindRawImage:        "raw-image",
	KindCompressedImage: "compressed-image",
	KindRawImageNotify:  "raw-image-notify",
	KindPreviewMetadata: "preview-metadata",
}

// String returns the lowercase dashed name used in logs and metrics.
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Set is a value-type collection of message kinds. The zero value is
// the empty set; With and Without return derived sets without mutating
// the receiver.
type Set uint32

// NewSet returns a Set containing exactly the given kinds.
func NewSet(kinds ...Kind) Set {
	var s Set
	return s.With(kinds...)
}

// With returns the set extended by the given kinds. Unknown kinds are
// ignored.
func (s Set) With(kinds ...Kind) Set {
	for _, k := range kinds {
		if k < kindCount {
			s |= 1 << k
		}
	}
	return s
}

// Without returns the set with the given kinds removed. Removing an
// absent kind is a no-op.
func (s Set) Without(kinds ...Kind) Set {
	for _, k := range kinds {
		if k < kindCount {
			s &^= 1 << k
		}
	}
	return s
}

// Contains reports whether k is in the set.
func (s Set) Contains(k Kind) bool {
	return k < kindCount && s&(1<<k) != 0
}

// Empty reports whether the set holds no kinds.
func (s Set) Empty() bool {
	return s == 0
}

// Len returns the number of kinds in the set.
func (s Set) Len() int {
	return bits.OnesCount32(uint32(s))
}

// Kinds returns the contained kinds in declaration order.
func (s Set) Kinds() []Kind {
	out := make([]Kind, 0, s.Len())
	for k := Kind(0); k < kindCount; k++ {
		if s.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// String returns the pipe-joined kind names, or "none" for the empty
// set.
func (s Set) String() string {
	if s.Empty() {
		return "none"
	}
	names := make([]string, 0, s.Len())
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, "|")
}
