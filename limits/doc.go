// Package limits provides centralized frame-geometry and quality constants
// and validation functions for the emulated camera. This package ensures
// consistent bounds enforcement across the capture, compression, and
// dispatch components.
//
// # Frame Bounds
//
//   - MaxFrameWidth / MaxFrameHeight (8192): The largest geometry any
//     device backend may report. Dimensions beyond this are rejected
//     before a frame buffer is ever sized.
//
//   - MaxFrameBytes: The absolute maximum byte length accepted for a raw
//     frame in any operation. This prevents memory exhaustion from a
//     misbehaving frame source.
//
// # NV21 Sizing
//
// Raw frames use the NV21 layout: a full-resolution luma plane followed by
// a single interleaved VU chroma plane at quarter resolution. FrameBytes
// returns the exact buffer length for a given geometry:
//
//	size := limits.FrameBytes(640, 480) // 460800
//
// # Validation Functions
//
// Each validation function reports a sentinel error wrapped with context:
//
//	if err := limits.ValidateFrame(raw, w, h); err != nil {
//	    // errors.Is(err, limits.ErrFrameTooShort) etc.
//	}
//
// # JPEG Quality
//
// Quality values follow the JFIF convention of 1..100. DefaultJPEGQuality
// (90) is the value the notifier restores on cleanup.
package limits
