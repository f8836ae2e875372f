package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxFrameWidth is the largest frame width any device may report.
	MaxFrameWidth = 8192

	// MaxFrameHeight is the largest frame height any device may report.
	MaxFrameHeight = 8192

	// MaxFrameBytes is the absolute maximum for any raw frame buffer.
	// This prevents memory exhaustion from a misbehaving frame source
	// (NV21 size of the maximum geometry).
	MaxFrameBytes = MaxFrameWidth * MaxFrameHeight * 3 / 2

	// MinJPEGQuality is the lowest accepted JPEG quality value.
	MinJPEGQuality = 1

	// MaxJPEGQuality is the highest accepted JPEG quality value.
	MaxJPEGQuality = 100

	// DefaultJPEGQuality is the quality restored when notifier state is
	// torn down. Matches the JFIF convention of a high-but-lossy default.
	DefaultJPEGQuality = 90
)

var (
	// ErrFrameEmpty indicates an empty or nil frame buffer was provided.
	ErrFrameEmpty = errors.New("empty frame")

	// ErrFrameTooShort indicates a frame buffer smaller than its geometry requires.
	ErrFrameTooShort = errors.New("frame shorter than geometry requires")

	// ErrFrameTooLarge indicates a frame buffer exceeding MaxFrameBytes.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrBadDimensions indicates an unusable frame geometry.
	ErrBadDimensions = errors.New("invalid frame dimensions")

	// ErrQualityRange indicates a JPEG quality outside MinJPEGQuality..MaxJPEGQuality.
	ErrQualityRange = errors.New("jpeg quality out of range")
)

// FrameBytes returns the NV21 buffer length for a width x height frame:
// one full-resolution luma plane plus one interleaved VU plane holding a
// chroma sample pair per 2x2 block. The rounding keeps the formula exact
// for odd geometries even though ValidateDimensions rejects them.
func FrameBytes(width, height int) int {
	return width*height + 2*((width+1)/2)*((height+1)/2)
}

// ValidateDimensions checks that a frame geometry is positive, 2x2
// aligned (required by the NV21 chroma layout), and within the maximum
// bounds. Returns an error wrapping ErrBadDimensions with context.
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	if width > MaxFrameWidth || height > MaxFrameHeight {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrBadDimensions, width, height, MaxFrameWidth, MaxFrameHeight)
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: %dx%d is not 2x2 aligned", ErrBadDimensions, width, height)
	}
	return nil
}

// ValidateFrame checks a raw NV21 frame buffer against its claimed
// geometry. Trailing bytes beyond the NV21 size are tolerated; a buffer
// shorter than the geometry requires is not.
func ValidateFrame(frame []byte, width, height int) error {
	if len(frame) == 0 {
		return ErrFrameEmpty
	}
	if err := ValidateDimensions(width, height); err != nil {
		return err
	}
	if len(frame) > MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrFrameTooLarge, len(frame), MaxFrameBytes)
	}
	if need := FrameBytes(width, height); len(frame) < need {
		return fmt.Errorf("%w: have %d bytes, need %d for %dx%d", ErrFrameTooShort, len(frame), need, width, height)
	}
	return nil
}

// ValidateQuality checks a JPEG quality value against the accepted range.
func ValidateQuality(quality int) error {
	if quality < MinJPEGQuality || quality > MaxJPEGQuality {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrQualityRange, quality, MinJPEGQuality, MaxJPEGQuality)
	}
	return nil
}
