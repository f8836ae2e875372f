// Package params holds the typed camera-parameter snapshot read by the
// dispatch core during still capture.
//
// The camera facade owns the live parameters and hands consistent copies
// down; the notifier stores the most recent copy and never mutates it.
// String-keyed parameter parsing (the setParameters wire format of a real
// HAL) is out of scope; clients configure through this struct directly.
package params

import (
	"errors"
	"fmt"

	"github.com/opd-ai/emucam/limits"
)

var (
	// ErrFrameRate indicates a non-positive video frame rate.
	ErrFrameRate = errors.New("invalid video frame rate")

	// ErrThumbnailGeometry indicates an unusable thumbnail size.
	ErrThumbnailGeometry = errors.New("invalid thumbnail geometry")
)

// GPS carries the optional location block embedded in still-capture
// metadata. Valid gates the whole block; when false the other fields are
// ignored and no GPS directory is written.
type GPS struct {
	Valid         bool
	Latitude      float64
	Longitude     float64
	Altitude      float64
	TimestampUnix int64
	Method        string
}

// Snapshot is one consistent view of the client-configurable camera
// parameters. It is copied by assignment and safe to hand across
// goroutines.
type Snapshot struct {
	PreviewWidth  int
	PreviewHeight int

	// VideoFrameRate is the recording rate in frames per second used to
	// derive the video-frame pacing interval.
	VideoFrameRate int

	// JPEGQuality applies to both the still capture and its thumbnail.
	JPEGQuality int

	// ThumbnailWidth and ThumbnailHeight select the embedded thumbnail
	// geometry; either value at zero disables thumbnail generation.
	ThumbnailWidth  int
	ThumbnailHeight int

	// Make, Model, and Software seed the corresponding metadata fields
	// of still captures.
	Make     string
	Model    string
	Software string

	GPS GPS
}

// Default returns the power-on parameter values: VGA preview at 30 fps,
// the default JPEG quality, thumbnails disabled.
func Default() Snapshot {
	return Snapshot{
		PreviewWidth:   640,
		PreviewHeight:  480,
		VideoFrameRate: 30,
		JPEGQuality:    limits.DefaultJPEGQuality,
		Make:           "Emulated",
		Model:          "emucam",
		Software:       "emucam",
	}
}

// ThumbnailEnabled reports whether a thumbnail geometry is configured.
func (s Snapshot) ThumbnailEnabled() bool {
	return s.ThumbnailWidth > 0 && s.ThumbnailHeight > 0
}

// Validate checks the fields that gate capture behavior. A zero-valued
// thumbnail geometry is valid (thumbnails disabled); a half-configured or
// negative one is not.
func (s Snapshot) Validate() error {
	if err := limits.ValidateQuality(s.JPEGQuality); err != nil {
		return err
	}
	if err := limits.ValidateDimensions(s.PreviewWidth, s.PreviewHeight); err != nil {
		return fmt.Errorf("preview geometry: %w", err)
	}
	if s.VideoFrameRate <= 0 {
		return fmt.Errorf("%w: %d fps", ErrFrameRate, s.VideoFrameRate)
	}
	if s.ThumbnailWidth < 0 || s.ThumbnailHeight < 0 {
		return fmt.Errorf("%w: %dx%d", ErrThumbnailGeometry, s.ThumbnailWidth, s.ThumbnailHeight)
	}
	if s.ThumbnailEnabled() != (s.ThumbnailWidth > 0 || s.ThumbnailHeight > 0) {
		return fmt.Errorf("%w: %dx%d is half configured", ErrThumbnailGeometry, s.ThumbnailWidth, s.ThumbnailHeight)
	}
	if s.ThumbnailWidth > limits.MaxFrameWidth || s.ThumbnailHeight > limits.MaxFrameHeight {
		return fmt.Errorf("%w: %dx%d exceeds frame bounds", ErrThumbnailGeometry, s.ThumbnailWidth, s.ThumbnailHeight)
	}
	return nil
}
