package notifier

import "errors"

// Configuration errors returned synchronously by control-plane
// operations.
var (
	// ErrInvalidFrameRate indicates a recording frame rate of zero or
	// below.
	ErrInvalidFrameRate = errors.New("invalid recording frame rate")

	// ErrMetadataBufferingUnsupported indicates the device cannot pass
	// video frames as metadata buffers.
	ErrMetadataBufferingUnsupported = errors.New("metadata buffering not supported")
)
