// Package jpegenc implements the still-image compressor used for
// compressed-image delivery.
//
// The compressor converts a raw NV21 frame to 4:2:0 YCbCr, encodes a
// baseline JPEG at the requested quality, and splices the supplied APP1
// metadata segment directly after SOI. It retains the last result until
// the next Compress call; the dispatch core sizes its delivery buffer
// from CompressedSize and fills it with CopyOutput.
package jpegenc

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/limits"
	"github.com/opd-ai/emucam/yuv"
)

var (
	// ErrNoCompressedData indicates CopyOutput was called before any
	// successful Compress.
	ErrNoCompressedData = errors.New("no compressed data available")

	// ErrShortOutput indicates a destination smaller than the compressed data.
	ErrShortOutput = errors.New("destination smaller than compressed data")

	// ErrMissingSOI indicates an encoded stream without a start-of-image marker.
	ErrMissingSOI = errors.New("encoded stream missing SOI marker")

	// ErrMetadataTooLarge indicates an APP1 payload beyond the segment limit.
	ErrMetadataTooLarge = errors.New("app1 payload exceeds segment limit")
)

// Compressor compresses raw NV21 still frames. Safe for concurrent use;
// one compressed result is retained at a time.
type Compressor struct {
	mu  sync.Mutex
	out []byte
}

// NewCompressor creates an empty Compressor.
func NewCompressor() *Compressor {
	return &Compressor{}
}

// Compress encodes the NV21 frame as a baseline JPEG at the given
// quality. When app1 is non-empty it is embedded as the APP1 segment
// right after SOI. On success the result replaces any previous one and
// stays available until the next call; on failure the previous result is
// kept.
func (c *Compressor) Compress(raw []byte, width, height, quality int, app1 []byte) error {
	if err := limits.ValidateQuality(quality); err != nil {
		return err
	}
	img, err := yuv.ToImage(raw, width, height)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encoding still frame: %w", err)
	}

	encoded := buf.Bytes()
	if len(app1) > 0 {
		encoded, err = spliceAPP1(encoded, app1)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.out = encoded
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Compress",
		"width":    width,
		"height":   height,
		"quality":  quality,
		"bytes":    len(encoded),
		"app1":     len(app1),
	}).Debug("Compressed still frame")
	return nil
}

// CompressedSize returns the byte length of the last compressed frame,
// zero when none exists.
func (c *Compressor) CompressedSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.out)
}

// CopyOutput copies the last compressed frame into dst.
func (c *Compressor) CopyOutput(dst []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.out) == 0 {
		return ErrNoCompressedData
	}
	if len(dst) < len(c.out) {
		return fmt.Errorf("%w: have %d, need %d", ErrShortOutput, len(dst), len(c.out))
	}
	copy(dst, c.out)
	return nil
}

// spliceAPP1 inserts an APP1 marker segment carrying payload directly
// after SOI. The segment length covers the payload plus its own two
// bytes, which caps the payload at 65533 bytes.
func spliceAPP1(encoded, payload []byte) ([]byte, error) {
	if len(encoded) < 2 || encoded[0] != 0xFF || encoded[1] != 0xD8 {
		return nil, ErrMissingSOI
	}
	segLen := len(payload) + 2
	if segLen > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrMetadataTooLarge, len(payload))
	}

	out := make([]byte, 0, len(encoded)+4+len(payload))
	out = append(out, encoded[:2]...)
	out = append(out, 0xFF, 0xE1, byte(segLen>>8), byte(segLen))
	out = append(out, payload...)
	out = append(out, encoded[2:]...)
	return out, nil
}
