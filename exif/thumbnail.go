package exif

import (
	"bytes"
	"image/jpeg"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/limits"
	"github.com/opd-ai/emucam/yuv"
)

// AttachThumbnail scales the raw NV21 frame to the requested geometry,
// compresses it, and stores it on the handle for embedding as IFD1.
// Returns false on any failure; a capture proceeds without a thumbnail
// when this fails.
func (b *Builder) AttachThumbnail(d *Data, raw []byte, srcW, srcH, thumbW, thumbH, quality int) bool {
	if d == nil || thumbW <= 0 || thumbH <= 0 {
		logrus.WithFields(logrus.Fields{
			"function":     "AttachThumbnail",
			"thumb_width":  thumbW,
			"thumb_height": thumbH,
		}).Warn("Thumbnail request unusable")
		return false
	}
	if err := limits.ValidateQuality(quality); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AttachThumbnail",
			"quality":  quality,
			"error":    err.Error(),
		}).Warn("Thumbnail quality out of range")
		return false
	}

	img, err := yuv.ToImage(raw, srcW, srcH)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AttachThumbnail",
			"src":      srcW,
			"error":    err.Error(),
		}).Warn("Thumbnail source frame unusable")
		return false
	}

	scaled := resize.Resize(uint(thumbW), uint(thumbH), img, resize.Bilinear)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AttachThumbnail",
			"error":    err.Error(),
		}).Warn("Thumbnail compression failed")
		return false
	}

	d.thumb = buf.Bytes()
	logrus.WithFields(logrus.Fields{
		"function": "AttachThumbnail",
		"bytes":    len(d.thumb),
	}).Debug("Thumbnail attached")
	return true
}
