// Package exif builds the APP1 metadata payload embedded in still
// captures.
//
// The dispatch core treats metadata as an opaque handle with a strict
// lifecycle: Build once per capture, optionally AttachThumbnail, read the
// serialized Payload during compression, and Release on every exit path.
// Thumbnail generation is best-effort; its failure never aborts a
// capture.
//
// The serialized form is the body of a JPEG APP1 segment: the
// "Exif\x00\x00" identifier followed by a big-endian TIFF stream with
// IFD0 (camera identity, orientation, date), an Exif sub-IFD (capture
// date and pixel geometry), an optional GPS IFD, and an optional IFD1
// referencing the compressed thumbnail.
package exif

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/params"
)

const dateTimeLayout = "2006:01:02 15:04:05"

// Data holds the metadata accumulated for one still capture. It is an
// opaque handle to callers of the dispatch core; only this package and
// the compressor adapter interpret it.
type Data struct {
	ifd0  []entry
	exif  []entry
	gps   []entry
	thumb []byte
}

// Thumbnail returns the compressed thumbnail attached so far, or nil.
func (d *Data) Thumbnail() []byte {
	if d == nil {
		return nil
	}
	return d.thumb
}

// Builder constructs metadata handles from parameter snapshots.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a Builder using the wall clock for date fields.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// SetTimeSource overrides the clock used for date fields. Intended for
// deterministic tests; a nil source is ignored.
func (b *Builder) SetTimeSource(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// Build creates the metadata for one capture from the given parameter
// snapshot. The returned handle must be passed to Release once the
// capture finishes, whether or not compression succeeded.
func (b *Builder) Build(snap params.Snapshot) *Data {
	stamp := b.now().Format(dateTimeLayout)

	d := &Data{
		ifd0: []entry{
			asciiEntry(tagMake, snap.Make),
			asciiEntry(tagModel, snap.Model),
			shortEntry(tagOrientation, 1),
			asciiEntry(tagSoftware, snap.Software),
			asciiEntry(tagDateTime, stamp),
		},
		exif: []entry{
			asciiEntry(tagDateTimeOriginal, stamp),
			longEntry(tagPixelXDimension, uint32(snap.PreviewWidth)),
			longEntry(tagPixelYDimension, uint32(snap.PreviewHeight)),
		},
	}
	if snap.GPS.Valid {
		d.gps = gpsEntries(snap.GPS)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Build",
		"make":     snap.Make,
		"model":    snap.Model,
		"gps":      snap.GPS.Valid,
	}).Debug("Built capture metadata")

	return d
}

// Release clears the handle. Safe on nil and on already released
// handles, so callers can release unconditionally on every exit path.
func (b *Builder) Release(d *Data) {
	if d == nil {
		return
	}
	d.ifd0, d.exif, d.gps, d.thumb = nil, nil, nil, nil
}

func gpsEntries(g params.GPS) []entry {
	latRef, lonRef := "N", "E"
	if g.Latitude < 0 {
		latRef = "S"
	}
	if g.Longitude < 0 {
		lonRef = "W"
	}
	altRef := byte(0)
	alt := g.Altitude
	if alt < 0 {
		altRef = 1
		alt = -alt
	}
	t := time.Unix(g.TimestampUnix, 0).UTC()

	entries := []entry{
		byteEntry(tagGPSVersionID, 2, 3, 0, 0),
		asciiEntry(tagGPSLatitudeRef, latRef),
		rationalEntry(tagGPSLatitude, degreesToRationals(g.Latitude)...),
		asciiEntry(tagGPSLongitudeRef, lonRef),
		rationalEntry(tagGPSLongitude, degreesToRationals(g.Longitude)...),
		byteEntry(tagGPSAltitudeRef, altRef),
		rationalEntry(tagGPSAltitude, rational{num: uint32(alt * 100), den: 100}),
		rationalEntry(tagGPSTimeStamp,
			rational{num: uint32(t.Hour()), den: 1},
			rational{num: uint32(t.Minute()), den: 1},
			rational{num: uint32(t.Second()), den: 1}),
		asciiEntry(tagGPSDateStamp, t.Format("2006:01:02")),
	}
	if g.Method != "" {
		// The processing-method value carries an 8-byte character-code
		// prefix before the text.
		v := append([]byte("ASCII\x00\x00\x00"), g.Method...)
		entries = append(entries, undefinedEntry(tagGPSProcessingMethod, v))
	}
	return entries
}

// degreesToRationals splits an absolute coordinate into the
// degrees/minutes/seconds rational triple the GPS IFD expects.
func degreesToRationals(v float64) []rational {
	if v < 0 {
		v = -v
	}
	deg := uint32(v)
	rem := (v - float64(deg)) * 60
	min := uint32(rem)
	sec := (rem - float64(min)) * 60
	return []rational{
		{num: deg, den: 1},
		{num: min, den: 1},
		{num: uint32(sec * 1000), den: 1000},
	}
}
