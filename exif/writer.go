package exif

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// TIFF field types used in the payload.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeUndefined = 7
)

// IFD0, Exif sub-IFD, and IFD1 tags.
const (
	tagCompression      = 0x0103
	tagMake             = 0x010F
	tagModel            = 0x0110
	tagOrientation      = 0x0112
	tagSoftware         = 0x0131
	tagDateTime         = 0x0132
	tagJPEGFormat       = 0x0201
	tagJPEGFormatLength = 0x0202
	tagExifIFDPointer   = 0x8769
	tagGPSIFDPointer    = 0x8825
	tagDateTimeOriginal = 0x9003
	tagPixelXDimension  = 0xA002
	tagPixelYDimension  = 0xA003
)

// GPS IFD tags.
const (
	tagGPSVersionID        = 0x0000
	tagGPSLatitudeRef      = 0x0001
	tagGPSLatitude         = 0x0002
	tagGPSLongitudeRef     = 0x0003
	tagGPSLongitude        = 0x0004
	tagGPSAltitudeRef      = 0x0005
	tagGPSAltitude         = 0x0006
	tagGPSTimeStamp        = 0x0007
	tagGPSProcessingMethod = 0x001B
	tagGPSDateStamp        = 0x001D
)

const (
	tiffHeaderSize = 8
	entrySize      = 12
)

// rational is an unsigned TIFF RATIONAL (numerator over denominator).
type rational struct {
	num, den uint32
}

// entry is one IFD field with its value already encoded big-endian.
type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

func asciiEntry(tag uint16, s string) entry {
	v := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(v)), value: v}
}

func shortEntry(tag uint16, v uint16) entry {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return entry{tag: tag, typ: typeShort, count: 1, value: b}
}

func longEntry(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return entry{tag: tag, typ: typeLong, count: 1, value: b}
}

func byteEntry(tag uint16, vs ...byte) entry {
	return entry{tag: tag, typ: typeByte, count: uint32(len(vs)), value: vs}
}

func rationalEntry(tag uint16, rs ...rational) entry {
	v := make([]byte, 0, len(rs)*8)
	for _, r := range rs {
		v = binary.BigEndian.AppendUint32(v, r.num)
		v = binary.BigEndian.AppendUint32(v, r.den)
	}
	return entry{tag: tag, typ: typeRational, count: uint32(len(rs)), value: v}
}

func undefinedEntry(tag uint16, v []byte) entry {
	return entry{tag: tag, typ: typeUndefined, count: uint32(len(v)), value: v}
}

func ifdSize(entries int) uint32 {
	return 2 + uint32(entries)*entrySize + 4
}

// Payload serializes the handle into the APP1 segment body. Offsets are
// relative to the TIFF header, which follows the 6-byte Exif identifier.
// Returns nil for a nil or released handle.
func (d *Data) Payload() []byte {
	if d == nil || len(d.ifd0) == 0 {
		return nil
	}

	hasGPS := len(d.gps) > 0
	hasThumb := len(d.thumb) > 0

	ifd0Count := len(d.ifd0) + 1 // Exif IFD pointer
	if hasGPS {
		ifd0Count++
	}

	ifd0Off := uint32(tiffHeaderSize)
	exifOff := ifd0Off + ifdSize(ifd0Count)
	next := exifOff + ifdSize(len(d.exif))
	gpsOff := uint32(0)
	if hasGPS {
		gpsOff = next
		next += ifdSize(len(d.gps))
	}
	ifd1Off := uint32(0)
	if hasThumb {
		ifd1Off = next
		next += ifdSize(3)
	}
	dataOff := next

	ifd0 := append([]entry{}, d.ifd0...)
	ifd0 = append(ifd0, longEntry(tagExifIFDPointer, exifOff))
	if hasGPS {
		ifd0 = append(ifd0, longEntry(tagGPSIFDPointer, gpsOff))
	}

	// Values longer than the 4 inline bytes move to a shared data area
	// after the last IFD; offsets are assigned in file order.
	var data bytes.Buffer
	place := func(entries []entry) []placedEntry {
		sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })
		placed := make([]placedEntry, len(entries))
		for i, e := range entries {
			placed[i] = placedEntry{entry: e}
			if len(e.value) > 4 {
				placed[i].offset = dataOff + uint32(data.Len())
				data.Write(e.value)
				if data.Len()%2 == 1 {
					data.WriteByte(0)
				}
			}
		}
		return placed
	}

	placed0 := place(ifd0)
	placedExif := place(d.exif)
	var placedGPS []placedEntry
	if hasGPS {
		placedGPS = place(d.gps)
	}

	out := &bytes.Buffer{}
	out.WriteString("Exif\x00\x00")
	out.WriteString("MM")
	writeU16(out, 0x002A)
	writeU32(out, ifd0Off)

	writeIFD(out, placed0, ifd1Off)
	writeIFD(out, placedExif, 0)
	if hasGPS {
		writeIFD(out, placedGPS, 0)
	}
	if hasThumb {
		thumbOff := dataOff + uint32(data.Len())
		ifd1 := place([]entry{
			shortEntry(tagCompression, 6), // JPEG-compressed thumbnail
			longEntry(tagJPEGFormat, thumbOff),
			longEntry(tagJPEGFormatLength, uint32(len(d.thumb))),
		})
		writeIFD(out, ifd1, 0)
	}
	out.Write(data.Bytes())
	if hasThumb {
		out.Write(d.thumb)
	}

	return out.Bytes()
}

type placedEntry struct {
	entry
	offset uint32 // 0 means the value fits inline
}

func writeIFD(out *bytes.Buffer, entries []placedEntry, nextIFD uint32) {
	writeU16(out, uint16(len(entries)))
	for _, e := range entries {
		writeU16(out, e.tag)
		writeU16(out, e.typ)
		writeU32(out, e.count)
		if e.offset != 0 {
			writeU32(out, e.offset)
		} else {
			var inline [4]byte
			copy(inline[:], e.value)
			out.Write(inline[:])
		}
	}
	writeU32(out, nextIFD)
}

func writeU16(out *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	out.Write(b[:])
}

func writeU32(out *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	out.Write(b[:])
}
