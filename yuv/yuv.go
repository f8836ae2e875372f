// Package yuv converts between the device-native NV21 frame layout and
// the standard library image model.
//
// NV21 stores a full-resolution luma (Y) plane followed by one
// interleaved chroma plane holding a V/U (Cr/Cb) sample pair per 2x2
// pixel block, V first. It is the raw format every device backend in
// this module delivers and the input format of the still compressor.
//
// See https://www.fourcc.org/pixel-format/yuv-nv21/
package yuv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/opd-ai/emucam/limits"
)

// ToImage decodes an NV21 frame into a 4:2:0 image.YCbCr. The returned
// image aliases the frame's luma plane; the chroma planes are copied
// during deinterleaving.
func ToImage(frame []byte, width, height int) (*image.YCbCr, error) {
	if err := limits.ValidateFrame(frame, width, height); err != nil {
		return nil, fmt.Errorf("decoding nv21 frame: %w", err)
	}

	lumaLen := width * height
	chromaPairs := width * height / 4

	cb := make([]byte, chromaPairs)
	cr := make([]byte, chromaPairs)
	for i := 0; i < chromaPairs; i++ {
		cr[i] = frame[lumaLen+2*i]
		cb[i] = frame[lumaLen+2*i+1]
	}

	return &image.YCbCr{
		Y:              frame[:lumaLen],
		YStride:        width,
		Cb:             cb,
		Cr:             cr,
		CStride:        width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, width, height),
	}, nil
}

// FromImage converts any image into an NV21 frame, returning the frame
// bytes and its geometry. Images that are not already 4:2:0 YCbCr are
// converted pixel by pixel. Odd geometries are rejected.
func FromImage(img image.Image) ([]byte, int, int, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if err := limits.ValidateDimensions(width, height); err != nil {
		return nil, 0, 0, fmt.Errorf("encoding nv21 frame: %w", err)
	}

	img420, ok := img.(*image.YCbCr)
	if !ok || img420.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		img420 = convertTo420(img)
	}

	frame := make([]byte, limits.FrameBytes(width, height))
	for row := 0; row < height; row++ {
		src := img420.YOffset(bounds.Min.X, bounds.Min.Y+row)
		copy(frame[row*width:(row+1)*width], img420.Y[src:src+width])
	}

	chromaBase := width * height
	for row := 0; row < height/2; row++ {
		for col := 0; col < width/2; col++ {
			src := img420.COffset(bounds.Min.X+2*col, bounds.Min.Y+2*row)
			dst := chromaBase + row*width + 2*col
			frame[dst] = img420.Cr[src]
			frame[dst+1] = img420.Cb[src]
		}
	}

	return frame, width, height, nil
}

// FromYUYV repacks a YUYV (YUY2) frame into the NV21 layout. YUYV
// carries one chroma pair per two horizontal pixels at full vertical
// resolution; the vertical pairs are averaged down to 4:2:0.
func FromYUYV(packed []byte, width, height int) ([]byte, error) {
	if err := limits.ValidateDimensions(width, height); err != nil {
		return nil, fmt.Errorf("repacking yuyv frame: %w", err)
	}
	if len(packed) < width*height*2 {
		return nil, fmt.Errorf("repacking yuyv frame: %w: %d bytes for %dx%d",
			limits.ErrFrameTooShort, len(packed), width, height)
	}

	frame := make([]byte, limits.FrameBytes(width, height))
	stride := width * 2

	for row := 0; row < height; row++ {
		src := packed[row*stride : (row+1)*stride]
		dst := frame[row*width : (row+1)*width]
		for col := 0; col < width; col++ {
			dst[col] = src[col*2]
		}
	}

	chromaBase := width * height
	for row := 0; row < height/2; row++ {
		top := packed[(2*row)*stride : (2*row+1)*stride]
		bottom := packed[(2*row+1)*stride : (2*row+2)*stride]
		for col := 0; col < width/2; col++ {
			u := (int(top[col*4+1]) + int(bottom[col*4+1])) / 2
			v := (int(top[col*4+3]) + int(bottom[col*4+3])) / 2
			dst := chromaBase + row*width + 2*col
			frame[dst] = byte(v)
			frame[dst+1] = byte(u)
		}
	}

	return frame, nil
}

func convertTo420(img image.Image) *image.YCbCr {
	bounds := img.Bounds()
	img420 := image.NewYCbCr(bounds, image.YCbCrSubsampleRatio420)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))

			yi := img420.YOffset(x, y)
			ci := img420.COffset(x, y)
			img420.Y[yi] = yy
			img420.Cb[ci] = cb
			img420.Cr[ci] = cr
		}
	}

	return img420
}
