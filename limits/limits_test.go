package limits

import (
	"errors"
	"testing"
)

// TestFrameBytesKnownGeometries verifies the NV21 size formula against
// hand-computed values.
func TestFrameBytesKnownGeometries(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		want   int
	}{
		{name: "vga", width: 640, height: 480, want: 460800},
		{name: "qvga", width: 320, height: 240, want: 115200},
		{name: "hd", width: 1280, height: 720, want: 1382400},
		{name: "single block", width: 2, height: 2, want: 6},
		{name: "odd geometry rounds chroma up", width: 3, height: 3, want: 9 + 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameBytes(tt.width, tt.height); got != tt.want {
				t.Errorf("FrameBytes(%d, %d) = %d, want %d", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

// TestValidateDimensions tests geometry validation bounds and alignment.
func TestValidateDimensions(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		wantErr error
	}{
		{name: "valid vga", width: 640, height: 480, wantErr: nil},
		{name: "valid max", width: MaxFrameWidth, height: MaxFrameHeight, wantErr: nil},
		{name: "zero width", width: 0, height: 480, wantErr: ErrBadDimensions},
		{name: "zero height", width: 640, height: 0, wantErr: ErrBadDimensions},
		{name: "negative width", width: -2, height: 480, wantErr: ErrBadDimensions},
		{name: "width over limit", width: MaxFrameWidth + 2, height: 480, wantErr: ErrBadDimensions},
		{name: "height over limit", width: 640, height: MaxFrameHeight + 2, wantErr: ErrBadDimensions},
		{name: "odd width", width: 641, height: 480, wantErr: ErrBadDimensions},
		{name: "odd height", width: 640, height: 481, wantErr: ErrBadDimensions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDimensions(tt.width, tt.height)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDimensions(%d, %d) error = %v, want %v", tt.width, tt.height, err, tt.wantErr)
			}
		})
	}
}

// TestValidateFrame tests raw frame buffer validation against geometry.
func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		width   int
		height  int
		wantErr error
	}{
		{name: "nil frame", frame: nil, width: 640, height: 480, wantErr: ErrFrameEmpty},
		{name: "empty frame", frame: []byte{}, width: 640, height: 480, wantErr: ErrFrameEmpty},
		{name: "exact size", frame: make([]byte, FrameBytes(4, 4)), width: 4, height: 4, wantErr: nil},
		{name: "trailing bytes tolerated", frame: make([]byte, FrameBytes(4, 4)+16), width: 4, height: 4, wantErr: nil},
		{name: "one byte short", frame: make([]byte, FrameBytes(4, 4)-1), width: 4, height: 4, wantErr: ErrFrameTooShort},
		{name: "bad geometry wins over size", frame: make([]byte, 64), width: 0, height: 4, wantErr: ErrBadDimensions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrame(tt.frame, tt.width, tt.height)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFrame(len %d, %d, %d) error = %v, want %v",
					len(tt.frame), tt.width, tt.height, err, tt.wantErr)
			}
		})
	}
}

// TestValidateQuality tests the JPEG quality range check.
func TestValidateQuality(t *testing.T) {
	tests := []struct {
		name    string
		quality int
		wantErr error
	}{
		{name: "minimum", quality: MinJPEGQuality, wantErr: nil},
		{name: "maximum", quality: MaxJPEGQuality, wantErr: nil},
		{name: "default", quality: DefaultJPEGQuality, wantErr: nil},
		{name: "zero", quality: 0, wantErr: ErrQualityRange},
		{name: "negative", quality: -5, wantErr: ErrQualityRange},
		{name: "over 100", quality: 101, wantErr: ErrQualityRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuality(tt.quality)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateQuality(%d) error = %v, want %v", tt.quality, err, tt.wantErr)
			}
		})
	}
}

// TestConstantConsistency verifies internal consistency of the bounds.
func TestConstantConsistency(t *testing.T) {
	if MaxFrameBytes != FrameBytes(MaxFrameWidth, MaxFrameHeight) {
		t.Errorf("MaxFrameBytes (%d) != FrameBytes(MaxFrameWidth, MaxFrameHeight) (%d)",
			MaxFrameBytes, FrameBytes(MaxFrameWidth, MaxFrameHeight))
	}
	if MinJPEGQuality >= MaxJPEGQuality {
		t.Errorf("MinJPEGQuality (%d) should be < MaxJPEGQuality (%d)", MinJPEGQuality, MaxJPEGQuality)
	}
	if DefaultJPEGQuality < MinJPEGQuality || DefaultJPEGQuality > MaxJPEGQuality {
		t.Errorf("DefaultJPEGQuality (%d) outside [%d, %d]", DefaultJPEGQuality, MinJPEGQuality, MaxJPEGQuality)
	}
}

// BenchmarkValidateFrame benchmarks frame validation on a VGA buffer.
func BenchmarkValidateFrame(b *testing.B) {
	frame := make([]byte, FrameBytes(640, 480))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ValidateFrame(frame, 640, 480)
	}
}
