package device

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/limits"
)

// checkerCell is the edge length in pixels of one checkerboard square.
const checkerCell = 32

// FakeSource synthesizes NV21 frames without hardware: a checkerboard
// that scrolls one pixel per frame with a slowly cycling color cast.
// Safe for concurrent Start/Stop from multiple goroutines.
type FakeSource struct {
	width  int
	height int
	fps    int
	epoch  time.Time

	seq atomic.Uint64

	mu       sync.Mutex
	running  bool
	listener Listener
	stop     chan struct{}
	done     chan struct{}
}

// NewFakeSource creates a synthetic source with the given geometry and
// frame rate.
func NewFakeSource(width, height, fps int) (*FakeSource, error) {
	if err := limits.ValidateDimensions(width, height); err != nil {
		return nil, fmt.Errorf("fake source geometry: %w", err)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: %d fps", ErrBadFrameRate, fps)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewFakeSource",
		"width":    width,
		"height":   height,
		"fps":      fps,
	}).Info("Creating synthetic frame source")

	return &FakeSource{
		width:  width,
		height: height,
		fps:    fps,
		epoch:  time.Now(),
	}, nil
}

// Name implements Source.
func (s *FakeSource) Name() string { return "fake" }

// FrameWidth implements Source.
func (s *FakeSource) FrameWidth() int { return s.width }

// FrameHeight implements Source.
func (s *FakeSource) FrameHeight() int { return s.height }

// FrameBufferSize implements Source.
func (s *FakeSource) FrameBufferSize() int {
	return limits.FrameBytes(s.width, s.height)
}

// Start implements Source.
func (s *FakeSource) Start(listener Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.listener = listener
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"source":   s.Name(),
	}).Info("Capture started")

	go s.captureLoop(stop, done)
	return nil
}

// Stop implements Source.
func (s *FakeSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"source":   s.Name(),
	}).Info("Capture stopped")
	return nil
}

func (s *FakeSource) captureLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := s.CaptureOnce()
			s.mu.Lock()
			listener := s.listener
			s.mu.Unlock()
			if listener != nil {
				listener.OnFrame(frame)
			}
		}
	}
}

// CaptureOnce synthesizes the next frame synchronously. Useful for
// driving a capture pipeline without the ticker goroutine.
func (s *FakeSource) CaptureOnce() Frame {
	seq := s.seq.Add(1) - 1
	data := make([]byte, s.FrameBufferSize())
	s.fillFrame(data, seq)

	return Frame{
		Seq:            seq,
		TimestampNanos: time.Since(s.epoch).Nanoseconds(),
		Width:          s.width,
		Height:         s.height,
		Data:           data,
		TraceID:        uuid.New(),
	}
}

// fillFrame renders the scrolling checkerboard into an NV21 buffer.
func (s *FakeSource) fillFrame(data []byte, seq uint64) {
	shift := int(seq % (checkerCell * 2))

	for y := 0; y < s.height; y++ {
		row := data[y*s.width : (y+1)*s.width]
		for x := 0; x < s.width; x++ {
			cx := (x + shift) / checkerCell
			cy := y / checkerCell
			if (cx+cy)%2 == 0 {
				row[x] = 0xa0
			} else {
				row[x] = 0x50
			}
		}
	}

	// Uniform chroma per frame, drifting through the palette. V leads
	// in NV21.
	v := byte(96 + (seq*3)%64)
	u := byte(96 + (seq*5)%64)
	chroma := data[s.width*s.height:]
	for i := 0; i+1 < len(chroma); i += 2 {
		chroma[i] = v
		chroma[i+1] = u
	}
}
