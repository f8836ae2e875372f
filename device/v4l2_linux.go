//go:build linux

package device

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackjack/webcam"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/limits"
	"github.com/opd-ai/emucam/yuv"
)

// webcamReadTimeout is the per-frame wait in seconds.
const webcamReadTimeout = 2

type webcamFormat uint8

const (
	formatMJPEG webcamFormat = iota
	formatYUYV
)

// WebcamSource captures from a V4L2 device, converting Motion-JPEG or
// YUYV input to NV21.
type WebcamSource struct {
	path   string
	cam    *webcam.Webcam
	format webcamFormat
	width  int
	height int
	epoch  time.Time

	seq atomic.Uint64

	mu       sync.Mutex
	running  bool
	closed   bool
	listener Listener
	stop     chan struct{}
	done     chan struct{}
}

// NewWebcamSource opens the V4L2 device at path and negotiates the
// closest supported geometry to the requested one. Motion-JPEG is
// preferred; YUYV is the fallback. Call Close to release the device
// when done.
func NewWebcamSource(path string, width, height int) (*WebcamSource, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	var (
		mjpegFmt, yuyvFmt   webcam.PixelFormat
		haveMJPEG, haveYUYV bool
	)
	for f, desc := range cam.GetSupportedFormats() {
		switch {
		case strings.HasPrefix(desc, "Motion-JPEG"):
			mjpegFmt, haveMJPEG = f, true
		case strings.HasPrefix(desc, "YUYV"):
			yuyvFmt, haveYUYV = f, true
		}
	}

	var (
		pixelFormat webcam.PixelFormat
		format      webcamFormat
	)
	switch {
	case haveMJPEG:
		pixelFormat, format = mjpegFmt, formatMJPEG
	case haveYUYV:
		pixelFormat, format = yuyvFmt, formatYUYV
	default:
		cam.Close()
		return nil, fmt.Errorf("device %s supports neither Motion-JPEG nor YUYV", path)
	}

	_, w, h, err := cam.SetImageFormat(pixelFormat, uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("negotiating %dx%d on %s: %w", width, height, path, err)
	}
	if err := limits.ValidateDimensions(int(w), int(h)); err != nil {
		cam.Close()
		return nil, fmt.Errorf("unusable driver geometry %dx%d: %w", w, h, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewWebcamSource",
		"path":     path,
		"width":    w,
		"height":   h,
		"mjpeg":    format == formatMJPEG,
	}).Info("Opened V4L2 capture device")

	return &WebcamSource{
		path:   path,
		cam:    cam,
		format: format,
		width:  int(w),
		height: int(h),
		epoch:  time.Now(),
	}, nil
}

// Name implements Source.
func (s *WebcamSource) Name() string { return "v4l2:" + s.path }

// FrameWidth implements Source.
func (s *WebcamSource) FrameWidth() int { return s.width }

// FrameHeight implements Source.
func (s *WebcamSource) FrameHeight() int { return s.height }

// FrameBufferSize implements Source.
func (s *WebcamSource) FrameBufferSize() int {
	return limits.FrameBytes(s.width, s.height)
}

// Start implements Source.
func (s *WebcamSource) Start(listener Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("device %s is closed", s.path)
	}

	if err := s.cam.StartStreaming(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("starting stream on %s: %w", s.path, err)
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
func (s *WebcamSource) Stop() error {
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

	if err := s.cam.StopStreaming(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
			"source":   s.Name(),
			"error":    err,
		}).Warn("Stream teardown failed")
	}

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"source":   s.Name(),
	}).Info("Capture stopped")
	return nil
}

// Close releases the V4L2 device. The source is unusable afterwards.
func (s *WebcamSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	s.mu.Unlock()

	if running {
		if err := s.Stop(); err != nil && err != ErrNotStarted {
			logrus.WithFields(logrus.Fields{
				"function": "Close",
				"source":   s.Name(),
				"error":    err,
			}).Warn("Stopping capture during close failed")
		}
	}
	return s.cam.Close()
}

func (s *WebcamSource) captureLoop(stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		err := s.cam.WaitForFrame(webcamReadTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			logrus.WithFields(logrus.Fields{
				"function": "captureLoop",
				"source":   s.Name(),
				"error":    err,
			}).Error("Capture backend failed")
			s.reportError(ErrorServerDied)
			return
		}

		raw, err := s.cam.ReadFrame()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "captureLoop",
				"source":   s.Name(),
				"error":    err,
			}).Warn("Dropping unreadable frame")
			continue
		}
		if len(raw) == 0 {
			continue
		}

		data, ok := s.convert(raw)
		if !ok {
			continue
		}

		frame := Frame{
			Seq:            s.seq.Add(1) - 1,
			TimestampNanos: time.Since(s.epoch).Nanoseconds(),
			Width:          s.width,
			Height:         s.height,
			Data:           data,
			TraceID:        uuid.New(),
		}

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener != nil {
			listener.OnFrame(frame)
		}
	}
}

// convert repacks one driver frame as NV21, dropping frames the
// converter rejects.
func (s *WebcamSource) convert(raw []byte) ([]byte, bool) {
	switch s.format {
	case formatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "convert",
				"source":   s.Name(),
				"error":    err,
			}).Warn("Dropping undecodable MJPEG frame")
			return nil, false
		}
		data, w, h, err := yuv.FromImage(img)
		if err != nil || w != s.width || h != s.height {
			logrus.WithFields(logrus.Fields{
				"function": "convert",
				"source":   s.Name(),
				"width":    w,
				"height":   h,
			}).Warn("Dropping frame with unexpected geometry")
			return nil, false
		}
		return data, true

	default:
		data, err := yuv.FromYUYV(raw, s.width, s.height)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "convert",
				"source":   s.Name(),
				"error":    err,
			}).Warn("Dropping malformed YUYV frame")
			return nil, false
		}
		return data, true
	}
}

func (s *WebcamSource) reportError(code int32) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener.OnCaptureError(code)
	}
}
