package device

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image.Decode
	_ "image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/limits"
	"github.com/opd-ai/emucam/yuv"
)

// FileSource serves frames decoded from an image file, reloading the
// payload whenever the file changes on disk. The geometry is fixed by
// the first decode; a rewrite with different dimensions keeps the
// previous payload, as does any decode failure.
type FileSource struct {
	path   string
	width  int
	height int
	fps    int
	epoch  time.Time

	seq atomic.Uint64

	mu       sync.Mutex
	frame    []byte
	running  bool
	listener Listener
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
}

// NewFileSource decodes the image at path and creates a source that
// repeats it at the given frame rate until the file changes.
func NewFileSource(path string, fps int) (*FileSource, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("%w: %d fps", ErrBadFrameRate, fps)
	}

	frame, width, height, err := loadImageFrame(path)
	if err != nil {
		return nil, fmt.Errorf("loading source image: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewFileSource",
		"path":     path,
		"width":    width,
		"height":   height,
		"fps":      fps,
	}).Info("Creating file frame source")

	return &FileSource{
		path:   path,
		width:  width,
		height: height,
		fps:    fps,
		epoch:  time.Now(),
		frame:  frame,
	}, nil
}

// loadImageFrame decodes one image file into an NV21 payload.
func loadImageFrame(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decoding %s: %w", path, err)
	}
	return yuv.FromImage(img)
}

// Name implements Source.
func (s *FileSource) Name() string { return "file:" + filepath.Base(s.path) }

// FrameWidth implements Source.
func (s *FileSource) FrameWidth() int { return s.width }

// FrameHeight implements Source.
func (s *FileSource) FrameHeight() int { return s.height }

// FrameBufferSize implements Source.
func (s *FileSource) FrameBufferSize() int {
	return limits.FrameBytes(s.width, s.height)
}

// Start implements Source. The file's directory is watched so that
// atomic saves (write to temp, rename over) are seen as well as
// in-place writes.
func (s *FileSource) Start(listener Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		s.mu.Unlock()
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	s.running = true
	s.listener = listener
	s.watcher = watcher
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"source":   s.Name(),
	}).Info("Capture started")

	go s.captureLoop(watcher, stop, done)
	return nil
}

// Stop implements Source.
func (s *FileSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.running = false
	watcher := s.watcher
	s.watcher = nil
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	watcher.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"source":   s.Name(),
	}).Info("Capture stopped")
	return nil
}

func (s *FileSource) captureLoop(watcher *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)

	base := filepath.Base(s.path)
	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "captureLoop",
				"source":   s.Name(),
				"error":    err,
			}).Warn("File watcher error")

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

// reload re-decodes the file, keeping the previous payload on any
// failure or geometry change.
func (s *FileSource) reload() {
	frame, width, height, err := loadImageFrame(s.path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "reload",
			"source":   s.Name(),
			"error":    err,
		}).Warn("Keeping previous frame after decode failure")
		return
	}
	if width != s.width || height != s.height {
		logrus.WithFields(logrus.Fields{
			"function": "reload",
			"source":   s.Name(),
			"width":    width,
			"height":   height,
		}).Warn("Keeping previous frame after geometry change")
		return
	}

	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "reload",
		"source":   s.Name(),
	}).Info("Source image reloaded")
}

// CaptureOnce returns the next frame synchronously using the current
// payload.
func (s *FileSource) CaptureOnce() Frame {
	s.mu.Lock()
	payload := s.frame
	s.mu.Unlock()

	// Deliveries share the decoded payload; sources hand ownership to
	// the listener, so copy per frame.
	data := make([]byte, len(payload))
	copy(data, payload)

	return Frame{
		Seq:            s.seq.Add(1) - 1,
		TimestampNanos: time.Since(s.epoch).Nanoseconds(),
		Width:          s.width,
		Height:         s.height,
		Data:           data,
		TraceID:        uuid.New(),
	}
}
