package notifier

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/emucam/buffer"
	"github.com/opd-ai/emucam/limits"
	"github.com/opd-ai/emucam/params"
)

// stubDevice supplies fixed frame geometry.
type stubDevice struct {
	width  int
	height int
}

func (d *stubDevice) FrameWidth() int  { return d.width }
func (d *stubDevice) FrameHeight() int { return d.height }
func (d *stubDevice) FrameBufferSize() int {
	return limits.FrameBytes(d.width, d.height)
}

type notifyEvent struct {
	kind Kind
	ext1 int32
	ext2 int32
}

type dataEvent struct {
	kind    Kind
	payload []byte
	buf     *buffer.Buffer
}

type tsEvent struct {
	tsNanos int64
	kind    Kind
	payload []byte
	buf     *buffer.Buffer
}

// callbackRecorder implements all four endpoints, logging invocations in
// order. Payloads are copied at delivery time since single-shot buffers
// are only valid during the call.
type callbackRecorder struct {
	events    []string
	notifies  []notifyEvent
	datas     []dataEvent
	tsDatas   []tsEvent
	allocs    int
	allocFail bool
	wrongCtx  int
}

func (r *callbackRecorder) checkCtx(ctx any) {
	if ctx != any(r) {
		r.wrongCtx++
	}
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		Notify: func(kind Kind, ext1, ext2 int32, ctx any) {
			r.checkCtx(ctx)
			r.events = append(r.events, "notify:"+kind.String())
			r.notifies = append(r.notifies, notifyEvent{kind: kind, ext1: ext1, ext2: ext2})
		},
		Data: func(kind Kind, buf *buffer.Buffer, ctx any) {
			r.checkCtx(ctx)
			r.events = append(r.events, "data:"+kind.String())
			payload := make([]byte, buf.Size())
			copy(payload, buf.Data())
			r.datas = append(r.datas, dataEvent{kind: kind, payload: payload, buf: buf})
		},
		DataTimestamp: func(tsNanos int64, kind Kind, buf *buffer.Buffer, ctx any) {
			r.checkCtx(ctx)
			r.events = append(r.events, "ts:"+kind.String())
			payload := make([]byte, buf.Size())
			copy(payload, buf.Data())
			r.tsDatas = append(r.tsDatas, tsEvent{tsNanos: tsNanos, kind: kind, payload: payload, buf: buf})
		},
		Allocate: func(bufSize, bufCount int, ctx any) *buffer.Buffer {
			r.checkCtx(ctx)
			r.allocs++
			if r.allocFail {
				return nil
			}
			return buffer.New(make([]byte, bufSize), nil)
		},
		Context: r,
	}
}

// stubCompressor records compression requests and serves a fixed
// output.
type stubCompressor struct {
	fail        bool
	output      []byte
	calls       int
	lastWidth   int
	lastHeight  int
	lastQuality int
	lastApp1    []byte
}

func (c *stubCompressor) Compress(raw []byte, width, height, quality int, app1 []byte) error {
	c.calls++
	c.lastWidth = width
	c.lastHeight = height
	c.lastQuality = quality
	c.lastApp1 = app1
	if c.fail {
		return errors.New("encode failed")
	}
	return nil
}

func (c *stubCompressor) CompressedSize() int { return len(c.output) }

func (c *stubCompressor) CopyOutput(dst []byte) error {
	if len(dst) < len(c.output) {
		return errors.New("destination too short")
	}
	copy(dst, c.output)
	return nil
}

// stubMetadata counts handle lifecycle calls and serves a fixed
// payload.
type stubMetadata struct {
	payload     []byte
	attachOK    bool
	builds      int
	releases    int
	attaches    int
	lastThumbW  int
	lastThumbH  int
	lastQuality int
}

func (m *stubMetadata) Build(snap params.Snapshot) MetadataHandle {
	m.builds++
	return m.builds
}

func (m *stubMetadata) AttachThumbnail(h MetadataHandle, raw []byte, srcWidth, srcHeight, thumbWidth, thumbHeight, quality int) bool {
	m.attaches++
	m.lastThumbW = thumbWidth
	m.lastThumbH = thumbHeight
	m.lastQuality = quality
	return m.attachOK
}

func (m *stubMetadata) Payload(h MetadataHandle) []byte { return m.payload }

func (m *stubMetadata) Release(h MetadataHandle) { m.releases++ }

func testFrame(dev *stubDevice) []byte {
	frame := make([]byte, dev.FrameBufferSize())
	for i := range frame {
		frame[i] = byte(i * 7)
	}
	return frame
}

func TestStillCaptureSequenceOnce(t *testing.T) {
	comp := &stubCompressor{output: []byte{0xff, 0xd8, 0xaa, 0xbb, 0xff, 0xd9}}
	meta := &stubMetadata{payload: []byte("metadata block")}
	n := NewNotifier(comp, meta)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindShutter, KindRawImageNotify, KindCompressedImage)

	dev := &stubDevice{width: 4, height: 2}
	frame := testFrame(dev)

	snap := params.Default()
	snap.JPEGQuality = 85
	n.SetParameters(snap)

	n.RequestStillCapture()
	n.OnFrameAvailable(frame, 0, dev)
	n.OnFrameAvailable(frame, 1_000_000, dev)
	n.OnFrameAvailable(frame, 2_000_000, dev)

	// The intent is one-shot: three frames, one sequence.
	want := []string{"notify:shutter", "notify:raw-image-notify", "data:compressed-image"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, rec.events[i], want[i])
		}
	}

	if comp.calls != 1 {
		t.Errorf("compressor calls = %d, want 1", comp.calls)
	}
	if comp.lastQuality != 85 {
		t.Errorf("compression quality = %d, want 85", comp.lastQuality)
	}
	if comp.lastWidth != 4 || comp.lastHeight != 2 {
		t.Errorf("compression geometry = %dx%d, want 4x2", comp.lastWidth, comp.lastHeight)
	}
	if !bytes.Equal(comp.lastApp1, meta.payload) {
		t.Error("metadata payload must reach the compressor")
	}

	if len(rec.datas) != 1 {
		t.Fatalf("data deliveries = %d, want 1", len(rec.datas))
	}
	if !bytes.Equal(rec.datas[0].payload, comp.output) {
		t.Error("delivered payload must match the compressed output")
	}
	if !rec.datas[0].buf.Released() {
		t.Error("compressed-image buffer must be released after the callback")
	}

	if meta.builds != 1 || meta.releases != 1 {
		t.Errorf("metadata builds/releases = %d/%d, want 1/1", meta.builds, meta.releases)
	}
	if meta.attaches != 0 {
		t.Error("no thumbnail attach expected with thumbnails disabled")
	}
	if rec.wrongCtx != 0 {
		t.Errorf("%d callbacks saw the wrong context", rec.wrongCtx)
	}
	if n.CaptureState() != CaptureIdle {
		t.Error("capture intent must be consumed")
	}
}

func TestStillCaptureThumbnail(t *testing.T) {
	comp := &stubCompressor{output: []byte{0xff, 0xd8, 0xff, 0xd9}}
	meta := &stubMetadata{attachOK: true}
	n := NewNotifier(comp, meta)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindCompressedImage)

	snap := params.Default()
	snap.ThumbnailWidth = 160
	snap.ThumbnailHeight = 120
	snap.JPEGQuality = 70
	n.SetParameters(snap)

	dev := &stubDevice{width: 4, height: 2}
	n.RequestStillCapture()
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	if meta.attaches != 1 {
		t.Fatalf("thumbnail attaches = %d, want 1", meta.attaches)
	}
	if meta.lastThumbW != 160 || meta.lastThumbH != 120 {
		t.Errorf("thumbnail geometry = %dx%d, want 160x120", meta.lastThumbW, meta.lastThumbH)
	}
	if meta.lastQuality != 70 {
		t.Errorf("thumbnail quality = %d, want 70", meta.lastQuality)
	}
	if len(rec.datas) != 1 {
		t.Errorf("data deliveries = %d, want 1", len(rec.datas))
	}
}

func TestStillCaptureThumbnailFailureAbsorbed(t *testing.T) {
	comp := &stubCompressor{output: []byte{0xff, 0xd8, 0xff, 0xd9}}
	meta := &stubMetadata{attachOK: false}
	n := NewNotifier(comp, meta)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindCompressedImage)

	snap := params.Default()
	snap.ThumbnailWidth = 160
	snap.ThumbnailHeight = 120
	n.SetParameters(snap)

	dev := &stubDevice{width: 4, height: 2}
	n.RequestStillCapture()
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	// A failed thumbnail never blocks the capture itself.
	if len(rec.datas) != 1 {
		t.Errorf("data deliveries = %d, want 1", len(rec.datas))
	}
	if meta.releases != 1 {
		t.Errorf("metadata releases = %d, want 1", meta.releases)
	}
}

func TestStillCaptureCompressionFailure(t *testing.T) {
	comp := &stubCompressor{fail: true}
	meta := &stubMetadata{}
	n := NewNotifier(comp, meta)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindShutter, KindCompressedImage)

	dev := &stubDevice{width: 4, height: 2}
	n.RequestStillCapture()
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	if len(rec.datas) != 0 {
		t.Error("failed compression must not deliver a payload")
	}
	if len(rec.notifies) != 1 || rec.notifies[0].kind != KindShutter {
		t.Error("shutter still fires before the failed compression")
	}
	if meta.releases != 1 {
		t.Errorf("metadata releases = %d, want 1 on the failure path", meta.releases)
	}
	if n.CaptureState() != CaptureIdle {
		t.Error("intent is consumed even when compression fails")
	}
}

func TestStillCaptureAllocationFailure(t *testing.T) {
	comp := &stubCompressor{output: []byte{0xff, 0xd8, 0xff, 0xd9}}
	meta := &stubMetadata{}
	n := NewNotifier(comp, meta)

	rec := &callbackRecorder{allocFail: true}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindCompressedImage)

	dev := &stubDevice{width: 4, height: 2}
	n.RequestStillCapture()
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	if len(rec.datas) != 0 {
		t.Error("allocation failure must not deliver a payload")
	}
	if meta.releases != 1 {
		t.Errorf("metadata releases = %d, want 1 on the failure path", meta.releases)
	}
}

func TestStillCaptureWithoutCollaborators(t *testing.T) {
	n := NewNotifier(nil, nil)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindShutter, KindCompressedImage)

	dev := &stubDevice{width: 4, height: 2}
	n.RequestStillCapture()
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	if len(rec.notifies) != 1 {
		t.Errorf("notifies = %d, want shutter only", len(rec.notifies))
	}
	if len(rec.datas) != 0 {
		t.Error("no compressed delivery without collaborators")
	}
}

func TestStillCaptureWithZeroCallbacks(t *testing.T) {
	comp := &stubCompressor{output: []byte{0xff, 0xd8, 0xff, 0xd9}}
	n := NewNotifier(comp, &stubMetadata{})
	n.EnableMessages(KindShutter, KindRawImageNotify, KindCompressedImage)

	dev := &stubDevice{width: 4, height: 2}
	n.RequestStillCapture()
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	// Nothing to call, nothing to crash; the intent is still consumed.
	if n.CaptureState() != CaptureIdle {
		t.Error("intent must be consumed with no endpoints registered")
	}
	if comp.calls != 0 {
		t.Error("no compression without a data endpoint")
	}
}

func TestPreviewDelivery(t *testing.T) {
	n := NewNotifier(nil, nil)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindPreviewFrame)

	dev := &stubDevice{width: 4, height: 2}
	frame := testFrame(dev)
	n.OnFrameAvailable(frame, 0, dev)
	n.OnFrameAvailable(frame, 1, dev)

	// Preview is unpaced: every frame goes out, and the buffer comes
	// back as soon as the callback returns.
	if len(rec.datas) != 2 {
		t.Fatalf("data deliveries = %d, want 2", len(rec.datas))
	}
	for i, d := range rec.datas {
		if d.kind != KindPreviewFrame {
			t.Errorf("delivery %d kind = %v, want preview-frame", i, d.kind)
		}
		if !bytes.Equal(d.payload, frame) {
			t.Errorf("delivery %d payload does not match the frame", i)
		}
		if !d.buf.Released() {
			t.Errorf("delivery %d buffer not released after the callback", i)
		}
	}
	if n.OutstandingBuffers() != 0 {
		t.Error("preview buffers never enter the outstanding registry")
	}
}

func TestPreviewSuppressed(t *testing.T) {
	n := NewNotifier(nil, nil)
	dev := &stubDevice{width: 4, height: 2}
	frame := testFrame(dev)

	// Disabled message: the allocator is never consulted.
	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.OnFrameAvailable(frame, 0, dev)
	if rec.allocs != 0 {
		t.Error("no allocation for a disabled message")
	}

	// Enabled message but no data endpoint: same outcome.
	n.EnableMessages(KindPreviewFrame)
	cb := rec.callbacks()
	cb.Data = nil
	n.SetCallbacks(cb)
	n.OnFrameAvailable(frame, 0, dev)
	if rec.allocs != 0 {
		t.Error("no allocation without a data endpoint")
	}
}

func TestPreviewAllocationFailure(t *testing.T) {
	n := NewNotifier(nil, nil)

	rec := &callbackRecorder{allocFail: true}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindPreviewFrame)

	dev := &stubDevice{width: 4, height: 2}
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	if len(rec.datas) != 0 {
		t.Error("allocation failure must skip the delivery")
	}

	// The next frame is unaffected.
	rec.allocFail = false
	n.SetCallbacks(rec.callbacks())
	n.OnFrameAvailable(testFrame(dev), 1, dev)
	if len(rec.datas) != 1 {
		t.Errorf("data deliveries = %d, want 1 after recovery", len(rec.datas))
	}
}

func TestVideoDeliveryPacingAndRegistry(t *testing.T) {
	n := NewNotifier(nil, nil)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindVideoFrame)
	if err := n.EnableVideoRecording(30); err != nil {
		t.Fatalf("EnableVideoRecording(30) = %v", err)
	}

	dev := &stubDevice{width: 4, height: 2}
	frame := testFrame(dev)
	n.OnFrameAvailable(frame, 0, dev)
	n.OnFrameAvailable(frame, int64(10*time.Millisecond), dev)
	n.OnFrameAvailable(frame, int64(40*time.Millisecond), dev)

	// 30fps pacing admits the frames at 0ms and 40ms only.
	if len(rec.tsDatas) != 2 {
		t.Fatalf("timestamped deliveries = %d, want 2", len(rec.tsDatas))
	}
	if rec.tsDatas[0].tsNanos != 0 {
		t.Errorf("first delivery timestamp = %d, want 0", rec.tsDatas[0].tsNanos)
	}
	if rec.tsDatas[1].tsNanos != int64(40*time.Millisecond) {
		t.Errorf("second delivery timestamp = %d, want 40ms", rec.tsDatas[1].tsNanos)
	}
	for i, d := range rec.tsDatas {
		if d.kind != KindVideoFrame {
			t.Errorf("delivery %d kind = %v, want video-frame", i, d.kind)
		}
		if !bytes.Equal(d.payload, frame) {
			t.Errorf("delivery %d payload does not match the frame", i)
		}
		if d.buf.Released() {
			t.Errorf("delivery %d buffer released before the client returned it", i)
		}
	}

	// Both buffers wait in the registry until the client hands them
	// back.
	if got := n.OutstandingBuffers(); got != 2 {
		t.Fatalf("OutstandingBuffers() = %d, want 2", got)
	}
	for _, d := range rec.tsDatas {
		n.ReleaseRecordingFrame(d.buf)
	}
	if got := n.OutstandingBuffers(); got != 0 {
		t.Errorf("OutstandingBuffers() = %d, want 0 after releases", got)
	}
	for i, d := range rec.tsDatas {
		if !d.buf.Released() {
			t.Errorf("buffer %d not released after ReleaseRecordingFrame", i)
		}
	}
}

func TestVideoSuppressedWithoutRecording(t *testing.T) {
	n := NewNotifier(nil, nil)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindVideoFrame)

	// Message enabled but recording never started.
	dev := &stubDevice{width: 4, height: 2}
	n.OnFrameAvailable(testFrame(dev), 0, dev)
	if len(rec.tsDatas) != 0 {
		t.Error("no video delivery without recording")
	}

	// Recording active but no timestamped endpoint.
	if err := n.EnableVideoRecording(30); err != nil {
		t.Fatalf("EnableVideoRecording(30) = %v", err)
	}
	cb := rec.callbacks()
	cb.DataTimestamp = nil
	n.SetCallbacks(cb)
	n.OnFrameAvailable(testFrame(dev), 0, dev)
	if rec.allocs != 0 {
		t.Error("no allocation without a timestamped endpoint")
	}
}

func TestVideoAllocationFailure(t *testing.T) {
	n := NewNotifier(nil, nil)

	rec := &callbackRecorder{allocFail: true}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindVideoFrame)
	if err := n.EnableVideoRecording(30); err != nil {
		t.Fatalf("EnableVideoRecording(30) = %v", err)
	}

	dev := &stubDevice{width: 4, height: 2}
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	if len(rec.tsDatas) != 0 {
		t.Error("allocation failure must skip the delivery")
	}
	if n.OutstandingBuffers() != 0 {
		t.Error("nothing to track after a failed allocation")
	}
}

func TestAllBranchesOneFrame(t *testing.T) {
	comp := &stubCompressor{output: []byte{0xff, 0xd8, 0xff, 0xd9}}
	meta := &stubMetadata{}
	n := NewNotifier(comp, meta)

	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindVideoFrame, KindPreviewFrame, KindShutter,
		KindRawImageNotify, KindCompressedImage)
	if err := n.EnableVideoRecording(30); err != nil {
		t.Fatalf("EnableVideoRecording(30) = %v", err)
	}
	n.RequestStillCapture()

	dev := &stubDevice{width: 4, height: 2}
	n.OnFrameAvailable(testFrame(dev), 0, dev)

	// One frame feeds all three branches, video first, then preview,
	// then the still sequence.
	want := []string{
		"ts:video-frame",
		"data:preview-frame",
		"notify:shutter",
		"notify:raw-image-notify",
		"data:compressed-image",
	}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, rec.events[i], want[i])
		}
	}

	if n.OutstandingBuffers() != 1 {
		t.Error("only the video buffer stays outstanding")
	}
}

func TestOnFrameAvailableNilDevice(t *testing.T) {
	n := NewNotifier(nil, nil)
	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())
	n.EnableMessages(KindPreviewFrame)

	n.OnFrameAvailable([]byte{1, 2, 3}, 0, nil)
	if len(rec.events) != 0 {
		t.Error("a frame without geometry is dropped")
	}
}

func TestOnDeviceErrorGating(t *testing.T) {
	tests := []struct {
		name       string
		enable     bool
		withNotify bool
		want       int
	}{
		{name: "enabled with endpoint", enable: true, withNotify: true, want: 1},
		{name: "disabled with endpoint", enable: false, withNotify: true, want: 0},
		{name: "enabled without endpoint", enable: true, withNotify: false, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNotifier(nil, nil)
			rec := &callbackRecorder{}
			cb := rec.callbacks()
			if !tt.withNotify {
				cb.Notify = nil
			}
			n.SetCallbacks(cb)
			if tt.enable {
				n.EnableMessages(KindError)
			}

			n.OnDeviceError(100)

			if len(rec.notifies) != tt.want {
				t.Fatalf("notifies = %d, want %d", len(rec.notifies), tt.want)
			}
			if tt.want == 1 {
				ev := rec.notifies[0]
				if ev.kind != KindError || ev.ext1 != 100 || ev.ext2 != 0 {
					t.Errorf("notify = %+v, want error code 100", ev)
				}
			}
		})
	}
}

func TestCompleteAutoFocusIgnoresMask(t *testing.T) {
	n := NewNotifier(nil, nil)
	rec := &callbackRecorder{}
	n.SetCallbacks(rec.callbacks())

	// The focus message is not enabled; completion reports anyway.
	n.CompleteAutoFocus()
	if len(rec.notifies) != 1 {
		t.Fatalf("notifies = %d, want 1", len(rec.notifies))
	}
	ev := rec.notifies[0]
	if ev.kind != KindFocus || ev.ext1 != 1 {
		t.Errorf("notify = %+v, want focus success", ev)
	}

	// Without a notify endpoint the report is suppressed.
	n.SetCallbacks(Callbacks{})
	n.CompleteAutoFocus()
	if len(rec.notifies) != 1 {
		t.Error("no report without a notify endpoint")
	}
}

func BenchmarkPreviewDispatch(b *testing.B) {
	n := NewNotifier(nil, nil)
	n.SetCallbacks(Callbacks{
		Data: func(kind Kind, buf *buffer.Buffer, ctx any) {},
		Allocate: func(bufSize, bufCount int, ctx any) *buffer.Buffer {
			return buffer.New(make([]byte, bufSize), nil)
		},
	})
	n.EnableMessages(KindPreviewFrame)

	dev := &stubDevice{width: 640, height: 480}
	frame := make([]byte, dev.FrameBufferSize())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n.OnFrameAvailable(frame, int64(i), dev)
	}
}
