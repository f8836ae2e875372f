// Package emucam implements an emulated camera: frame sources feed a
// callback dispatcher that delivers preview, recording, and still
// capture notifications to a registered client, the way a camera HAL
// talks to its framework.
//
// A Camera ties together a frame source (synthetic, image file, or
// V4L2 webcam on Linux), the notification dispatcher, a JPEG still
// pipeline with embedded capture metadata, and an optional HTTP
// preview server.
//
// Example:
//
//	src, err := device.NewFakeSource(640, 480, 30)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cam, err := emucam.New(src, emucam.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cam.Close()
//
//	cam.SetCallbacks(notifier.Callbacks{
//	    Notify: func(kind notifier.Kind, ext1, ext2 int32, ctx any) {
//	        fmt.Printf("event: %s\n", kind)
//	    },
//	    Data: func(kind notifier.Kind, buf *buffer.Buffer, ctx any) {
//	        if kind == notifier.KindCompressedImage {
//	            os.WriteFile("photo.jpg", buf.Data(), 0o644)
//	        }
//	    },
//	    Allocate: func(bufSize, bufCount int, ctx any) *buffer.Buffer {
//	        return buffer.New(make([]byte, bufSize), nil)
//	    },
//	})
//
//	cam.EnableMessages(notifier.KindShutter, notifier.KindCompressedImage)
//	if err := cam.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	cam.TakePicture()
package emucam
