package notifier

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/emucam/buffer"
)

// registerOutstanding records a delivered recording buffer pending an
// explicit release by the client.
func (n *Notifier) registerOutstanding(buf *buffer.Buffer) {
	n.mu.Lock()
	n.outstanding = append(n.outstanding, buf)
	count := len(n.outstanding)
	n.mu.Unlock()

	metricOutstanding.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"function":    "registerOutstanding",
		"outstanding": count,
	}).Trace("Recording frame handed to client")
}

// ReleaseRecordingFrame returns a recording buffer the client is done
// with. The first registry entry matching the handle identity is
// released exactly once and removed; remaining entries keep their
// order. Unknown or already released handles are tolerated silently.
func (n *Notifier) ReleaseRecordingFrame(buf *buffer.Buffer) {
	n.mu.Lock()
	found := false
	for i, b := range n.outstanding {
		if b == buf {
			n.outstanding = append(n.outstanding[:i], n.outstanding[i+1:]...)
			found = true
			break
		}
	}
	count := len(n.outstanding)
	n.mu.Unlock()

	if !found {
		logrus.WithField("function", "ReleaseRecordingFrame").
			Trace("Ignoring release of unknown recording frame")
		return
	}

	buf.Release()
	metricOutstanding.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"function":    "ReleaseRecordingFrame",
		"outstanding": count,
	}).Trace("Recording frame released")
}

// OutstandingBuffers returns the number of delivered recording buffers
// the client has not released yet.
func (n *Notifier) OutstandingBuffers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outstanding)
}
