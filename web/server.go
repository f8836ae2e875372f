// Package web serves the camera preview over HTTP: an MJPEG stream, a
// websocket feed of JPEG frames, a small viewer page, and Prometheus
// metrics.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//go:embed assets/index.html
var assets embed.FS

const (
	mjpegBoundary = "frame"

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second

	// subscriberBacklog bounds per-client frame queues; slow clients
	// drop frames instead of stalling Publish.
	subscriberBacklog = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriber struct {
	id string
	ch chan []byte
}

// PreviewServer fans published JPEG frames out to any number of MJPEG
// and websocket viewers. Frames are published by the capture side; the
// server never blocks it.
type PreviewServer struct {
	addr string
	srv  *http.Server

	mu      sync.Mutex
	ln      net.Listener
	latest  []byte
	clients map[string]*subscriber
}

// NewPreviewServer creates a server that will listen on addr once
// started.
func NewPreviewServer(addr string) *PreviewServer {
	s := &PreviewServer{
		addr:    addr,
		clients: make(map[string]*subscriber),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Handler: mux}

	return s
}

// Start binds the listen address and serves in the background.
func (s *PreviewServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"addr":     ln.Addr().String(),
	}).Info("Preview server listening")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "Start",
				"error":    err,
			}).Error("Preview server failed")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *PreviewServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Shutdown disconnects all viewers and stops the server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, sub := range s.clients {
		delete(s.clients, id)
		close(sub.ch)
	}
	s.mu.Unlock()
	metricClients.Set(0)

	return s.srv.Shutdown(ctx)
}

// Publish hands one JPEG frame to every connected viewer. The frame is
// copied, so the caller may reuse its buffer. Viewers that cannot keep
// up miss frames.
func (s *PreviewServer) Publish(frame []byte) {
	if len(frame) == 0 {
		return
	}
	owned := make([]byte, len(frame))
	copy(owned, frame)

	s.mu.Lock()
	s.latest = owned
	for _, sub := range s.clients {
		select {
		case sub.ch <- owned:
		default:
			metricDropped.Inc()
		}
	}
	s.mu.Unlock()

	metricPublished.Inc()
}

func (s *PreviewServer) lastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *PreviewServer) subscribe() *subscriber {
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan []byte, subscriberBacklog),
	}

	s.mu.Lock()
	s.clients[sub.id] = sub
	count := len(s.clients)
	s.mu.Unlock()

	metricClients.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"function": "subscribe",
		"client":   sub.id,
		"clients":  count,
	}).Debug("Viewer connected")
	return sub
}

func (s *PreviewServer) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	if _, ok := s.clients[sub.id]; ok {
		delete(s.clients, sub.id)
		close(sub.ch)
	}
	count := len(s.clients)
	s.mu.Unlock()

	metricClients.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"function": "unsubscribe",
		"client":   sub.id,
		"clients":  count,
	}).Debug("Viewer disconnected")
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	content, err := assets.ReadFile("assets/index.html")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleIndex",
			"error":    err.Error(),
		}).Error("Viewer page asset unreadable")
		http.Error(w, "viewer page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write(content)
}

// handleStream serves multipart/x-mixed-replace MJPEG. The last
// published frame goes out immediately so a new viewer is never blank.
func (s *PreviewServer) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.subscribe()
	defer s.unsubscribe(sub)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)

	if last := s.lastFrame(); last != nil {
		if err := writeMJPEGPart(w, last); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := writeMJPEGPart(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeMJPEGPart(w io.Writer, frame []byte) error {
	_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		mjpegBoundary, len(frame))
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}

func (s *PreviewServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleWS",
			"error":    err,
		}).Warn("Websocket upgrade failed")
		return
	}

	sub := s.subscribe()
	go s.writePump(conn, sub)
	go s.readPump(conn, sub)
}

func (s *PreviewServer) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		s.unsubscribe(sub)
	}()

	if last := s.lastFrame(); last != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, last); err != nil {
			return
		}
	}

	for {
		select {
		case frame, ok := <-sub.ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *PreviewServer) readPump(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		conn.Close()
		s.unsubscribe(sub)
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithFields(logrus.Fields{
					"function": "readPump",
					"client":   sub.id,
					"error":    err,
				}).Debug("Websocket closed unexpectedly")
			}
			return
		}
	}
}
