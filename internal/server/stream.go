package server

import (
	"context"
	"fmt"
	"iter"
	"net/http"
)

// FrameStreamer provides JPEG frames for the MJPEG endpoint.
type FrameStreamer interface {
	Frames(ctx context.Context) iter.Seq[[]byte]
	ModelAvailable() bool
}

// StreamHandler serves MJPEG frames from the shared frame source.
type StreamHandler struct {
	frames FrameStreamer
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(frames FrameStreamer) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams MJPEG frames until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.frames.ModelAvailable() {
		http.Error(w, "Error: gesture recognizer model not loaded", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	for data := range h.frames.Frames(r.Context()) {
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if flusher != nil {
			flusher.Flush()
		}
	}
}
