// ABOUTME: Response writer wrapper tracking whether the response has started.
// ABOUTME: Guards error writes after a backend began streaming output.

package transport

import "net/http"

// trackingWriter records whether headers or body bytes were written, so
// error paths can check for an already-started response before writing.
// It also retains the first body-write failure so the router can reclaim
// a session whose client disappeared mid-response.
type trackingWriter struct {
	http.ResponseWriter
	wrote    bool
	writeErr error
}

func newTrackingWriter(w http.ResponseWriter) *trackingWriter {
	return &trackingWriter{ResponseWriter: w}
}

func (tw *trackingWriter) WriteHeader(status int) {
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(status)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.wrote = true
	n, err := tw.ResponseWriter.Write(b)
	if err != nil && tw.writeErr == nil {
		tw.writeErr = err
	}
	return n, err
}

// Flush passes through to the underlying writer when it supports
// streaming.
func (tw *trackingWriter) Flush() {
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
