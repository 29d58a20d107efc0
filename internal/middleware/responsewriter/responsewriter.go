// Package responsewriter wraps an http.ResponseWriter to remember the status
// code that was sent, for logging and metrics.
package responsewriter

import (
	"net/http"
)

type Recorder struct {
	http.ResponseWriter

	status      int
	wroteHeader bool
}

func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *Recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *Recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Status is the status code sent so far, 200 if none was set explicitly.
func (r *Recorder) Status() int {
	return r.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *Recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
