package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/odgsully/renoscore/internal/model"
)

// eventWriter writes progress events as a text/event-stream.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newEventWriter reports false when w cannot stream. Nothing is written
// until open.
func newEventWriter(w http.ResponseWriter) (*eventWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &eventWriter{w: w, flusher: flusher}, true
}

// open sends the stream headers. Headers set on w afterwards are ignored.
func (e *eventWriter) open() {
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(http.StatusOK)
	e.flusher.Flush()
}

func (e *eventWriter) send(ev model.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "server: marshal event")
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Stage, data); err != nil {
		return eris.Wrap(err, "server: write event")
	}
	e.flusher.Flush()
	return nil
}
