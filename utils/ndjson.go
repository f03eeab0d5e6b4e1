package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// NDJSONContentType is the media type of newline-delimited JSON streams
const NDJSONContentType = "application/x-ndjson"

// ErrStreamingUnsupported is returned when the response cannot be flushed
var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

// NDJSONWriter writes one JSON record per line and flushes after each one.
// Headers are committed lazily on the first record so that a handler can
// still send an ordinary error response when nothing was streamed.
type NDJSONWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
	started bool
}

// NewNDJSONWriter wraps w. It fails when w cannot flush.
func NewNDJSONWriter(w http.ResponseWriter) (*NDJSONWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &NDJSONWriter{w: w, flusher: flusher, enc: json.NewEncoder(w)}, nil
}

// Send writes record and flushes it to the client
func (n *NDJSONWriter) Send(ctx context.Context, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !n.started {
		h := n.w.Header()
		h.Set("Content-Type", NDJSONContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}
	if err := n.enc.Encode(record); err != nil {
		return err
	}
	n.flusher.Flush()
	return nil
}

// Started reports whether any record has been written
func (n *NDJSONWriter) Started() bool {
	return n.started
}
