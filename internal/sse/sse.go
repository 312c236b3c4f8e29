// Package sse writes and reads server-sent event streams carrying JSON
// payloads on data lines.
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("sse: streaming unsupported")

// Writer emits `data: <json>` events and flushes after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter prepares w for an event stream and writes the response headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes v as one JSON data event.
func (w *Writer) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", b); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Comment writes a comment line, used as keep-alive.
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Decoder reassembles events from a stream read in arbitrary chunks. Events
// end at a blank line; CRLF and LF line endings are accepted, comment
// lines are skipped and multiple data lines of one event are joined with a
// newline. Fields other than data are ignored.
type Decoder struct {
	r    *bufio.Reader
	data []string
	err  error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the data of the next event. It returns io.EOF once the
// stream ended; a final event not terminated by a blank line is still
// delivered.
func (d *Decoder) Next() (string, error) {
	if d.err != nil {
		return "", d.err
	}
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			d.err = err
			if len(d.data) > 0 {
				return d.flush(), nil
			}
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(d.data) > 0 {
				return d.flush(), nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			d.data = append(d.data, strings.TrimPrefix(v, " "))
		}
	}
}

// Decode reads the next event and unmarshals its JSON data into v.
func (d *Decoder) Decode(v any) error {
	data, err := d.Next()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), v)
}

func (d *Decoder) flush() string {
	s := strings.Join(d.data, "\n")
	d.data = d.data[:0]
	return s
}
