// Package jsonl reads and writes JSON Lines streams.
package jsonl

import (
	"bufio"
	"encoding/json"
	"io"
)

// Writer emits one JSON document per line.
type Writer struct {
	enc *json.Encoder
}

// NewWriter wraps w. json.Encoder already terminates each document with a
// newline, which is exactly the JSON Lines framing.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write appends one line.
func (w *Writer) Write(v any) error {
	return w.enc.Encode(v)
}

// Reader decodes one JSON document per line.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader wraps r. Lines up to 4 MiB are supported.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{sc: sc}
}

// Next decodes the next non-empty line into v. Returns io.EOF when the
// stream is exhausted.
func (r *Reader) Next(v any) error {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return json.Unmarshal(line, v)
	}
	if err := r.sc.Err(); err != nil {
		return err
	}
	return io.EOF
}
