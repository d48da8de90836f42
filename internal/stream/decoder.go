// internal/stream/decoder.go
package stream

import (
	"bytes"
	"strings"
)

// recordPrefix marks a payload-carrying line in the backend's event stream.
const recordPrefix = "data:"

// FrameDecoder reassembles logical records from an arbitrarily-chunked byte
// stream. Chunk boundaries carry no meaning: a record may be split anywhere,
// including mid-JSON-escape, and Feed always yields the same record sequence
// as a single whole-stream write would.
type FrameDecoder struct {
	buf []byte
}

// NewFrameDecoder returns a decoder with an empty buffer.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Feed appends a chunk and returns the payloads of every line completed by
// it. An unfinished trailing line stays buffered for the next chunk. Lines
// without the record prefix (blank keep-alives, comments) are discarded.
func (d *FrameDecoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var records []string
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return records
		}

		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]

		line = strings.TrimSuffix(line, "\r")
		payload, ok := strings.CutPrefix(line, recordPrefix)
		if !ok {
			continue
		}
		records = append(records, strings.TrimPrefix(payload, " "))
	}
}

// Reset discards any buffered partial line. Called at end of stream: a
// trailing record without its newline is incomplete and unusable.
func (d *FrameDecoder) Reset() {
	d.buf = nil
}

// Pending reports how many buffered bytes await a newline.
func (d *FrameDecoder) Pending() int {
	return len(d.buf)
}
