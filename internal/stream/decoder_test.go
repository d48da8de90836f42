// internal/stream/decoder_test.go
package stream

import (
	"reflect"
	"testing"
)

const sampleStream = "data: {\"stage\": \"planning\", \"message\": \"Constructing a Master Plan....\"}\n\n" +
	"data: {\"stage\": \"plan_complete\", \"plan\": \"line one\\nline two\"}\n\n" +
	": keep-alive comment\n" +
	"data: {\"stage\": \"coding_complete\", \"files\": {\"/App.tsx\": \"export default 1\"}}\n\n"

func decodeAll(t *testing.T, chunks [][]byte) []string {
	t.Helper()
	d := NewFrameDecoder()
	var records []string
	for _, chunk := range chunks {
		records = append(records, d.Feed(chunk)...)
	}
	return records
}

func TestFrameDecoderSplitInvariance(t *testing.T) {
	whole := decodeAll(t, [][]byte{[]byte(sampleStream)})
	if len(whole) != 3 {
		t.Fatalf("expected 3 records from whole stream, got %d: %v", len(whole), whole)
	}

	t.Run("OneBytePerChunk", func(t *testing.T) {
		var chunks [][]byte
		for i := 0; i < len(sampleStream); i++ {
			chunks = append(chunks, []byte{sampleStream[i]})
		}
		if got := decodeAll(t, chunks); !reflect.DeepEqual(got, whole) {
			t.Errorf("byte-at-a-time decode diverged:\n got %v\nwant %v", got, whole)
		}
	})

	t.Run("EverySplitPoint", func(t *testing.T) {
		for i := 1; i < len(sampleStream); i++ {
			chunks := [][]byte{[]byte(sampleStream[:i]), []byte(sampleStream[i:])}
			if got := decodeAll(t, chunks); !reflect.DeepEqual(got, whole) {
				t.Fatalf("split at %d diverged:\n got %v\nwant %v", i, got, whole)
			}
		}
	})

	t.Run("SplitMidEscape", func(t *testing.T) {
		// Split inside the \n escape of the plan payload.
		idx := len(`data: {"stage": "planning", "message": "Constructing a Master Plan...."}` + "\n\n" + `data: {"stage": "plan_complete", "plan": "line one\`)
		chunks := [][]byte{[]byte(sampleStream[:idx]), []byte(sampleStream[idx:])}
		if got := decodeAll(t, chunks); !reflect.DeepEqual(got, whole) {
			t.Errorf("mid-escape split diverged:\n got %v\nwant %v", got, whole)
		}
	})
}

func TestFrameDecoderDiscardsNonRecords(t *testing.T) {
	d := NewFrameDecoder()
	records := d.Feed([]byte("event: progress\n\nnot a record\ndata: {\"stage\":\"coding\"}\n"))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %v", len(records), records)
	}
	if records[0] != `{"stage":"coding"}` {
		t.Errorf("unexpected payload: %q", records[0])
	}
}

func TestFrameDecoderTrailingPartial(t *testing.T) {
	d := NewFrameDecoder()
	records := d.Feed([]byte("data: {\"stage\":\"planning\"}\ndata: {\"stage\":\"cod"))
	if len(records) != 1 {
		t.Fatalf("expected 1 complete record, got %d", len(records))
	}
	if d.Pending() == 0 {
		t.Error("expected partial line to stay buffered")
	}

	d.Reset()
	if d.Pending() != 0 {
		t.Error("Reset must discard the partial record")
	}
	if got := d.Feed([]byte("ing\"}\n")); len(got) != 0 {
		t.Errorf("discarded partial must not resurface, got %v", got)
	}
}

func TestFrameDecoderCRLF(t *testing.T) {
	d := NewFrameDecoder()
	records := d.Feed([]byte("data: {\"stage\":\"planning\"}\r\n"))
	if len(records) != 1 || records[0] != `{"stage":"planning"}` {
		t.Errorf("CRLF line mishandled: %v", records)
	}
}

func TestParseEvent(t *testing.T) {
	t.Run("WrappedFiles", func(t *testing.T) {
		ev, err := ParseEvent(`{"stage":"complete","files":{"/App.tsx":{"code":"x"},"/b.ts":"y"},"review":"ok"}`)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if ev.Files["/App.tsx"] != "x" || ev.Files["/b.ts"] != "y" {
			t.Errorf("dual-form files mishandled: %v", ev.Files)
		}
		if ev.Review != "ok" {
			t.Errorf("review field lost: %q", ev.Review)
		}
	})

	t.Run("MissingStage", func(t *testing.T) {
		if _, err := ParseEvent(`{"message":"hi"}`); err == nil {
			t.Error("expected error for record without stage")
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		if _, err := ParseEvent(`{"stage":`); err == nil {
			t.Error("expected error for truncated JSON")
		}
	})
}
