package adapter

import (
	"io"
	"strings"
	"testing"
)

// chunkReader yields at most n bytes per Read to exercise events split
// across network reads.
type chunkReader struct {
	s string
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.s) == 0 {
		return 0, io.EOF
	}
	n := c.n
	if n > len(c.s) {
		n = len(c.s)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.s[:n])
	c.s = c.s[n:]
	return n, nil
}

func collectSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	if err := scanSSE(r, func(ev sseEvent) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("scanSSE failed: %v", err)
	}
	return events
}

func TestScanSSEBasic(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
	events := collectSSE(t, strings.NewReader(input))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if string(events[0].Data) != `{"a":1}` || string(events[1].Data) != `{"b":2}` {
		t.Errorf("unexpected events: %q %q", events[0].Data, events[1].Data)
	}
}

func TestScanSSEChunked(t *testing.T) {
	input := "event: delta\ndata: hello\n\ndata: world\n\n"
	for _, size := range []int{1, 2, 3, 7} {
		events := collectSSE(t, &chunkReader{s: input, n: size})
		if len(events) != 2 {
			t.Fatalf("chunk %d: expected 2 events, got %d", size, len(events))
		}
		if events[0].Name != "delta" || string(events[0].Data) != "hello" {
			t.Errorf("chunk %d: unexpected first event: %+v", size, events[0])
		}
		if events[1].Name != "" || string(events[1].Data) != "world" {
			t.Errorf("chunk %d: event name must reset between events: %+v", size, events[1])
		}
	}
}

func TestScanSSEMultiDataLines(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	events := collectSSE(t, strings.NewReader(input))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Data) != "line1\nline2" {
		t.Errorf("data lines must be joined with newline: %q", events[0].Data)
	}
}

func TestScanSSEDoneStopsReading(t *testing.T) {
	input := "data: first\n\ndata: [DONE]\n\ndata: after\n\n"
	events := collectSSE(t, strings.NewReader(input))
	if len(events) != 1 {
		t.Fatalf("expected reading to stop at the sentinel, got %d events", len(events))
	}
}

func TestScanSSEEOFFlushesPending(t *testing.T) {
	// no trailing blank line before EOF
	input := "data: tail"
	events := collectSSE(t, strings.NewReader(input))
	if len(events) != 1 || string(events[0].Data) != "tail" {
		t.Fatalf("pending event must be flushed at EOF: %+v", events)
	}
}

func TestScanSSEIgnoresCommentsAndCRLF(t *testing.T) {
	input := ": keepalive\r\nid: 7\r\ndata: payload\r\n\r\n"
	events := collectSSE(t, strings.NewReader(input))
	if len(events) != 1 || string(events[0].Data) != "payload" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
