package adapter

import (
	"bufio"
	"bytes"
	"io"
)

// doneSentinel terminates an SSE stream.
var doneSentinel = []byte("[DONE]")

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	Name string
	Data []byte
}

// scanSSE reads server-sent events from r and invokes fn for each complete
// event. Events are dispatched on blank lines; multiple data: lines within
// one event are joined with newlines per the SSE spec. Reading stops at the
// [DONE] sentinel, at EOF, or when fn returns an error. The reader is
// buffered internally, so byte chunking across reads does not matter.
func scanSSE(r io.Reader, fn func(ev sseEvent) error) error {
	reader := bufio.NewReader(r)

	var name string
	var dataLines [][]byte

	dispatch := func() error {
		if len(dataLines) == 0 {
			name = ""
			return nil
		}
		ev := sseEvent{Name: name, Data: bytes.Join(dataLines, []byte("\n"))}
		name = ""
		dataLines = nil
		return fn(ev)
	}

	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 && err == nil {
			// blank line ends the current event
			if dispatchErr := dispatch(); dispatchErr != nil {
				return dispatchErr
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimSpace(line[5:])
			if bytes.Equal(data, doneSentinel) {
				// flush whatever was pending, then stop
				if dispatchErr := dispatch(); dispatchErr != nil {
					return dispatchErr
				}
				return nil
			}
			dataLines = append(dataLines, data)
		case bytes.HasPrefix(line, []byte("event:")):
			name = string(bytes.TrimSpace(line[6:]))
		default:
			// ignore id:, retry:, comments and anything unknown
		}

		if err != nil {
			if err == io.EOF {
				return dispatch()
			}
			return err
		}
	}
}
