package omnillm

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is a single Server-Sent Event: an optional event name and the
// joined data payload.
type sseEvent struct {
	Event string
	Data  string
}

// done reports whether the event is the [DONE] sentinel several providers
// use to terminate a stream.
func (e *sseEvent) done() bool {
	return e.Event == "[DONE]" || e.Data == "[DONE]"
}

// sseReader parses an SSE byte stream into discrete events. The sequence is
// lazy and non-restartable: each Next call consumes input.
type sseReader struct {
	scanner *bufio.Scanner
}

// sseMaxLineSize bounds a single SSE line; large tool-call argument deltas
// fit comfortably within 1 MiB.
const sseMaxLineSize = 1024 * 1024

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), sseMaxLineSize)
	return &sseReader{scanner: scanner}
}

// Next returns the next event, or io.EOF when the stream ends. The [DONE]
// sentinel is returned as an event with Event set to "[DONE]".
func (r *sseReader) Next() (*sseEvent, error) {
	var event sseEvent
	var dataLines []string
	hasData := false

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Blank line terminates the pending event.
		if line == "" {
			if hasData {
				event.Data = strings.Join(dataLines, "\n")
				return &event, nil
			}
			continue
		}

		// Comment line.
		if strings.HasPrefix(line, ":") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			// One optional leading space per the SSE spec.
			data = strings.TrimPrefix(data, " ")
			if data == "[DONE]" {
				return &sseEvent{Event: "[DONE]", Data: "[DONE]"}, nil
			}
			dataLines = append(dataLines, data)
			hasData = true
		case strings.HasPrefix(line, "retry:"):
			// Reconnect delays do not apply; streams are one-shot.
			continue
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Flush a final event that was not blank-line terminated.
	if hasData {
		event.Data = strings.Join(dataLines, "\n")
		return &event, nil
	}

	return nil, io.EOF
}
