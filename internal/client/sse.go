package client

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/choonkeat/sandterm/internal/protocol"
)

// sseParser reassembles stream events from arbitrarily-chunked SSE bytes.
// Frames are blank-line delimited; a frame's data: lines are joined before
// the JSON decode. Malformed events are logged and skipped, never fatal.
type sseParser struct {
	buf strings.Builder
}

// feed appends a chunk and returns every complete event it finished.
func (p *sseParser) feed(chunk []byte) []protocol.StreamEvent {
	p.buf.WriteString(strings.ReplaceAll(string(chunk), "\r\n", "\n"))

	raw := p.buf.String()
	var events []protocol.StreamEvent
	for {
		i := strings.Index(raw, "\n\n")
		if i < 0 {
			break
		}
		frame := raw[:i]
		raw = raw[i+2:]
		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}
	p.buf.Reset()
	p.buf.WriteString(raw)
	return events
}

// flush drains whatever trailing partial frame remains after the stream
// ends. Servers usually terminate the last frame properly, but a cut
// connection may not.
func (p *sseParser) flush() []protocol.StreamEvent {
	frame := p.buf.String()
	p.buf.Reset()
	if strings.TrimSpace(frame) == "" {
		return nil
	}
	if ev, ok := parseFrame(frame); ok {
		return []protocol.StreamEvent{ev}
	}
	return nil
}

func parseFrame(frame string) (protocol.StreamEvent, bool) {
	var data []string
	for _, line := range strings.Split(frame, "\n") {
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(rest, " "))
		}
	}
	if len(data) == 0 {
		return protocol.StreamEvent{}, false
	}
	payload := strings.Join(data, "\n")

	var ev protocol.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Printf("[exec] skipping malformed stream event %q: %v", payload, err)
		return protocol.StreamEvent{}, false
	}
	return ev, true
}
