// internal/sse/sse.go
package sse

import (
	"bytes"
	"fmt"
	"io"
)

// Event is one server-sent event: the event name (the SSE default "message"
// when the stream never set one) and the joined data payload.
type Event struct {
	Name string
	Data string
}

// DefaultName is the event name used when a block carries no "event:" field.
const DefaultName = "message"

// Parser is an incremental SSE parser. Feed it raw chunks exactly as they
// arrive from the wire; it buffers partial lines internally, so chunk
// boundaries may fall anywhere, including in the middle of a multi-byte
// character.
type Parser struct {
	buf  []byte
	name string
	data []string
}

// NewParser returns a Parser ready to consume a stream.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one chunk and returns the events completed by it, in order.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]
		if ev := p.line(line); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// Flush terminates the stream: any buffered partial line is treated as
// complete and a pending event with data is dispatched. Call once at EOF.
func (p *Parser) Flush() []Event {
	var events []Event
	if len(p.buf) > 0 {
		line := p.buf
		p.buf = nil
		if ev := p.line(line); ev != nil {
			events = append(events, *ev)
		}
	}
	if ev := p.dispatch(); ev != nil {
		events = append(events, *ev)
	}
	return events
}

func (p *Parser) line(line []byte) *Event {
	line = bytes.TrimSuffix(line, []byte("\r"))

	if len(line) == 0 {
		return p.dispatch()
	}
	if line[0] == ':' {
		return nil
	}

	field, value := string(line), ""
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		field = string(line[:i])
		value = string(line[i+1:])
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	}

	switch field {
	case "event":
		p.name = value
	case "data":
		p.data = append(p.data, value)
	}
	// id, retry, and unknown fields are ignored.
	return nil
}

// dispatch closes the current block. Per the SSE processing model the event
// name resets even when there was no data to deliver.
func (p *Parser) dispatch() *Event {
	name := p.name
	p.name = ""
	if len(p.data) == 0 {
		return nil
	}
	data := joinLines(p.data)
	p.data = nil
	if name == "" {
		name = DefaultName
	}
	return &Event{Name: name, Data: data}
}

func joinLines(lines []string) string {
	if len(lines) == 1 {
		return lines[0]
	}
	var b bytes.Buffer
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l)
	}
	return b.String()
}

// Stream reads r to EOF, invoking fn for every event in arrival order. A
// non-nil error from fn stops consumption and is returned as-is; read errors
// are wrapped. The reader is not closed.
func Stream(r io.Reader, fn func(Event) error) error {
	p := NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range p.Feed(buf[:n]) {
				if ferr := fn(ev); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			for _, ev := range p.Flush() {
				if ferr := fn(ev); ferr != nil {
					return ferr
				}
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
}
