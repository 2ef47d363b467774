// internal/protocol/protocol.go
//
// Package protocol writes the data stream consumed by AI-SDK UI clients:
// one "data: <json>\n\n" frame per event, flushed as it is written. The
// event vocabulary is fixed; nothing outside it ever goes on the wire.
package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SetStreamHeaders prepares an HTTP response for the data stream. Must be
// called before the first frame is written.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("x-vercel-ai-ui-message-stream", "v1")
}

type startEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

type stepEvent struct {
	Type string `json:"type"`
}

type toolInputEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Input      any    `json:"input"`
}

type toolOutputEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	Output     any    `json:"output"`
}

type textStartEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type textDeltaEvent struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type textEndEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type finishEvent struct {
	Type         string `json:"type"`
	FinishReason string `json:"finishReason"`
}

type errorEvent struct {
	Type      string `json:"type"`
	ErrorText string `json:"errorText"`
}

// WriteError wraps a sink write failure. Callers use it to tell a dead
// client apart from a failed turn: once the sink is gone there is no one
// left to send an error event to.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write event: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// Emitter serializes protocol events to a sink. When the sink is an
// http.ResponseWriter that supports flushing, every frame is flushed so
// clients see events as they happen.
type Emitter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEmitter wraps w. The flusher is detected by type assertion.
func NewEmitter(w io.Writer) *Emitter {
	e := &Emitter{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

func (e *Emitter) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return &WriteError{Err: err}
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Start opens a message with its id.
func (e *Emitter) Start(messageID string) error {
	return e.emit(startEvent{Type: "start", MessageID: messageID})
}

// StartStep opens a step.
func (e *Emitter) StartStep() error {
	return e.emit(stepEvent{Type: "start-step"})
}

// ToolInput announces a tool invocation with its full input.
func (e *Emitter) ToolInput(toolCallID, toolName string, input any) error {
	return e.emit(toolInputEvent{
		Type:       "tool-input-available",
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Input:      input,
	})
}

// ToolOutput reports the result of a tool invocation.
func (e *Emitter) ToolOutput(toolCallID string, output any) error {
	return e.emit(toolOutputEvent{
		Type:       "tool-output-available",
		ToolCallID: toolCallID,
		Output:     output,
	})
}

// TextStart opens a text block.
func (e *Emitter) TextStart(id string) error {
	return e.emit(textStartEvent{Type: "text-start", ID: id})
}

// TextDelta appends text to an open block.
func (e *Emitter) TextDelta(id, delta string) error {
	return e.emit(textDeltaEvent{Type: "text-delta", ID: id, Delta: delta})
}

// TextEnd closes a text block.
func (e *Emitter) TextEnd(id string) error {
	return e.emit(textEndEvent{Type: "text-end", ID: id})
}

// FinishStep closes the current step.
func (e *Emitter) FinishStep() error {
	return e.emit(stepEvent{Type: "finish-step"})
}

// Finish closes the message. The only finish reason this service produces
// is "stop".
func (e *Emitter) Finish() error {
	return e.emit(finishEvent{Type: "finish", FinishReason: "stop"})
}

// Error surfaces a turn failure to the client. errorText must already be
// user-facing copy, never a raw provider error.
func (e *Emitter) Error(errorText string) error {
	return e.emit(errorEvent{Type: "error", ErrorText: errorText})
}
