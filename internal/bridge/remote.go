// internal/bridge/remote.go
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/user/fathom/internal/agent"
	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/internal/protocol"
	"github.com/user/fathom/internal/sse"
)

// RemoteConfig points the bridge at an external agent service.
type RemoteConfig struct {
	BaseURL     string
	APIKey      string
	AssistantID string
}

// remoteEngine proxies turns to a hosted agent service that streams
// LangGraph-style message events. Partial chunks carry the accumulated text
// of the reply so far, so each one goes out as its own delta without
// diffing; clients render the newest one.
type remoteEngine struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemoteEngine creates the engine. Streaming responses are governed by
// the request context, not a client timeout.
func NewRemoteEngine(cfg RemoteConfig) Engine {
	return &remoteEngine{cfg: cfg, client: &http.Client{}}
}

var _ Engine = (*remoteEngine)(nil)

type remoteInputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
	Input       struct {
		Messages []remoteInputMessage `json:"messages"`
	} `json:"input"`
	StreamMode []string `json:"stream_mode"`
}

func (e *remoteEngine) DriveTurn(ctx context.Context, req Request, turns []history.Turn, em *protocol.Emitter) (*agent.Result, error) {
	var reqBody runRequest
	reqBody.AssistantID = e.cfg.AssistantID
	reqBody.StreamMode = []string{"messages"}
	for _, t := range turns {
		reqBody.Input.Messages = append(reqBody.Input.Messages,
			remoteInputMessage{Role: "user", Content: t.Query},
			remoteInputMessage{Role: "assistant", Content: t.Answer},
		)
	}
	reqBody.Input.Messages = append(reqBody.Input.Messages, remoteInputMessage{Role: "user", Content: req.Query})

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/runs/stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if e.cfg.APIKey != "" {
		httpReq.Header.Set("X-Api-Key", e.cfg.APIKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("[remote] %d %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	turn := &remoteTurn{em: em, corr: NewCorrelator()}
	if err := sse.Stream(resp.Body, turn.handle); err != nil {
		return nil, err
	}
	// Upstream ended without a complete event; close the block ourselves.
	if turn.textOpen {
		turn.textOpen = false
		if err := em.TextEnd(turn.textID); err != nil {
			return nil, err
		}
	}

	return &agent.Result{Answer: turn.answer, Summary: agent.Summarize(turn.answer)}, nil
}

// remoteMessage is the subset of an upstream message chunk the bridge
// reads. Content is either a plain string or a list of typed blocks.
type remoteMessage struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Name      string           `json:"name"`
	Content   json.RawMessage  `json:"content"`
	ToolCalls []remoteToolCall `json:"tool_calls"`
}

type remoteToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type remoteMeta struct {
	RunID string `json:"run_id"`
}

// remoteTurn accumulates stream state for one proxied turn. The first
// partial chunk from the top-level run claims the text stream
// (first-partial-wins); later chunks from other message ids are ignored.
type remoteTurn struct {
	em   *protocol.Emitter
	corr *Correlator

	locked   bool
	lockID   string
	textID   string
	textOpen bool
	textDone bool
	answer   string
}

func (t *remoteTurn) handle(ev sse.Event) error {
	switch ev.Name {
	case "messages/partial":
		return t.partial([]byte(ev.Data))
	case "messages/complete":
		return t.complete([]byte(ev.Data))
	}
	return nil
}

func (t *remoteTurn) partial(data []byte) error {
	msg, meta, ok := decodeChunk(data)
	if !ok || !topLevel(msg, meta) || t.textDone {
		return nil
	}
	if !t.locked {
		t.locked = true
		t.lockID = msg.ID
	} else if msg.ID != t.lockID {
		return nil
	}

	text := extractText(msg.Content)
	if text == "" {
		return nil
	}
	if !t.textOpen {
		t.textID = uuid.NewString()
		if err := t.em.TextStart(t.textID); err != nil {
			return err
		}
		t.textOpen = true
	}
	if err := t.em.TextDelta(t.textID, text); err != nil {
		return err
	}
	t.answer = text
	return nil
}

func (t *remoteTurn) complete(data []byte) error {
	msg, meta, ok := decodeChunk(data)
	if !ok {
		return nil
	}

	// A tool message carries a finished call's output, addressed by name
	// only; the id comes from the correlator. Tool messages keep their own
	// ids, so they bypass the run filter.
	if msg.Type == "tool" {
		return t.em.ToolOutput(t.corr.Resolve(msg.Name), extractText(msg.Content))
	}

	// An assistant message ending in tool calls announces them; the turn
	// is still going.
	if len(msg.ToolCalls) > 0 {
		for _, tc := range msg.ToolCalls {
			if err := t.em.ToolInput(t.corr.Assign(tc.Name), tc.Name, inputValue(tc.Args)); err != nil {
				return err
			}
		}
		return nil
	}

	// Only the top-level run's final message counts as answer text.
	if !topLevel(msg, meta) || t.textDone {
		return nil
	}

	if t.locked {
		// Partials were streaming the text; this just closes the block.
		if t.textOpen && (t.lockID == "" || msg.ID == "" || msg.ID == t.lockID) {
			t.textOpen = false
			t.textDone = true
			return t.em.TextEnd(t.textID)
		}
		return nil
	}

	// The remote never sent partials; stream its final text as one delta.
	text := extractText(msg.Content)
	if text == "" {
		return nil
	}
	t.textID = uuid.NewString()
	if err := t.em.TextStart(t.textID); err != nil {
		return err
	}
	if err := t.em.TextDelta(t.textID, text); err != nil {
		return err
	}
	t.answer = text
	t.textDone = true
	return t.em.TextEnd(t.textID)
}

// decodeChunk accepts either a bare message object or a [message, metadata]
// pair. Anything else is dropped.
func decodeChunk(data []byte) (remoteMessage, remoteMeta, bool) {
	var msg remoteMessage
	var meta remoteMeta

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 || json.Unmarshal(arr[0], &msg) != nil {
			return msg, meta, false
		}
		if len(arr) > 1 {
			_ = json.Unmarshal(arr[1], &meta)
		}
		return msg, meta, true
	}

	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, meta, false
	}
	return msg, meta, true
}

// topLevel reports whether a chunk belongs to the outermost run. Top-level
// message ids carry the "run-" prefix; nested subagent runs do not. Chunks
// with no id at all pass through.
func topLevel(msg remoteMessage, meta remoteMeta) bool {
	if meta.RunID != "" {
		return strings.HasPrefix(meta.RunID, "run-")
	}
	if msg.ID != "" {
		return strings.HasPrefix(msg.ID, "run-")
	}
	return true
}

// extractText reads message content as a string or as typed blocks,
// concatenating the text blocks.
func extractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String()
	}
	return ""
}

func inputValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
