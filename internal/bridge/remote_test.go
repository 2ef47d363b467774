// internal/bridge/remote_test.go
package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/internal/protocol"
)

func sseFrame(name, data string) string {
	return "event: " + name + "\ndata: " + data + "\n\n"
}

func newRemoteServer(frames ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			io.WriteString(w, f)
		}
	}))
}

func parseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []map[string]any) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i], _ = ev["type"].(string)
	}
	return types
}

func driveRemote(t *testing.T, srv *httptest.Server, turns []history.Turn) ([]map[string]any, string, error) {
	t.Helper()
	eng := NewRemoteEngine(RemoteConfig{BaseURL: srv.URL, APIKey: "rk", AssistantID: "research"})
	rec := httptest.NewRecorder()
	em := protocol.NewEmitter(rec)
	res, err := eng.DriveTurn(context.Background(), Request{Query: "what is Go?"}, turns, em)
	answer := ""
	if res != nil {
		answer = res.Answer
	}
	return parseEvents(t, rec.Body.String()), answer, err
}

func TestRemoteDriveTurnPartialAccumulation(t *testing.T) {
	srv := newRemoteServer(
		sseFrame("messages/partial", `[{"id":"run-abc","content":"Hel"}]`),
		sseFrame("messages/partial", `[{"id":"run-abc","content":"Hello"}]`),
	)
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}

	want := []string{"text-start", "text-delta", "text-delta", "text-end"}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if events[1]["delta"] != "Hel" || events[2]["delta"] != "Hello" {
		t.Errorf("expected raw accumulated deltas Hel, Hello, got %v, %v", events[1]["delta"], events[2]["delta"])
	}
	if events[0]["id"] == "" || events[0]["id"] != events[1]["id"] || events[0]["id"] != events[3]["id"] {
		t.Errorf("text block ids do not line up: %v", events)
	}
	if answer != "Hello" {
		t.Errorf("expected answer Hello, got %q", answer)
	}
}

func TestRemoteDriveTurnRequestFormat(t *testing.T) {
	var (
		gotPath   string
		gotMethod string
		gotKey    string
		gotBody   struct {
			AssistantID string `json:"assistant_id"`
			Input       struct {
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			} `json:"input"`
			StreamMode []string `json:"stream_mode"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode run request: %v", err)
		}
		io.WriteString(w, sseFrame("messages/complete", `{"id":"run-1","type":"ai","content":"ok"}`))
	}))
	defer srv.Close()

	turns := []history.Turn{{Query: "first question", Answer: "first answer"}}
	if _, _, err := driveRemote(t, srv, turns); err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/runs/stream" {
		t.Errorf("expected POST /runs/stream, got %s %s", gotMethod, gotPath)
	}
	if gotKey != "rk" {
		t.Errorf("expected X-Api-Key rk, got %q", gotKey)
	}
	if gotBody.AssistantID != "research" {
		t.Errorf("expected assistant_id research, got %q", gotBody.AssistantID)
	}
	if len(gotBody.StreamMode) != 1 || gotBody.StreamMode[0] != "messages" {
		t.Errorf("expected stream_mode [messages], got %v", gotBody.StreamMode)
	}
	msgs := gotBody.Input.Messages
	if len(msgs) != 3 {
		t.Fatalf("expected 3 input messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "first question" {
		t.Errorf("unexpected history user message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "first answer" {
		t.Errorf("unexpected history assistant message: %+v", msgs[1])
	}
	if msgs[2].Role != "user" || msgs[2].Content != "what is Go?" {
		t.Errorf("unexpected query message: %+v", msgs[2])
	}
}

func TestRemoteDriveTurnChildRunFiltered(t *testing.T) {
	srv := newRemoteServer(
		sseFrame("messages/partial", `[{"id":"child-1","content":"subagent noise"}]`),
		sseFrame("messages/partial", `[{"id":"run-abc","content":"A"}]`),
		sseFrame("messages/partial", `[{"id":"run-other","content":"B"}]`),
		sseFrame("messages/partial", `[{"id":"run-abc","content":"AB"}]`),
	)
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}

	var deltas []string
	for _, ev := range events {
		if ev["type"] == "text-delta" {
			deltas = append(deltas, ev["delta"].(string))
		}
	}
	if len(deltas) != 2 || deltas[0] != "A" || deltas[1] != "AB" {
		t.Fatalf("expected deltas [A AB], got %v", deltas)
	}
	if answer != "AB" {
		t.Errorf("expected answer AB, got %q", answer)
	}
}

func TestRemoteDriveTurnToolEvents(t *testing.T) {
	srv := newRemoteServer(
		sseFrame("messages/complete", `{"id":"run-1","type":"ai","content":"","tool_calls":[{"name":"web_search","args":{"query":"go releases"}}]}`),
		sseFrame("messages/complete", `{"id":"toolmsg-1","type":"tool","name":"web_search","content":"1. Go 1.25 released"}`),
		sseFrame("messages/partial", `[{"id":"run-1","content":"Go 1.25 is out."}]`),
	)
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}

	want := []string{"tool-input-available", "tool-output-available", "text-start", "text-delta", "text-end"}
	got := eventTypes(events)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}

	in, out := events[0], events[1]
	if in["toolName"] != "web_search" {
		t.Errorf("expected toolName web_search, got %v", in["toolName"])
	}
	input, ok := in["input"].(map[string]any)
	if !ok || input["query"] != "go releases" {
		t.Errorf("unexpected tool input: %v", in["input"])
	}
	if in["toolCallId"] == "" || in["toolCallId"] != out["toolCallId"] {
		t.Errorf("tool call ids do not correlate: in=%v out=%v", in["toolCallId"], out["toolCallId"])
	}
	if out["output"] != "1. Go 1.25 released" {
		t.Errorf("unexpected tool output: %v", out["output"])
	}
	if answer != "Go 1.25 is out." {
		t.Errorf("expected answer from partial, got %q", answer)
	}
}

func TestRemoteDriveTurnCompleteClosesText(t *testing.T) {
	srv := newRemoteServer(
		sseFrame("messages/partial", `[{"id":"run-abc","content":"Hello"}]`),
		sseFrame("messages/complete", `{"id":"run-abc","type":"ai","content":"Hello"}`),
	)
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}

	var ends int
	for _, ev := range events {
		if ev["type"] == "text-end" {
			ends++
		}
	}
	if ends != 1 {
		t.Fatalf("expected exactly one text-end, got %d in %v", ends, eventTypes(events))
	}
	if answer != "Hello" {
		t.Errorf("expected answer Hello, got %q", answer)
	}
}

func TestRemoteDriveTurnFinalOnly(t *testing.T) {
	srv := newRemoteServer(
		sseFrame("messages/complete", `{"id":"run-abc","type":"ai","content":"Full answer"}`),
	)
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}

	want := []string{"text-start", "text-delta", "text-end"}
	got := eventTypes(events)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	if events[1]["delta"] != "Full answer" {
		t.Errorf("expected delta with full text, got %v", events[1]["delta"])
	}
	if answer != "Full answer" {
		t.Errorf("expected answer Full answer, got %q", answer)
	}
}

func TestRemoteDriveTurnBlockContent(t *testing.T) {
	srv := newRemoteServer(
		sseFrame("messages/partial", `[{"id":"run-abc","content":[{"type":"text","text":"part one"},{"type":"thinking","text":"hidden"},{"type":"text","text":" and two"}]}]`),
	)
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}
	if answer != "part one and two" {
		t.Errorf("expected concatenated text blocks, got %q", answer)
	}
	if len(events) != 3 {
		t.Fatalf("expected text triple, got %v", eventTypes(events))
	}
}

func TestRemoteDriveTurnMalformedDropped(t *testing.T) {
	srv := newRemoteServer(
		sseFrame("messages/partial", `{not json`),
		sseFrame("messages/partial", `"just a string"`),
		sseFrame("messages/partial", `[]`),
		sseFrame("messages/partial", `[{"id":"run-abc","content":"Hi"}]`),
		sseFrame("other/event", `{"id":"run-abc","content":"ignored"}`),
	)
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}
	var deltas int
	for _, ev := range events {
		if ev["type"] == "text-delta" {
			deltas++
		}
	}
	if deltas != 1 || answer != "Hi" {
		t.Errorf("expected one delta with answer Hi, got %d deltas, answer %q", deltas, answer)
	}
}

func TestRemoteDriveTurnEmptyStream(t *testing.T) {
	srv := newRemoteServer()
	defer srv.Close()

	events, answer, err := driveRemote(t, srv, nil)
	if err != nil {
		t.Fatalf("DriveTurn failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events for empty stream, got %v", eventTypes(events))
	}
	if answer != "" {
		t.Errorf("expected empty answer, got %q", answer)
	}
}

func TestRemoteDriveTurnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	events, _, err := driveRemote(t, srv, nil)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	want := `[remote] 429 {"error":{"message":"rate limited"}}`
	if err.Error() != want {
		t.Errorf("expected error %q, got %q", want, err.Error())
	}
	if len(events) != 0 {
		t.Errorf("expected no events on HTTP error, got %v", eventTypes(events))
	}
}
