package main

import (
	"strings"
	"testing"
)

func newTestPrinter() (*askPrinter, *strings.Builder, *strings.Builder) {
	var out, errw strings.Builder
	p := &askPrinter{out: &out, errw: &errw, last: map[string]string{}, tools: map[string]string{}}
	return p, &out, &errw
}

func TestAskPrinterAccumulatedDeltas(t *testing.T) {
	p, out, _ := newTestPrinter()

	events := []string{
		`{"type":"text-start","id":"t1"}`,
		`{"type":"text-delta","id":"t1","delta":"Hel"}`,
		`{"type":"text-delta","id":"t1","delta":"Hello"}`,
		`{"type":"text-delta","id":"t1","delta":"Hello, world"}`,
		`{"type":"text-end","id":"t1"}`,
		`{"type":"finish","finishReason":"stop"}`,
	}
	for _, ev := range events {
		if err := p.handle(ev); err != nil {
			t.Fatal(err)
		}
	}

	if got := out.String(); got != "Hello, world\n" {
		t.Errorf("output = %q, want %q", got, "Hello, world\n")
	}
}

func TestAskPrinterSingleDelta(t *testing.T) {
	p, out, _ := newTestPrinter()

	if err := p.handle(`{"type":"text-delta","id":"t1","delta":"full answer"}`); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "full answer" {
		t.Errorf("output = %q", got)
	}
}

func TestAskPrinterToolEvents(t *testing.T) {
	p, out, errw := newTestPrinter()

	events := []string{
		`{"type":"tool-input-available","toolCallId":"c1","toolName":"web_search","input":{"query":"go"}}`,
		`{"type":"tool-output-available","toolCallId":"c1","output":"results"}`,
	}
	for _, ev := range events {
		if err := p.handle(ev); err != nil {
			t.Fatal(err)
		}
	}

	if out.Len() != 0 {
		t.Errorf("tool chatter leaked to stdout: %q", out.String())
	}
	chatter := errw.String()
	if !strings.Contains(chatter, "web_search") {
		t.Errorf("missing tool name in %q", chatter)
	}
	if !strings.Contains(chatter, "done") {
		t.Errorf("missing completion line in %q", chatter)
	}
}

func TestAskPrinterError(t *testing.T) {
	p, _, _ := newTestPrinter()

	err := p.handle(`{"type":"error","errorText":"Rate limit exceeded. Please wait a moment and try again."}`)
	if err == nil {
		t.Fatal("expected error from error event")
	}
	if !strings.Contains(err.Error(), "Rate limit exceeded") {
		t.Errorf("error = %v", err)
	}
}
