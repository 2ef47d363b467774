// internal/agent/agent.go
//
// Package agent runs the local tool-calling loop: build a prompt from
// history, call the provider, execute requested tools, feed results back,
// repeat until the model answers in text. Progress is reported through an
// emit callback so the caller can stream it.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	ctxengine "github.com/user/fathom/internal/context"
	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/internal/metrics"
	"github.com/user/fathom/pkg/llm"
)

// Event is one observable step of a running turn.
type Event interface{ isEvent() }

// ToolStart reports that a tool is about to run with the given input.
type ToolStart struct {
	Tool  string
	Input any
}

// ToolEnd reports a tool's successful output.
type ToolEnd struct {
	Tool   string
	Output string
}

// ToolError reports a failed tool invocation. The turn continues; the
// message is fed back to the model as the tool's result.
type ToolError struct {
	Tool    string
	Message string
}

func (ToolStart) isEvent() {}
func (ToolEnd) isEvent()   {}
func (ToolError) isEvent() {}

// EmitFunc receives events as they happen. A non-nil return aborts the turn
// immediately; it signals that the consumer is gone, not that the turn
// failed.
type EmitFunc func(Event) error

// Result is a finished turn.
type Result struct {
	Answer  string
	Summary string
}

// Loop drives turns against a provider with a bounded number of tool rounds.
type Loop struct {
	provider  llm.Provider
	engine    *ctxengine.Engine
	registry  *Registry
	retry     *RetryPolicy
	maxRounds int
}

// NewLoop creates a Loop. maxRounds bounds how many times the model may
// request tools within one turn.
func NewLoop(provider llm.Provider, engine *ctxengine.Engine, registry *Registry, maxRounds int) *Loop {
	return &Loop{
		provider:  provider,
		engine:    engine,
		registry:  registry,
		retry:     DefaultRetryPolicy(),
		maxRounds: maxRounds,
	}
}

// Run executes one turn. Tool failures are reported via ToolError and fed
// back into the conversation; they never abort the turn. Provider failures
// are retried per the policy and returned when exhausted. An emit error is
// returned as-is.
func (l *Loop) Run(ctx context.Context, query string, turns []history.Turn, emit EmitFunc) (*Result, error) {
	var toolNames []string
	for _, t := range l.registry.All() {
		toolNames = append(toolNames, t.Name())
	}

	messages, err := l.engine.BuildMessages(query, turns, toolNames)
	if err != nil {
		return nil, fmt.Errorf("build messages: %w", err)
	}
	tools := l.registry.AsLLMTools()

	for round := 0; round < l.maxRounds; round++ {
		var resp *llm.Response
		err := l.retry.Execute(ctx, func() error {
			var cerr error
			resp, cerr = l.provider.Complete(ctx, messages, tools)
			return cerr
		})
		if err != nil {
			return nil, fmt.Errorf("provider: %w", err)
		}
		metrics.LLMTokens.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
		metrics.LLMTokens.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))

		if len(resp.ToolCalls) == 0 {
			answer := resp.Content
			return &Result{Answer: answer, Summary: Summarize(answer)}, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			name := tc.Function.Name
			args := normalizeArgs(tc.Function.Arguments)

			if err := emit(ToolStart{Tool: name, Input: decodeInput(args)}); err != nil {
				return nil, err
			}

			result, execErr := l.execute(ctx, name, args)
			if execErr != nil {
				slog.Warn("tool failed", "tool", name, "error", execErr)
				metrics.ToolCalls.WithLabelValues(name, "error").Inc()
				result = "Error: " + execErr.Error()
				if err := emit(ToolError{Tool: name, Message: execErr.Error()}); err != nil {
					return nil, err
				}
			} else {
				metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
				if err := emit(ToolEnd{Tool: name, Output: result}); err != nil {
					return nil, err
				}
			}

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return nil, fmt.Errorf("max tool rounds (%d) exceeded", l.maxRounds)
}

func (l *Loop) execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	tool, ok := l.registry.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return tool.Execute(ctx, args)
}

// normalizeArgs accepts tool arguments either as a JSON object or as a
// JSON-encoded string of one (the chat completions wire format) and returns
// the object form.
func normalizeArgs(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return json.RawMessage(s)
	}
	return raw
}

// decodeInput turns raw arguments into a value safe to re-serialize.
func decodeInput(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

const summaryLimit = 200

// Summarize derives a one-line summary from an answer, stored alongside it
// so later turns can reference the exchange cheaply.
func Summarize(answer string) string {
	line := answer
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > summaryLimit {
		line = string(runes[:summaryLimit])
	}
	return line
}
