// internal/context/engine.go
package context

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/pkg/llm"
)

// Engine assembles token-budgeted message lists for the provider.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	prompt    *template.Template
	maxTokens int
	reserve   int
}

// promptData feeds the system prompt template.
type promptData struct {
	Time  string
	Tools string
}

// New creates an engine with the given budget. model selects the tokenizer
// (e.g. "gpt-4o"); maxTokens is the model's context window; reserve is held
// back for the model's own output.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	tmpl, err := template.New("system").Parse(DefaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse default prompt: %w", err)
	}
	return &Engine{
		tokenizer: enc,
		prompt:    tmpl,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// SetPrompt replaces the system prompt template, e.g. with the contents of a
// configured prompt file.
func (e *Engine) SetPrompt(text string) error {
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return fmt.Errorf("parse prompt: %w", err)
	}
	e.prompt = tmpl
	return nil
}

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildMessages assembles system prompt, as much recent history as the
// budget allows, and the new query. History is included newest-first until
// the budget runs out, then emitted in chronological order; a turn with a
// summary contributes the summary instead of the full answer.
func (e *Engine) BuildMessages(query string, turns []history.Turn, toolNames []string) ([]llm.Message, error) {
	var buf bytes.Buffer
	err := e.prompt.Execute(&buf, promptData{
		Time:  time.Now().Format(time.RFC3339),
		Tools: strings.Join(toolNames, ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	system := buf.String()

	budget := e.maxTokens - e.reserve - e.countTokens(system) - e.countTokens(query)

	var kept []history.Turn
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		cost := e.countTokens(t.Query) + e.countTokens(answerText(t))
		if used+cost > budget {
			break
		}
		kept = append(kept, t)
		used += cost
	}

	messages := make([]llm.Message, 0, 2*len(kept)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	for i := len(kept) - 1; i >= 0; i-- {
		t := kept[i]
		messages = append(messages,
			llm.Message{Role: "user", Content: t.Query},
			llm.Message{Role: "assistant", Content: answerText(t)},
		)
	}
	messages = append(messages, llm.Message{Role: "user", Content: query})
	return messages, nil
}

func answerText(t history.Turn) string {
	if t.Summary != "" {
		return t.Summary
	}
	return t.Answer
}
