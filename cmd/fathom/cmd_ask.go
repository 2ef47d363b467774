package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/user/fathom/internal/sse"
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().String("server", "http://localhost:8080", "fathom server address")
	askCmd.Flags().String("session", "", "session key for follow-up context")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against a running server",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server")
	session, _ := cmd.Flags().GetString("session")
	question := strings.Join(args, " ")

	body := map[string]any{
		"messages": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"type": "text", "text": question}},
			},
		},
	}

	client := resty.New().SetBaseURL(serverURL).SetDoNotParseResponse(true)
	req := client.R().
		SetContext(cmd.Context()).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if session != "" {
		req.SetHeader("X-Session-Key", session)
	}

	resp, err := req.Post("/api/chat")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(raw, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode(), bytes.TrimSpace(b))
	}

	p := &askPrinter{out: os.Stdout, errw: os.Stderr, last: map[string]string{}, tools: map[string]string{}}
	return sse.Stream(raw, func(ev sse.Event) error {
		return p.handle(ev.Data)
	})
}

// askPrinter renders stream events for a terminal. Text deltas may arrive
// as growing accumulations of the same block, so only the unseen suffix is
// printed.
type askPrinter struct {
	out   io.Writer
	errw  io.Writer
	last  map[string]string
	tools map[string]string
}

func (p *askPrinter) handle(data string) error {
	var ev struct {
		Type       string          `json:"type"`
		ID         string          `json:"id"`
		Delta      string          `json:"delta"`
		ToolCallID string          `json:"toolCallId"`
		ToolName   string          `json:"toolName"`
		Input      json.RawMessage `json:"input"`
		ErrorText  string          `json:"errorText"`
	}
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil
	}

	switch ev.Type {
	case "text-delta":
		prev := p.last[ev.ID]
		if strings.HasPrefix(ev.Delta, prev) {
			fmt.Fprint(p.out, ev.Delta[len(prev):])
		} else {
			fmt.Fprint(p.out, ev.Delta)
		}
		p.last[ev.ID] = ev.Delta
	case "tool-input-available":
		p.tools[ev.ToolCallID] = ev.ToolName
		fmt.Fprintf(p.errw, "[tool] %s %s\n", ev.ToolName, ev.Input)
	case "tool-output-available":
		fmt.Fprintf(p.errw, "[tool] %s done\n", p.tools[ev.ToolCallID])
	case "error":
		return fmt.Errorf("%s", ev.ErrorText)
	case "finish":
		fmt.Fprintln(p.out)
	}
	return nil
}
