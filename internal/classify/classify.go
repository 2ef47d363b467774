// internal/classify/classify.go
package classify

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Category is the failure class assigned to an upstream error.
type Category string

const (
	ContextOverflow Category = "context_overflow"
	RateLimit       Category = "rate_limit"
	Billing         Category = "billing"
	Auth            Category = "auth"
	Timeout         Category = "timeout"
	Overloaded      Category = "overloaded"
	Unknown         Category = "unknown"
)

type rule struct {
	category Category
	patterns []string
}

// rules are checked in order; the first matching rule wins. Keep the order
// stable: overflow before rate limit, billing before auth, timeout before
// overloaded.
var rules = []rule{
	{ContextOverflow, []string{
		"context length",
		"context_length_exceeded",
		"maximum context",
		"context window",
		"token limit",
		"too many tokens",
		"input is too long",
		"prompt is too long",
		"上下文长度",
		"上下文过长",
	}},
	{RateLimit, []string{
		"rate limit",
		"rate_limit",
		"too many requests",
		"tokens per minute",
		"requests per minute",
		"tpm",
		"rpm",
		"429",
		"quota",
	}},
	{Billing, []string{
		"insufficient balance",
		"insufficient credit",
		"insufficient funds",
		"credit balance",
		"billing",
		"payment required",
		"402",
	}},
	{Auth, []string{
		"invalid api key",
		"incorrect api key",
		"invalid x-api-key",
		"unauthorized",
		"authentication",
		"forbidden",
		"permission denied",
		"401",
		"403",
	}},
	{Timeout, []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"504",
	}},
	{Overloaded, []string{
		"overloaded",
		"service unavailable",
		"server is busy",
		"bad gateway",
		"502",
		"503",
		"529",
	}},
}

// perMinuteMarkers disambiguate throughput limits from context overflow:
// "token limit" style text that is actually about tokens-per-minute is a
// rate limit, not an oversized prompt.
var perMinuteMarkers = []string{"tokens per minute", "tpm"}

// Classify maps an upstream error message to a Category by case-insensitive
// substring matching. An empty message classifies as Unknown.
func Classify(msg string) Category {
	m := strings.ToLower(msg)
	for _, r := range rules {
		if !containsAny(m, r.patterns) {
			continue
		}
		if r.category == ContextOverflow && containsAny(m, perMinuteMarkers) {
			continue
		}
		return r.category
	}
	return Unknown
}

// ClassifyError is Classify over err.Error(); nil classifies as Unknown.
func ClassifyError(err error) Category {
	if err == nil {
		return Unknown
	}
	return Classify(err.Error())
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether a failure of the given category may succeed on
// retry. Oversized prompts, exhausted billing, and bad credentials never do;
// everything else, including Unknown, is worth another attempt.
func IsRetryable(c Category) bool {
	switch c {
	case ContextOverflow, Billing, Auth:
		return false
	}
	return true
}

// Detail is the structured payload recovered from a provider error string.
// All fields are best effort; HTTPCode is 0 when no status code was found.
type Detail struct {
	HTTPCode  int
	Type      string
	Code      string
	Message   string
	RequestID string
}

// ParseDetail digs the structured detail out of a raw provider error string
// such as
//
//	[openai] 402 {"error":{"message":"insufficient balance"}}
//
// The leading "[provider]" or "error:" tag and the status code are both
// optional. The remainder is tried against the common provider JSON shapes
// {"error":{...}}, {"type":"error","error":{...}}, flat {"message":...},
// and {"detail":...}. ok is false when the remainder is not a JSON object
// in one of those shapes; Detail.HTTPCode is still populated when a code
// was present.
func ParseDetail(raw string) (Detail, bool) {
	var d Detail
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "[") {
		if i := strings.Index(s, "] "); i >= 0 {
			s = s[i+2:]
		}
	}
	if strings.HasPrefix(strings.ToLower(s), "error: ") {
		s = strings.TrimSpace(s[len("error: "):])
	}

	if len(s) >= 3 {
		if n, err := strconv.Atoi(s[:3]); err == nil && (len(s) == 3 || s[3] == ' ') {
			d.HTTPCode = n
			s = strings.TrimSpace(s[3:])
		}
	}

	var body struct {
		Type  string `json:"type"`
		Error *struct {
			Type      string `json:"type"`
			Code      any    `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
		Code      any    `json:"code"`
		Message   string `json:"message"`
		Detail    string `json:"detail"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal([]byte(s), &body); err != nil {
		return d, false
	}

	switch {
	case body.Error != nil && body.Error.Message != "":
		d.Type = body.Error.Type
		if d.Type == "" {
			d.Type = body.Type
		}
		d.Code = codeString(body.Error.Code)
		d.Message = body.Error.Message
		d.RequestID = body.Error.RequestID
		if d.RequestID == "" {
			d.RequestID = body.RequestID
		}
		return d, true
	case body.Message != "":
		d.Type = body.Type
		d.Code = codeString(body.Code)
		d.Message = body.Message
		d.RequestID = body.RequestID
		return d, true
	case body.Detail != "":
		d.Message = body.Detail
		return d, true
	}
	return d, false
}

// codeString flattens the provider "code" field, which arrives as either a
// string or a number.
func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.Itoa(int(c))
	}
	return ""
}

// userMessages is the wire-facing copy per category. Raw provider text never
// reaches the client; these do.
var userMessages = map[Category]string{
	ContextOverflow: "The conversation is too long for the model's context window. Start a new session or ask a shorter question.",
	RateLimit:       "The model provider is rate limiting requests. Wait a moment and try again.",
	Billing:         "The model provider rejected the request for billing reasons. Check the account balance.",
	Auth:            "The model provider rejected the credentials. Check the configured API key.",
	Timeout:         "The model provider took too long to respond. Try again.",
	Overloaded:      "The model provider is overloaded right now. Try again shortly.",
	Unknown:         "Something went wrong while answering. Try again.",
}

// UserMessage returns the user-facing text for a category. Unrecognized
// categories fall back to the Unknown copy.
func UserMessage(c Category) string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[Unknown]
}

// maxRawUserMessage caps how much unclassified provider text is shown to
// the user verbatim.
const maxRawUserMessage = 300

// FormatUserMessage renders the user-facing sentence for a raw provider
// error. Recognized categories get their fixed copy. Unknown errors show
// the parsed structured detail when there is one, annotated with the HTTP
// code, error type, and request id, and otherwise the raw text truncated
// to a readable length.
func FormatUserMessage(raw string) string {
	c := Classify(raw)
	if c != Unknown {
		return userMessages[c]
	}
	if strings.TrimSpace(raw) == "" {
		return userMessages[Unknown]
	}

	if d, ok := ParseDetail(raw); ok {
		var sb strings.Builder
		if d.HTTPCode != 0 {
			sb.WriteString("[" + strconv.Itoa(d.HTTPCode) + "] ")
		}
		if d.Type != "" {
			sb.WriteString(d.Type + ": ")
		}
		sb.WriteString(d.Message)
		if d.RequestID != "" {
			sb.WriteString(" (request " + d.RequestID + ")")
		}
		return sb.String()
	}
	return truncate(raw, maxRawUserMessage)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
