// internal/delivery/registry.go
//
// Package delivery routes finished research results to their destination.
// Session keys carry the route in their prefix: "telegram:<chatID>" goes to
// the Telegram sender, "stdout" to the process log.
package delivery

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Handler delivers a message to the session identified by sessionKey.
type Handler func(sessionKey, message string) error

// Registry routes messages by session key prefix. The longest registered
// prefix wins, so "telegram:group:" can shadow "telegram:".
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for session keys starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver calls the handler with the longest prefix matching sessionKey.
// Returns an error if no registered prefix matches.
func (r *Registry) Deliver(sessionKey, message string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Handler
	bestLen := -1
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(sessionKey, prefix) && len(prefix) > bestLen {
			best = handler
			bestLen = len(prefix)
		}
	}
	if best == nil {
		return fmt.Errorf("no delivery handler for session key: %s", sessionKey)
	}
	return best(sessionKey, message)
}

// Stdout returns a handler that writes results to w, one block per message.
// It backs the "stdout" route and is the default sink for scheduled tasks
// with no other destination.
func Stdout(w io.Writer) Handler {
	return func(sessionKey, message string) error {
		_, err := fmt.Fprintf(w, "[%s]\n%s\n", sessionKey, message)
		return err
	}
}
