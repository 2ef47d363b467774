// internal/history/history.go
//
// Package history is the append-only conversation memory. Each session key
// owns an ordered list of turns; a turn is the question asked, the answer
// given, and an optional one-line summary used for compact context building.
package history

import (
	"context"
	"time"
)

// Turn is one completed question/answer exchange.
type Turn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo summarizes one session for listing.
type SessionInfo struct {
	Key        string    `json:"key"`
	Turns      int       `json:"turns"`
	LastActive time.Time `json:"last_active"`
}

// Store persists turns. Load returns a session's turns in insertion order;
// Append adds one. Implementations initialize their schema lazily on first
// use, so a Store can be constructed before its backend is reachable.
type Store interface {
	Load(ctx context.Context, key string) ([]Turn, error)
	Append(ctx context.Context, key string, turn Turn) error
	Sessions(ctx context.Context) ([]SessionInfo, error)
	Clear(ctx context.Context, key string) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close()
}
