// internal/bridge/correlator.go
package bridge

import "github.com/google/uuid"

type pendingCall struct {
	name string
	id   string
}

// Correlator assigns stable tool call ids when the engine's events carry
// none. Starts and ends for the same tool name pair up first-in-first-out,
// so two concurrent calls of one tool resolve in start order.
//
// A Correlator serves a single turn on a single goroutine; it is not safe
// for concurrent use.
type Correlator struct {
	pending []pendingCall
}

// NewCorrelator returns an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Assign mints an id for a starting call of the named tool and records it
// as pending.
func (c *Correlator) Assign(name string) string {
	id := uuid.NewString()
	c.pending = append(c.pending, pendingCall{name: name, id: id})
	return id
}

// Resolve returns the oldest pending id for the named tool and removes it.
// An end with no matching start gets a fresh synthetic id: the wire format
// requires an id on every tool event, and dropping the event would hide a
// result from the client.
func (c *Correlator) Resolve(name string) string {
	for i, p := range c.pending {
		if p.name == name {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return p.id
		}
	}
	return uuid.NewString()
}

// Pending reports how many starts are still unresolved.
func (c *Correlator) Pending() int {
	return len(c.pending)
}
