// internal/bridge/local.go
package bridge

import (
	"context"

	"github.com/google/uuid"

	"github.com/user/fathom/internal/agent"
	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/internal/protocol"
)

// localEngine drives the in-process agent loop. Tool activity streams as it
// happens; the answer arrives whole, so it goes out as a single text block
// with one delta. An empty answer still produces the full
// text-start/text-delta/text-end triple.
type localEngine struct {
	loop *agent.Loop
}

// NewLocalEngine wraps the agent loop as a bridge engine.
func NewLocalEngine(loop *agent.Loop) Engine {
	return &localEngine{loop: loop}
}

var _ Engine = (*localEngine)(nil)

func (e *localEngine) DriveTurn(ctx context.Context, req Request, turns []history.Turn, em *protocol.Emitter) (*agent.Result, error) {
	corr := NewCorrelator()

	emit := func(ev agent.Event) error {
		switch ev := ev.(type) {
		case agent.ToolStart:
			return em.ToolInput(corr.Assign(ev.Tool), ev.Tool, ev.Input)
		case agent.ToolEnd:
			return em.ToolOutput(corr.Resolve(ev.Tool), ev.Output)
		case agent.ToolError:
			return em.ToolOutput(corr.Resolve(ev.Tool), "Error: "+ev.Message)
		}
		return nil
	}

	res, err := e.loop.Run(ctx, req.Query, turns, emit)
	if err != nil {
		return nil, err
	}

	textID := uuid.NewString()
	if err := em.TextStart(textID); err != nil {
		return nil, err
	}
	if err := em.TextDelta(textID, res.Answer); err != nil {
		return nil, err
	}
	if err := em.TextEnd(textID); err != nil {
		return nil, err
	}
	return res, nil
}
