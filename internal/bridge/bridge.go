// internal/bridge/bridge.go
//
// Package bridge turns one inbound question into one outbound event stream.
// It owns the turn lifecycle on the wire: start, start-step, whatever the
// engine produces, finish-step, finish. When the engine fails the stream
// carries a single error event instead. History is loaded before the turn
// and appended after it, best effort.
package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/user/fathom/internal/agent"
	"github.com/user/fathom/internal/classify"
	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/internal/metrics"
	"github.com/user/fathom/internal/protocol"
)

// Request is one turn to drive.
type Request struct {
	// Query is the user's question, already extracted and non-empty.
	Query string
	// SessionKey selects the conversation history. Empty means a stateless
	// turn: nothing is loaded and nothing is persisted.
	SessionKey string
}

// Engine produces a turn's content between start-step and finish-step. It
// emits protocol events through em as it goes and returns the final answer
// for persistence. Emitter errors must be returned unwrapped or wrapped so
// they still match protocol.WriteError.
type Engine interface {
	DriveTurn(ctx context.Context, req Request, turns []history.Turn, em *protocol.Emitter) (*agent.Result, error)
}

const persistTimeout = 10 * time.Second

// Bridge wires an engine to the outbound protocol and the history store.
type Bridge struct {
	engine Engine
	store  history.Store
	mode   string // metrics label: local or remote
}

// New creates a Bridge. mode labels this bridge's turns in metrics.
func New(engine Engine, store history.Store, mode string) *Bridge {
	return &Bridge{engine: engine, store: store, mode: mode}
}

// Run drives one turn, writing the event stream to w.
//
// The returned error is non-nil only for transport failures (the sink went
// away); an engine failure is surfaced to the client as an error event and
// Run returns nil. Once a write fails nothing further is attempted on the
// sink.
func (b *Bridge) Run(ctx context.Context, req Request, w io.Writer) error {
	return b.run(ctx, req, w, b.mode)
}

// RunHeadless drives one turn with no client attached and returns the
// answer. Scheduled tasks and webhooks use it; persistence behaves exactly
// as in Run.
func (b *Bridge) RunHeadless(ctx context.Context, req Request) (string, error) {
	started := time.Now()

	turns := b.load(ctx, req)
	em := protocol.NewEmitter(io.Discard)
	res, err := b.engine.DriveTurn(ctx, req, turns, em)
	if err != nil {
		cat := classify.ClassifyError(err)
		metrics.TurnsTotal.WithLabelValues("headless", "error").Inc()
		metrics.TurnErrors.WithLabelValues(string(cat)).Inc()
		return "", err
	}
	metrics.TurnsTotal.WithLabelValues("headless", "ok").Inc()
	metrics.TurnDuration.WithLabelValues("headless").Observe(time.Since(started).Seconds())
	b.persist(ctx, req, res)
	return res.Answer, nil
}

func (b *Bridge) run(ctx context.Context, req Request, w io.Writer, mode string) error {
	started := time.Now()
	em := protocol.NewEmitter(w)

	messageID := uuid.NewString()
	if err := em.Start(messageID); err != nil {
		return err
	}
	if err := em.StartStep(); err != nil {
		return err
	}

	turns := b.load(ctx, req)

	res, err := b.engine.DriveTurn(ctx, req, turns, em)
	if err != nil {
		var we *protocol.WriteError
		if errors.As(err, &we) {
			// The client is gone; there is nothing left to tell it.
			metrics.TurnsTotal.WithLabelValues(mode, "error").Inc()
			return err
		}
		cat := classify.ClassifyError(err)
		slog.Error("turn failed", "mode", mode, "category", string(cat), "error", err)
		metrics.TurnsTotal.WithLabelValues(mode, "error").Inc()
		metrics.TurnErrors.WithLabelValues(string(cat)).Inc()
		if emitErr := em.Error(classify.FormatUserMessage(err.Error())); emitErr != nil {
			return emitErr
		}
		return nil
	}

	if err := em.FinishStep(); err != nil {
		return err
	}
	if err := em.Finish(); err != nil {
		return err
	}

	metrics.TurnsTotal.WithLabelValues(mode, "ok").Inc()
	metrics.TurnDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())

	// Only after finish reached the wire does the turn enter history.
	b.persist(ctx, req, res)
	return nil
}

// load fetches history for the session. A load failure degrades the turn to
// stateless rather than failing it.
func (b *Bridge) load(ctx context.Context, req Request) []history.Turn {
	if req.SessionKey == "" {
		return nil
	}
	turns, err := b.store.Load(ctx, req.SessionKey)
	if err != nil {
		slog.Warn("load history failed, continuing stateless", "session", req.SessionKey, "error", err)
		return nil
	}
	return turns
}

// persist appends the finished turn. Failures are recorded and logged,
// never surfaced: the answer already reached the client.
func (b *Bridge) persist(ctx context.Context, req Request, res *agent.Result) {
	if req.SessionKey == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	err := b.store.Append(pctx, req.SessionKey, history.Turn{
		Query:   req.Query,
		Answer:  res.Answer,
		Summary: res.Summary,
	})
	if err != nil {
		metrics.PersistFailures.Inc()
		slog.Warn("persist turn failed", "session", req.SessionKey, "error", err)
	}
}
