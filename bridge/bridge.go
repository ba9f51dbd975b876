// Package bridge routes messages between an isolated guest and the host:
// inbound call messages go to the dispatch table through the rate limiter,
// progress and session updates go to their observers. Done and fatal are the
// execution host's settlement signals and never reach the bridge.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/scriptbox-dev/scriptbox/dispatch"
	"github.com/scriptbox-dev/scriptbox/protocol"
	"github.com/scriptbox-dev/scriptbox/ratelimit"
	"github.com/scriptbox-dev/scriptbox/session"
)

// CodeInvalidInput marks a call to an operation that is not in the table.
const CodeInvalidInput = "INVALID_INPUT"

// Config wires a Bridge for one invocation.
type Config struct {
	Table   *dispatch.Table
	Limiter *ratelimit.Limiter
	Store   *session.Store

	// Respond delivers exactly one response per call id back to the guest.
	Respond func(protocol.Response)
	// OnProgress receives progress text synchronously, in arrival order.
	OnProgress func(text string)
	// OnSession is notified after the store update has been applied, so a
	// caller reading the store from the callback sees the new value.
	OnSession func(key string, value any)
}

// Bridge multiplexes concurrent calls from one guest. Responses are matched
// to calls strictly by id; issue order is not preserved.
type Bridge struct {
	cfg       Config
	respondMu sync.Mutex
}

// New returns a Bridge for the given wiring.
func New(cfg Config) *Bridge {
	return &Bridge{cfg: cfg}
}

// Handle routes one decoded guest message. Calls are dispatched on their own
// goroutine so a fan-out script is served concurrently; progress and session
// updates are handled synchronously to preserve their relative order.
func (b *Bridge) Handle(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.KindCall:
		go b.dispatch(ctx, msg)
	case protocol.KindProgress:
		if b.cfg.OnProgress != nil {
			b.cfg.OnProgress(msg.Text)
		}
	case protocol.KindSession:
		b.cfg.Store.Apply(msg.Key, msg.Value)
		if b.cfg.OnSession != nil {
			b.cfg.OnSession(msg.Key, msg.Value)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, msg protocol.Message) {
	key := msg.CallKey()

	fn, ok := b.cfg.Table.Lookup(key)
	if !ok {
		b.respond(protocol.Response{ID: msg.ID, Error: &protocol.ErrorDetail{
			Message: fmt.Sprintf("unknown operation %q", key),
			Code:    CodeInvalidInput,
			Fix:     "available operations: " + strings.Join(b.cfg.Table.Keys(), ", "),
		}})
		return
	}

	// Admission is per call, not per invocation: each concurrent call waits
	// for its own slot.
	if err := b.cfg.Limiter.Acquire(ctx); err != nil {
		// The invocation is being torn down; nobody is waiting for this id.
		return
	}

	value, err := fn(ctx, msg.Args)
	if err != nil {
		b.respond(protocol.Response{ID: msg.ID, Error: errorDetail(err)})
		return
	}
	b.respond(protocol.Response{ID: msg.ID, Value: value})
}

func (b *Bridge) respond(resp protocol.Response) {
	b.respondMu.Lock()
	defer b.respondMu.Unlock()
	b.cfg.Respond(resp)
}

// errorDetail keeps the structure of a typed operation error and falls back
// to the stringified error otherwise.
func errorDetail(err error) *protocol.ErrorDetail {
	var de *dispatch.Error
	if errors.As(err, &de) {
		return &protocol.ErrorDetail{Message: de.Message, Code: de.Code, Fix: de.Fix}
	}
	return &protocol.ErrorDetail{Message: err.Error()}
}
