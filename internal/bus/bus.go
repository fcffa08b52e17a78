package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thermokinetics/kinetics-core/pkg/logger"
)

// Message is the unit routed between actors. Requests carry Payload and a
// RequestID; responses echo the RequestID and carry Data.
type Message struct {
	Actor     string         `json:"actor"`
	Target    string         `json:"target"`
	Op        Operation      `json:"operation"`
	RequestID string         `json:"request_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Data      any            `json:"data,omitempty"`
}

// RequestHandler processes a request addressed to the registered actor.
// Handlers must publish their response before returning; callers parked in
// Call rely on that to resolve synchronously.
type RequestHandler func(*Message)

// ResponseHandler processes a response addressed to the registered actor.
type ResponseHandler func(*Message)

type handlerPair struct {
	onRequest  RequestHandler
	onResponse ResponseHandler
}

type envelope struct {
	msg      *Message
	response bool
}

// Bus routes requests and responses to the actor named by the message target.
// Dispatch is synchronous and re-entrant: a handler may publish further
// messages before returning. Messages originating on foreign goroutines must
// go through Post so they are delivered on the dispatch loop.
type Bus struct {
	mu     sync.RWMutex
	actors map[string]handlerPair
	inbox  chan envelope
	logger *slog.Logger
}

// New creates an empty bus. Run must be started for Post delivery to work;
// purely synchronous use (Publish only) needs no running loop.
func New() *Bus {
	return &Bus{
		actors: make(map[string]handlerPair),
		inbox:  make(chan envelope, 256),
		logger: logger.Default,
	}
}

// SetLogger sets the bus logger.
func (b *Bus) SetLogger(l *slog.Logger) {
	b.logger = l
}

// Register stores the handler pair under name. Duplicate registration is an
// error; components that genuinely restart must Unregister first.
func (b *Bus) Register(name string, onRequest RequestHandler, onResponse ResponseHandler) error {
	if name == "" {
		return fmt.Errorf("actor name cannot be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.actors[name]; exists {
		return fmt.Errorf("actor already registered: %s", name)
	}
	b.actors[name] = handlerPair{onRequest: onRequest, onResponse: onResponse}
	return nil
}

// Unregister removes the actor's handlers. Unregistering an unknown name is a
// no-op.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.actors, name)
}

// Registered reports whether name has a handler pair.
func (b *Bus) Registered(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.actors[name]
	return ok
}

// PublishRequest dispatches a request to its target synchronously, in the
// caller's goroutine. An unknown target is logged and dropped, never fatal.
func (b *Bus) PublishRequest(msg *Message) {
	b.dispatch(envelope{msg: msg})
}

// PublishResponse dispatches a response to its target synchronously.
func (b *Bus) PublishResponse(msg *Message) {
	b.dispatch(envelope{msg: msg, response: true})
}

// PostRequest hands a request over from a foreign goroutine. Delivery happens
// on the dispatch loop, preserving the single-loop handler invariant.
func (b *Bus) PostRequest(msg *Message) {
	b.inbox <- envelope{msg: msg}
}

// PostResponse hands a response over from a foreign goroutine.
func (b *Bus) PostResponse(msg *Message) {
	b.inbox <- envelope{msg: msg, response: true}
}

// Run drains posted messages until ctx is cancelled. It is the dispatch loop:
// every handler invocation for posted messages happens on this goroutine.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.inbox:
			b.dispatch(env)
		}
	}
}

func (b *Bus) dispatch(env envelope) {
	msg := env.msg
	if msg == nil {
		return
	}
	b.mu.RLock()
	pair, ok := b.actors[msg.Target]
	b.mu.RUnlock()
	if !ok {
		b.logger.Error("message dropped: no actor registered",
			"target", msg.Target,
			"actor", msg.Actor,
			"operation", msg.Op,
			"response", env.response)
		return
	}
	if env.response {
		if pair.onResponse != nil {
			pair.onResponse(msg)
		}
		return
	}
	if pair.onRequest != nil {
		pair.onRequest(msg)
	}
}
