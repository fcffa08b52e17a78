package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thermokinetics/kinetics-core/pkg/logger"
)

// DefaultCallTimeout bounds a synchronous call waiting for its response.
const DefaultCallTimeout = 1000 * time.Millisecond

// pendingRequest is the ephemeral record for one in-flight call. The done
// channel is closed exactly once, after data has been stored.
type pendingRequest struct {
	done chan struct{}
	data any
}

// Actor provides the synchronous request/response protocol on top of a Bus.
// Stateful components embed it and register their request handler alongside
// the actor's HandleResponse.
type Actor struct {
	name   string
	bus    *Bus
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewActor creates an actor bound to the given bus. The bus instance is
// injected, never looked up through shared globals.
func NewActor(name string, b *Bus) *Actor {
	return &Actor{
		name:    name,
		bus:     b,
		logger:  logger.With("actor", name),
		pending: make(map[string]*pendingRequest),
	}
}

// Name returns the actor's registered name.
func (a *Actor) Name() string {
	return a.name
}

// Bus returns the bus the actor is bound to.
func (a *Actor) Bus() *Bus {
	return a.bus
}

// Register wires onRequest and the actor's response handler into the bus.
func (a *Actor) Register(onRequest RequestHandler) error {
	return a.bus.Register(a.name, onRequest, a.HandleResponse)
}

// Unregister removes the actor from the bus.
func (a *Actor) Unregister() {
	a.bus.Unregister(a.name)
}

// Call publishes a request and waits for the matching response with the
// default timeout. The second return value is false on timeout; callers must
// treat that as a soft failure.
func (a *Actor) Call(target string, op Operation, payload map[string]any) (any, bool) {
	return a.CallTimeout(target, op, payload, DefaultCallTimeout)
}

// CallTimeout is Call with an explicit deadline.
//
// Each call gets a fresh correlation id, so nested re-entrant calls issued by
// handlers running during this call cannot be confused with each other. The
// response for a given id resolves exactly the pending record that created
// it, at most once.
func (a *Actor) CallTimeout(target string, op Operation, payload map[string]any, timeout time.Duration) (any, bool) {
	requestID := uuid.NewString()
	p := &pendingRequest{done: make(chan struct{})}

	a.mu.Lock()
	a.pending[requestID] = p
	a.mu.Unlock()

	a.bus.PublishRequest(&Message{
		Actor:     a.name,
		Target:    target,
		Op:        op,
		RequestID: requestID,
		Payload:   payload,
	})

	// Request handlers respond before returning, so the future is usually
	// resolved by the time PublishRequest unwinds. The wait below covers
	// responses posted from the dispatch loop.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		a.forget(requestID)
		return p.data, true
	case <-timer.C:
		a.forget(requestID)
		// The response may have landed between the timer firing and the
		// pending record being discarded.
		select {
		case <-p.done:
			return p.data, true
		default:
		}
		a.logger.Error("call timed out",
			"target", target,
			"operation", op,
			"request_id", requestID,
			"timeout", timeout)
		return nil, false
	}
}

// HandleResponse resolves the pending request matching the response's
// correlation id. Responses addressed to other actors are ignored; unknown
// correlation ids are logged and dropped.
func (a *Actor) HandleResponse(msg *Message) {
	if msg.Target != a.name {
		return
	}
	a.mu.Lock()
	p, ok := a.pending[msg.RequestID]
	if ok {
		delete(a.pending, msg.RequestID)
	}
	a.mu.Unlock()
	if !ok {
		a.logger.Error("response with unknown correlation id",
			"request_id", msg.RequestID,
			"from", msg.Actor,
			"operation", msg.Op)
		return
	}
	p.data = msg.Data
	close(p.done)
}

// Respond publishes the response to a request, swapping actor and target.
func (a *Actor) Respond(req *Message, data any) {
	a.bus.PublishResponse(&Message{
		Actor:     a.name,
		Target:    req.Actor,
		Op:        req.Op,
		RequestID: req.RequestID,
		Data:      data,
	})
}

// PendingCount returns the number of in-flight calls, used by tests to check
// that timed-out calls leave no residue.
func (a *Actor) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Actor) forget(requestID string) {
	a.mu.Lock()
	delete(a.pending, requestID)
	a.mu.Unlock()
}
