// ABOUTME: Agent is the per-address handle application code interacts with.
// ABOUTME: Owns one bounded mailbox and submits routing commands to the router.

package route

import (
	"context"
	"sync"
)

// DefaultMailboxCapacity is used when an agent is created with a
// non-positive capacity.
const DefaultMailboxCapacity = 64

// Agent is one addressable participant on the bus. T is the value payload
// type this agent expects to receive; senders are not constrained by it, so
// mismatches surface as ErrInvalidPayloadType at receive time.
//
// An Agent must be closed when it is done (typically with defer) so its
// address becomes registrable again and trackers are notified on every exit
// path, not only the happy one.
type Agent[T any] struct {
	router    *Router
	addr      Address
	mb        mailbox
	closeOnce sync.Once
}

// NewAgent atomically creates a mailbox with the given capacity and
// registers it with the router. Returns ErrAddressInUse if the address
// already has a live mailbox, ErrRouterClosed if the router is gone.
func NewAgent[T any](r *Router, addr Address, capacity int) (*Agent[T], error) {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	mb := make(mailbox, capacity)
	if err := r.register(addr, mb); err != nil {
		return nil, err
	}
	return &Agent[T]{router: r, addr: addr, mb: mb}, nil
}

// SpawnChild creates and registers a new agent through parent's router
// handle, letting one agent mint sub-addresses it owns. The child may expect
// a different payload type than the parent.
func SpawnChild[U any, T any](parent *Agent[T], addr Address, capacity int) (*Agent[U], error) {
	return NewAgent[U](parent.router, addr, capacity)
}

// Address returns the address this agent is bound to.
func (a *Agent[T]) Address() Address { return a.addr }

// Receive blocks until the next message arrives, the mailbox is closed, or
// ctx is cancelled. It is the agent's sole suspension point. Raw byte
// payloads pass through unchanged; value payloads are checked against T and
// fail with ErrInvalidPayloadType on mismatch.
func (a *Agent[T]) Receive(ctx context.Context) (Message[T], error) {
	select {
	case <-ctx.Done():
		return Message[T]{}, ctx.Err()
	case m, ok := <-a.mb:
		if !ok {
			return Message[T]{}, ErrChannelClosed
		}
		return decodeMailboxMsg[T](m)
	}
}

// Send wraps value as an opaque payload tagged with this agent's address and
// submits it for delivery. It never blocks on the recipient's mailbox and
// only fails if the router's queue is gone. Delivery to an unknown address
// is a silent drop.
func (a *Agent[T]) Send(recipient Address, value any) error {
	return a.router.submit(envelope{
		kind:   envDeliverValue,
		target: recipient,
		sender: a.addr,
		value:  value,
	})
}

// SendBytes submits a raw byte payload for delivery, used for pre-serialized
// values and pass-through network data.
func (a *Agent[T]) SendBytes(recipient Address, payload []byte) error {
	return a.router.submit(envelope{
		kind:   envDeliverBytes,
		target: recipient,
		sender: a.addr,
		bytes:  payload,
	})
}

// Track installs a watch edge with this agent as the watcher: when addr's
// mailbox is removed, this agent receives one KindAgentRemoved message.
// Edges are directed; mutual awareness needs a Track call on each side.
func (a *Agent[T]) Track(addr Address) error {
	return a.router.submit(envelope{kind: envTrack, target: addr, sender: a.addr})
}

// ReverseTrack installs the edge the other way around: addr is notified when
// this agent's mailbox is removed.
func (a *Agent[T]) ReverseTrack(addr Address) error {
	return a.router.submit(envelope{kind: envTrack, target: a.addr, sender: addr})
}

// Shutdown requests a shutdown message for this agent's own mailbox, routed
// through the ordered queue so it lands after everything already submitted.
func (a *Agent[T]) Shutdown() error {
	return a.router.submit(envelope{kind: envShutdown, target: a.addr})
}

// Close unregisters this agent's address. It is idempotent and best-effort:
// a closed router is silently ignored, since teardown already happened.
func (a *Agent[T]) Close() error {
	a.closeOnce.Do(func() {
		_ = a.router.submit(envelope{kind: envUnregister, target: a.addr})
	})
	return nil
}
