// ABOUTME: The single serializing dispatcher owning the address registry and tracking graph.
// ABOUTME: All registry mutation funnels through one ordered command queue consumed by Run.

package route

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the command queue capacity used when NewRouter is
// given a non-positive size.
const DefaultQueueSize = 1024

// envelopeKind discriminates routing commands on the router's queue.
type envelopeKind int

const (
	envRegister envelopeKind = iota
	envDeliverValue
	envDeliverBytes
	envTrack
	envUnregister
	envShutdown
)

// envelope is one routing command. target is the recipient, the watched
// address, or the address being unregistered / shut down, depending on kind.
// sender is the message sender or the watcher installing a track edge.
type envelope struct {
	kind   envelopeKind
	target Address
	sender Address
	value  any
	bytes  []byte
	mb     mailbox
	reply  chan error
}

// Router is the single dispatch authority for the bus. The registry and the
// tracking graph are owned exclusively by the goroutine running Run; every
// mutation passes through the ordered command queue, which is what gives the
// bus its total-order guarantee.
type Router struct {
	queue  chan envelope
	done   chan struct{}
	closed sync.Once
	logger *slog.Logger

	// Touched only by the dispatch loop.
	registry map[Address]mailbox
	watchers map[Address]map[Address]struct{} // watched -> set of watchers
}

// NewRouter creates a router with the given command queue capacity.
// Run must be called before the router dispatches anything.
func NewRouter(queueSize int, logger *slog.Logger) *Router {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		queue:    make(chan envelope, queueSize),
		done:     make(chan struct{}),
		logger:   logger,
		registry: make(map[Address]mailbox),
		watchers: make(map[Address]map[Address]struct{}),
	}
}

// Run consumes routing commands strictly one at a time until ctx is
// cancelled. On exit every registered mailbox is closed, so blocked agents
// observe ErrChannelClosed, and further submissions fail with
// ErrRouterClosed. Run returns nil on cancellation.
func (r *Router) Run(ctx context.Context) error {
	defer r.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-r.queue:
			r.dispatch(ctx, env)
		}
	}
}

// teardown marks the router closed and drops the whole registry.
func (r *Router) teardown() {
	r.closed.Do(func() { close(r.done) })

	for addr, mb := range r.registry {
		close(mb)
		delete(r.registry, addr)
	}
	r.watchers = make(map[Address]map[Address]struct{})
	r.logger.Debug("router stopped")
}

// submit enqueues one routing command. It blocks while the queue is full and
// fails with ErrRouterClosed once Run has returned.
func (r *Router) submit(env envelope) error {
	select {
	case <-r.done:
		return ErrRouterClosed
	default:
	}

	select {
	case r.queue <- env:
		return nil
	case <-r.done:
		return ErrRouterClosed
	}
}

// register installs a new mailbox for addr. The check-and-insert runs inside
// the dispatch loop so registration is ordered with every other command; the
// result travels back on a buffered reply channel.
func (r *Router) register(addr Address, mb mailbox) error {
	reply := make(chan error, 1)
	env := envelope{kind: envRegister, target: addr, mb: mb, reply: reply}
	if err := r.submit(env); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrRouterClosed
	}
}

// Shutdown requests delivery of a shutdown message to addr's mailbox. The
// registry entry is untouched; the targeted agent is expected to observe the
// message, terminate, and unregister itself via Close.
func (r *Router) Shutdown(addr Address) error {
	return r.submit(envelope{kind: envShutdown, target: addr})
}

// dispatch applies one routing command to the registry and tracking graph.
func (r *Router) dispatch(ctx context.Context, env envelope) {
	switch env.kind {
	case envRegister:
		env.reply <- r.install(env.target, env.mb)

	case envDeliverValue:
		r.deliver(ctx, env, mailboxMsg{kind: mbValue, sender: env.sender, value: env.value})

	case envDeliverBytes:
		r.deliver(ctx, env, mailboxMsg{kind: mbBytes, sender: env.sender, bytes: env.bytes})

	case envTrack:
		set, ok := r.watchers[env.target]
		if !ok {
			set = make(map[Address]struct{})
			r.watchers[env.target] = set
		}
		set[env.sender] = struct{}{}

	case envUnregister:
		r.unregister(ctx, env.target)

	case envShutdown:
		if mb, ok := r.registry[env.target]; ok {
			r.push(ctx, mb, mailboxMsg{kind: mbShutdown})
		}
	}
}

// install adds a mailbox to the registry, refusing to overwrite a live one.
func (r *Router) install(addr Address, mb mailbox) error {
	if _, exists := r.registry[addr]; exists {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	r.registry[addr] = mb
	r.logger.Debug("agent registered",
		"address", addr.String(),
		"total_agents", len(r.registry),
	)
	return nil
}

// deliver forwards a message to the target mailbox. Delivery to an unknown
// address is a silent drop; sending is fire-and-forget at the router layer.
func (r *Router) deliver(ctx context.Context, env envelope, msg mailboxMsg) {
	mb, ok := r.registry[env.target]
	if !ok {
		r.logger.Debug("dropping message for unknown address",
			"recipient", env.target.String(),
			"sender", env.sender.String(),
		)
		return
	}
	r.push(ctx, mb, msg)
}

// unregister removes addr's mailbox, notifies every watcher, and clears the
// address out of the tracking graph in both directions. Removal is the only
// event that fires tracking notifications.
func (r *Router) unregister(ctx context.Context, addr Address) {
	mb, ok := r.registry[addr]
	if !ok {
		return
	}
	delete(r.registry, addr)
	close(mb)

	for watcher := range r.watchers[addr] {
		wmb, ok := r.registry[watcher]
		if !ok {
			// Watcher is gone too; the notification is best-effort.
			continue
		}
		r.push(ctx, wmb, mailboxMsg{kind: mbRemoved, sender: addr})
	}
	delete(r.watchers, addr)

	for watched, set := range r.watchers {
		delete(set, addr)
		if len(set) == 0 {
			delete(r.watchers, watched)
		}
	}

	r.logger.Debug("agent unregistered",
		"address", addr.String(),
		"total_agents", len(r.registry),
	)
}

// push forwards one message into a mailbox. A full mailbox blocks the whole
// dispatch loop until space frees; this keeps delivery ordering intact at
// the cost of delivery latency to every other address, so mailbox capacities
// need to be sized for their consumers. The block aborts if the router's own
// context is cancelled.
func (r *Router) push(ctx context.Context, mb mailbox, msg mailboxMsg) {
	select {
	case mb <- msg:
	case <-ctx.Done():
	}
}
