// Package route implements the core of the tinyroute message bus: a single
// serializing Router and the per-address Agent handles that exchange typed
// values or raw byte payloads through it.
//
// # Router
//
// The Router owns the address registry and the tracking graph. Both are
// mutated exclusively by the goroutine running Run; every routing command
// (registration, delivery, tracking, teardown) funnels through one bounded
// ordered queue:
//
//	router := route.NewRouter(1024, logger)
//	go router.Run(ctx)
//
// Because the queue imposes a total order, operations for a given address
// are never interleaved in contradictory ways across callers: a message
// submitted before an unregister is delivered before the mailbox disappears.
//
// # Agents
//
// An Agent binds one address to one bounded mailbox:
//
//	a, err := route.NewAgent[string](router, route.Key("worker/1"), 10)
//	defer a.Close()
//
//	msg, err := a.Receive(ctx)
//
// Receive converts the internal mailbox message into a Message[T]. Value
// payloads travel type-erased and are only checked against T at receive
// time; a mismatch fails with ErrInvalidPayloadType instead of silently
// coercing. Agents in the same process may declare different payload types,
// so the check is a deliberate runtime safety net.
//
// # Tracking
//
// Track installs a directed watch edge. When the watched address is
// unregistered, each watcher receives exactly one KindAgentRemoved message.
// Edges are latent: tracking an address that does not exist yet is fine and
// fires on a future registration-then-removal cycle.
//
// # Delivery semantics
//
// Sending is fire-and-forget: delivery to an unknown address is silently
// dropped and never errors or blocks the sender. A full recipient mailbox
// blocks the dispatch loop until space frees, which preserves ordering but
// means one slow consumer delays delivery to everyone; size mailboxes
// accordingly.
package route
