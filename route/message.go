// ABOUTME: User-facing message type yielded by Agent.Receive.
// ABOUTME: Internal mailbox messages are converted into this richer form at delivery time.

package route

import "fmt"

// MessageKind indicates the type of a received message.
type MessageKind int

const (
	// KindValue carries a typed value from another local agent.
	KindValue MessageKind = iota
	// KindBytes carries a raw byte payload, typically data that arrived
	// over a socket or was pre-serialized by the sender.
	KindBytes
	// KindAgentRemoved notifies that a tracked agent's mailbox was removed.
	// Sender holds the removed address.
	KindAgentRemoved
	// KindShutdown asks the receiving agent to terminate.
	KindShutdown
)

// String returns the string representation of a MessageKind.
func (k MessageKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindBytes:
		return "bytes"
	case KindAgentRemoved:
		return "agent_removed"
	case KindShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is what an Agent's Receive yields. Exactly one of Value and Bytes
// is meaningful, selected by Kind.
type Message[T any] struct {
	Kind MessageKind

	// Sender is the address the message came from. For KindAgentRemoved it
	// is the address that was removed. Nil for KindShutdown.
	Sender Address

	// Value holds the payload for KindValue messages.
	Value T

	// Bytes holds the payload for KindBytes messages.
	Bytes []byte
}

// mailboxKind is the internal wire format between the router and one agent.
type mailboxKind int

const (
	mbValue mailboxKind = iota
	mbBytes
	mbRemoved
	mbShutdown
)

// mailboxMsg is what a mailbox actually queues. Payload values are carried
// type-erased and only checked against the agent's expected type on receive.
type mailboxMsg struct {
	kind   mailboxKind
	sender Address
	value  any
	bytes  []byte
}

// mailbox is a bounded, ordered delivery channel for one address.
type mailbox chan mailboxMsg

// decodeMailboxMsg converts an internal mailbox message into the user-facing
// form. A value payload that does not assert to T fails with
// ErrInvalidPayloadType rather than being silently coerced.
func decodeMailboxMsg[T any](m mailboxMsg) (Message[T], error) {
	switch m.kind {
	case mbValue:
		v, ok := m.value.(T)
		if !ok {
			return Message[T]{}, fmt.Errorf("%w: got %T from %s", ErrInvalidPayloadType, m.value, m.sender)
		}
		return Message[T]{Kind: KindValue, Sender: m.sender, Value: v}, nil
	case mbBytes:
		return Message[T]{Kind: KindBytes, Sender: m.sender, Bytes: m.bytes}, nil
	case mbRemoved:
		return Message[T]{Kind: KindAgentRemoved, Sender: m.sender}, nil
	case mbShutdown:
		return Message[T]{Kind: KindShutdown}, nil
	default:
		return Message[T]{}, fmt.Errorf("%w: unknown mailbox message kind %d", ErrInvalidPayloadType, int(m.kind))
	}
}
