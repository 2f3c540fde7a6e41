// ABOUTME: Remote adapts an agent for typed exchange with network peers.
// ABOUTME: Serializes outgoing values and decodes incoming byte payloads into values.

package codec

import (
	"context"
	"fmt"

	"github.com/akhil484/tinyroute/route"
)

// Remote wraps an agent so that values cross the process boundary through a
// Serializer/Deserializer pair. Outgoing values are serialized and submitted
// as raw byte payloads; incoming byte payloads are deserialized into value
// messages. All other message kinds pass through untouched.
type Remote[T any] struct {
	agent *route.Agent[T]
	ser   Serializer[T]
	de    Deserializer[T]
}

// NewRemote builds a remote-capable view over agent.
func NewRemote[T any](agent *route.Agent[T], ser Serializer[T], de Deserializer[T]) *Remote[T] {
	return &Remote[T]{agent: agent, ser: ser, de: de}
}

// Agent returns the underlying agent.
func (r *Remote[T]) Agent() *route.Agent[T] { return r.agent }

// Send serializes value and submits it as a raw byte payload for recipient.
func (r *Remote[T]) Send(recipient route.Address, value T) error {
	data, err := r.ser.Serialize(value)
	if err != nil {
		return fmt.Errorf("serializing payload: %w", err)
	}
	return r.agent.SendBytes(recipient, data)
}

// Receive yields the next message, decoding byte payloads into values.
func (r *Remote[T]) Receive(ctx context.Context) (route.Message[T], error) {
	msg, err := r.agent.Receive(ctx)
	if err != nil {
		return route.Message[T]{}, err
	}
	if msg.Kind != route.KindBytes {
		return msg, nil
	}

	value, err := r.de.Deserialize(msg.Bytes)
	if err != nil {
		return route.Message[T]{}, fmt.Errorf("deserializing payload from %s: %w", msg.Sender, err)
	}
	return route.Message[T]{Kind: route.KindValue, Sender: msg.Sender, Value: value}, nil
}

// Close closes the underlying agent.
func (r *Remote[T]) Close() error { return r.agent.Close() }
