// ABOUTME: Serializer/Deserializer collaborator contract for remote-capable agents.
// ABOUTME: The bus core only ever hands these implementations opaque bytes.

package codec

import "encoding/json"

// Serializer converts a typed value into a byte buffer for transmission to
// a remote peer.
type Serializer[T any] interface {
	Serialize(value T) ([]byte, error)
}

// Deserializer reconstructs a typed value from a byte buffer received from
// a remote peer.
type Deserializer[T any] interface {
	Deserialize(data []byte) (T, error)
}

// JSON implements Serializer and Deserializer via encoding/json.
type JSON[T any] struct{}

// Serialize implements Serializer.
func (JSON[T]) Serialize(value T) ([]byte, error) {
	return json.Marshal(value)
}

// Deserialize implements Deserializer.
func (JSON[T]) Deserialize(data []byte) (T, error) {
	var value T
	err := json.Unmarshal(data, &value)
	return value, err
}
