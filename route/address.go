// ABOUTME: Address types used as routing keys by the router registry.
// ABOUTME: Includes the string-backed Key implementation and the wire parser contract.

package route

import "fmt"

// Address identifies one agent on the bus. The router places no meaning on
// its structure; it is used purely as a registry key.
//
// The dynamic type of an Address must be comparable (usable as a map key).
// Two addresses route to the same mailbox exactly when they compare equal.
type Address interface {
	fmt.Stringer
}

// AddressParser reconstructs an Address from raw wire bytes. Remote peers
// name local addresses by sending the bytes; the parser decides whether they
// form a valid address. Returning false drops the message.
type AddressParser func(data []byte) (Address, bool)

// Key is a string-backed Address. It is the implementation used by the
// server package for connection agents and a reasonable default for
// applications that key agents by name.
type Key string

// String implements Address.
func (k Key) String() string { return string(k) }

// KeyFromBytes builds a Key from raw wire bytes. Empty input is rejected so
// a peer cannot route to the empty address by omitting the name.
func KeyFromBytes(data []byte) (Address, bool) {
	if len(data) == 0 {
		return nil, false
	}
	return Key(data), true
}
