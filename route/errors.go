// ABOUTME: Sentinel errors for the route package.
// ABOUTME: Callers match these with errors.Is; internal code wraps them with %w.

package route

import "errors"

// ErrRouterClosed indicates the router's command queue has been torn down.
var ErrRouterClosed = errors.New("router closed")

// ErrChannelClosed indicates an agent's mailbox has been closed, either by
// an unregister or by the router shutting down.
var ErrChannelClosed = errors.New("mailbox closed")

// ErrAddressInUse indicates a registration targeted an address that already
// has a live mailbox.
var ErrAddressInUse = errors.New("address already in use")

// ErrInvalidPayloadType indicates a value message could not be converted to
// the payload type the receiving agent expects.
var ErrInvalidPayloadType = errors.New("invalid payload type")
