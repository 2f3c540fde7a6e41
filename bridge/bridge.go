// ABOUTME: Bridge extends the bus over one socket with reconnect and framing.
// ABOUTME: Races connection-loss detection against the wrapped agent's next message.

package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/akhil484/tinyroute/frame"
	"github.com/akhil484/tinyroute/route"
	"github.com/akhil484/tinyroute/transport"
)

// Config controls a bridge's connection behavior.
type Config struct {
	// Reconnect computes the wait between failed connection attempts.
	// Nil means Constant(1s).
	Reconnect Reconnect

	// Retry bounds the number of connection attempts. The zero value
	// retries forever.
	Retry Retry

	// Frame is the codec used for outgoing payloads.
	Frame frame.Codec
}

// Bridge composes one agent with a network connection. Raw byte messages
// routed to the agent's address are framed and written to the socket; every
// other message is handed back to the caller for local handling. When the
// socket drops, the reconnect policy takes over before forwarding resumes.
type Bridge[T any] struct {
	agent  *route.Agent[T]
	dial   transport.Dialer
	cfg    Config
	logger *slog.Logger

	conn     *connection
	msgs     chan recvResult[T]
	pumpOnce sync.Once

	stop     chan struct{}
	stopOnce sync.Once
	pumpDone chan struct{}
}

type recvResult[T any] struct {
	msg route.Message[T]
	err error
}

// New wraps agent in a bridge that dials with dial.
func New[T any](agent *route.Agent[T], dial transport.Dialer, cfg Config, logger *slog.Logger) *Bridge[T] {
	if cfg.Reconnect == nil {
		cfg.Reconnect = Constant(time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge[T]{
		agent:  agent,
		dial:   dial,
		cfg:    cfg,
		logger: logger,
		// One slot so the pump does not have to rendezvous with Run for
		// every message.
		msgs:     make(chan recvResult[T], 1),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Agent returns the wrapped agent, e.g. for installing track edges.
func (b *Bridge[T]) Agent() *route.Agent[T] { return b.agent }

// Run performs one iteration of the bridge's event loop and is meant to be
// called repeatedly:
//
//	for {
//	    msg, err := br.Run(ctx)
//	    ...
//	    if msg != nil && msg.Kind == route.KindShutdown {
//	        break
//	    }
//	}
//
// A nil message with nil error means the iteration was handled internally
// (payload forwarded, or connection lost and cleared). A returned message is
// for the caller; KindShutdown is terminal and also reported when the retry
// budget is exhausted. The only error returned is ctx's.
func (b *Bridge[T]) Run(ctx context.Context) (*route.Message[T], error) {
	b.pumpOnce.Do(func() { go b.pump() })

	if b.conn == nil {
		if !b.connect(ctx) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &route.Message[T]{Kind: route.KindShutdown}, nil
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case <-b.conn.closed:
		b.logger.Info("bridge connection lost", "agent", b.agent.Address().String())
		b.conn.close()
		b.conn = nil
		return nil, nil

	case res := <-b.msgs:
		if res.err != nil {
			// The agent's mailbox is gone; nothing left to forward.
			return &route.Message[T]{Kind: route.KindShutdown}, nil
		}
		if res.msg.Kind == route.KindBytes {
			b.forward(res.msg.Bytes)
			return nil, nil
		}
		msg := res.msg
		return &msg, nil
	}
}

// Close tears down the wrapped agent and any held connection. It is safe to
// call more than once; the receive pump exits once the agent's mailbox
// closes or the stop signal fires, whichever the pump observes first.
func (b *Bridge[T]) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	if b.conn != nil {
		b.conn.close()
		b.conn = nil
	}
	return b.agent.Close()
}

// pump feeds the wrapped agent's messages into the Run select. Decode
// failures are logged and skipped; a closed mailbox is terminal. Every send
// races the stop signal so the pump cannot hang on a full msgs slot after
// Close, when nobody calls Run again to drain it.
func (b *Bridge[T]) pump() {
	defer close(b.pumpDone)

	for {
		msg, err := b.agent.Receive(context.Background())
		if err != nil {
			if errors.Is(err, route.ErrChannelClosed) {
				select {
				case b.msgs <- recvResult[T]{err: err}:
				case <-b.stop:
				}
				return
			}
			b.logger.Error("failed to receive message",
				"agent", b.agent.Address().String(),
				"error", err,
			)
			continue
		}
		select {
		case b.msgs <- recvResult[T]{msg: msg}:
		case <-b.stop:
			return
		}
	}
}

// connect loops dialing until a connection is established or the retry
// budget is spent. The backoff sleep runs only between attempts.
func (b *Bridge[T]) connect(ctx context.Context) bool {
	budget := b.cfg.Retry.budget()
	attempts := 0

	for {
		attempts++
		conn, err := b.dial(ctx)
		if err == nil {
			b.conn = newConnection(conn)
			b.logger.Info("bridge connected",
				"agent", b.agent.Address().String(),
				"remote", conn.RemoteAddr().String(),
				"attempts", attempts,
			)
			return true
		}

		b.logger.Warn("bridge connection attempt failed",
			"agent", b.agent.Address().String(),
			"attempt", attempts,
			"error", err,
		)

		if budget >= 0 && attempts >= budget {
			b.logger.Error("bridge retry budget exhausted",
				"agent", b.agent.Address().String(),
				"attempts", attempts,
			)
			return false
		}

		select {
		case <-time.After(b.cfg.Reconnect.Next()):
		case <-ctx.Done():
			return false
		}
	}
}

// forward frames one payload and writes it to the live connection. A write
// failure clears the connection so the next iteration reconnects.
func (b *Bridge[T]) forward(payload []byte) {
	framed, err := b.cfg.Frame.Encode(payload)
	if err != nil {
		b.logger.Error("dropping unframeable payload",
			"agent", b.agent.Address().String(),
			"size", len(payload),
			"error", err,
		)
		return
	}

	if err := b.conn.write(framed); err != nil {
		b.logger.Warn("bridge write failed",
			"agent", b.agent.Address().String(),
			"error", err,
		)
		b.conn.close()
		b.conn = nil
	}
}

// connection pairs a socket with closed-side detection. Inbound data on a
// bridge link is not routed anywhere, so the reader goroutine just drains
// the socket until the peer closes it.
type connection struct {
	conn   net.Conn
	closed chan struct{}
}

func newConnection(c net.Conn) *connection {
	cn := &connection{conn: c, closed: make(chan struct{})}
	go func() {
		defer close(cn.closed)
		_, _ = io.Copy(io.Discard, c)
	}()
	return cn
}

func (c *connection) write(p []byte) error {
	_, err := c.conn.Write(p)
	return err
}

func (c *connection) close() {
	_ = c.conn.Close()
}
