// ABOUTME: Accept loop that turns inbound socket connections into bus agents.
// ABOUTME: Inbound frames are routed by recipient prefix; outbound bytes are framed back.

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/akhil484/tinyroute/frame"
	"github.com/akhil484/tinyroute/route"
	"github.com/akhil484/tinyroute/transport"
)

// Separator splits an inbound frame into recipient address bytes and
// payload. Everything up to the first separator names the recipient;
// the rest is delivered untouched.
const Separator = '|'

// Config controls per-connection behavior.
type Config struct {
	// Parser reconstructs recipient addresses from wire bytes.
	// Nil means route.KeyFromBytes.
	Parser route.AddressParser

	// Frame is the codec applied in both directions.
	Frame frame.Codec

	// MailboxCapacity sizes each connection agent's mailbox. Non-positive
	// values fall back to route.DefaultMailboxCapacity.
	MailboxCapacity int
}

// Server accepts connections and binds each one to a fresh agent address,
// so remote peers participate in the bus like any local agent: they can be
// sent to, tracked, and are unregistered when the socket closes.
type Server struct {
	router *route.Router
	cfg    Config
	logger *slog.Logger
}

// New creates a server routing through router.
func New(router *route.Router, cfg Config, logger *slog.Logger) *Server {
	if cfg.Parser == nil {
		cfg.Parser = route.KeyFromBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: router, cfg: cfg, logger: logger}
}

// Serve accepts connections until ctx is cancelled, handling each one on
// its own goroutine. The listener is closed when ctx ends; Serve returns
// nil in that case and the accept error otherwise.
func (s *Server) Serve(ctx context.Context, ln transport.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, tag, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn, tag)
		}()
	}
}

// handle runs one connection: mint an agent for it, pump inbound frames
// onto the bus, and write bus traffic back out. Either side failing tears
// the whole connection down, which unregisters the agent and fires tracking
// notifications for anyone watching this peer.
func (s *Server) handle(ctx context.Context, conn net.Conn, tag transport.Tag) {
	defer conn.Close()

	addr := route.Key("conn/" + uuid.NewString())
	agent, err := route.NewAgent[[]byte](s.router, addr, s.cfg.MailboxCapacity)
	if err != nil {
		s.logger.Error("failed to register connection agent",
			"address", addr.String(),
			"error", err,
		)
		return
	}
	defer agent.Close()

	s.logger.Info("connection accepted",
		"transport", tag.String(),
		"remote", conn.RemoteAddr().String(),
		"address", addr.String(),
	)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		s.readLoop(conn, agent)
	}()

	s.writeLoop(connCtx, conn, agent)

	s.logger.Info("connection closed",
		"transport", tag.String(),
		"address", addr.String(),
	)
}

// readLoop decodes inbound frames and submits them to the recipient named
// in each frame, tagged with this connection's agent as sender. Malformed
// frames are logged and dropped; the peer is not disconnected for them.
func (s *Server) readLoop(conn net.Conn, agent *route.Agent[[]byte]) {
	reader := s.cfg.Frame.NewReader(conn)
	for {
		payload, err := reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("connection read failed",
					"address", agent.Address().String(),
					"error", err,
				)
			}
			return
		}

		recipientBytes, body, found := bytes.Cut(payload, []byte{Separator})
		if !found {
			s.logger.Warn("dropping frame without recipient separator",
				"address", agent.Address().String(),
				"size", len(payload),
			)
			continue
		}

		recipient, ok := s.cfg.Parser(recipientBytes)
		if !ok {
			s.logger.Warn("dropping frame with unparseable recipient",
				"address", agent.Address().String(),
			)
			continue
		}

		if err := agent.SendBytes(recipient, body); err != nil {
			// Router gone; nothing more to route.
			return
		}
	}
}

// writeLoop frames raw byte messages routed to this connection's address
// and writes them to the socket. Value messages cannot be represented to a
// byte-stream peer and are dropped with a warning; a shutdown message ends
// the connection.
func (s *Server) writeLoop(ctx context.Context, conn net.Conn, agent *route.Agent[[]byte]) {
	for {
		msg, err := agent.Receive(ctx)
		if err != nil {
			return
		}

		switch msg.Kind {
		case route.KindBytes:
			framed, err := s.cfg.Frame.Encode(msg.Bytes)
			if err != nil {
				s.logger.Error("dropping unframeable payload",
					"address", agent.Address().String(),
					"size", len(msg.Bytes),
					"error", err,
				)
				continue
			}
			if _, err := conn.Write(framed); err != nil {
				s.logger.Warn("connection write failed",
					"address", agent.Address().String(),
					"error", err,
				)
				return
			}

		case route.KindShutdown:
			return

		case route.KindAgentRemoved:
			s.logger.Debug("tracked agent removed",
				"address", agent.Address().String(),
				"removed", msg.Sender.String(),
			)

		case route.KindValue:
			s.logger.Warn("dropping value message for socket peer",
				"address", agent.Address().String(),
				"sender", msg.Sender.String(),
			)
		}
	}
}
