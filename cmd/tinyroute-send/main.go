// ABOUTME: Command-line client that sends a framed message to a tinyrouted daemon.
// ABOUTME: Dials TCP or a Unix socket, writes "address|payload", optionally waits for replies.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/akhil484/tinyroute/frame"
	"github.com/akhil484/tinyroute/server"
	"github.com/akhil484/tinyroute/transport"
)

func main() {
	tcpAddr := flag.String("tcp", "", "TCP address of the daemon (host:port)")
	unixPath := flag.String("unix", "", "Unix socket path of the daemon")
	wait := flag.Duration("wait", 0, "how long to wait for framed replies after sending")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <address> <payload>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Flags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*tcpAddr, *unixPath, flag.Arg(0), flag.Arg(1), *wait); err != nil {
		red := color.New(color.FgRed)
		red.Fprintf(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(tcpAddr, unixPath, address, payload string, wait time.Duration) error {
	var dial transport.Dialer
	switch {
	case tcpAddr != "":
		dial = transport.TCPDialer(tcpAddr)
	case unixPath != "":
		dial = transport.UnixDialer(unixPath)
	default:
		return errors.New("one of -tcp or -unix is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("dialing daemon: %w", err)
	}
	defer conn.Close()

	codec := frame.Codec{}
	wire := make([]byte, 0, len(address)+1+len(payload))
	wire = append(wire, address...)
	wire = append(wire, server.Separator)
	wire = append(wire, payload...)

	framed, err := codec.Encode(wire)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if _, err := conn.Write(framed); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Sent %d bytes to %s\n", len(payload), address)

	if wait <= 0 {
		return nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	reader := codec.NewReader(conn)
	for {
		reply, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("reading reply: %w", err)
		}
		cyan := color.New(color.FgCyan)
		cyan.Print("    ◀ ")
		fmt.Printf("%s\n", reply)
	}
}
