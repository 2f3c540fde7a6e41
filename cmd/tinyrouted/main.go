// ABOUTME: Entry point for the tinyrouted message bus daemon.
// ABOUTME: Serves the bus on TCP and/or Unix sockets with an optional bridge uplink.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/akhil484/tinyroute/bridge"
	"github.com/akhil484/tinyroute/config"
	"github.com/akhil484/tinyroute/frame"
	"github.com/akhil484/tinyroute/route"
	"github.com/akhil484/tinyroute/server"
	"github.com/akhil484/tinyroute/transport"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const banner = `
 _   _                             _           _
| |_(_)_ __  _   _ _ __ ___  _   _| |_ ___  __| |
| __| | '_ \| | | | '__/ _ \| | | | __/ _ \/ _' |
| |_| | | | | |_| | | | (_) | |_| | ||  __/ (_| |
 \__|_|_| |_|\__, |_|  \___/ \__,_|\__\___|\__,_|
             |___/
`

const starterConfig = `server:
  tcp_addr: "127.0.0.1:7400"
  # unix_socket: "/tmp/tinyroute.sock"

router:
  queue_size: 1024
  mailbox_capacity: 64

frame:
  max_payload: 16777216

bridge:
  enabled: false
  addr: "peer.example.org:7400"
  address: "uplink"
  reconnect: exponential
  interval: 1s
  max_interval: 30s
  retry: forever

logging:
  level: info
  format: text
`

// getConfigPath returns the path to the daemon config file.
// Priority: TINYROUTE_CONFIG env var > XDG_CONFIG_HOME/tinyroute/bus.yaml >
// ~/.config/tinyroute/bus.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TINYROUTE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bus.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tinyroute", "bus.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: tinyrouted <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the bus daemon")
		fmt.Println("  init    Write a starter config file")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit() error {
	path := getConfigPath()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Wrote starter config to %s\n", path)
	return nil
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, level := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	if cfg.Server.TCPAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("TCP:    %s\n", cfg.Server.TCPAddr)
	}
	if cfg.Server.UnixSocket != "" {
		green.Print("    ▶ ")
		fmt.Printf("Unix:   %s\n", cfg.Server.UnixSocket)
	}
	if cfg.Bridge.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Bridge: ")
		cyan.Print(cfg.Bridge.Addr)
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting tinyrouted",
		"config", configPath,
		"tcp_addr", cfg.Server.TCPAddr,
		"unix_socket", cfg.Server.UnixSocket,
		"bridge_enabled", cfg.Bridge.Enabled,
	)

	// Watch the config file so log level changes apply without a restart.
	watcher, err := config.NewWatcher(configPath, logger)
	if err != nil {
		return fmt.Errorf("watching config: %w", err)
	}
	defer watcher.Close()
	watcher.OnChange(func(old, updated *config.Config) {
		if old.Logging.Level != updated.Logging.Level {
			level.Set(parseLevel(updated.Logging.Level))
			logger.Info("log level changed", "level", updated.Logging.Level)
		}
	})

	router := route.NewRouter(cfg.Router.QueueSize, logger)
	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		_ = router.Run(ctx)
	}()

	codec := frame.Codec{MaxPayload: cfg.Frame.MaxPayload}
	srv := server.New(router, server.Config{
		Frame:           codec,
		MailboxCapacity: cfg.Router.MailboxCapacity,
	}, logger)

	errCh := make(chan error, 3)

	if cfg.Server.TCPAddr != "" {
		ln, err := transport.ListenTCP(cfg.Server.TCPAddr)
		if err != nil {
			return err
		}
		go func() { errCh <- srv.Serve(ctx, ln) }()
	}
	if cfg.Server.UnixSocket != "" {
		ln, err := transport.ListenUnix(cfg.Server.UnixSocket)
		if err != nil {
			return err
		}
		go func() { errCh <- srv.Serve(ctx, ln) }()
	}

	if cfg.Bridge.Enabled {
		go func() { errCh <- runBridge(ctx, router, cfg, codec, logger) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		<-routerDone
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// runBridge keeps one uplink to a peer bus alive until ctx ends, the retry
// budget is exhausted, or the bridge agent is told to shut down.
func runBridge(ctx context.Context, router *route.Router, cfg *config.Config, codec frame.Codec, logger *slog.Logger) error {
	address := cfg.Bridge.Address
	if address == "" {
		address = "uplink"
	}

	agent, err := route.NewAgent[[]byte](router, route.Key(address), cfg.Router.MailboxCapacity)
	if err != nil {
		return fmt.Errorf("registering bridge agent: %w", err)
	}

	br := bridge.New(agent, transport.TCPDialer(cfg.Bridge.Addr), bridge.Config{
		Reconnect: reconnectPolicy(cfg.Bridge),
		Retry:     retryBudget(cfg.Bridge),
		Frame:     codec,
	}, logger)
	defer br.Close()

	for {
		msg, err := br.Run(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msg == nil {
			continue
		}
		if msg.Kind == route.KindShutdown {
			logger.Info("bridge shut down", "address", address)
			return nil
		}
		logger.Debug("bridge received local message",
			"address", address,
			"kind", msg.Kind.String(),
		)
	}
}

// reconnectPolicy builds the backoff policy from config.
func reconnectPolicy(cfg config.BridgeConfig) bridge.Reconnect {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if cfg.Reconnect == "exponential" {
		return bridge.NewExponential(interval, cfg.MaxInterval)
	}
	return bridge.Constant(interval)
}

// retryBudget builds the retry budget from config.
func retryBudget(cfg config.BridgeConfig) bridge.Retry {
	switch cfg.Retry {
	case "never":
		return bridge.RetryNever()
	case "count":
		return bridge.RetryCount(cfg.RetryCount)
	default:
		return bridge.RetryForever()
	}
}
