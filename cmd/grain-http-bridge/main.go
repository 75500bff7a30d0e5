// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// grain-http-bridge runs a legacy HTTP application inside a
// capability-based host. It starts the app, connects to it over
// loopback HTTP, and translates typed session calls arriving on the
// inherited capability socket into HTTP requests against the app.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/grainhost/httpbridge/bridgeapi"
	"github.com/grainhost/httpbridge/lib/config"
	"github.com/grainhost/httpbridge/lib/process"
	"github.com/grainhost/httpbridge/rpc"
	"github.com/grainhost/httpbridge/session"
	"github.com/grainhost/httpbridge/supervisor"
)

// capabilitySocketFD is the file descriptor the host passes the
// capability socket on.
const capabilitySocketFD = 3

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	verbose := false
	var positional []string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case len(positional) == 0 && (arg == "--verbose" || arg == "-v"):
			verbose = true
		case len(positional) == 0 && (arg == "--help" || arg == "-h"):
			printUsage()
			return nil
		default:
			// The first positional ends flag parsing; everything
			// after the port belongs to the app's argv.
			positional = args[i:]
			i = len(args)
		}
	}

	if len(positional) < 2 {
		printUsage()
		return fmt.Errorf("expected <port> and <command>")
	}

	port, err := strconv.Atoi(positional[0])
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", positional[0])
	}
	command := positional[1:]

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	supervised := &supervisor.Supervisor{
		Port:    port,
		Command: command,
		Logger:  logger,
	}
	if err := supervised.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := supervised.WaitReady(ctx); err != nil {
		return err
	}

	bridgeConfig, err := config.Load()
	if err != nil {
		return err
	}

	registry := session.NewRegistry()
	factory := session.NewFactory(supervised.Addr(), bridgeConfig, registry, "", logger)

	hostStream, err := capabilityStream()
	if err != nil {
		return err
	}
	link := rpc.NewLink(hostStream, factory, logger)
	go func() {
		if err := link.Serve(ctx); err != nil {
			logger.Error("host link failed", "error", err)
		}
	}()

	apiServer := &bridgeapi.Server{
		Registry: registry,
		HostAPI:  link.HostAPI(),
		Logger:   logger,
	}
	go func() {
		if err := apiServer.Serve(ctx); err != nil {
			logger.Error("bridge api server failed", "error", err)
		}
	}()

	// The app's exit is the bridge's exit, always with a diagnostic.
	return supervised.Wait()
}

func printUsage() {
	fmt.Print(`grain-http-bridge - serve a legacy HTTP app to a capability host

USAGE
    grain-http-bridge [flags] <port> <command> [args...]

Runs <command>, waits for it to accept HTTP connections on
127.0.0.1:<port>, then serves the host's capability socket (inherited
on file descriptor 3) by translating session calls into HTTP requests
against the app.

FLAGS
    -v, --verbose    Enable per-request debug logging
    -h, --help       Show this help
`)
}

// capabilityStream adopts the inherited capability socket.
func capabilityStream() (io.ReadWriteCloser, error) {
	file := os.NewFile(capabilitySocketFD, "capability-socket")
	if file == nil {
		return nil, fmt.Errorf("capability socket fd %d not available", capabilitySocketFD)
	}
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("adopting capability socket: %w", err)
	}
	return conn, nil
}
