// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package bridgeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/grainhost/httpbridge/capability"
	"github.com/grainhost/httpbridge/lib/codec"
	"github.com/grainhost/httpbridge/session"
	"github.com/grainhost/httpbridge/wire"
)

// DefaultSocketPath is where the app expects the side channel.
const DefaultSocketPath = "/tmp/sandstorm-api"

// Server serves the side-channel socket.
type Server struct {
	// SocketPath is the Unix socket path to listen on. Empty means
	// DefaultSocketPath.
	SocketPath string

	// Registry resolves session ids to host contexts.
	Registry *session.Registry

	// HostAPI is the host's bootstrap capability, handed to the app
	// on request.
	HostAPI capability.Capability

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	activeConnections sync.WaitGroup
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) socketPath() string {
	if s.SocketPath != "" {
		return s.SocketPath
	}
	return DefaultSocketPath
}

// Serve accepts app connections until ctx is cancelled, then waits
// for active connections to finish. Any stale socket file at the path
// is removed before listening, and the socket file is removed on
// return.
func (s *Server) Serve(ctx context.Context) error {
	path := s.socketPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", path, err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", path, err)
	}
	defer func() {
		listener.Close()
		os.Remove(path)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger().Info("bridge api listening", "path", path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger().Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			handler := &apiHandler{registry: s.Registry, hostAPI: s.HostAPI}
			if err := wire.NewConn(conn, handler, s.logger()).Serve(ctx); err != nil {
				s.logger().Debug("bridge api connection failed", "error", err)
			}
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// apiHandler is the bootstrap of one app connection.
type apiHandler struct {
	registry *session.Registry
	hostAPI  capability.Capability
}

type sessionContextParams struct {
	ID string `cbor:"id"`
}

type capabilityResults struct {
	Capability uint32 `cbor:"capability"`
}

func (h *apiHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, params codec.RawMessage) (any, error) {
	switch method {
	case "getSandstormApi":
		id := conn.Export(&proxyHandler{target: h.hostAPI})
		return capabilityResults{Capability: id}, nil

	case "getSessionContext":
		var p sessionContextParams
		if err := codec.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding getSessionContext params: %w", err)
		}
		hostContext, err := h.registry.Lookup(p.ID)
		if err != nil {
			return nil, err
		}
		id := conn.Export(&proxyHandler{target: hostContext})
		return capabilityResults{Capability: id}, nil

	default:
		return nil, fmt.Errorf("unknown bridge api method %q", method)
	}
}

func (h *apiHandler) Shutdown() {}

// proxyHandler forwards calls from the app connection onto a host
// capability. It does not own its target: releasing the proxy leaves
// the host capability with its real owner (the session, or the host
// link itself).
type proxyHandler struct {
	target capability.Capability
}

func (p *proxyHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, params codec.RawMessage) (any, error) {
	results, err := p.target.Invoke(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return codec.RawMessage(results), nil
}

func (p *proxyHandler) Shutdown() {}
