// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/grainhost/httpbridge/capability"
	"github.com/grainhost/httpbridge/lib/schema"
)

// webSocketKey is the fixed Sec-WebSocket-Key sent on every upgrade
// request. The key exchange exists to defeat broken proxies; there are
// none on a loopback connection.
const webSocketKey = "mj9i153gxeYNlGDoKdoXOQ=="

// WebSocketResult is the outcome of an accepted WebSocket upgrade.
type WebSocketResult struct {
	// Protocols lists the subprotocols the app accepted.
	Protocols []string

	// ServerStream carries host bytes to the app. Releasing it tears
	// down the WebSocket.
	ServerStream *WebSocketServerStream
}

// OpenWebSocket performs a WebSocket upgrade against the app and, on a
// 101 response, installs the pump pair: bytes from the app flow to
// clientStream, bytes from the host flow through the returned server
// stream.
func (s *Session) OpenWebSocket(ctx context.Context, path string, reqCtx schema.RequestContext, protocols []string, clientStream capability.WebSocketStream) (*WebSocketResult, error) {
	lines := make([]string, 0, 16)
	lines = append(lines, "GET "+s.requestTarget(path)+" HTTP/1.1")
	lines = append(lines, "Upgrade: websocket")
	lines = append(lines, "Connection: Upgrade")
	lines = append(lines, "Sec-WebSocket-Key: "+webSocketKey)
	if len(protocols) > 0 {
		lines = append(lines, "Sec-WebSocket-Protocol: "+strings.Join(protocols, ", "))
	}
	lines = append(lines, "Sec-WebSocket-Version: 13")
	lines = s.addCommonHeaders(lines, reqCtx)
	request := strings.Join(lines, "\r\n")

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte(request)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing upgrade request to app: %w", err)
	}

	parser := NewResponseParser(discardStream{}, s.logger)
	remainder, err := parser.ReadHead(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	accepted, err := parser.BuildForWebSocket()
	if err != nil {
		conn.Close()
		return nil, err
	}

	serverStream := &WebSocketServerStream{conn: conn, logger: s.logger}
	if len(remainder) > 0 {
		// Bytes the app sent past the handshake belong to the
		// WebSocket; deliver them before the pump starts.
		if err := clientStream.SendBytes(ctx, remainder); err != nil {
			s.logger.Error("websocket send to host failed", "error", err)
		}
	}
	go pumpWebSocket(conn, clientStream, s.logger)

	return &WebSocketResult{Protocols: accepted, ServerStream: serverStream}, nil
}

// pumpWebSocket is the downstream pump: it moves bytes from the app's
// socket to the host stream until EOF, then releases the host stream
// to signal closure. Send failures are logged and swallowed:
// WebSocket datagrams are one-way, and acks belong to the application
// protocol above them.
func pumpWebSocket(conn net.Conn, clientStream capability.WebSocketStream, logger *slog.Logger) {
	buffer := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			message := make([]byte, n)
			copy(message, buffer[:n])
			if sendErr := clientStream.SendBytes(context.Background(), message); sendErr != nil {
				logger.Error("websocket send to host failed", "error", sendErr)
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Error("websocket read from app failed", "error", err)
			}
			if releaser, ok := clientStream.(capability.Releaser); ok {
				releaser.Release()
			}
			return
		}
	}
}

// WebSocketServerStream is the upstream half of a WebSocket bridge:
// the host calls SendBytes and the bytes land on the app's socket.
// Writes are strictly serialized; each call returns once its write
// completes, which is the host's backpressure signal.
type WebSocketServerStream struct {
	mu        sync.Mutex
	conn      net.Conn
	logger    *slog.Logger
	closeOnce sync.Once
}

// SendBytes writes one message's bytes to the app.
func (w *WebSocketServerStream) SendBytes(ctx context.Context, message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.conn.Write(message); err != nil {
		return fmt.Errorf("writing websocket bytes to app: %w", err)
	}
	return nil
}

// Release tears down the WebSocket by closing the app connection,
// which also stops the downstream pump.
func (w *WebSocketServerStream) Release() {
	w.closeOnce.Do(func() {
		w.conn.Close()
	})
}
