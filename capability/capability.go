// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import "context"

// ByteStream accepts a sequence of byte chunks followed by exactly one
// Done. ExpectSize is advisory: it announces how many bytes will
// follow. Implementations must tolerate Write and Done arriving from
// different goroutines than ExpectSize, but calls are never
// concurrent.
type ByteStream interface {
	Write(ctx context.Context, data []byte) error
	Done(ctx context.Context) error
	ExpectSize(ctx context.Context, size uint64) error
}

// WebSocketStream carries raw WebSocket bytes in one direction. The
// framing belongs to the endpoints; the bridge only moves bytes.
type WebSocketStream interface {
	SendBytes(ctx context.Context, message []byte) error
}

// Handle is a pure lifetime token. Releasing it cancels the work it
// anchors: a streaming response pump, a WebSocket pair, a session.
// Release is idempotent.
type Handle interface {
	Release()
}

// Releaser is implemented by capabilities whose remote reference can
// be dropped. The bridge releases host streams when it is done with
// them; in-process implementations may ignore it.
type Releaser interface {
	Release()
}

// Capability is an opaque remote object. The bridge never interprets
// the session context or the host API; it stores them, proxies
// Invoke calls from the app, and releases them when their owner goes
// away.
type Capability interface {
	Invoke(ctx context.Context, method string, params []byte) (results []byte, err error)
	Release()
}
