// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"sync"

	"github.com/grainhost/httpbridge/wire"
)

// writeParams is the parameter shape shared by sink writes and
// WebSocket sends.
type writeParams struct {
	Data []byte `cbor:"data"`
}

// sizeParams carries an expectSize announcement.
type sizeParams struct {
	Size uint64 `cbor:"size"`
}

// byteStreamStub makes one of the host's byte sink exports usable as a
// capability.ByteStream.
type byteStreamStub struct {
	conn        *wire.Conn
	target      uint32
	releaseOnce sync.Once
}

func (s *byteStreamStub) Write(ctx context.Context, data []byte) error {
	return s.conn.Call(ctx, s.target, "write", writeParams{Data: data}, nil)
}

func (s *byteStreamStub) Done(ctx context.Context) error {
	return s.conn.Call(ctx, s.target, "done", nil, nil)
}

func (s *byteStreamStub) ExpectSize(ctx context.Context, size uint64) error {
	return s.conn.Call(ctx, s.target, "expectSize", sizeParams{Size: size}, nil)
}

func (s *byteStreamStub) Release() {
	s.releaseOnce.Do(func() { s.conn.Release(s.target) })
}

// webSocketStreamStub makes the host's WebSocket stream export usable
// as a capability.WebSocketStream.
type webSocketStreamStub struct {
	conn        *wire.Conn
	target      uint32
	releaseOnce sync.Once
}

func (s *webSocketStreamStub) SendBytes(ctx context.Context, message []byte) error {
	return s.conn.Call(ctx, s.target, "sendBytes", writeParams{Data: message}, nil)
}

func (s *webSocketStreamStub) Release() {
	s.releaseOnce.Do(func() { s.conn.Release(s.target) })
}
