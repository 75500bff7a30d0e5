// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/grainhost/httpbridge/lib/codec"
)

// Handler is a capability exported on a connection. HandleCall
// processes one method call; the returned value is CBOR-encoded into
// the results (nil means empty results). Shutdown fires exactly once,
// when the peer releases the export or the connection closes.
type Handler interface {
	HandleCall(ctx context.Context, conn *Conn, method string, params codec.RawMessage) (any, error)
	Shutdown()
}

// Call is a method invocation on a target capability.
type Call struct {
	ID     uint64           `cbor:"id"`
	Target uint32           `cbor:"target"`
	Method string           `cbor:"method"`
	Params codec.RawMessage `cbor:"params,omitempty"`
}

// Return answers a call: results on success, an error string on
// failure.
type Return struct {
	ID      uint64           `cbor:"id"`
	Results codec.RawMessage `cbor:"results,omitempty"`
	Error   string           `cbor:"error,omitempty"`
}

// Release drops one of the peer's exports.
type Release struct {
	Target uint32 `cbor:"target"`
}

// Frame is the single message type on the wire; exactly one field is
// set.
type Frame struct {
	Call    *Call    `cbor:"call,omitempty"`
	Return  *Return  `cbor:"return,omitempty"`
	Release *Release `cbor:"release,omitempty"`
}

// ErrConnClosed reports a call attempted on (or interrupted by) a
// closed connection.
var ErrConnClosed = errors.New("capability connection closed")

// BootstrapID is the export id both sides reserve for their bootstrap
// capability.
const BootstrapID uint32 = 0

// Conn is one capability connection. Both sides are symmetric: each
// may export capabilities, call the peer's exports, and release
// imports it no longer needs.
type Conn struct {
	stream io.ReadWriteCloser
	logger *slog.Logger

	// writeMu serializes frame writes; CBOR values are
	// self-delimiting, so no further framing is needed.
	writeMu sync.Mutex
	encoder *codec.Encoder

	mu         sync.Mutex
	exports    map[uint32]Handler
	nextExport uint32
	pending    map[uint64]chan Return
	nextCall   uint64
	closed     bool

	done chan struct{}
}

// NewConn wraps stream in a capability connection. bootstrap, when
// non-nil, becomes export 0. Call Serve to start dispatching.
func NewConn(stream io.ReadWriteCloser, bootstrap Handler, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	conn := &Conn{
		stream:     stream,
		logger:     logger,
		encoder:    codec.NewEncoder(stream),
		exports:    make(map[uint32]Handler),
		nextExport: 1,
		pending:    make(map[uint64]chan Return),
		done:       make(chan struct{}),
	}
	if bootstrap != nil {
		conn.exports[BootstrapID] = bootstrap
	}
	return conn
}

// Serve reads and dispatches frames until the stream fails or ctx is
// cancelled. On return every export has been shut down and every
// in-flight call has failed with ErrConnClosed.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.close()

	// Unblock the decoder when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { c.stream.Close() })
	defer stop()

	decoder := codec.NewDecoder(c.stream)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading capability frame: %w", err)
		}

		switch {
		case frame.Call != nil:
			go c.handleCall(ctx, *frame.Call)
		case frame.Return != nil:
			c.handleReturn(*frame.Return)
		case frame.Release != nil:
			c.handleRelease(*frame.Release)
		default:
			return fmt.Errorf("capability frame with no variant")
		}
	}
}

// Done is closed once Serve has finished and all cleanup has run.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Export registers a capability and returns its id for embedding in
// parameters or results.
func (c *Conn) Export(handler Handler) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextExport
	c.nextExport++
	c.exports[id] = handler
	return id
}

// Call invokes method on the peer's export target. params is
// CBOR-encoded unless nil; results, unless nil, receives the decoded
// return value.
func (c *Conn) Call(ctx context.Context, target uint32, method string, params, results any) error {
	var rawParams codec.RawMessage
	if params != nil {
		encoded, err := codec.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
		rawParams = encoded
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	id := c.nextCall
	c.nextCall++
	answer := make(chan Return, 1)
	c.pending[id] = answer
	c.mu.Unlock()

	frame := Frame{Call: &Call{ID: id, Target: target, Method: method, Params: rawParams}}
	if err := c.writeFrame(frame); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	select {
	case ret, ok := <-answer:
		if !ok {
			return ErrConnClosed
		}
		if ret.Error != "" {
			return fmt.Errorf("%s: %s", method, ret.Error)
		}
		if results != nil && len(ret.Results) > 0 {
			if err := codec.Unmarshal(ret.Results, results); err != nil {
				return fmt.Errorf("decoding %s results: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Release tells the peer to drop its export target. Used for imports
// this side no longer needs; errors are ignored because a closing
// connection releases everything anyway.
func (c *Conn) Release(target uint32) {
	if err := c.writeFrame(Frame{Release: &Release{Target: target}}); err != nil {
		c.logger.Debug("writing release frame", "target", target, "error", err)
	}
}

func (c *Conn) handleCall(ctx context.Context, call Call) {
	c.mu.Lock()
	handler, ok := c.exports[call.Target]
	c.mu.Unlock()

	if !ok {
		c.writeReturn(Return{ID: call.ID, Error: fmt.Sprintf("no such capability %d", call.Target)})
		return
	}

	result, err := handler.HandleCall(ctx, c, call.Method, call.Params)
	if err != nil {
		c.writeReturn(Return{ID: call.ID, Error: err.Error()})
		return
	}

	ret := Return{ID: call.ID}
	if result != nil {
		encoded, err := codec.Marshal(result)
		if err != nil {
			c.writeReturn(Return{ID: call.ID, Error: fmt.Sprintf("encoding results: %v", err)})
			return
		}
		ret.Results = encoded
	}
	c.writeReturn(ret)
}

func (c *Conn) handleReturn(ret Return) {
	c.mu.Lock()
	answer, ok := c.pending[ret.ID]
	delete(c.pending, ret.ID)
	c.mu.Unlock()
	if ok {
		answer <- ret
	}
}

func (c *Conn) handleRelease(release Release) {
	c.mu.Lock()
	handler, ok := c.exports[release.Target]
	delete(c.exports, release.Target)
	c.mu.Unlock()
	if ok {
		handler.Shutdown()
	}
}

func (c *Conn) writeReturn(ret Return) {
	if err := c.writeFrame(Frame{Return: &ret}); err != nil {
		c.logger.Debug("writing return frame", "error", err)
	}
}

func (c *Conn) writeFrame(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.Encode(frame); err != nil {
		return fmt.Errorf("writing capability frame: %w", err)
	}
	return nil
}

// close fails all pending calls and shuts down all exports, exactly
// once.
func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]chan Return)
	exports := c.exports
	c.exports = make(map[uint32]Handler)
	c.mu.Unlock()

	c.stream.Close()
	for _, answer := range pending {
		close(answer)
	}
	for _, handler := range exports {
		handler.Shutdown()
	}
	close(c.done)
}
