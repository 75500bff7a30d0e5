// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/grainhost/httpbridge/capability"
	"github.com/grainhost/httpbridge/lib/schema"
)

// RequestStream is the host's handle on a streaming POST/PUT upload.
// The header block is held back until the first Write, Done, or
// ExpectSize, because that first call decides the transfer framing:
// ExpectSize (or an empty Done) first means Content-Length, anything
// else means chunked.
//
// Writes are strictly serialized. GetResponse may be called at most
// once, before or after Done, so the app can answer while the upload
// is still in flight.
type RequestStream struct {
	mu sync.Mutex

	conn           net.Conn
	responseStream capability.ByteStream
	logger         *slog.Logger

	// pendingHeader holds the composed header block, ending in
	// "\r\n\r\n", until the framing decision splices in the transfer
	// header. nil once written.
	pendingHeader []byte

	// chunked unless ExpectSize, or a Done with no bytes written,
	// arrives before the headers go out.
	chunked bool

	doneCalled        bool
	getResponseCalled bool
	bytesReceived     uint64
	expectedSize      *uint64

	closeOnce sync.Once
}

func newRequestStream(conn net.Conn, header string, responseStream capability.ByteStream, logger *slog.Logger) *RequestStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestStream{
		conn:           conn,
		responseStream: responseStream,
		logger:         logger,
		pendingHeader:  []byte(header),
		chunked:        true,
	}
}

// writeHeadersLocked sends the held-back header block, splicing in the
// transfer framing header before the terminator. A non-nil
// contentLength selects identity framing; nil selects chunked. No-op
// once the headers are out.
func (r *RequestStream) writeHeadersLocked(contentLength *uint64) error {
	if r.pendingHeader == nil {
		return nil
	}
	header := r.pendingHeader
	r.pendingHeader = nil

	// The block ends in "\r\n\r\n"; cut the final "\r\n", add the
	// framing header, restore the terminator.
	base := header[:len(header)-2]
	var spliced []byte
	if contentLength != nil {
		r.chunked = false
		spliced = append(base, fmt.Sprintf("Content-Length: %d\r\n\r\n", *contentLength)...)
	} else {
		spliced = append(base, "Transfer-Encoding: chunked\r\n\r\n"...)
	}

	if _, err := r.conn.Write(spliced); err != nil {
		return fmt.Errorf("writing request headers to app: %w", err)
	}
	return nil
}

// Write forwards one chunk of the upload body.
func (r *RequestStream) Write(ctx context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doneCalled {
		return fmt.Errorf("write() called after done()")
	}
	if err := r.writeHeadersLocked(nil); err != nil {
		return err
	}

	r.bytesReceived += uint64(len(data))
	if r.expectedSize != nil && r.bytesReceived > *r.expectedSize {
		return fmt.Errorf("received more bytes than expected")
	}

	if r.chunked {
		framed := make([]byte, 0, len(data)+16)
		framed = append(framed, fmt.Sprintf("%x\r\n", len(data))...)
		framed = append(framed, data...)
		framed = append(framed, "\r\n"...)
		if _, err := r.conn.Write(framed); err != nil {
			return fmt.Errorf("writing request body to app: %w", err)
		}
		return nil
	}
	if _, err := r.conn.Write(data); err != nil {
		return fmt.Errorf("writing request body to app: %w", err)
	}
	return nil
}

// Done ends the upload. In chunked mode it emits the zero-chunk
// terminator; in identity mode the declared length already delimits
// the body.
func (r *RequestStream) Done(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expectedSize != nil && r.bytesReceived != *r.expectedSize {
		return fmt.Errorf("done() called before all bytes expected via expectSize() were written")
	}
	if r.doneCalled {
		return fmt.Errorf("done() called twice")
	}
	r.doneCalled = true

	// If the headers have not gone out yet, the body is empty, so
	// declare a zero length. (If they have, the argument is ignored.)
	var zero uint64
	if err := r.writeHeadersLocked(&zero); err != nil {
		return err
	}

	if r.chunked {
		if _, err := r.conn.Write([]byte("0\r\n\r\n")); err != nil {
			return fmt.Errorf("writing request terminator to app: %w", err)
		}
	}
	return nil
}

// ExpectSize announces how many more bytes will follow. When it
// arrives before the headers go out, the upload uses Content-Length
// framing instead of chunked.
func (r *RequestStream) ExpectSize(ctx context.Context, size uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	expected := r.bytesReceived + size
	r.expectedSize = &expected
	return r.writeHeadersLocked(&size)
}

// GetResponse parses the app's response head, which may arrive while
// the upload is still streaming. For streaming responses the returned
// handle anchors the body pump (which then owns the connection); for
// buffered responses the connection stays open for any remaining
// upload bytes and is closed on Release.
func (r *RequestStream) GetResponse(ctx context.Context) (*schema.Response, capability.Handle, error) {
	r.mu.Lock()
	if r.getResponseCalled {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("getResponse() called more than once")
	}
	r.getResponseCalled = true
	r.mu.Unlock()

	parser := NewResponseParser(r.responseStream, r.logger)
	if _, err := parser.ReadHead(ctx, r.conn); err != nil {
		r.Release()
		return nil, nil, err
	}
	response, err := parser.BuildResponse()
	if err != nil {
		r.Release()
		return nil, nil, err
	}
	if parser.IsStreaming() {
		return response, parser.StartPump(r.conn), nil
	}
	return response, nil, nil
}

// Release closes the upstream connection. Idempotent; called when the
// host drops the stream capability.
func (r *RequestStream) Release() {
	r.closeOnce.Do(func() {
		r.conn.Close()
	})
}
