// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"

	"github.com/grainhost/httpbridge/capability"
	"github.com/grainhost/httpbridge/lib/schema"
)

// SessionOptions configures a Session. The identity fields are
// immutable for the lifetime of the session.
type SessionOptions struct {
	// Addr is the loopback address of the app's HTTP server,
	// e.g. "127.0.0.1:8000".
	Addr string

	// UserInfo is the host-supplied identity of the requesting user.
	UserInfo schema.UserInfo

	// SessionID is the session's identifier string, also sent to the
	// app in the X-Sandstorm-Session-Id header.
	SessionID string

	// TabID is the hex encoding of the host's opaque tab identifier.
	TabID string

	// BasePath is the externally visible URL prefix, empty for API
	// sessions.
	BasePath string

	// UserAgent and AcceptLanguages describe the requesting client.
	// AcceptLanguages is already comma-joined.
	UserAgent       string
	AcceptLanguages string

	// RootPath is the URL path prefix prepended to every request
	// path: "/" for web sessions, the configured API path for API
	// sessions.
	RootPath string

	// Permissions is the comma-joined list of granted permission
	// names.
	Permissions string

	// RemoteAddress is the requesting client's IP, when known.
	RemoteAddress string

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Session bridges one host session onto the app's HTTP server. Every
// verb opens a fresh TCP connection, writes a synthesized request, and
// parses the response into a typed variant.
type Session struct {
	addr   string
	logger *slog.Logger

	sessionID       string
	tabID           string
	userDisplayName string
	userHandle      string
	userPicture     string
	userPronouns    schema.Pronouns
	userID          string
	permissions     string
	basePath        string
	baseHost        string
	baseScheme      string
	userAgent       string
	acceptLanguages string
	rootPath        string
	remoteAddress   string
}

// NewSession validates the identity and derives the header values that
// stay fixed across calls.
func NewSession(options SessionOptions) (*Session, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	session := &Session{
		addr:            options.Addr,
		logger:          logger,
		sessionID:       options.SessionID,
		tabID:           options.TabID,
		userDisplayName: percentEncode(options.UserInfo.DisplayName),
		userHandle:      options.UserInfo.PreferredHandle,
		userPicture:     options.UserInfo.PictureURL,
		userPronouns:    options.UserInfo.Pronouns,
		permissions:     options.Permissions,
		basePath:        options.BasePath,
		userAgent:       options.UserAgent,
		acceptLanguages: options.AcceptLanguages,
		rootPath:        options.RootPath,
		remoteAddress:   options.RemoteAddress,
	}

	if len(options.UserInfo.IdentityID) > 0 {
		if len(options.UserInfo.IdentityID) != 32 {
			return nil, fmt.Errorf("identity ID is %d bytes, expected a 32-byte digest", len(options.UserInfo.IdentityID))
		}
		// Truncate to 128 bits to be a little more wieldy. Still 32
		// hex characters.
		session.userID = hex.EncodeToString(options.UserInfo.IdentityID[:16])
	}

	if options.BasePath != "" {
		host, scheme, err := splitBaseURL(options.BasePath)
		if err != nil {
			return nil, err
		}
		session.baseHost = host
		session.baseScheme = scheme
	}

	return session, nil
}

// Get performs a GET, or HEAD when ignoreBody is set.
func (s *Session) Get(ctx context.Context, path string, reqCtx schema.RequestContext, ignoreBody bool, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	method := "GET"
	if ignoreBody {
		method = "HEAD"
	}
	request := s.makeHeaders(method, path, reqCtx)
	return s.sendRequest(ctx, []byte(request), responseStream)
}

// Post performs a POST with a fully buffered body.
func (s *Session) Post(ctx context.Context, path string, content schema.Content, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	return s.sendEntity(ctx, "POST", path, content, reqCtx, responseStream)
}

// Put performs a PUT with a fully buffered body.
func (s *Session) Put(ctx context.Context, path string, content schema.Content, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	return s.sendEntity(ctx, "PUT", path, content, reqCtx, responseStream)
}

// Patch performs a PATCH with a fully buffered body.
func (s *Session) Patch(ctx context.Context, path string, content schema.Content, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	return s.sendEntity(ctx, "PATCH", path, content, reqCtx, responseStream)
}

// Mkcol performs a WebDAV MKCOL with a fully buffered body.
func (s *Session) Mkcol(ctx context.Context, path string, content schema.Content, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	return s.sendEntity(ctx, "MKCOL", path, content, reqCtx, responseStream)
}

// Report performs a WebDAV REPORT with a fully buffered body.
func (s *Session) Report(ctx context.Context, path string, content schema.Content, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	return s.sendEntity(ctx, "REPORT", path, content, reqCtx, responseStream)
}

// sendEntity sends a body-bearing verb with Content-Type,
// Content-Length, and optional Content-Encoding headers.
func (s *Session) sendEntity(ctx context.Context, method, path string, content schema.Content, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	extras := []string{
		"Content-Type: " + content.MimeType,
		fmt.Sprintf("Content-Length: %d", len(content.Body)),
	}
	if content.Encoding != "" {
		extras = append(extras, "Content-Encoding: "+content.Encoding)
	}
	request := s.makeHeaders(method, path, reqCtx, extras...)
	return s.sendRequest(ctx, append([]byte(request), content.Body...), responseStream)
}

// Delete performs a DELETE.
func (s *Session) Delete(ctx context.Context, path string, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	request := s.makeHeaders("DELETE", path, reqCtx)
	return s.sendRequest(ctx, []byte(request), responseStream)
}

// Propfind performs a WebDAV PROPFIND at the given depth.
func (s *Session) Propfind(ctx context.Context, path, xmlContent string, depth schema.PropfindDepth, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	depthValue := "infinity"
	switch depth {
	case schema.PropfindDepthZero:
		depthValue = "0"
	case schema.PropfindDepthOne:
		depthValue = "1"
	}
	request := s.makeHeaders("PROPFIND", path, reqCtx,
		"Content-Type: application/xml;charset=utf-8",
		fmt.Sprintf("Content-Length: %d", len(xmlContent)),
		"Depth: "+depthValue)
	return s.sendRequest(ctx, append([]byte(request), xmlContent...), responseStream)
}

// Proppatch performs a WebDAV PROPPATCH.
func (s *Session) Proppatch(ctx context.Context, path, xmlContent string, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	request := s.makeHeaders("PROPPATCH", path, reqCtx,
		"Content-Type: application/xml;charset=utf-8",
		fmt.Sprintf("Content-Length: %d", len(xmlContent)))
	return s.sendRequest(ctx, append([]byte(request), xmlContent...), responseStream)
}

// Copy performs a WebDAV COPY to destination.
func (s *Session) Copy(ctx context.Context, path, destination string, noOverwrite, shallow bool, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	destinationHeader, err := s.makeDestinationHeader(destination)
	if err != nil {
		return nil, nil, err
	}
	request := s.makeHeaders("COPY", path, reqCtx,
		destinationHeader,
		makeOverwriteHeader(noOverwrite),
		makeDepthHeader(shallow))
	return s.sendRequest(ctx, []byte(request), responseStream)
}

// Move performs a WebDAV MOVE to destination.
func (s *Session) Move(ctx context.Context, path, destination string, noOverwrite bool, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	destinationHeader, err := s.makeDestinationHeader(destination)
	if err != nil {
		return nil, nil, err
	}
	request := s.makeHeaders("MOVE", path, reqCtx,
		destinationHeader,
		makeOverwriteHeader(noOverwrite))
	return s.sendRequest(ctx, []byte(request), responseStream)
}

// Lock performs a WebDAV LOCK.
func (s *Session) Lock(ctx context.Context, path, xmlContent string, shallow bool, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	request := s.makeHeaders("LOCK", path, reqCtx,
		"Content-Type: application/xml;charset=utf-8",
		fmt.Sprintf("Content-Length: %d", len(xmlContent)),
		makeDepthHeader(shallow))
	return s.sendRequest(ctx, append([]byte(request), xmlContent...), responseStream)
}

// Unlock performs a WebDAV UNLOCK with the given lock token.
func (s *Session) Unlock(ctx context.Context, path, lockToken string, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	request := s.makeHeaders("UNLOCK", path, reqCtx, "Lock-Token: "+lockToken)
	return s.sendRequest(ctx, []byte(request), responseStream)
}

// Acl performs a WebDAV ACL.
func (s *Session) Acl(ctx context.Context, path, xmlContent string, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	request := s.makeHeaders("ACL", path, reqCtx,
		"Content-Type: application/xml;charset=utf-8",
		fmt.Sprintf("Content-Length: %d", len(xmlContent)))
	return s.sendRequest(ctx, append([]byte(request), xmlContent...), responseStream)
}

// Options performs an OPTIONS call and returns the WebDAV capability
// classes the app advertises. Any response body is discarded.
func (s *Session) Options(ctx context.Context, path string, reqCtx schema.RequestContext) (*schema.Options, error) {
	request := s.makeHeaders("OPTIONS", path, reqCtx)

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte(request)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing request to app: %w", err)
	}

	parser := NewResponseParser(discardStream{}, s.logger)
	if _, err := parser.ReadHead(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	options, err := parser.BuildOptions()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if parser.IsStreaming() {
		// Drain the rest of the body into the discard sink; the pump
		// closes the connection at EOF.
		parser.StartPump(conn)
	} else {
		conn.Close()
	}
	return options, nil
}

// PostStreaming starts a streaming POST upload and returns the request
// stream the host writes into.
func (s *Session) PostStreaming(ctx context.Context, path, mimeType, encoding string, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*RequestStream, error) {
	return s.sendRequestStreaming(ctx, "POST", path, mimeType, encoding, reqCtx, responseStream)
}

// PutStreaming starts a streaming PUT upload and returns the request
// stream the host writes into.
func (s *Session) PutStreaming(ctx context.Context, path, mimeType, encoding string, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*RequestStream, error) {
	return s.sendRequestStreaming(ctx, "PUT", path, mimeType, encoding, reqCtx, responseStream)
}

func (s *Session) sendRequestStreaming(ctx context.Context, method, path, mimeType, encoding string, reqCtx schema.RequestContext, responseStream capability.ByteStream) (*RequestStream, error) {
	extras := []string{"Content-Type: " + mimeType}
	if encoding != "" {
		extras = append(extras, "Content-Encoding: "+encoding)
	}
	request := s.makeHeaders(method, path, reqCtx, extras...)

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	return newRequestStream(conn, request, responseStream, s.logger), nil
}

// sendRequest writes one fully composed request on a fresh connection
// and parses the response. For streaming responses the returned handle
// anchors the pump; for buffered responses it is nil.
func (s *Session) sendRequest(ctx context.Context, request []byte, responseStream capability.ByteStream) (*schema.Response, capability.Handle, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := conn.Write(request); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("writing request to app: %w", err)
	}
	// Note: no write-side shutdown after the request. Some HTTP
	// servers close the socket immediately on EOF, even with responses
	// still queued.

	parser := NewResponseParser(responseStream, s.logger)
	if _, err := parser.ReadHead(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	response, err := parser.BuildResponse()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if parser.IsStreaming() {
		handle := parser.StartPump(conn)
		return response, handle, nil
	}
	conn.Close()
	return response, nil, nil
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to app at %s: %w", s.addr, err)
	}
	return conn, nil
}

// makeDestinationHeader guards the WebDAV destination against header
// injection: every byte must be above space and must not be a comma.
func (s *Session) makeDestinationHeader(destination string) (string, error) {
	for _, c := range []byte(destination) {
		if c <= ' ' || c == ',' {
			return "", fmt.Errorf("invalid destination %q", destination)
		}
	}
	return "Destination: " + s.basePath + destination, nil
}

func makeOverwriteHeader(noOverwrite bool) string {
	if noOverwrite {
		return "Overwrite: F"
	}
	return "Overwrite: T"
}

func makeDepthHeader(shallow bool) string {
	if shallow {
		return "Depth: 0"
	}
	return "Depth: infinity"
}

// discardStream is the response sink for OPTIONS calls, whose body is
// irrelevant.
type discardStream struct{}

func (discardStream) Write(context.Context, []byte) error      { return nil }
func (discardStream) Done(context.Context) error               { return nil }
func (discardStream) ExpectSize(context.Context, uint64) error { return nil }
