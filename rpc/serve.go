// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/grainhost/httpbridge/capability"
	"github.com/grainhost/httpbridge/lib/codec"
	"github.com/grainhost/httpbridge/lib/schema"
	"github.com/grainhost/httpbridge/mail"
	"github.com/grainhost/httpbridge/session"
	"github.com/grainhost/httpbridge/web"
	"github.com/grainhost/httpbridge/wire"
)

// Link is the capability connection to the host. The bridge exports
// its view as the bootstrap; the host's bootstrap is its API
// capability.
type Link struct {
	conn   *wire.Conn
	logger *slog.Logger
}

// NewLink wraps stream in a host link serving factory's sessions.
func NewLink(stream io.ReadWriteCloser, factory *session.Factory, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	link := &Link{logger: logger}
	link.conn = wire.NewConn(stream, &viewHandler{factory: factory, logger: logger}, logger)
	return link
}

// Serve dispatches frames until the link dies.
func (l *Link) Serve(ctx context.Context) error {
	return l.conn.Serve(ctx)
}

// HostAPI returns the host's bootstrap capability, for the app-facing
// side channel.
func (l *Link) HostAPI() capability.Capability {
	return wire.Bootstrap(l.conn)
}

// newSessionParams is the wire shape of a newSession call: the typed
// parameters plus the host context's export id.
type newSessionParams struct {
	session.NewSessionParams
	Context uint32 `cbor:"context,omitempty"`
}

type newSessionResults struct {
	Session uint32 `cbor:"session"`
}

type viewInfoResults struct {
	ViewInfo schema.ViewInfo `cbor:"view_info"`
}

// viewHandler is the bootstrap export: the app's view as the host sees
// it.
type viewHandler struct {
	factory *session.Factory
	logger  *slog.Logger
}

func (v *viewHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, params codec.RawMessage) (any, error) {
	switch method {
	case "getViewInfo":
		return viewInfoResults{ViewInfo: v.factory.ViewInfo()}, nil

	case "newSession":
		var p newSessionParams
		if err := codec.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding newSession params: %w", err)
		}
		hostContext := wire.NewRemoteCapability(conn, p.Context)
		created, err := v.factory.NewSession(p.NewSessionParams, hostContext)
		if err != nil {
			return nil, err
		}
		switch {
		case created.Web != nil:
			id := conn.Export(&webSessionHandler{session: created.Web, logger: v.logger})
			return newSessionResults{Session: id}, nil
		case created.Email != nil:
			id := conn.Export(&emailSessionHandler{sink: created.Email})
			return newSessionResults{Session: id}, nil
		default:
			return nil, fmt.Errorf("factory returned no session")
		}

	default:
		return nil, fmt.Errorf("unknown view method %q", method)
	}
}

func (v *viewHandler) Shutdown() {}

// requestParams is the wire shape of every session verb; each method
// reads the fields it defines.
type requestParams struct {
	Path           string                 `cbor:"path"`
	Context        schema.RequestContext  `cbor:"context,omitempty"`
	ResponseStream uint32                 `cbor:"response_stream,omitempty"`
	IgnoreBody     bool                   `cbor:"ignore_body,omitempty"`
	Content        schema.Content         `cbor:"content,omitempty"`
	XMLContent     string                 `cbor:"xml_content,omitempty"`
	Depth          schema.PropfindDepth   `cbor:"depth,omitempty"`
	Destination    string                 `cbor:"destination,omitempty"`
	NoOverwrite    bool                   `cbor:"no_overwrite,omitempty"`
	Shallow        bool                   `cbor:"shallow,omitempty"`
	LockToken      string                 `cbor:"lock_token,omitempty"`
	MimeType       string                 `cbor:"mime_type,omitempty"`
	Encoding       string                 `cbor:"encoding,omitempty"`
	Protocol       []string               `cbor:"protocol,omitempty"`
	ClientStream   uint32                 `cbor:"client_stream,omitempty"`
}

type responseResults struct {
	Response *schema.Response `cbor:"response"`
}

type optionsResults struct {
	Options *schema.Options `cbor:"options"`
}

type streamResults struct {
	Stream uint32 `cbor:"stream"`
}

type webSocketResults struct {
	Protocol     []string `cbor:"protocol,omitempty"`
	ServerStream uint32   `cbor:"server_stream"`
}

// webSessionHandler dispatches the session verbs onto a live web or
// API session.
type webSessionHandler struct {
	session *session.WebSession
	logger  *slog.Logger
}

func (h *webSessionHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, rawParams codec.RawMessage) (any, error) {
	var p requestParams
	if err := codec.Unmarshal(rawParams, &p); err != nil {
		return nil, fmt.Errorf("decoding %s params: %w", method, err)
	}
	sink := &byteStreamStub{conn: conn, target: p.ResponseStream}

	switch method {
	case "get":
		resp, handle, err := h.session.Get(ctx, p.Path, p.Context, p.IgnoreBody, sink)
		return wrapResponse(conn, resp, handle, err)
	case "post":
		resp, handle, err := h.session.Post(ctx, p.Path, p.Content, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "put":
		resp, handle, err := h.session.Put(ctx, p.Path, p.Content, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "patch":
		resp, handle, err := h.session.Patch(ctx, p.Path, p.Content, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "delete":
		resp, handle, err := h.session.Delete(ctx, p.Path, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "mkcol":
		resp, handle, err := h.session.Mkcol(ctx, p.Path, p.Content, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "report":
		resp, handle, err := h.session.Report(ctx, p.Path, p.Content, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "propfind":
		resp, handle, err := h.session.Propfind(ctx, p.Path, p.XMLContent, p.Depth, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "proppatch":
		resp, handle, err := h.session.Proppatch(ctx, p.Path, p.XMLContent, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "copy":
		resp, handle, err := h.session.Copy(ctx, p.Path, p.Destination, p.NoOverwrite, p.Shallow, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "move":
		resp, handle, err := h.session.Move(ctx, p.Path, p.Destination, p.NoOverwrite, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "lock":
		resp, handle, err := h.session.Lock(ctx, p.Path, p.XMLContent, p.Shallow, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "unlock":
		resp, handle, err := h.session.Unlock(ctx, p.Path, p.LockToken, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)
	case "acl":
		resp, handle, err := h.session.Acl(ctx, p.Path, p.XMLContent, p.Context, sink)
		return wrapResponse(conn, resp, handle, err)

	case "options":
		options, err := h.session.Options(ctx, p.Path, p.Context)
		if err != nil {
			return nil, err
		}
		return optionsResults{Options: options}, nil

	case "postStreaming":
		stream, err := h.session.PostStreaming(ctx, p.Path, p.MimeType, p.Encoding, p.Context, sink)
		if err != nil {
			return nil, err
		}
		return streamResults{Stream: conn.Export(&requestStreamHandler{stream: stream})}, nil
	case "putStreaming":
		stream, err := h.session.PutStreaming(ctx, p.Path, p.MimeType, p.Encoding, p.Context, sink)
		if err != nil {
			return nil, err
		}
		return streamResults{Stream: conn.Export(&requestStreamHandler{stream: stream})}, nil

	case "openWebSocket":
		clientStream := &webSocketStreamStub{conn: conn, target: p.ClientStream}
		result, err := h.session.OpenWebSocket(ctx, p.Path, p.Context, p.Protocol, clientStream)
		if err != nil {
			return nil, err
		}
		serverID := conn.Export(&webSocketStreamHandler{stream: result.ServerStream})
		return webSocketResults{Protocol: result.Protocols, ServerStream: serverID}, nil

	default:
		return nil, fmt.Errorf("unknown session method %q", method)
	}
}

func (h *webSessionHandler) Shutdown() {
	h.session.Release()
}

// wrapResponse exports the streaming handle, when there is one, and
// records its id on the response body.
func wrapResponse(conn *wire.Conn, response *schema.Response, handle capability.Handle, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if handle != nil && response.Content != nil && response.Content.Body.Stream {
		response.Content.Body.StreamID = conn.Export(&handleHandler{handle: handle})
	}
	return responseResults{Response: response}, nil
}

// handleHandler exports a pure lifetime handle: it has no methods, and
// releasing it cancels the work it anchors.
type handleHandler struct {
	handle capability.Handle
}

func (h *handleHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, params codec.RawMessage) (any, error) {
	return nil, fmt.Errorf("handle has no method %q", method)
}

func (h *handleHandler) Shutdown() {
	h.handle.Release()
}

// requestStreamHandler exports a streaming upload.
type requestStreamHandler struct {
	stream *web.RequestStream
}

func (h *requestStreamHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, rawParams codec.RawMessage) (any, error) {
	switch method {
	case "write":
		var p writeParams
		if err := codec.Unmarshal(rawParams, &p); err != nil {
			return nil, fmt.Errorf("decoding write params: %w", err)
		}
		return nil, h.stream.Write(ctx, p.Data)
	case "done":
		return nil, h.stream.Done(ctx)
	case "expectSize":
		var p sizeParams
		if err := codec.Unmarshal(rawParams, &p); err != nil {
			return nil, fmt.Errorf("decoding expectSize params: %w", err)
		}
		return nil, h.stream.ExpectSize(ctx, p.Size)
	case "getResponse":
		response, handle, err := h.stream.GetResponse(ctx)
		return wrapResponse(conn, response, handle, err)
	default:
		return nil, fmt.Errorf("unknown request stream method %q", method)
	}
}

func (h *requestStreamHandler) Shutdown() {
	h.stream.Release()
}

// webSocketStreamHandler exports the server-side WebSocket stream the
// host writes into.
type webSocketStreamHandler struct {
	stream *web.WebSocketServerStream
}

func (h *webSocketStreamHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, rawParams codec.RawMessage) (any, error) {
	switch method {
	case "sendBytes":
		var p writeParams
		if err := codec.Unmarshal(rawParams, &p); err != nil {
			return nil, fmt.Errorf("decoding sendBytes params: %w", err)
		}
		return nil, h.stream.SendBytes(ctx, p.Data)
	default:
		return nil, fmt.Errorf("unknown websocket stream method %q", method)
	}
}

func (h *webSocketStreamHandler) Shutdown() {
	h.stream.Release()
}

// emailSessionHandler exports an email session backed by the maildir
// sink.
type emailSessionHandler struct {
	sink *mail.Sink
}

type sendParams struct {
	Email schema.Email `cbor:"email"`
}

func (h *emailSessionHandler) HandleCall(ctx context.Context, conn *wire.Conn, method string, rawParams codec.RawMessage) (any, error) {
	switch method {
	case "send":
		var p sendParams
		if err := codec.Unmarshal(rawParams, &p); err != nil {
			return nil, fmt.Errorf("decoding send params: %w", err)
		}
		return nil, h.sink.Send(ctx, p.Email)
	default:
		return nil, fmt.Errorf("unknown email session method %q", method)
	}
}

func (h *emailSessionHandler) Shutdown() {
	h.sink.Release()
}
