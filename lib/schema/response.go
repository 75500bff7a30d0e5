// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// ExpiresKind discriminates a cookie expiry.
type ExpiresKind string

const (
	ExpiresUnset    ExpiresKind = ""
	ExpiresAbsolute ExpiresKind = "absolute"
	ExpiresRelative ExpiresKind = "relative"
)

// CookieExpires is a cookie's expiry: unset, absolute seconds since
// the epoch (UTC), or relative seconds from now.
type CookieExpires struct {
	Kind    ExpiresKind `cbor:"kind,omitempty"`
	Seconds int64       `cbor:"seconds,omitempty"`
}

// Cookie is one parsed Set-Cookie value.
type Cookie struct {
	Name     string        `cbor:"name"`
	Value    string        `cbor:"value"`
	Path     string        `cbor:"path,omitempty"`
	Expires  CookieExpires `cbor:"expires,omitempty"`
	HTTPOnly bool          `cbor:"http_only,omitempty"`
}

// Response is the tagged result of a session call. Exactly one of the
// variant pointers is set. SetCookies applies regardless of variant.
type Response struct {
	SetCookies []Cookie `cbor:"set_cookies,omitempty"`

	Content            *ContentResponse    `cbor:"content,omitempty"`
	NoContent          *NoContent          `cbor:"no_content,omitempty"`
	PreconditionFailed *PreconditionFailed `cbor:"precondition_failed,omitempty"`
	Redirect           *Redirect           `cbor:"redirect,omitempty"`
	ClientError        *ClientError        `cbor:"client_error,omitempty"`
	ServerError        *ServerError        `cbor:"server_error,omitempty"`
}

// Body is a response body: either fully buffered bytes, or a stream
// reference when the body is being forwarded to the response sink.
// StreamID names the wire export of the stream's lifetime handle; it
// is filled in by the RPC layer and zero for in-process use.
type Body struct {
	Bytes    []byte `cbor:"bytes,omitempty"`
	Stream   bool   `cbor:"stream,omitempty"`
	StreamID uint32 `cbor:"stream_id,omitempty"`
}

// ContentResponse is a successful response carrying content.
type ContentResponse struct {
	StatusCode       SuccessCode `cbor:"status_code"`
	MimeType         string      `cbor:"mime_type,omitempty"`
	Encoding         string      `cbor:"encoding,omitempty"`
	Language         string      `cbor:"language,omitempty"`
	ETag             *ETag       `cbor:"etag,omitempty"`
	DownloadFilename string      `cbor:"download_filename,omitempty"`
	Body             Body        `cbor:"body"`
}

// NoContent is a 204/205 response.
type NoContent struct {
	ShouldResetForm bool `cbor:"should_reset_form,omitempty"`
}

// PreconditionFailed is a 304/412 response.
type PreconditionFailed struct {
	MatchingETag *ETag `cbor:"matching_etag,omitempty"`
}

// Redirect is a 301/302/303/307/308 response.
type Redirect struct {
	IsPermanent bool   `cbor:"is_permanent,omitempty"`
	SwitchToGet bool   `cbor:"switch_to_get,omitempty"`
	Location    string `cbor:"location"`
}

// ClientError is a whitelisted 4xx response.
type ClientError struct {
	StatusCode      ClientErrorCode `cbor:"status_code"`
	DescriptionHTML string          `cbor:"description_html,omitempty"`
}

// ServerError is a 5xx response.
type ServerError struct {
	DescriptionHTML string `cbor:"description_html,omitempty"`
}

// Options is the result of an OPTIONS call: WebDAV capability classes
// plus any extension tokens from the DAV header.
type Options struct {
	DavClass1     bool     `cbor:"dav_class1,omitempty"`
	DavClass2     bool     `cbor:"dav_class2,omitempty"`
	DavClass3     bool     `cbor:"dav_class3,omitempty"`
	DavExtensions []string `cbor:"dav_extensions,omitempty"`
}
