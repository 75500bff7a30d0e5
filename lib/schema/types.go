// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/binary"
	"net"
)

// Pronouns is the pronoun preference carried in user identity. The
// string form is what the X-Sandstorm-User-Pronouns header carries;
// the neutral default is never sent.
type Pronouns string

const (
	PronounNeutral Pronouns = "neutral"
	PronounMale    Pronouns = "male"
	PronounFemale  Pronouns = "female"
	PronounRobot   Pronouns = "robot"
)

// UserInfo is the host-supplied identity for a session. Immutable for
// the lifetime of the session.
type UserInfo struct {
	// DisplayName is the user's display name in whatever form the
	// host stores it. The bridge percent-encodes it before placing it
	// in a header.
	DisplayName string `cbor:"display_name"`

	// PreferredHandle is the user's preferred short handle, if any.
	PreferredHandle string `cbor:"preferred_handle,omitempty"`

	// PictureURL points at the user's avatar.
	PictureURL string `cbor:"picture_url,omitempty"`

	// Pronouns is the user's pronoun preference. Empty means neutral.
	Pronouns Pronouns `cbor:"pronouns,omitempty"`

	// IdentityID is the user's 32-byte identity digest. Empty for
	// anonymous sessions. The bridge forwards the hex of the first 16
	// bytes as the user id.
	IdentityID []byte `cbor:"identity_id,omitempty"`

	// Permissions marks which of the app's declared permissions (in
	// declaration order) this user holds.
	Permissions []bool `cbor:"permissions,omitempty"`
}

// PermissionDef is one permission an app declares in its view info.
type PermissionDef struct {
	Name  string `cbor:"name" yaml:"name"`
	Title string `cbor:"title,omitempty" yaml:"title,omitempty"`
}

// ViewInfo is the display metadata and permission list the host asks
// for when attaching an app. It is returned verbatim from the bridge
// config.
type ViewInfo struct {
	AppTitle    string          `cbor:"app_title,omitempty" yaml:"app_title,omitempty"`
	Permissions []PermissionDef `cbor:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// SessionParams carries the parameters of a new web session.
type SessionParams struct {
	// BasePath is the externally visible URL prefix for the session,
	// e.g. "https://app-1234.example.com". Never ends in a slash.
	BasePath string `cbor:"base_path,omitempty"`

	// UserAgent is the browser's User-Agent string.
	UserAgent string `cbor:"user_agent,omitempty"`

	// AcceptableLanguages lists language tags in preference order.
	AcceptableLanguages []string `cbor:"acceptable_languages,omitempty"`
}

// APISessionParams carries the parameters of a new API session.
type APISessionParams struct {
	// RemoteAddress is the caller's IP, when the host chooses to
	// reveal it.
	RemoteAddress *IPAddress `cbor:"remote_address,omitempty"`
}

// IPAddress is an IPv6 address as two big-endian 64-bit halves, with
// IPv4 carried in the customary v4-mapped form.
type IPAddress struct {
	Upper64 uint64 `cbor:"upper64"`
	Lower64 uint64 `cbor:"lower64"`
}

// String formats the address: v4-mapped addresses as a dotted quad,
// anything else in RFC 5952 form.
func (a IPAddress) String() string {
	if a.Upper64 == 0 && a.Lower64>>32 == 0xffff {
		v4 := net.IPv4(
			byte(a.Lower64>>24),
			byte(a.Lower64>>16),
			byte(a.Lower64>>8),
			byte(a.Lower64),
		)
		return v4.String()
	}
	ip := make(net.IP, net.IPv6len)
	binary.BigEndian.PutUint64(ip[:8], a.Upper64)
	binary.BigEndian.PutUint64(ip[8:], a.Lower64)
	return ip.String()
}

// KeyValue is a cookie sent with a request.
type KeyValue struct {
	Key   string `cbor:"key"`
	Value string `cbor:"value"`
}

// Header is an additional request header passed through verbatim.
type Header struct {
	Name  string `cbor:"name"`
	Value string `cbor:"value"`
}

// AcceptedType is one entry of a request's accept list. A QValue of
// zero means unset and is treated as 1.0.
type AcceptedType struct {
	MimeType string  `cbor:"mime_type"`
	QValue   float32 `cbor:"q_value,omitempty"`
}

// ETag is a parsed entity tag.
type ETag struct {
	Value string `cbor:"value"`
	Weak  bool   `cbor:"weak,omitempty"`
}

// PreconditionKind discriminates an ETagPrecondition.
type PreconditionKind string

const (
	PreconditionNone          PreconditionKind = ""
	PreconditionExists        PreconditionKind = "exists"
	PreconditionDoesntExist   PreconditionKind = "doesntExist"
	PreconditionMatchesOneOf  PreconditionKind = "matchesOneOf"
	PreconditionMatchesNoneOf PreconditionKind = "matchesNoneOf"
)

// ETagPrecondition expresses an If-Match / If-None-Match condition.
// ETags is meaningful only for the matchesOneOf / matchesNoneOf kinds.
type ETagPrecondition struct {
	Kind  PreconditionKind `cbor:"kind,omitempty"`
	ETags []ETag           `cbor:"etags,omitempty"`
}

// RequestContext is the per-call request state supplied by the host:
// cookies to send, the accept list, an optional ETag precondition, and
// extra headers. The response sink capability travels separately.
type RequestContext struct {
	Cookies           []KeyValue       `cbor:"cookies,omitempty"`
	Accept            []AcceptedType   `cbor:"accept,omitempty"`
	ETagPrecondition  ETagPrecondition `cbor:"etag_precondition,omitempty"`
	AdditionalHeaders []Header         `cbor:"additional_headers,omitempty"`
}

// Content is a request or response payload with its metadata.
type Content struct {
	MimeType string `cbor:"mime_type,omitempty"`
	Encoding string `cbor:"encoding,omitempty"`
	Body     []byte `cbor:"body,omitempty"`
}

// PropfindDepth selects how deep a PROPFIND traverses.
type PropfindDepth string

const (
	PropfindDepthInfinity PropfindDepth = "infinity"
	PropfindDepthZero     PropfindDepth = "zero"
	PropfindDepthOne      PropfindDepth = "one"
)
