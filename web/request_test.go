// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grainhost/httpbridge/lib/schema"
)

func testIdentity() []byte {
	identity := make([]byte, 32)
	for i := range identity {
		identity[i] = byte(i + 1)
	}
	return identity
}

func newTestSession(t *testing.T, options SessionOptions) *Session {
	t.Helper()
	if options.Addr == "" {
		options.Addr = "127.0.0.1:1"
	}
	session, err := NewSession(options)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

func fullWebSession(t *testing.T) *Session {
	return newTestSession(t, SessionOptions{
		UserInfo: schema.UserInfo{
			DisplayName:     "Alice Dev",
			PreferredHandle: "alice",
			PictureURL:      "https://example.com/alice.png",
			Pronouns:        schema.PronounFemale,
			IdentityID:      testIdentity(),
		},
		SessionID:       "7",
		TabID:           "deadbeef",
		BasePath:        "https://app-1234.example.com",
		UserAgent:       "TestBrowser/1.0",
		AcceptLanguages: "en-US,fr",
		RootPath:        "/",
		Permissions:     "read,write",
	})
}

func requireLine(t *testing.T, request, line string) {
	t.Helper()
	if !strings.Contains(request, line+"\r\n") {
		t.Errorf("missing header line %q in:\n%s", line, request)
	}
}

func forbidLine(t *testing.T, request, prefix string) {
	t.Helper()
	for _, line := range strings.Split(request, "\r\n") {
		if strings.HasPrefix(line, prefix) {
			t.Errorf("unexpected header line %q", line)
		}
	}
}

func TestMakeHeadersIdentity(t *testing.T) {
	session := fullWebSession(t)
	request := session.makeHeaders("GET", "/hello", schema.RequestContext{})

	if !strings.HasPrefix(request, "GET /hello HTTP/1.1\r\n") {
		t.Errorf("request line: %q", strings.SplitN(request, "\r\n", 2)[0])
	}
	if !strings.HasSuffix(request, "\r\n\r\n") {
		t.Error("header block must end with a blank line")
	}

	requireLine(t, request, "Connection: close")
	requireLine(t, request, "Accept-Encoding: gzip")
	requireLine(t, request, "Accept-Language: en-US,fr")
	requireLine(t, request, "User-Agent: TestBrowser/1.0")
	requireLine(t, request, "Accept: */*")

	requireLine(t, request, "X-Sandstorm-Tab-Id: deadbeef")
	requireLine(t, request, "X-Sandstorm-Username: Alice%20Dev")
	requireLine(t, request, "X-Sandstorm-User-Id: 0102030405060708090a0b0c0d0e0f10")
	requireLine(t, request, "X-Sandstorm-Preferred-Handle: alice")
	requireLine(t, request, "X-Sandstorm-User-Picture: https://example.com/alice.png")
	requireLine(t, request, "X-Sandstorm-User-Pronouns: female")
	requireLine(t, request, "X-Sandstorm-Permissions: read,write")
	requireLine(t, request, "X-Sandstorm-Session-Id: 7")

	requireLine(t, request, "X-Sandstorm-Base-Path: https://app-1234.example.com")
	requireLine(t, request, "Host: app-1234.example.com")
	requireLine(t, request, "X-Forwarded-Proto: https")
	forbidLine(t, request, "X-Real-IP:")
}

func TestMakeHeadersAnonymous(t *testing.T) {
	session := newTestSession(t, SessionOptions{
		UserInfo:    schema.UserInfo{DisplayName: "Anonymous User"},
		SessionID:   "0",
		TabID:       "00",
		RootPath:    "/",
		Permissions: "",
	})
	request := session.makeHeaders("GET", "/", schema.RequestContext{})

	forbidLine(t, request, "X-Sandstorm-User-Id:")
	forbidLine(t, request, "X-Sandstorm-Preferred-Handle:")
	forbidLine(t, request, "X-Sandstorm-User-Pronouns:")
	// No base path: the dummy Host keeps picky HTTP servers happy.
	requireLine(t, request, "Host: sandbox")
	forbidLine(t, request, "X-Forwarded-Proto:")
}

func TestMakeHeadersNeutralPronounsOmitted(t *testing.T) {
	session := newTestSession(t, SessionOptions{
		UserInfo: schema.UserInfo{
			DisplayName: "N",
			IdentityID:  testIdentity(),
			Pronouns:    schema.PronounNeutral,
		},
		SessionID: "1",
		RootPath:  "/",
	})
	request := session.makeHeaders("GET", "/", schema.RequestContext{})
	forbidLine(t, request, "X-Sandstorm-User-Pronouns:")
}

func TestMakeHeadersAPISession(t *testing.T) {
	session := newTestSession(t, SessionOptions{
		UserInfo:      schema.UserInfo{DisplayName: "A"},
		SessionID:     "2",
		RootPath:      "/api/",
		RemoteAddress: "203.0.113.9",
	})
	request := session.makeHeaders("GET", "v1/items", schema.RequestContext{})

	if !strings.HasPrefix(request, "GET /api/v1/items HTTP/1.1\r\n") {
		t.Errorf("request line: %q", strings.SplitN(request, "\r\n", 2)[0])
	}
	requireLine(t, request, "Host: sandbox")
	requireLine(t, request, "X-Real-IP: 203.0.113.9")
	forbidLine(t, request, "Accept-Language:")
}

func TestMakeHeadersCookiesAndAccept(t *testing.T) {
	session := fullWebSession(t)
	request := session.makeHeaders("GET", "/", schema.RequestContext{
		Cookies: []schema.KeyValue{{Key: "sid", Value: "123"}, {Key: "theme", Value: "dark"}},
		Accept: []schema.AcceptedType{
			{MimeType: "text/html"},
			{MimeType: "application/json", QValue: 0.5},
		},
		AdditionalHeaders: []schema.Header{{Name: "X-Requested-With", Value: "XMLHttpRequest"}},
	})

	requireLine(t, request, "Cookie: sid=123; theme=dark")
	requireLine(t, request, "Accept: text/html, application/json; q=0.5")
	requireLine(t, request, "X-Requested-With: XMLHttpRequest")
	forbidLine(t, request, "Accept: */*")
}

func TestMakeHeadersETagPreconditions(t *testing.T) {
	session := fullWebSession(t)

	request := session.makeHeaders("GET", "/", schema.RequestContext{
		ETagPrecondition: schema.ETagPrecondition{Kind: schema.PreconditionExists},
	})
	requireLine(t, request, "If-Match: *")

	request = session.makeHeaders("GET", "/", schema.RequestContext{
		ETagPrecondition: schema.ETagPrecondition{Kind: schema.PreconditionDoesntExist},
	})
	requireLine(t, request, "If-None-Match: *")

	request = session.makeHeaders("GET", "/", schema.RequestContext{
		ETagPrecondition: schema.ETagPrecondition{
			Kind:  schema.PreconditionMatchesOneOf,
			ETags: []schema.ETag{{Value: "v1"}, {Value: "v2", Weak: true}},
		},
	})
	requireLine(t, request, `If-Match: "v1", W/"v2"`)

	request = session.makeHeaders("GET", "/", schema.RequestContext{
		ETagPrecondition: schema.ETagPrecondition{
			Kind:  schema.PreconditionMatchesNoneOf,
			ETags: []schema.ETag{{Value: "gone"}},
		},
	})
	requireLine(t, request, `If-None-Match: "gone"`)
}

func TestPercentEncode(t *testing.T) {
	cases := map[string]string{
		"alice":      "alice",
		"Alice Dev":  "Alice%20Dev",
		"a~b_c.d-e":  "a~b_c.d-e",
		"100%":       "100%25",
		"café":  "caf%c3%a9",
	}
	for input, want := range cases {
		if got := percentEncode(input); got != want {
			t.Errorf("percentEncode(%q): got %q, want %q", input, got, want)
		}
	}
}

func TestNewSessionRejectsShortIdentity(t *testing.T) {
	_, err := NewSession(SessionOptions{
		UserInfo: schema.UserInfo{IdentityID: bytes.Repeat([]byte{1}, 16)},
	})
	if err == nil {
		t.Fatal("expected error for 16-byte identity digest")
	}
}

func TestNewSessionRejectsBadBasePath(t *testing.T) {
	_, err := NewSession(SessionOptions{BasePath: "not a url"})
	if err == nil {
		t.Fatal("expected error for unparseable base path")
	}
}

func TestDestinationHeaderGuard(t *testing.T) {
	session := fullWebSession(t)
	if _, err := session.makeDestinationHeader("/ok-path"); err != nil {
		t.Errorf("valid destination rejected: %v", err)
	}
	for _, destination := range []string{"/with space", "/with,comma", "/with\r\ninjection"} {
		if _, err := session.makeDestinationHeader(destination); err == nil {
			t.Errorf("%q: expected invalid destination error", destination)
		}
	}
}
