// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/grainhost/httpbridge/lib/schema"
)

// percentEncode encodes text for use in an identity header. Unreserved
// URI characters pass through; everything else becomes %XX with
// lowercase hex.
func percentEncode(text string) string {
	const hexDigits = "0123456789abcdef"
	var result strings.Builder
	for _, c := range []byte(text) {
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			result.WriteByte(c)
		} else {
			result.WriteByte('%')
			result.WriteByte(hexDigits[c/16])
			result.WriteByte(hexDigits[c%16])
		}
	}
	return result.String()
}

// splitBaseURL extracts the host and scheme of the session's base URL
// for the Host and X-Forwarded-Proto headers.
func splitBaseURL(basePath string) (host, scheme string, err error) {
	parsed, err := url.Parse(basePath)
	if err != nil || parsed.Host == "" || parsed.Scheme == "" {
		return "", "", fmt.Errorf("invalid session base path %q", basePath)
	}
	return parsed.Host, parsed.Scheme, nil
}

// requestTarget prepends the session's root path to path. A root path
// ending in "/" and a path starting with "/" share that one slash.
func (s *Session) requestTarget(path string) string {
	if strings.HasSuffix(s.rootPath, "/") && strings.HasPrefix(path, "/") {
		return s.rootPath + path[1:]
	}
	return s.rootPath + path
}

// makeHeaders composes the request line and header block for a session
// call, terminated by a blank line. Extra headers land between
// Connection and Accept-Encoding, matching the fixed layout the app
// sees for every verb.
func (s *Session) makeHeaders(method, path string, reqCtx schema.RequestContext, extraHeaders ...string) string {
	lines := make([]string, 0, 16)

	lines = append(lines, method+" "+s.requestTarget(path)+" HTTP/1.1")
	lines = append(lines, "Connection: close")
	for _, header := range extraHeaders {
		if header != "" {
			lines = append(lines, header)
		}
	}
	lines = append(lines, "Accept-Encoding: gzip")
	if s.acceptLanguages != "" {
		lines = append(lines, "Accept-Language: "+s.acceptLanguages)
	}

	lines = s.addCommonHeaders(lines, reqCtx)

	return strings.Join(lines, "\r\n")
}

// addCommonHeaders appends the identity headers, cookies, accept list,
// additional headers, and ETag precondition shared by every request,
// plus the blank line terminating the header block.
func (s *Session) addCommonHeaders(lines []string, reqCtx schema.RequestContext) []string {
	if s.userAgent != "" {
		lines = append(lines, "User-Agent: "+s.userAgent)
	}
	lines = append(lines, "X-Sandstorm-Tab-Id: "+s.tabID)
	lines = append(lines, "X-Sandstorm-Username: "+s.userDisplayName)
	if s.userID != "" {
		lines = append(lines, "X-Sandstorm-User-Id: "+s.userID)

		// Since the user is logged in, also include their other info.
		if s.userHandle != "" {
			lines = append(lines, "X-Sandstorm-Preferred-Handle: "+s.userHandle)
		}
		if s.userPicture != "" {
			lines = append(lines, "X-Sandstorm-User-Picture: "+s.userPicture)
		}
		if s.userPronouns != "" && s.userPronouns != schema.PronounNeutral {
			lines = append(lines, "X-Sandstorm-User-Pronouns: "+string(s.userPronouns))
		}
	}
	lines = append(lines, "X-Sandstorm-Permissions: "+s.permissions)
	if s.basePath != "" {
		lines = append(lines, "X-Sandstorm-Base-Path: "+s.basePath)
		lines = append(lines, "Host: "+s.baseHost)
		lines = append(lines, "X-Forwarded-Proto: "+s.baseScheme)
	} else {
		// Dummy value. Some API servers fail if Host is not present.
		lines = append(lines, "Host: sandbox")
	}
	lines = append(lines, "X-Sandstorm-Session-Id: "+s.sessionID)
	if s.remoteAddress != "" {
		lines = append(lines, "X-Real-IP: "+s.remoteAddress)
	}

	if len(reqCtx.Cookies) > 0 {
		rendered := make([]string, len(reqCtx.Cookies))
		for i, cookie := range reqCtx.Cookies {
			rendered[i] = cookie.Key + "=" + cookie.Value
		}
		lines = append(lines, "Cookie: "+strings.Join(rendered, "; "))
	}

	if len(reqCtx.Accept) > 0 {
		rendered := make([]string, len(reqCtx.Accept))
		for i, accept := range reqCtx.Accept {
			if accept.QValue == 0 || accept.QValue == 1.0 {
				rendered[i] = accept.MimeType
			} else {
				rendered[i] = accept.MimeType + "; q=" +
					strconv.FormatFloat(float64(accept.QValue), 'g', -1, 32)
			}
		}
		lines = append(lines, "Accept: "+strings.Join(rendered, ", "))
	} else {
		lines = append(lines, "Accept: */*")
	}

	for _, header := range reqCtx.AdditionalHeaders {
		lines = append(lines, header.Name+": "+header.Value)
	}

	switch reqCtx.ETagPrecondition.Kind {
	case schema.PreconditionNone:
	case schema.PreconditionExists:
		lines = append(lines, "If-Match: *")
	case schema.PreconditionDoesntExist:
		lines = append(lines, "If-None-Match: *")
	case schema.PreconditionMatchesOneOf:
		lines = append(lines, "If-Match: "+renderETagList(reqCtx.ETagPrecondition.ETags))
	case schema.PreconditionMatchesNoneOf:
		lines = append(lines, "If-None-Match: "+renderETagList(reqCtx.ETagPrecondition.ETags))
	}

	lines = append(lines, "", "")
	return lines
}

func renderETagList(etags []schema.ETag) string {
	rendered := make([]string, len(etags))
	for i, etag := range etags {
		rendered[i] = renderETag(etag)
	}
	return strings.Join(rendered, ", ")
}
