// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"fmt"
	"strings"

	"github.com/grainhost/httpbridge/lib/schema"
)

// BuildResponse projects the accumulated response into the typed
// variant for the status class. Fails for protocol upgrades the caller
// did not request and for status codes outside the whitelist.
func (p *ResponseParser) BuildResponse() (*schema.Response, error) {
	if p.upgrade {
		return nil, fmt.Errorf("app attempted to upgrade protocol when client did not request this")
	}

	info, ok := classifyStatus(p.statusCode)
	if !ok {
		switch p.statusCode / 100 {
		case 4:
			// Unknown 4xx degrades to the generic client error.
			info = statusInfo{class: classClientError, clientErrorCode: schema.ClientErrorBadRequest}
			ok = true
		case 5:
			response := &schema.Response{
				SetCookies:  p.cookies,
				ServerError: &schema.ServerError{DescriptionHTML: string(p.body)},
			}
			return response, nil
		}
	}
	if !ok {
		return nil, fmt.Errorf(
			"app used unsupported HTTP status code %d %q; status codes must be whitelisted because some have sandbox-breaking effects",
			p.statusCode, p.statusPhrase)
	}

	response := &schema.Response{SetCookies: p.cookies}

	switch info.class {
	case classContent:
		content := &schema.ContentResponse{StatusCode: info.successCode}
		if encoding, ok := p.findHeader("content-encoding"); ok {
			content.Encoding = encoding
		}
		if language, ok := p.findHeader("content-language"); ok {
			content.Language = language
		}
		if mimeType, ok := p.findHeader("content-type"); ok {
			content.MimeType = mimeType
		}
		if etag, ok := p.findHeader("etag"); ok {
			parsed, err := parseETag(etag)
			if err != nil {
				return nil, err
			}
			content.ETag = parsed
		}
		if disposition, ok := p.findHeader("content-disposition"); ok {
			content.DownloadFilename = attachmentFilename(disposition)
		}
		if p.isStreaming {
			content.Body = schema.Body{Stream: true}
		} else {
			content.Body = schema.Body{Bytes: p.body}
		}
		response.Content = content

	case classNoContent:
		response.NoContent = &schema.NoContent{ShouldResetForm: info.shouldResetForm}

	case classPrecondition:
		failed := &schema.PreconditionFailed{}
		if etag, ok := p.findHeader("etag"); ok {
			parsed, err := parseETag(etag)
			if err != nil {
				return nil, err
			}
			failed.MatchingETag = parsed
		}
		response.PreconditionFailed = failed

	case classRedirect:
		location, ok := p.findHeader("location")
		if !ok {
			return nil, fmt.Errorf("app returned redirect response %d missing Location header", p.statusCode)
		}
		response.Redirect = &schema.Redirect{
			IsPermanent: info.isPermanent,
			SwitchToGet: info.switchToGet,
			Location:    location,
		}

	case classClientError:
		response.ClientError = &schema.ClientError{
			StatusCode:      info.clientErrorCode,
			DescriptionHTML: string(p.body),
		}
	}

	return response, nil
}

// BuildForWebSocket returns the accepted subprotocols of a completed
// WebSocket handshake. The response must have been a 101 protocol
// switch.
func (p *ResponseParser) BuildForWebSocket() ([]string, error) {
	if p.statusCode != 101 {
		return nil, fmt.Errorf("app does not support WebSocket: status %d %q", p.statusCode, p.statusPhrase)
	}

	var protocols []string
	if header, ok := p.findHeader("sec-websocket-protocol"); ok {
		for _, part := range strings.Split(header, ",") {
			protocols = append(protocols, strings.TrimSpace(part))
		}
	}
	return protocols, nil
}

// BuildOptions projects the DAV header into a WebDAV options result:
// levels "1", "2", "3" set the class flags, anything else becomes an
// extension token.
func (p *ResponseParser) BuildOptions() (*schema.Options, error) {
	if p.upgrade {
		return nil, fmt.Errorf("app attempted to upgrade protocol when client did not request this")
	}

	options := &schema.Options{}
	if dav, ok := p.findHeader("dav"); ok {
		for _, level := range strings.Split(dav, ",") {
			switch trimmed := strings.TrimSpace(level); trimmed {
			case "1":
				options.DavClass1 = true
			case "2":
				options.DavClass2 = true
			case "3":
				options.DavClass3 = true
			default:
				options.DavExtensions = append(options.DavExtensions, trimmed)
			}
		}
	}
	return options, nil
}

// parseETag parses an ETag header shaped `"value"` or `W/"value"`,
// stripping backslash escapes inside the quotes.
func parseETag(input string) (*schema.ETag, error) {
	etag := &schema.ETag{}
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "W/") {
		trimmed = trimmed[2:]
		etag.Weak = true
	}

	if len(trimmed) < 2 || !strings.HasPrefix(trimmed, `"`) || !strings.HasSuffix(trimmed, `"`) {
		return nil, fmt.Errorf("app returned invalid ETag header: %q", input)
	}

	var value strings.Builder
	escaped := false
	for _, c := range []byte(trimmed[1 : len(trimmed)-1]) {
		if escaped {
			escaped = false
		} else {
			if c == '"' {
				return nil, fmt.Errorf("app returned invalid ETag header: %q", input)
			}
			if c == '\\' {
				escaped = true
				continue
			}
		}
		value.WriteByte(c)
	}
	etag.Value = value.String()
	return etag, nil
}

// renderETag formats an ETag for an If-Match / If-None-Match header.
func renderETag(etag schema.ETag) string {
	if etag.Weak {
		return `W/"` + etag.Value + `"`
	}
	return `"` + etag.Value + `"`
}

// attachmentFilename extracts the download filename from a
// Content-Disposition header of the form `attachment; filename=...`.
// A double-quoted filename is unescaped per RFC 822: a backslash
// followed by any character is that character. Returns "" when the
// disposition is not an attachment or carries no filename.
func attachmentFilename(disposition string) string {
	parts := strings.Split(disposition, ";")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) != "attachment" {
		return ""
	}

	for _, part := range parts[1:] {
		name, rest, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) != "filename" {
			continue
		}
		filename := strings.TrimSpace(rest)
		if len(filename) >= 2 && filename[0] == '"' && filename[len(filename)-1] == '"' {
			inner := filename[1 : len(filename)-1]
			var unescaped strings.Builder
			for i := 0; i < len(inner); i++ {
				if inner[i] == '\\' {
					i++
					if i >= len(inner) {
						break
					}
				}
				unescaped.WriteByte(inner[i])
			}
			return unescaped.String()
		}
		// Buggy app failed to quote the filename; take it as-is.
		return filename
	}
	return ""
}
