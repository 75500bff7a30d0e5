// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grainhost/httpbridge/lib/schema"
)

// cookieDateLayouts are the accepted Expires formats, tried in order:
// RFC 1123, the obsolete two-digit-year form, ANSI C asctime, a
// four-digit-year hyphenated form seen from MediaWiki, and a "-0000"
// zone variant used by Rack. First successful parse wins.
var cookieDateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	time.ANSIC,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
}

// parseCookieDate parses an Expires attribute value into UTC seconds
// since the epoch.
func parseCookieDate(value string) (int64, error) {
	for _, layout := range cookieDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Unix(), nil
		}
	}
	return 0, fmt.Errorf("invalid HTTP date from app: %q", value)
}

// parseSetCookie parses one Set-Cookie header value. The first
// ';'-separated segment is name=value (split at the first '='); the
// rest are attributes. Secure and Domain are ignored by policy: the
// host always requires HTTPS, and the app may not publish cookies
// visible to other hosts in the domain.
func parseSetCookie(value string) (schema.Cookie, error) {
	var cookie schema.Cookie

	for i, part := range strings.Split(value, ";") {
		if i == 0 {
			name, rest, ok := strings.Cut(part, "=")
			if !ok {
				return cookie, fmt.Errorf("invalid cookie header from app: %q", value)
			}
			cookie.Name = strings.TrimSpace(name)
			cookie.Value = strings.TrimSpace(rest)
			continue
		}

		if attribute, rest, ok := strings.Cut(part, "="); ok {
			switch strings.ToLower(strings.TrimSpace(attribute)) {
			case "expires":
				seconds, err := parseCookieDate(strings.TrimSpace(rest))
				if err != nil {
					return cookie, err
				}
				cookie.Expires = schema.CookieExpires{Kind: schema.ExpiresAbsolute, Seconds: seconds}
			case "max-age":
				text := strings.TrimSpace(rest)
				seconds, err := strconv.ParseUint(text, 10, 63)
				if err != nil {
					return cookie, fmt.Errorf("invalid cookie max-age from app: %q", text)
				}
				cookie.Expires = schema.CookieExpires{Kind: schema.ExpiresRelative, Seconds: int64(seconds)}
			case "path":
				cookie.Path = strings.TrimSpace(rest)
			default:
				// Other valued attributes are ignored.
			}
			continue
		}

		if strings.ToLower(strings.TrimSpace(part)) == "httponly" {
			cookie.HTTPOnly = true
		}
		// Other bare attributes (notably Secure) are ignored.
	}

	return cookie, nil
}
