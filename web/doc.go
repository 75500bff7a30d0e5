// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package web implements the HTTP side of the bridge: it synthesizes
// HTTP/1.1 requests from typed session calls, parses the app's
// responses into the closed set of typed variants, and pumps bytes for
// streaming bodies and WebSockets.
//
// Every session call opens a fresh loopback TCP connection to the app.
// The response parser decides per response whether to buffer the body
// into the result or forward it chunk-by-chunk to the host's response
// sink; WebSocket upgrades hand the raw connection to a pump pair.
package web
