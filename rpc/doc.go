// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc binds the typed session surface onto a wire connection:
// it exports the app's view as the bootstrap capability, dispatches
// session method calls into the web and mail packages, and wraps
// host-side capabilities (response sinks, WebSocket streams, session
// contexts) in stubs the rest of the bridge uses as plain interfaces.
package rpc
