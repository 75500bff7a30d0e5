// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability defines the typed capability surface between the
// bridge and its host. Host-provided objects (byte sinks, WebSocket
// streams, session contexts) reach the bridge as these interfaces;
// bridge-provided objects (response stream handles, request streams,
// server-side WebSocket streams) are handed back through them.
//
// Lifetime follows the reference-counting of the RPC layer: releasing
// a capability cancels whatever work it anchors. In-process
// implementations get the same semantics from the Release methods.
package capability
