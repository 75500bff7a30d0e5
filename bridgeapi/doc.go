// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridgeapi exposes the bridge's side channel to the app: a
// Unix socket where the app can obtain the host API capability and
// look up the host context for one of its sessions by the id it
// received in the X-Sandstorm-Session-Id header.
//
// Each accepted connection is a capability connection whose bootstrap
// serves getSandstormApi and getSessionContext; the capabilities these
// return are proxies that forward calls onto the host link.
package bridgeapi
