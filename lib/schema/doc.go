// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the typed messages exchanged between the host
// and the bridge: session parameters, user identity, request context,
// the closed set of response variants, and email structures.
//
// These are pure data types with CBOR field tags. Capability references
// never appear here; the wire layer carries those as export ids in its
// own parameter structs, and the in-process API passes them as
// interfaces from the capability package.
package schema
