// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the capability connection between the bridge
// and its host: a symmetric stream of self-delimiting CBOR frames.
//
// Each side owns an export table of capability ids; id 0 is the
// bootstrap capability. A call frame names a target id, a method, and
// raw parameters; the matching return frame carries raw results or an
// error string. A release frame drops an export, firing its shutdown
// hook, which is how capability lifetimes (sessions, streams, pump
// handles) propagate across the link. Capability references inside
// parameters travel as export ids in the sender's table.
//
// Frames are written under a single mutex, so writes are serialized;
// calls dispatch concurrently on the receiver.
package wire
