// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the canonical CBOR configuration for the
// bridge. All capability frames on the supervisor socket and the
// side-channel API socket are encoded through this package so that
// both ends agree on one deterministic encoding.
package codec
