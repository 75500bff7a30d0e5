// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bridge configuration file.
//
// The config is read exactly once at startup from the path in the
// GRAIN_BRIDGE_CONFIG environment variable, falling back to the fixed
// default path baked into the package. There is no discovery and no
// overrides: the packaged config fully determines the bridge's
// behavior.
package config
