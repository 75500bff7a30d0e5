// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grainhost/httpbridge/lib/schema"
)

// DefaultPath is where the app package installs the bridge config.
const DefaultPath = "/grain-http-bridge-config.yaml"

// EnvVar overrides the config path, mainly for tests.
const EnvVar = "GRAIN_BRIDGE_CONFIG"

// Bridge is the packaged bridge configuration.
type Bridge struct {
	// APIPath is the URL path prefix for API sessions. A nonempty
	// value enables API sessions; requests are rooted under it.
	APIPath string `yaml:"api_path,omitempty"`

	// ViewInfo is returned verbatim to the host when it asks how to
	// present the app.
	ViewInfo schema.ViewInfo `yaml:"view_info,omitempty"`
}

// Load reads the config from the environment-selected path or the
// default.
func Load() (*Bridge, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config at path.
func LoadFile(path string) (*Bridge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bridge config: %w", err)
	}

	var bridge Bridge
	if err := yaml.Unmarshal(data, &bridge); err != nil {
		return nil, fmt.Errorf("parsing bridge config %s: %w", path, err)
	}

	if bridge.APIPath != "" && !strings.HasPrefix(bridge.APIPath, "/") {
		return nil, fmt.Errorf("bridge config %s: api_path %q must start with /", path, bridge.APIPath)
	}
	for _, permission := range bridge.ViewInfo.Permissions {
		if permission.Name == "" {
			return nil, fmt.Errorf("bridge config %s: permission with empty name", path)
		}
	}

	return &bridge, nil
}
