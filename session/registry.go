// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"sync"

	"github.com/grainhost/httpbridge/capability"
)

// Registry is the process-wide map from session id to the host's
// context capability for that session. Each session inserts its entry
// on construction and removes it on release, so the registry contains
// exactly the set of live sessions at all times.
//
// Access is serialized by a mutex; sessions and the side-channel
// server touch the registry from different goroutines.
type Registry struct {
	mu       sync.Mutex
	contexts map[string]capability.Capability
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]capability.Capability)}
}

// Insert records the host context for a session id.
func (r *Registry) Insert(id string, hostContext capability.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[id] = hostContext
}

// Remove deletes a session's entry. Removing an absent id is a no-op
// so that release paths stay idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, id)
}

// Lookup returns the host context for a session id, or an error when
// the id names no live session.
func (r *Registry) Lookup(id string) (capability.Capability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hostContext, ok := r.contexts[id]
	if !ok {
		return nil, fmt.Errorf("session ID not found: %q", id)
	}
	return hostContext, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}
