// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package session manages the lifecycle of host sessions: the factory
// that constructs the right session kind for a newSession request, and
// the registry that maps live session ids to their host context
// capabilities so the app can look them up through the side channel.
package session
