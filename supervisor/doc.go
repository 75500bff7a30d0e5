// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor runs the legacy app as a child process: it starts
// the operator-supplied command, waits for the app to accept
// connections on its loopback port, and reports when (and how) the
// app exits.
package supervisor
