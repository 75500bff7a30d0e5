// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

// Package mail delivers incoming email into the app's maildir. Each
// message is assembled as MIME, written under tmp/, and renamed into
// new/ so the app never observes a partial message.
package mail
