// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"sync"

	"github.com/grainhost/httpbridge/lib/codec"
)

// RemoteCapability is a generic import: an opaque reference to one of
// the peer's exports. It satisfies the capability package's Capability
// interface, so host contexts and the host API can be stored and
// proxied without the bridge knowing their methods.
type RemoteCapability struct {
	conn        *Conn
	target      uint32
	releaseOnce sync.Once
}

// NewRemoteCapability references the peer's export target on conn.
func NewRemoteCapability(conn *Conn, target uint32) *RemoteCapability {
	return &RemoteCapability{conn: conn, target: target}
}

// Bootstrap references the peer's bootstrap capability.
func Bootstrap(conn *Conn) *RemoteCapability {
	return NewRemoteCapability(conn, BootstrapID)
}

// Target returns the export id this reference names.
func (r *RemoteCapability) Target() uint32 { return r.target }

// Invoke forwards a raw method call to the peer.
func (r *RemoteCapability) Invoke(ctx context.Context, method string, params []byte) ([]byte, error) {
	var rawParams any
	if len(params) > 0 {
		rawParams = codec.RawMessage(params)
	}
	var results codec.RawMessage
	if err := r.conn.Call(ctx, r.target, method, rawParams, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Release drops the remote export. Idempotent.
func (r *RemoteCapability) Release() {
	r.releaseOnce.Do(func() {
		r.conn.Release(r.target)
	})
}
