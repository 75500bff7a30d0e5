// Copyright 2026 The Grainhost Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/grainhost/httpbridge/capability"
	"github.com/grainhost/httpbridge/lib/config"
	"github.com/grainhost/httpbridge/lib/schema"
	"github.com/grainhost/httpbridge/mail"
	"github.com/grainhost/httpbridge/web"
)

// Session type identifiers accepted by NewSession.
const (
	TypeWeb   = "web"
	TypeAPI   = "api"
	TypeEmail = "email"
)

// NewSessionParams is a newSession request from the host.
type NewSessionParams struct {
	// SessionType selects the session kind: web, api, or email. API
	// sessions are accepted only when the bridge config declares an
	// API path.
	SessionType string `cbor:"session_type"`

	UserInfo schema.UserInfo `cbor:"user_info"`

	// TabID is the host's opaque tab identifier.
	TabID []byte `cbor:"tab_id,omitempty"`

	// Params carries web session parameters; APIParams carries API
	// session parameters. Each is meaningful only for its type.
	Params    schema.SessionParams    `cbor:"params,omitempty"`
	APIParams schema.APISessionParams `cbor:"api_params,omitempty"`
}

// WebSession is a live web or API session: the HTTP bridging of
// web.Session plus the registry slot keyed by the session id. Release
// removes the slot and drops the host context.
type WebSession struct {
	*web.Session

	sessionID   string
	registry    *Registry
	hostContext capability.Capability
	releaseOnce sync.Once
}

// ID returns the session's identifier string.
func (s *WebSession) ID() string { return s.sessionID }

// Release removes the session from the registry and releases the host
// context. Idempotent.
func (s *WebSession) Release() {
	s.releaseOnce.Do(func() {
		s.registry.Remove(s.sessionID)
		s.hostContext.Release()
	})
}

// Created is the result of a newSession request: exactly one field is
// set, matching the requested session type.
type Created struct {
	Web   *WebSession
	Email *mail.Sink
}

// Factory constructs sessions for the host. It owns the session id
// counter and the registry inserts.
type Factory struct {
	addr        string
	config      *config.Bridge
	registry    *Registry
	maildirRoot string
	logger      *slog.Logger

	mu        sync.Mutex
	idCounter uint64
}

// NewFactory returns a factory creating sessions that connect to the
// app at addr. maildirRoot is where email sessions deliver messages;
// empty means the standard /var/mail.
func NewFactory(addr string, bridgeConfig *config.Bridge, registry *Registry, maildirRoot string, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if maildirRoot == "" {
		maildirRoot = mail.DefaultRoot
	}
	return &Factory{
		addr:        addr,
		config:      bridgeConfig,
		registry:    registry,
		maildirRoot: maildirRoot,
		logger:      logger,
	}
}

// ViewInfo returns the app's view info verbatim from the config.
func (f *Factory) ViewInfo() schema.ViewInfo {
	return f.config.ViewInfo
}

// NewSession constructs the session for a host request. The host
// context is stored in the registry under the new session's id for web
// and API sessions; email sessions carry no context.
func (f *Factory) NewSession(params NewSessionParams, hostContext capability.Capability) (*Created, error) {
	switch params.SessionType {
	case TypeWeb:
		return f.newWebSession(params, hostContext, web.SessionOptions{
			BasePath:        params.Params.BasePath,
			UserAgent:       params.Params.UserAgent,
			AcceptLanguages: strings.Join(params.Params.AcceptableLanguages, ","),
			RootPath:        "/",
		})

	case TypeAPI:
		if f.config.APIPath == "" {
			return nil, fmt.Errorf("unsupported session type: app does not export an API")
		}
		options := web.SessionOptions{RootPath: f.config.APIPath}
		if params.APIParams.RemoteAddress != nil {
			options.RemoteAddress = params.APIParams.RemoteAddress.String()
		}
		return f.newWebSession(params, hostContext, options)

	case TypeEmail:
		return &Created{Email: mail.NewSink(f.maildirRoot, f.logger)}, nil

	default:
		return nil, fmt.Errorf("unsupported session type %q", params.SessionType)
	}
}

func (f *Factory) newWebSession(params NewSessionParams, hostContext capability.Capability, options web.SessionOptions) (*Created, error) {
	options.Addr = f.addr
	options.UserInfo = params.UserInfo
	options.SessionID = f.nextSessionID()
	options.TabID = hex.EncodeToString(params.TabID)
	options.Permissions = f.formatPermissions(params.UserInfo.Permissions)
	options.Logger = f.logger

	webSession, err := web.NewSession(options)
	if err != nil {
		return nil, err
	}

	created := &WebSession{
		Session:     webSession,
		sessionID:   options.SessionID,
		registry:    f.registry,
		hostContext: hostContext,
	}
	f.registry.Insert(options.SessionID, hostContext)
	return &Created{Web: created}, nil
}

// nextSessionID assigns session ids sequentially.
func (f *Factory) nextSessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.idCounter
	f.idCounter++
	return strconv.FormatUint(id, 10)
}

// formatPermissions renders the granted permission names: the user's
// permission bits indexed into the config's declared permissions,
// comma-joined.
func (f *Factory) formatPermissions(userPermissions []bool) string {
	declared := f.config.ViewInfo.Permissions
	var names []string
	for i := 0; i < len(declared) && i < len(userPermissions); i++ {
		if userPermissions[i] {
			names = append(names, declared[i].Name)
		}
	}
	return strings.Join(names, ",")
}
