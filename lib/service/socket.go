// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/curia-foundation/curia/lib/clock"
	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/servicetoken"
)

// ActionFunc processes a socket request for an unauthenticated action.
// The raw parameter is the full CBOR request (including the "action"
// field). The handler decodes action-specific fields from this raw
// message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}. If non-nil, the value is marshaled as
// CBOR and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// AuthActionFunc processes an authenticated socket request. The token
// has been signature-verified, audience-checked, expiry-checked, and
// checked against the blacklist before the handler runs. Grant checks
// remain the handler's job: which action name and target apply depends
// on the request payload, so the server cannot evaluate them generically.
type AuthActionFunc func(ctx context.Context, token *servicetoken.Token, raw []byte) (any, error)

// StreamActionFunc handles an authenticated streaming action. After
// authentication succeeds the connection is handed to the handler,
// which owns it until return: the server applies no further deadlines
// and writes no response envelope. Handlers write CBOR values directly
// and should return when ctx is cancelled or the peer disconnects.
type StreamActionFunc func(ctx context.Context, token *servicetoken.Token, raw []byte, conn net.Conn)

// AuthConfig carries what the server needs to verify caller tokens.
// A server constructed with a nil AuthConfig can only register
// unauthenticated handlers.
type AuthConfig struct {
	// PublicKey verifies token signatures. This is the public half
	// of the engine signing key that minted the tokens.
	PublicKey ed25519.PublicKey

	// Audience is the expected token audience. Tokens minted for a
	// different service are rejected.
	Audience string

	// Blacklist holds revoked token IDs. Required; use
	// servicetoken.NewBlacklist() when starting empty.
	Blacklist *servicetoken.Blacklist

	// Clock supplies the time for token expiry checks.
	Clock clock.Clock
}

// Response is the wire-format envelope for all socket protocol
// responses. Handlers return a result value (or nil) and an error;
// the server wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// handlerEntry holds exactly one of the three handler kinds for a
// registered action.
type handlerEntry struct {
	plain  ActionFunc
	auth   AuthActionFunc
	stream StreamActionFunc
}

// SocketServer serves a CBOR request-response protocol on a Unix
// socket. Each connection handles exactly one request-response cycle:
// the client writes a CBOR value, the server processes it and writes
// a CBOR response, then the connection closes. Streaming actions are
// the exception: after the request is authenticated the handler keeps
// the connection and writes CBOR values until it returns.
//
// Actions are registered with Handle, HandleAuth, or HandleAuthStream
// before calling Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]handlerEntry
	logger     *slog.Logger
	auth       *AuthConfig

	// activeConnections tracks in-flight request handlers for graceful
	// shutdown. Serve waits for all active connections to complete
	// before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
// Register actions with Handle, HandleAuth, or HandleAuthStream before
// calling Serve. auth may be nil for servers that expose only
// unauthenticated actions.
func NewSocketServer(socketPath string, logger *slog.Logger, auth *AuthConfig) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]handlerEntry),
		logger:     logger,
		auth:       auth,
	}
}

// Handle registers an unauthenticated handler for the given action
// name. Panics if called after Serve has started or if the action is
// already registered.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.register(action, handlerEntry{plain: handler})
}

// HandleAuth registers an authenticated handler for the given action
// name. Panics if the server was constructed without an AuthConfig or
// if the action is already registered.
func (s *SocketServer) HandleAuth(action string, handler AuthActionFunc) {
	if s.auth == nil {
		panic("service.SocketServer: HandleAuth requires AuthConfig")
	}
	s.register(action, handlerEntry{auth: handler})
}

// HandleAuthStream registers an authenticated streaming handler for
// the given action name. Panics if the server was constructed without
// an AuthConfig or if the action is already registered.
func (s *SocketServer) HandleAuthStream(action string, handler StreamActionFunc) {
	if s.auth == nil {
		panic("service.SocketServer: HandleAuthStream requires AuthConfig")
	}
	s.register(action, handlerEntry{stream: handler})
}

func (s *SocketServer) register(action string, entry handlerEntry) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = entry
}

// RegisterRevocationHandler registers the "revoke-tokens" action,
// which accepts a signed servicetoken.RevocationRequest and adds its
// entries to the server's blacklist. The request is authenticated by
// its own Ed25519 signature (the same key that mints tokens), not by
// a caller token, so the action is registered unauthenticated. Panics
// if the server was constructed without an AuthConfig.
func (s *SocketServer) RegisterRevocationHandler() {
	if s.auth == nil {
		panic("service.SocketServer: RegisterRevocationHandler requires AuthConfig")
	}
	s.Handle("revoke-tokens", func(ctx context.Context, raw []byte) (any, error) {
		var fields struct {
			Revocation []byte `cbor:"revocation"`
		}
		if err := codec.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("invalid revocation request: %w", err)
		}
		if len(fields.Revocation) == 0 {
			return nil, errors.New("missing revocation field")
		}

		request, err := servicetoken.VerifyRevocation(s.auth.PublicKey, fields.Revocation)
		if err != nil {
			return nil, fmt.Errorf("revocation verification failed: %w", err)
		}

		for _, entry := range request.Entries {
			s.auth.Blacklist.Revoke(entry.TokenID, time.Unix(entry.ExpiresAt, 0))
		}
		s.logger.Info("revoked tokens", "count", len(request.Entries))

		return map[string]any{"revoked": len(request.Entries)}, nil
	})
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request.
// 1 MB is generous for any curation operation (the largest extraction
// submissions run a few KB of structured fields).
const maxRequestSize = 1024 * 1024

// handleConnection processes one request-response cycle, or hands the
// connection to a stream handler after authentication.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	// Extract the action field for routing.
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	entry, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	var token *servicetoken.Token
	if entry.auth != nil || entry.stream != nil {
		verified, err := s.authenticate(raw)
		if err != nil {
			s.logger.Debug("authentication failed",
				"action", header.Action,
				"error", err,
			)
			s.writeError(conn, authErrorMessage(err))
			return
		}
		token = verified
	}

	if entry.stream != nil {
		// The stream handler owns the connection from here. Clear
		// the request read deadline it inherited.
		conn.SetReadDeadline(time.Time{})
		entry.stream(ctx, token, []byte(raw), conn)
		return
	}

	var result any
	var err error
	if entry.auth != nil {
		result, err = entry.auth(ctx, token, []byte(raw))
	} else {
		result, err = entry.plain(ctx, []byte(raw))
	}
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

var errMissingToken = errors.New("missing token field")

// authenticate extracts the "token" field from the raw request and
// verifies it against the server's AuthConfig.
func (s *SocketServer) authenticate(raw codec.RawMessage) (*servicetoken.Token, error) {
	var fields struct {
		Token []byte `cbor:"token"`
	}
	if err := codec.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding token field: %w", err)
	}
	if len(fields.Token) == 0 {
		return nil, errMissingToken
	}

	token, err := servicetoken.VerifyForServiceAt(s.auth.PublicKey, fields.Token, s.auth.Audience, s.auth.Clock.Now())
	if err != nil {
		return nil, err
	}

	if s.auth.Blacklist.IsRevoked(token.ID) {
		return nil, servicetoken.ErrTokenRevoked
	}

	return token, nil
}

// authErrorMessage maps verification failures to client-facing
// messages. Expiry and revocation are named so callers know to refresh
// their token; every other failure collapses to a generic message that
// does not reveal which check rejected the token.
func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, errMissingToken):
		return "missing token field"
	case errors.Is(err, servicetoken.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, servicetoken.ErrTokenRevoked):
		return "token revoked"
	default:
		return "authentication failed"
	}
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level, the connection is closing
// regardless and the caller has already received the error.
func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
