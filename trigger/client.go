// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bsmd-foundation/bsmd/lib/codec"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the response
// after writing the request. Matched to the server's readTimeout +
// writeTimeout to account for handler execution time.
const responseReadTimeout = 45 * time.Second

// CallError is returned by Call when the peer responds ok=false.
type CallError struct {
	Action  string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("trigger: call %q failed: %s", e.Action, e.Message)
}

// UnreachableError is returned when the peer cannot be dialed. A
// coordinator treats this as a soft failure: the peer sits this
// round out.
type UnreachableError struct {
	Addr string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("trigger: peer %s unreachable: %v", e.Addr, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Client sends trigger requests. Each Call opens a new connection,
// matching the server's one-request-per-connection model.
type Client struct {
	addr string
}

// NewClient creates a client for the given peer address
// ("host:port" or "unix:/path").
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Call sends the fields as one request for the named action and
// decodes the response data into result (when non-nil). The "action"
// field is injected; the caller must not include it in fields.
//
// Dial failures return *UnreachableError; server-side failures return
// *CallError.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return err
	}
	if !response.OK {
		return &CallError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("trigger: decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	network, address := splitAddr(c.addr)
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, &UnreachableError{Addr: c.addr, Err: err}
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("trigger: writing request to %s: %w", c.addr, err)
	}

	// Half-close the write side so the server's read sees EOF
	// cleanly. CBOR is self-delimiting, so this is a courtesy, not a
	// framing requirement.
	switch typed := conn.(type) {
	case *net.TCPConn:
		typed.CloseWrite()
	case *net.UnixConn:
		typed.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("trigger: reading response from %s: %w", c.addr, err)
	}
	return &response, nil
}
