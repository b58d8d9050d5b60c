// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package statesync

import (
	"context"
	"net"
	"time"
)

// Compile-time interface checks.
var (
	_ Dialer = (*TCPDialer)(nil)
	_ Dialer = (*MemoryNetwork)(nil)
)

// Dialer opens push stream connections to the IDE host. The address
// format is dialer-specific ("host:port" for TCP, ignored by the
// in-memory network).
type Dialer interface {
	// DialContext opens a connection to the host's push listener.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// TCPDialer opens TCP connections to the host's push listener. This
// is the production dialer — it requires direct TCP reachability
// between viewer and host.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to
	// be established. Zero means no standalone timeout — only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to the given address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}

// MemoryNetwork is an in-process transport for tests: each dial
// produces a net.Pipe whose server half is delivered to Accept.
type MemoryNetwork struct {
	accept chan net.Conn
	refuse chan struct{}
}

// NewMemoryNetwork creates an in-memory transport.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		accept: make(chan net.Conn),
		refuse: make(chan struct{}),
	}
}

// DialContext implements Dialer. It blocks until the server side
// accepts the connection, the network is refusing, or ctx expires.
func (n *MemoryNetwork) DialContext(ctx context.Context, _ string) (net.Conn, error) {
	client, server := net.Pipe()
	select {
	case n.accept <- server:
		return client, nil
	case <-n.refuse:
		client.Close()
		server.Close()
		return nil, &net.OpError{Op: "dial", Net: "memory", Err: context.Canceled}
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}
}

// Accept returns the server half of the next dialed connection.
func (n *MemoryNetwork) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-n.accept:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refuse makes every current and future dial fail immediately,
// simulating an unreachable push listener.
func (n *MemoryNetwork) Refuse() {
	close(n.refuse)
}
