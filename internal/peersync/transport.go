package peersync

import (
	"context"
	"errors"
)

var (
	// ErrIDTaken is returned by Listen when another peer already holds the id.
	ErrIDTaken = errors.New("peer id already in use")
	// ErrPeerNotFound is returned by Dial when nobody listens on the id.
	ErrPeerNotFound = errors.New("peer not found")
	ErrClosed       = errors.New("connection closed")
)

// Conn is an established, message-oriented channel between two peers.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	// Receive blocks until the next message arrives, the peer goes away
	// (ErrClosed) or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Listener holds a public peer id until Close.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// Transport opens peer identities and connects to them.
type Transport interface {
	Listen(ctx context.Context, id string) (Listener, error)
	Dial(ctx context.Context, id string) (Conn, error)
}
