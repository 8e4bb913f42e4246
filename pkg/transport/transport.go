package transport

import (
	"context"
	"net"
)

// Kind identifies the link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindQUIC
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// Conn is a bidirectional frame stream. Frames are opaque bytes (encoded
// wire envelopes). Send is safe for concurrent use; Recv expects a single
// reader goroutine.
type Conn interface {
	// Send writes one message frame.
	Send([]byte) error
	// Recv blocks until the next frame arrives and returns its bytes.
	Recv() ([]byte, error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until an inbound connection is available or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	Close() error
}

// Transport provides dialing and listening for a specific link kind.
type Transport interface {
	Kind() Kind
	// Listen starts accepting inbound connections on address.
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial creates an outbound connection.
	Dial(ctx context.Context, address string) (Conn, error)
}

// MaxFrameSize bounds a single frame; larger frames are rejected on receive.
const MaxFrameSize = 1 << 24
