package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
)

// FrameConn wraps a byte stream with u32-LE length-prefixed framing. It
// implements Conn for the stream transports.
type FrameConn struct {
	mu    sync.Mutex // serializes Send
	c     io.ReadWriteCloser
	laddr net.Addr
	raddr net.Addr
	br    *bufio.Reader
	bw    *bufio.Writer
}

func NewFrameConn(c net.Conn) *FrameConn {
	return NewFrameStream(c, c.LocalAddr(), c.RemoteAddr())
}

// NewFrameStream frames an arbitrary byte stream, for transports whose
// streams are not net.Conns (e.g. QUIC).
func NewFrameStream(c io.ReadWriteCloser, laddr, raddr net.Addr) *FrameConn {
	return &FrameConn{c: c, laddr: laddr, raddr: raddr, br: bufio.NewReader(c), bw: bufio.NewWriter(c)}
}

func (f *FrameConn) Send(b []byte) error {
	if len(b) > MaxFrameSize {
		return errors.New("transport: frame too large")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := f.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := f.bw.Write(b); err != nil {
		return err
	}
	return f.bw.Flush()
}

func (f *FrameConn) Recv() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(f.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n > MaxFrameSize {
		return nil, errors.New("transport: invalid frame size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *FrameConn) LocalAddr() net.Addr  { return f.laddr }
func (f *FrameConn) RemoteAddr() net.Addr { return f.raddr }
func (f *FrameConn) Close() error         { return f.c.Close() }
