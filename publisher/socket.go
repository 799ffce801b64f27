package publisher

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Conn is a pooled connection. Writes are buffered until Flush.
type Conn interface {
	io.Writer
	Flush() error
	// Alive reports whether the peer is still there.
	Alive() bool
	Close() error
}

// SocketAllocator opens carbon plaintext connections for a pool.
type SocketAllocator struct {
	addr         string
	dialer       net.Dialer
	writeTimeout time.Duration
	encoding     encoding.Encoding
}

// NewSocketAllocator fails when the charset is not known.
func NewSocketAllocator(addr string, connectTimeout, writeTimeout time.Duration, charset string) (*SocketAllocator, error) {
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, errors.Wrapf(err, "charset %q", charset)
	}
	if enc == nil {
		return nil, errors.Errorf("charset %q is not supported", charset)
	}

	return &SocketAllocator{
		addr: addr,
		// Keep-alive probes are off: liveness is checked on reuse instead.
		dialer:       net.Dialer{Timeout: connectTimeout, KeepAlive: -1},
		writeTimeout: writeTimeout,
		encoding:     enc,
	}, nil
}

// Allocate dials the destination. The address is resolved again on every
// dial so that DNS changes are picked up by new connections.
func (a *SocketAllocator) Allocate(ctx context.Context) (Conn, error) {
	c, err := a.dialer.DialContext(ctx, "tcp", a.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", a.addr)
	}
	log.WithField("addr", a.addr).Debug("Opened tcp connection")

	buf := bufio.NewWriter(&deadlineWriter{conn: c, timeout: a.writeTimeout})
	return &socketConn{
		conn: c,
		buf:  buf,
		enc:  encoding.ReplaceUnsupported(a.encoding.NewEncoder()).Writer(buf),
	}, nil
}

func (a *SocketAllocator) Expired(c Conn) bool {
	return !c.Alive()
}

func (a *SocketAllocator) Deallocate(c Conn) error {
	log.WithField("addr", a.addr).Debug("Closing tcp connection")
	return c.Close()
}

// deadlineWriter bounds every write to the socket.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return 0, err
		}
	}
	return w.conn.Write(p)
}

// socketConn stacks charset encoding over a buffer over the socket.
type socketConn struct {
	conn   net.Conn
	buf    *bufio.Writer
	enc    io.Writer
	closed bool
}

func (c *socketConn) Write(p []byte) (int, error) {
	return c.enc.Write(p)
}

func (c *socketConn) Flush() error {
	return c.buf.Flush()
}

// Alive peeks at the socket with a very short read deadline. Carbon never
// sends anything, so a timeout means the connection is idle and healthy
// while EOF or any other error means the peer went away. A byte the peer did
// send is consumed and dropped: nothing ever reads this socket.
func (c *socketConn) Alive() bool {
	if c.closed {
		return false
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return false
	}

	var one [1]byte
	n, err := c.conn.Read(one[:])
	if n > 0 {
		log.WithField("addr", c.conn.RemoteAddr().String()).Debug("Unexpected data from carbon, discarded")
		return true
	}
	if err == nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close flushes what is buffered and closes the socket. Both are attempted
// and their errors combined.
func (c *socketConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var result *multierror.Error
	if closer, ok := c.enc.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "closing encoder"))
		}
	}
	if err := c.buf.Flush(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "flushing"))
	}
	if err := c.conn.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "closing socket"))
	}
	return result.ErrorOrNil()
}
