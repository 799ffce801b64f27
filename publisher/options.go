package publisher

import (
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"

	"github.com/aleveille/graphout/pool"
)

const (
	DefaultPoolSize      = 1
	DefaultSocketTimeout = 200 * time.Millisecond
	DefaultWriteTimeout  = time.Second
	DefaultClaimTimeout  = time.Second
	DefaultCharset       = "UTF-8"
)

type options struct {
	poolSize      int
	socketTimeout time.Duration
	writeTimeout  time.Duration
	claimTimeout  time.Duration
	charset       string

	pool      *pool.Pool[Conn]
	allocator pool.Allocator[Conn]

	registry   metrics.Registry
	registerer prometheus.Registerer
	out        io.Writer
}

func defaultOptions() options {
	return options{
		poolSize:      DefaultPoolSize,
		socketTimeout: DefaultSocketTimeout,
		writeTimeout:  DefaultWriteTimeout,
		claimTimeout:  DefaultClaimTimeout,
		charset:       DefaultCharset,
		registry:      metrics.NewRegistry(),
		out:           os.Stdout,
	}
}

type Option func(*options)

// Maximum number of connections opened to the destination.
func WithPoolSize(size int) Option {
	return func(o *options) {
		o.poolSize = size
	}
}

// Connect timeout of a new socket.
func WithSocketTimeout(d time.Duration) Option {
	return func(o *options) {
		o.socketTimeout = d
	}
}

// Upper bound of every write to the socket.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// How long a write waits for a pooled connection.
func WithClaimTimeout(d time.Duration) Option {
	return func(o *options) {
		o.claimTimeout = d
	}
}

// IANA name of the charset lines are encoded with.
func WithCharset(name string) Option {
	return func(o *options) {
		o.charset = name
	}
}

// WithPool shares an existing pool. The publisher neither creates nor closes
// it.
func WithPool(p *pool.Pool[Conn]) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithAllocator replaces the socket allocator of the publisher's own pool.
func WithAllocator(a pool.Allocator[Conn]) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// go-metrics registry the publisher counters are registered in.
func WithRegistry(r metrics.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithRegisterer exposes the pool statistics to prometheus while started.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// Output of stdout writers.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}
