package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/aleveille/graphout/formatter"
	"github.com/aleveille/graphout/metric"
	"github.com/aleveille/graphout/pool"
)

type tcpPublisher struct {
	addr   string
	target formatter.Formatter
	opts   options

	mu        sync.Mutex
	pool      *pool.Pool[Conn]
	ownsPool  bool
	collector prometheus.Collector

	writes      metrics.Counter
	failures    metrics.Counter
	unavailable metrics.Counter
	samples     metrics.Counter
	claimTime   metrics.Timer
}

// NewTcpPublisher sends the lines produced by target to addr over pooled
// connections. Nothing is opened before Start, and connections are then
// opened lazily by the first writes.
func NewTcpPublisher(addr string, target formatter.Formatter, opts ...Option) Publisher {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	name := func(n string) string { return "publisher." + addr + "." + n }
	return &tcpPublisher{
		addr:        addr,
		target:      target,
		opts:        o,
		writes:      metrics.GetOrRegisterCounter(name("writes"), o.registry),
		failures:    metrics.GetOrRegisterCounter(name("failures"), o.registry),
		unavailable: metrics.GetOrRegisterCounter(name("unavailable"), o.registry),
		samples:     metrics.GetOrRegisterCounter(name("samples"), o.registry),
		claimTime:   metrics.GetOrRegisterTimer(name("claim"), o.registry),
	}
}

func (p *tcpPublisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		return nil
	}

	pl, owned := p.opts.pool, false
	if pl == nil {
		alloc := p.opts.allocator
		if alloc == nil {
			sa, err := NewSocketAllocator(p.addr, p.opts.socketTimeout, p.opts.writeTimeout, p.opts.charset)
			if err != nil {
				return errors.Wrap(ErrSetup, err.Error())
			}
			alloc = sa
		}
		pl, owned = pool.New[Conn](alloc, p.opts.poolSize), true
	}

	if p.opts.registerer != nil {
		c := pool.NewCollector(pl, prometheus.Labels{"destination": p.addr})
		err := p.opts.registerer.Register(c)
		var already prometheus.AlreadyRegisteredError
		switch {
		case err == nil:
			p.collector = c
		case errors.As(err, &already):
			log.WithField("addr", p.addr).Debug("Pool metrics already registered")
		default:
			if owned {
				pl.Close()
			}
			return errors.Wrap(ErrSetup, err.Error())
		}
	}

	p.pool, p.ownsPool = pl, owned
	log.WithFields(log.Fields{"addr": p.addr, "poolSize": pl.Stats().Size}).Info("Started tcp publisher")
	return nil
}

// Stop can be called more than once, or without Start.
func (p *tcpPublisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool == nil {
		return nil
	}
	if p.collector != nil {
		p.opts.registerer.Unregister(p.collector)
		p.collector = nil
	}

	var err error
	if p.ownsPool {
		err = p.pool.Close()
		if err != nil {
			log.WithError(err).WithField("addr", p.addr).Warn("Error closing pooled connections")
		}
	}
	p.pool, p.ownsPool = nil, false
	return err
}

func (p *tcpPublisher) ValidateSetup(server metric.Server, query metric.Query) error {
	if err := p.target.ValidateSetup(server, query); err != nil {
		return errors.Wrap(ErrValidation, err.Error())
	}
	return nil
}

// Write claims a connection, formats the whole batch onto it and flushes.
// A connection that saw any error is invalidated so that it is never reused
// with a partial line buffered.
func (p *tcpPublisher) Write(ctx context.Context, server metric.Server, query metric.Query, samples []*metric.Sample) error {
	p.mu.Lock()
	pl := p.pool
	p.mu.Unlock()
	if pl == nil {
		return ErrNotStarted
	}

	claimCtx, cancel := context.WithTimeout(ctx, p.opts.claimTimeout)
	defer cancel()

	start := time.Now()
	lease, err := pl.Claim(claimCtx)
	p.claimTime.UpdateSince(start)
	if err != nil {
		p.unavailable.Inc(1)
		return &UnavailableError{Addr: p.addr, Err: err}
	}

	ok := false
	defer func() {
		if !ok {
			lease.Invalidate()
		}
		lease.Release()
	}()

	conn := lease.Resource()
	if err := p.target.Format(conn, server, query, samples); err != nil {
		p.failures.Inc(1)
		return errors.Wrapf(err, "writing to %s", p.addr)
	}
	if err := conn.Flush(); err != nil {
		p.failures.Inc(1)
		return errors.Wrapf(err, "flushing to %s", p.addr)
	}

	ok = true
	p.writes.Inc(1)
	p.samples.Inc(int64(len(samples)))
	return nil
}
