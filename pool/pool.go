package pool

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTimeout is returned when no resource could be claimed before the
	// claim context expired or was cancelled.
	ErrTimeout = errors.New("timed out waiting for a pooled resource")

	// ErrClosed is returned when claiming from a closed pool.
	ErrClosed = errors.New("pool is closed")
)

// AllocationError reports a resource that could not be created. The capacity
// slot reserved for it has already been given back.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string { return "allocation failed: " + e.Err.Error() }
func (e *AllocationError) Unwrap() error { return e.Err }

// Allocator is the capability set a Pool manages resources with.
type Allocator[T any] interface {
	// Allocate creates a new live resource.
	Allocate(ctx context.Context) (T, error)
	// Expired reports whether an idle resource can no longer be handed out.
	// It is only called when the pool is about to reuse the resource.
	Expired(r T) bool
	// Deallocate destroys a resource. It is called exactly once per
	// allocated resource.
	Deallocate(r T) error
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Size               int
	Idle               int
	InUse              int
	Claims             uint64
	Timeouts           uint64
	Allocated          uint64
	AllocationFailures uint64
	Deallocated        uint64
	Invalidated        uint64
	Expired            uint64
}

// Pool hands out at most size resources at a time. Idle resources are reused
// most recent first and are checked for expiry before being handed out.
// There is no background goroutine: all the work happens in Claim and in
// Lease.Release.
type Pool[T any] struct {
	alloc Allocator[T]
	size  int
	sem   *semaphore.Weighted
	done  chan struct{} // closed by Close, wakes blocked claims

	mu     sync.Mutex
	idle   []T
	inUse  int
	closed bool
	stats  Stats
}

// New creates a pool of the given size; sizes below 1 mean 1.
func New[T any](alloc Allocator[T], size int) *Pool[T] {
	if size < 1 {
		size = 1
	}
	return &Pool[T]{
		alloc: alloc,
		size:  size,
		sem:   semaphore.NewWeighted(int64(size)),
		done:  make(chan struct{}),
		idle:  make([]T, 0, size),
	}
}

// Claim blocks until a resource is available, ctx is done or the pool is
// closed. The returned lease must be released exactly once.
func (p *Pool[T]) Claim(ctx context.Context) (*Lease[T], error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	if err := p.acquire(ctx); err != nil {
		if p.isClosed() {
			return nil, ErrClosed
		}
		p.mu.Lock()
		p.stats.Timeouts++
		p.mu.Unlock()
		return nil, errors.Wrap(ErrTimeout, err.Error())
	}

	for {
		r, ok, err := p.popIdle()
		if err != nil {
			p.sem.Release(1)
			return nil, err
		}
		if !ok {
			break
		}
		if p.alloc.Expired(r) {
			log.Debug("Discarding expired pooled resource")
			p.mu.Lock()
			p.stats.Expired++
			p.mu.Unlock()
			p.destroy(r)
			continue
		}
		return p.lease(r), nil
	}

	r, err := p.alloc.Allocate(ctx)
	if err != nil {
		p.mu.Lock()
		p.stats.AllocationFailures++
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, &AllocationError{Err: err}
	}

	p.mu.Lock()
	p.stats.Allocated++
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.destroy(r)
		p.sem.Release(1)
		return nil, ErrClosed
	}

	log.WithField("size", p.size).Debug("Allocated new pooled resource")
	return p.lease(r), nil
}

// acquire takes a capacity slot. Only a claim that has to wait is tied to
// the pool lifetime.
func (p *Pool[T]) acquire(ctx context.Context) error {
	if p.sem.TryAcquire(1) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return p.sem.Acquire(ctx, 1)
}

func (p *Pool[T]) popIdle() (T, bool, error) {
	var zero T

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return zero, false, ErrClosed
	}
	n := len(p.idle)
	if n == 0 {
		return zero, false, nil
	}
	r := p.idle[n-1]
	p.idle[n-1] = zero
	p.idle = p.idle[:n-1]
	return r, true, nil
}

func (p *Pool[T]) lease(r T) *Lease[T] {
	p.mu.Lock()
	p.inUse++
	p.stats.Claims++
	p.mu.Unlock()
	return &Lease[T]{pool: p, res: r}
}

// put takes a resource back. The idle list is updated before the capacity
// slot is freed so that a waiter woken by the semaphore finds it.
func (p *Pool[T]) put(r T, invalid bool) {
	p.mu.Lock()
	p.inUse--
	if invalid {
		p.stats.Invalidated++
	}
	discard := invalid || p.closed
	if !discard {
		p.idle = append(p.idle, r)
	}
	p.mu.Unlock()

	if discard {
		p.destroy(r)
	}
	p.sem.Release(1)
}

func (p *Pool[T]) destroy(r T) {
	err := p.alloc.Deallocate(r)

	p.mu.Lock()
	p.stats.Deallocated++
	p.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("Error deallocating pooled resource")
	}
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Size = p.size
	s.Idle = len(p.idle)
	s.InUse = p.inUse
	return s
}

// Close deallocates every idle resource and fails the claims still waiting
// with ErrClosed. Resources still claimed are deallocated when released.
// Close is idempotent.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var result *multierror.Error
	for _, r := range idle {
		err := p.alloc.Deallocate(r)
		p.mu.Lock()
		p.stats.Deallocated++
		p.mu.Unlock()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Lease is a claimed resource. It is owned by a single caller until released.
type Lease[T any] struct {
	pool    *Pool[T]
	res     T
	invalid bool
	once    sync.Once
}

// Resource returns the claimed resource.
func (l *Lease[T]) Resource() T {
	return l.res
}

// Invalidate marks the resource as broken: Release will destroy it instead of
// returning it to the idle set.
func (l *Lease[T]) Invalidate() {
	l.invalid = true
}

// Release gives the resource back to the pool. Calls after the first one are
// no-ops.
func (l *Lease[T]) Release() {
	l.once.Do(func() {
		l.pool.put(l.res, l.invalid)
	})
}
