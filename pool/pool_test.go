package pool

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/assert"
)

type resource struct {
	id   int
	dead bool
}

type fakeAllocator struct {
	mu          sync.Mutex
	next        int
	failEvery   int // every Nth allocation fails when > 0
	failAll     bool
	deallocErr  error
	allocated   int
	deallocated map[int]int
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{deallocated: make(map[int]int)}
}

func (a *fakeAllocator) Allocate(ctx context.Context) (*resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	if a.failAll || (a.failEvery > 0 && a.next%a.failEvery == 0) {
		return nil, errors.New("connection refused")
	}
	a.allocated++
	return &resource{id: a.next}, nil
}

func (a *fakeAllocator) Expired(r *resource) bool {
	return r.dead
}

func (a *fakeAllocator) Deallocate(r *resource) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deallocated[r.id]++
	return a.deallocErr
}

func (a *fakeAllocator) deallocations(id int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deallocated[id]
}

func claim(t *testing.T, p *Pool[*resource]) *Lease[*resource] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l, err := p.Claim(ctx)
	assert.NilError(t, err)
	return l
}

func TestClaimAllocatesLazilyAndReuses(t *testing.T) {
	alloc := newFakeAllocator()
	p := New[*resource](alloc, 2)

	assert.Equal(t, p.Stats().Allocated, uint64(0))

	l := claim(t, p)
	id := l.Resource().id
	l.Release()

	l = claim(t, p)
	assert.Equal(t, l.Resource().id, id)
	l.Release()

	s := p.Stats()
	assert.Equal(t, s.Allocated, uint64(1))
	assert.Equal(t, s.Claims, uint64(2))
	assert.Equal(t, s.Idle, 1)
	assert.Equal(t, s.InUse, 0)
}

func TestClaimTimesOutWhenExhausted(t *testing.T) {
	p := New[*resource](newFakeAllocator(), 1)

	l := claim(t, p)
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Claim(ctx)
	assert.Assert(t, errors.Is(err, ErrTimeout))
	assert.Assert(t, time.Since(start) >= 20*time.Millisecond)
	assert.Equal(t, p.Stats().Timeouts, uint64(1))
}

func TestClaimCancelled(t *testing.T) {
	p := New[*resource](newFakeAllocator(), 1)

	l := claim(t, p)
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Claim(ctx)
	assert.Assert(t, errors.Is(err, ErrTimeout))
	assert.ErrorContains(t, err, "context canceled")
}

func TestWaiterGetsReleasedResource(t *testing.T) {
	p := New[*resource](newFakeAllocator(), 1)

	l := claim(t, p)
	id := l.Resource().id

	got := make(chan int, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		w, err := p.Claim(ctx)
		if err != nil {
			got <- -1
			return
		}
		got <- w.Resource().id
		w.Release()
	}()

	time.Sleep(20 * time.Millisecond)
	l.Release()

	assert.Equal(t, <-got, id)
}

func TestInvalidatedResourceIsNeverReused(t *testing.T) {
	alloc := newFakeAllocator()
	p := New[*resource](alloc, 1)

	l := claim(t, p)
	id := l.Resource().id
	l.Invalidate()
	l.Release()
	l.Release()

	assert.Equal(t, alloc.deallocations(id), 1)

	l = claim(t, p)
	assert.Assert(t, l.Resource().id != id)
	l.Release()

	s := p.Stats()
	assert.Equal(t, s.Invalidated, uint64(1))
	assert.Equal(t, s.Deallocated, uint64(1))
	assert.Equal(t, s.Allocated, uint64(2))
	assert.Equal(t, s.InUse, 0)
}

func TestExpiredIdleResourceIsReplaced(t *testing.T) {
	alloc := newFakeAllocator()
	p := New[*resource](alloc, 1)

	l := claim(t, p)
	r := l.Resource()
	l.Release()
	r.dead = true

	l = claim(t, p)
	assert.Assert(t, l.Resource() != r)
	l.Release()

	assert.Equal(t, alloc.deallocations(r.id), 1)
	assert.Equal(t, p.Stats().Expired, uint64(1))
}

func TestAllocationFailureFreesSlot(t *testing.T) {
	alloc := newFakeAllocator()
	alloc.failAll = true
	p := New[*resource](alloc, 1)

	_, err := p.Claim(context.Background())
	var allocErr *AllocationError
	assert.Assert(t, errors.As(err, &allocErr))
	assert.ErrorContains(t, err, "connection refused")

	alloc.failAll = false
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	l, err := p.Claim(ctx)
	assert.NilError(t, err)
	l.Release()

	assert.Equal(t, p.Stats().AllocationFailures, uint64(1))
}

func TestDeallocationErrorDoesNotFailRelease(t *testing.T) {
	alloc := newFakeAllocator()
	alloc.deallocErr = errors.New("close: broken pipe")
	p := New[*resource](alloc, 1)

	l := claim(t, p)
	l.Invalidate()
	l.Release()

	l = claim(t, p)
	l.Release()
	assert.Equal(t, p.Stats().InUse, 0)
}

func TestClose(t *testing.T) {
	alloc := newFakeAllocator()
	p := New[*resource](alloc, 2)

	idle := claim(t, p)
	busy := claim(t, p)
	idle.Release()

	alloc.deallocErr = errors.New("close: broken pipe")
	err := p.Close()
	assert.ErrorContains(t, err, "broken pipe")
	assert.Equal(t, alloc.deallocations(idle.Resource().id), 1)
	assert.NilError(t, p.Close())

	_, err = p.Claim(context.Background())
	assert.Assert(t, errors.Is(err, ErrClosed))

	busy.Release()
	assert.Equal(t, alloc.deallocations(busy.Resource().id), 1)
	assert.Equal(t, p.Stats().Idle, 0)
}

func TestCloseWakesWaitingClaims(t *testing.T) {
	p := New[*resource](newFakeAllocator(), 1)
	busy := claim(t, p)

	errs := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := p.Claim(ctx)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	assert.NilError(t, p.Close())

	select {
	case err := <-errs:
		assert.Assert(t, errors.Is(err, ErrClosed))
		assert.Assert(t, time.Since(start) < time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting claim was not woken by Close")
	}
	assert.Equal(t, p.Stats().Timeouts, uint64(0))

	busy.Release()
	assert.Equal(t, p.Stats().InUse, 0)
}

func TestNoLeakedSlotsUnderFaults(t *testing.T) {
	alloc := newFakeAllocator()
	alloc.failEvery = 5
	p := New[*resource](alloc, 3)

	var (
		claims, releases, invalidations, failures int64
		invalid                                   sync.Map
		reusedInvalid                             int32
		wg                                        sync.WaitGroup
	)

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				l, err := p.Claim(ctx)
				cancel()
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				atomic.AddInt64(&claims, 1)

				r := l.Resource()
				if _, seen := invalid.Load(r.id); seen {
					atomic.StoreInt32(&reusedInvalid, 1)
				}

				if (g+i)%3 == 0 {
					invalid.Store(r.id, true)
					l.Invalidate()
					atomic.AddInt64(&invalidations, 1)
				} else {
					atomic.AddInt64(&releases, 1)
				}
				l.Release()
			}
		}(g)
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, atomic.LoadInt32(&reusedInvalid), int32(0))
	assert.Equal(t, claims, releases+invalidations)
	assert.Equal(t, s.Claims, uint64(claims))
	assert.Equal(t, s.Invalidated, uint64(invalidations))
	assert.Equal(t, s.InUse, 0)
	assert.Equal(t, s.Allocated-s.Deallocated, uint64(s.Idle))
	assert.Assert(t, s.Idle <= 3)
	assert.Equal(t, s.AllocationFailures, uint64(failures))

	// every slot is still usable
	var leases []*Lease[*resource]
	alloc.failEvery = 0
	for i := 0; i < 3; i++ {
		leases = append(leases, claim(t, p))
	}
	for _, l := range leases {
		l.Release()
	}
}

func TestCollector(t *testing.T) {
	p := New[*resource](newFakeAllocator(), 2)
	l := claim(t, p)
	defer l.Release()

	c := NewCollector(p, prometheus.Labels{"destination": "localhost:2003"})
	assert.Equal(t, testutil.CollectAndCount(c), 9)

	expected := `
# HELP graphout_pool_in_use Connections currently claimed.
# TYPE graphout_pool_in_use gauge
graphout_pool_in_use{destination="localhost:2003"} 1
# HELP graphout_pool_size Maximum number of pooled connections.
# TYPE graphout_pool_size gauge
graphout_pool_size{destination="localhost:2003"} 2
`
	assert.NilError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "graphout_pool_in_use", "graphout_pool_size"))
}
