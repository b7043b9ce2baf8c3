// Package pool hands out database connections, or any other closable resource,
// bounded between a minimum and a maximum number of live resources.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/acronis/perfkit/entitydb/logger"
)

var (
	// ErrExhausted is returned when no resource became available within the checkout timeout
	ErrExhausted = errors.New("pool: exhausted")
	// ErrClosed is returned by a closed pool
	ErrClosed = errors.New("pool: closed")
	// ErrNotCheckedOut is returned when checking in a resource the pool did not hand out
	ErrNotCheckedOut = errors.New("pool: resource is not checked out")
)

// Resource is a pooled, closable resource such as *persist.Connection
type Resource interface {
	// IsValid reports whether the resource can be handed out again
	IsValid(ctx context.Context) bool
	// Reset prepares the resource for its next user
	Reset(ctx context.Context) error
	Close() error
}

// Pooled is the constraint of pooled resource types
type Pooled interface {
	comparable
	Resource
}

// Factory creates a resource
type Factory[T Pooled] func(ctx context.Context) (T, error)

type entry[T Pooled] struct {
	res      T
	returned time.Time
}

// Pool is a stack of idle resources gated by a semaphore of MaxSize permits.
// A permit is held by every checked out resource.
type Pool[T Pooled] struct {
	cfg     Config
	factory Factory[T]
	logger  logger.Logger
	gate    *semaphore.Weighted
	sweeper *cron.Cron
	now     func() time.Time

	mu     sync.Mutex
	idle   []entry[T]
	inUse  map[T]struct{}
	live   int
	closed bool

	stats counters
}

// New creates a pool and fills it up to the minimum size
func New[T Pooled](ctx context.Context, cfg Config, factory Factory[T], l logger.Logger) (*Pool[T], error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.Nop()
	}

	var p = &Pool[T]{
		cfg:     cfg,
		factory: factory,
		logger:  logger.NewConnLogger(l, logger.PoolID),
		gate:    semaphore.NewWeighted(int64(cfg.MaxSize)),
		now:     time.Now,
		inUse:   make(map[T]struct{}),
		stats:   newCounters(),
	}

	for i := 0; i < cfg.MinSize; i++ {
		var res, err = p.create(ctx)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.mu.Lock()
		p.idle = append(p.idle, entry[T]{res: res, returned: p.now()})
		p.mu.Unlock()
	}

	p.sweeper = cron.New()
	p.sweeper.Schedule(cron.Every(cfg.CleanupInterval), cron.FuncJob(p.sweep))
	p.sweeper.Start()

	p.logger.Debug("pool started, size %d..%d", cfg.MinSize, cfg.MaxSize)

	return p, nil
}

// Config returns the effective bounds of the pool
func (p *Pool[T]) Config() Config {
	return p.cfg
}

// Checkout returns the most recently returned idle resource, or a new one while
// the pool is below its maximum size. An exhausted pool blocks until a resource
// is checked in, ctx is done or the checkout timeout passes.
func (p *Pool[T]) Checkout(ctx context.Context) (T, error) {
	var zero T
	if p.isClosed() {
		return zero, ErrClosed
	}

	p.stats.requests.Inc()
	if !p.gate.TryAcquire(1) {
		p.stats.delayed.Inc()
		if err := p.wait(ctx); err != nil {
			return zero, err
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.gate.Release(1)
		return zero, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		var e = p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse[e.res] = struct{}{}
		p.mu.Unlock()
		return e.res, nil
	}
	p.mu.Unlock()

	var res, err = p.create(ctx)
	if err != nil {
		p.gate.Release(1)
		return zero, err
	}

	p.mu.Lock()
	p.inUse[res] = struct{}{}
	p.mu.Unlock()

	return res, nil
}

func (p *Pool[T]) wait(ctx context.Context) error {
	var waitCtx = ctx
	if p.cfg.CheckoutTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.CheckoutTimeout)
		defer cancel()
	}

	var since = p.now()
	if err := p.gate.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("checkout timed out after %v", p.cfg.CheckoutTimeout)
		return fmt.Errorf("%w: no resource available within %v", ErrExhausted, p.cfg.CheckoutTimeout)
	}
	p.stats.waited.Add(int64(p.now().Sub(since)))

	return nil
}

// Checkin returns a resource. A valid resource is reset and pushed to the idle
// stack, an invalid one is destroyed.
func (p *Pool[T]) Checkin(ctx context.Context, res T) error {
	p.mu.Lock()
	if _, ok := p.inUse[res]; !ok {
		p.mu.Unlock()
		return ErrNotCheckedOut
	}
	delete(p.inUse, res)
	p.mu.Unlock()

	defer p.gate.Release(1)

	if !res.IsValid(ctx) {
		p.logger.Warn("dropping invalid resource")
		p.destroy(res)
		return nil
	}
	if err := res.Reset(ctx); err != nil {
		p.logger.Warn("dropping resource that failed to reset: %v", err)
		p.destroy(res)
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.destroy(res)
		return nil
	}
	p.idle = append(p.idle, entry[T]{res: res, returned: p.now()})
	p.mu.Unlock()

	return nil
}

// Stats returns a snapshot of the pool statistics
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	var idle, inUse, live = len(p.idle), len(p.inUse), p.live
	p.mu.Unlock()

	return p.stats.snapshot(p.now(), idle, inUse, live)
}

// Close stops the sweep and destroys the idle resources; resources checked out
// at that time are destroyed when checked in
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle = p.idle
	p.idle = nil
	p.mu.Unlock()

	if p.sweeper != nil {
		<-p.sweeper.Stop().Done()
	}

	var errs []error
	for _, e := range idle {
		if err := p.destroy(e.res); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Debug("pool closed")

	return errors.Join(errs...)
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *Pool[T]) create(ctx context.Context) (T, error) {
	p.mu.Lock()
	p.live++
	p.mu.Unlock()

	var res, err = p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		var zero T
		return zero, fmt.Errorf("pool: cannot create resource: %w", err)
	}

	p.stats.created.Inc()
	p.logger.Debug("created resource, %d live", p.liveCount())

	return res, nil
}

func (p *Pool[T]) destroy(res T) error {
	p.mu.Lock()
	p.live--
	p.mu.Unlock()

	p.stats.destroyed.Inc()
	var err = res.Close()
	if err != nil {
		p.logger.Error("closing resource failed: %v", err)
	}
	p.logger.Debug("destroyed resource, %d live", p.liveCount())

	return err
}

func (p *Pool[T]) liveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.live
}

// sweep destroys resources idle for longer than the idle timeout, oldest first,
// while the pool stays at or above its minimum size
func (p *Pool[T]) sweep() {
	var now = p.now()

	p.mu.Lock()
	var live = p.live
	var keep = p.idle[:0]
	var evicted []T
	for _, e := range p.idle {
		if live > p.cfg.MinSize && now.Sub(e.returned) > p.cfg.IdleTimeout {
			evicted = append(evicted, e.res)
			live--
			continue
		}
		keep = append(keep, e)
	}
	p.idle = keep
	p.mu.Unlock()

	for _, res := range evicted {
		p.stats.evicted.Inc()
		_ = p.destroy(res)
	}
	if len(evicted) > 0 {
		p.logger.Debug("evicted %d idle resources", len(evicted))
	}
}
