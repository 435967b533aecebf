package sqlkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
)

// Pool lends exclusive Conns over a bounded set of links. Links are created
// lazily up to MaxConnections; further Acquire calls wait in FIFO order.
type Pool struct {
	p   *puddle.Pool[*linkResource]
	drv Driver
	cfg Config
	env *settings

	closed    atomic.Bool
	closeOnce sync.Once
	closeChan chan struct{}
	closeDone chan struct{}
	sweepDone chan struct{}

	idleDestroyCount     atomic.Int64
	lifetimeDestroyCount atomic.Int64
	brokenDestroyCount   atomic.Int64
}

type linkResource struct {
	link   Link
	maxAge time.Time
}

// NewPool validates cfg and builds a pool without opening any link.
func NewPool(drv Driver, cfg Config, opts ...Option) (*Pool, error) {
	if drv == nil {
		return nil, configError("driver is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if cfg.MaxConnections > math.MaxInt32 {
		return nil, configError("MaxConnections %d is too large", cfg.MaxConnections)
	}
	env, err := newSettings(drv, cfg, opts)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		drv:       drv,
		cfg:       cfg,
		env:       env,
		closeChan: make(chan struct{}),
		closeDone: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	p.p, err = puddle.NewPool(&puddle.Config[*linkResource]{
		Constructor: p.connect,
		Destructor:  p.destroy,
		MaxSize:     int32(cfg.MaxConnections),
	})
	if err != nil {
		return nil, newError(KindConfig, "sqlkit: invalid pool size", err)
	}

	go p.sweepLoop()
	return p, nil
}

func (p *Pool) connect(ctx context.Context) (*linkResource, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	link, err := p.drv.Connect(ctx)
	if err != nil {
		if KindOf(err) != KindUnknown {
			return nil, err
		}
		// SECURITY: driver errors may echo the DSN; the outer message stays safe.
		return nil, newError(KindConnection, fmt.Sprintf("sqlkit: failed to open connection (driver=%s)", p.env.dialect.Name), err)
	}
	p.env.logger.LogAttrs(ctx, slog.LevelDebug, "sqlkit: connection opened", slog.String("driver", p.env.dialect.Name))
	return &linkResource{link: link, maxAge: time.Now().Add(p.cfg.MaxLifetime)}, nil
}

func (p *Pool) destroy(r *linkResource) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRollbackTimeout)
	defer cancel()
	if err := r.link.Close(ctx); err != nil {
		p.env.logger.LogAttrs(ctx, slog.LevelDebug, "sqlkit: connection close failed", slog.Any("error", err))
		return
	}
	p.env.logger.LogAttrs(ctx, slog.LevelDebug, "sqlkit: connection closed")
}

// Acquire leases a Conn. It waits until a link is idle or can be created,
// the AcquireTimeout policy expires (KindPoolExhausted) or ctx ends
// (KindConnection). An abandoned wait leaves no lease behind.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.closed.Load() {
		return nil, poolClosedError()
	}

	actx := ctx
	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	// Stale links are destroyed and the acquire retried, at most once per
	// slot plus one fresh attempt.
	for range p.cfg.MaxConnections + 1 {
		res, err := p.p.Acquire(actx)
		if err != nil {
			return nil, p.acquireFailed(ctx, err)
		}
		if reason := p.staleReason(res); reason != "" {
			p.evict(res, reason)
			continue
		}
		return p.lease(res), nil
	}
	return nil, newError(KindPoolExhausted, "sqlkit: no usable connection after evicting stale links", nil)
}

func (p *Pool) acquireFailed(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return poolClosedError()
	case KindOf(err) != KindUnknown:
		return err
	case ctx.Err() != nil:
		return newError(KindConnection, "sqlkit: acquire canceled", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindPoolExhausted, fmt.Sprintf("sqlkit: no connection available within %s", p.cfg.AcquireTimeout), err)
	default:
		return newError(KindConnection, "sqlkit: acquire failed", err)
	}
}

func poolClosedError() error {
	return newError(KindConnection, ErrPoolClosed.Error(), ErrPoolClosed)
}

func (p *Pool) staleReason(res *puddle.Resource[*linkResource]) string {
	r := res.Value()
	switch {
	case r.link.IsClosed():
		return "closed"
	case time.Now().After(r.maxAge):
		return "lifetime"
	case res.IdleDuration() > p.cfg.ConnectionTTL:
		return "idle"
	default:
		return ""
	}
}

func (p *Pool) evict(res *puddle.Resource[*linkResource], reason string) {
	switch reason {
	case "lifetime":
		p.lifetimeDestroyCount.Add(1)
	case "idle":
		p.idleDestroyCount.Add(1)
	default:
		p.brokenDestroyCount.Add(1)
	}
	p.env.logger.LogAttrs(context.Background(), slog.LevelDebug, "sqlkit: evicting connection", slog.String("reason", reason))
	res.Destroy()
}

func (p *Pool) lease(res *puddle.Resource[*linkResource]) *Conn {
	r := res.Value()
	return newConn(r.link, p.env, func(broken bool) {
		if broken || r.link.IsClosed() {
			p.evict(res, "broken")
			return
		}
		res.Release()
	})
}

// Do acquires a Conn, runs fn and releases the Conn whatever fn returns.
func (p *Pool) Do(ctx context.Context, fn func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// Ping checks one link.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Do(ctx, func(c *Conn) error { return c.Ping(ctx) })
}

func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)
	ticker := time.NewTicker(p.cfg.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeChan:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep destroys idle links past their TTL or lifetime.
func (p *Pool) sweep() {
	for _, res := range p.p.AcquireAllIdle() {
		if reason := p.staleReason(res); reason != "" {
			p.evict(res, reason)
			continue
		}
		res.ReleaseUnused()
	}
}

// Close rejects further Acquire calls, waits for leased Conns to come back
// and destroys every link. If ctx ends first Close returns a KindConnection
// error; links still leased are destroyed as they are released.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.closeChan)
		go func() {
			p.p.Close()
			<-p.sweepDone
			close(p.closeDone)
		}()
	})
	select {
	case <-p.closeDone:
		return nil
	case <-ctx.Done():
		return newError(KindConnection, "sqlkit: pool close interrupted with connections still leased", ctx.Err())
	}
}

// Stat is a snapshot of pool counters.
type Stat struct {
	MaxConnections          int32
	TotalConnections        int32
	IdleConnections         int32
	AcquiredConnections     int32
	ConstructingConnections int32

	AcquireCount         int64
	EmptyAcquireCount    int64
	CanceledAcquireCount int64
	AcquireDuration      time.Duration

	IdleDestroyCount     int64
	LifetimeDestroyCount int64
	BrokenDestroyCount   int64
}

// Stat returns a snapshot of pool statistics.
func (p *Pool) Stat() Stat {
	s := p.p.Stat()
	return Stat{
		MaxConnections:          s.MaxResources(),
		TotalConnections:        s.TotalResources(),
		IdleConnections:         s.IdleResources(),
		AcquiredConnections:     s.AcquiredResources(),
		ConstructingConnections: s.ConstructingResources(),
		AcquireCount:            s.AcquireCount(),
		EmptyAcquireCount:       s.EmptyAcquireCount(),
		CanceledAcquireCount:    s.CanceledAcquireCount(),
		AcquireDuration:         s.AcquireDuration(),
		IdleDestroyCount:        p.idleDestroyCount.Load(),
		LifetimeDestroyCount:    p.lifetimeDestroyCount.Load(),
		BrokenDestroyCount:      p.brokenDestroyCount.Load(),
	}
}

// Stats returns the query counters shared by every Conn of this pool.
func (p *Pool) Stats() StatsSnapshot { return p.env.stats.Snapshot() }

// Dialect returns the dialect statements are compiled for.
func (p *Pool) Dialect() Dialect { return p.env.dialect }
