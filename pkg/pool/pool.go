package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Handle is a pooled connection lent to one caller at a time.
type Handle[C Conn] struct {
	id         uint64
	conn       C
	createdAt  time.Time
	lastUsedAt time.Time
	inUse      bool
}

// ID returns the pool-unique handle identifier.
func (h *Handle[C]) ID() uint64 { return h.id }

// Conn returns the underlying connection.
func (h *Handle[C]) Conn() C { return h.conn }

// CreatedAt returns when the connection was opened.
func (h *Handle[C]) CreatedAt() time.Time { return h.createdAt }

// waiter is a Get call parked until a handle is released. ch is buffered so
// Release never blocks; it is closed when the pool closes.
type waiter[C Conn] struct {
	ch         chan *Handle[C]
	elem       *list.Element
	enqueuedAt time.Time
}

// Pool bounds and reuses backend connections.
//
// # Lending
//
// Get lends a free handle if there is one, otherwise opens a new connection
// while fewer than MaxConnections exist, otherwise queues the caller. Queued
// callers are served strictly in arrival order: Release hands the handle
// straight to the oldest waiter.
//
// # Thread Safety
//
// Pool state is guarded by a single mutex. Opening and closing connections
// happens outside it.
type Pool[C Conn] struct {
	config  Config
	factory Factory[C]
	name    string
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	createLimiter *rate.Limiter
	nextID        atomic.Uint64

	mu       sync.Mutex
	idle     []*Handle[C]
	all      map[uint64]*Handle[C]
	pending  int
	waiters  *list.List
	inUse    int
	peak     int
	created  uint64
	reaped   uint64
	timeouts uint64
	closed   bool

	stop       chan struct{}
	reaperDone chan struct{}
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	name    string
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// WithName labels the pool in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithClock overrides the time source used for idle accounting.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a pool and eagerly opens MinConnections connections. If any
// of them fails to open, the ones already opened are closed and the error
// is returned.
func New[C Conn](ctx context.Context, config Config, factory Factory[C], opts ...Option) (*Pool[C], error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if factory == nil {
		return nil, errors.New("pool factory cannot be nil")
	}

	o := options{name: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "pool")
	}

	p := &Pool[C]{
		config:        config,
		factory:       factory,
		name:          o.name,
		logger:        o.logger.With("pool", o.name),
		metrics:       o.metrics,
		now:           o.now,
		createLimiter: rate.NewLimiter(config.createLimit(), config.CreateBurst),
		all:           make(map[uint64]*Handle[C]),
		waiters:       list.New(),
		stop:          make(chan struct{}),
		reaperDone:    make(chan struct{}),
	}

	for i := 0; i < config.MinConnections; i++ {
		h, err := p.create(ctx)
		if err != nil {
			close(p.reaperDone)
			p.Close()
			return nil, fmt.Errorf("pool warm-up: %w", err)
		}
		p.mu.Lock()
		p.all[h.id] = h
		p.idle = append(p.idle, h)
		p.created++
		p.mu.Unlock()
	}

	if config.ReapInterval > 0 {
		go p.reapLoop(config.ReapInterval)
	} else {
		close(p.reaperDone)
	}

	p.logger.Info("connection pool ready",
		"min_connections", config.MinConnections,
		"max_connections", config.MaxConnections,
		"connection_timeout", config.ConnectionTimeout,
	)
	p.observe()
	return p, nil
}

// Get borrows a handle. It fails with ErrPoolTimeout after ConnectionTimeout,
// with ctx.Err() if ctx ends first, with ErrPoolClosing if the pool closes,
// and with a *BackendError if a new connection cannot be opened. A ctx
// deadline that expires in the wait queue is reported as ErrPoolTimeout
// joined with context.DeadlineExceeded.
//
// The handle must be returned with Release.
func (p *Pool[C]) Get(ctx context.Context) (*Handle[C], error) {
	start := p.now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosing
	}

	if h := p.popIdleLocked(); h != nil {
		p.lendLocked(h)
		p.mu.Unlock()
		p.observeWait(start)
		return h, nil
	}

	if len(p.all)+p.pending < p.config.MaxConnections {
		p.pending++
		p.mu.Unlock()
		h, err := p.grow(ctx)
		if err != nil {
			return nil, err
		}
		p.observeWait(start)
		return h, nil
	}

	w := &waiter[C]{ch: make(chan *Handle[C], 1), enqueuedAt: start}
	w.elem = p.waiters.PushBack(w)
	waiting := p.waiters.Len()
	p.mu.Unlock()

	p.logger.Debug("pool saturated, waiting for release", "waiting", waiting)
	p.observe()

	timer := time.NewTimer(p.config.ConnectionTimeout)
	defer timer.Stop()

	select {
	case h, ok := <-w.ch:
		if !ok {
			return nil, ErrPoolClosing
		}
		p.observeWait(start)
		return h, nil
	case <-timer.C:
		return nil, p.abandon(w, ErrPoolTimeout)
	case <-ctx.Done():
		cause := ctx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = errors.Join(ErrPoolTimeout, cause)
		}
		return nil, p.abandon(w, cause)
	}
}

// Release returns h to the pool. Releasing a handle twice, or a handle this
// pool did not lend, is logged and ignored.
func (p *Pool[C]) Release(h *Handle[C]) {
	if h == nil {
		return
	}

	p.mu.Lock()
	owned, ok := p.all[h.id]
	if !ok || owned != h || !h.inUse {
		p.mu.Unlock()
		p.logger.Warn("ignoring release of handle not on loan", "handle_id", h.id)
		return
	}

	h.inUse = false
	h.lastUsedAt = p.now()
	p.inUse--

	if p.closed {
		delete(p.all, h.id)
		p.mu.Unlock()
		p.closeConn(h)
		return
	}

	if w := p.popWaiterLocked(); w != nil {
		p.lendLocked(h)
		w.ch <- h
		p.mu.Unlock()
		p.observe()
		return
	}

	p.idle = append(p.idle, h)
	p.mu.Unlock()
	p.observe()
}

// Execute borrows a handle, runs fn with its connection and releases the
// handle on every path, including a panic in fn, which is re-raised.
func (p *Pool[C]) Execute(ctx context.Context, fn func(ctx context.Context, conn C) error) error {
	h, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(ctx, h.conn)
}

// ExecuteWithRetry runs Execute up to attempts times (MaxRetries when
// attempts <= 0), sleeping RetryDelay*attempt between tries. It does not
// retry ErrPoolClosing, ErrPoolTimeout, context errors or errors marked
// with Permanent. A saturated pool is reported after a single wait.
func (p *Pool[C]) ExecuteWithRetry(ctx context.Context, fn func(ctx context.Context, conn C) error, attempts int) error {
	if attempts <= 0 {
		attempts = p.config.MaxRetries
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.Execute(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.config.RetryDelay * time.Duration(attempt)
		p.logger.Debug("retrying pooled operation",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("pooled operation failed after %d attempts: %w", attempts, err)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrPoolClosing),
		errors.Is(err, ErrPoolTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		IsPermanent(err):
		return false
	}
	return true
}

// HealthCheck reports the pool healthy when a handle could be lent without
// waiting and the wait queue is shorter than MaxWaiters.
func (p *Pool[C]) HealthCheck(_ context.Context) Health {
	p.mu.Lock()
	closed := p.closed
	stats := p.statsLocked()
	p.mu.Unlock()

	switch {
	case closed:
		return Health{Stats: stats, Reason: "pool closed"}
	case stats.InUse >= p.config.MaxConnections && stats.Idle == 0:
		return Health{Stats: stats, Reason: fmt.Sprintf("all %d connections in use", stats.InUse)}
	case stats.Waiting >= p.config.MaxWaiters:
		return Health{Stats: stats, Reason: fmt.Sprintf("%d callers waiting", stats.Waiting)}
	}
	return Health{Healthy: true, Stats: stats}
}

// Check adapts HealthCheck to the health.CheckFunc signature.
func (p *Pool[C]) Check(ctx context.Context) error {
	if h := p.HealthCheck(ctx); !h.Healthy {
		return fmt.Errorf("pool %s unhealthy: %s", p.name, h.Reason)
	}
	return nil
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

// Close rejects every waiter with ErrPoolClosing, closes idle connections
// and stops the reaper. Handles still on loan are closed when released.
// Close is idempotent.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	for e := p.waiters.Front(); e != nil; {
		next := e.Next()
		w := p.waiters.Remove(e).(*waiter[C])
		w.elem = nil
		close(w.ch)
		e = next
	}

	idle := p.idle
	p.idle = nil
	for _, h := range idle {
		delete(p.all, h.id)
	}
	p.mu.Unlock()

	close(p.stop)
	<-p.reaperDone

	var errs []error
	for _, h := range idle {
		if err := h.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Info("connection pool closed", "closed_connections", len(idle))
	p.observe()
	return errors.Join(errs...)
}

// grow opens a connection for a slot already reserved in p.pending.
func (p *Pool[C]) grow(ctx context.Context) (*Handle[C], error) {
	h, err := p.create(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		spare := p.waiters.Len() > 0 && !p.closed
		p.mu.Unlock()
		p.metrics.creationFailed(p.name)
		p.logger.Warn("failed to open connection", "error", err)
		if spare {
			go p.growForWaiter()
		}
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		p.closeConn(h)
		return nil, ErrPoolClosing
	}
	p.all[h.id] = h
	p.created++
	p.lendLocked(h)
	p.mu.Unlock()

	p.metrics.connectionCreated(p.name)
	p.observe()
	return h, nil
}

// growForWaiter uses a slot freed by a failed creation to open a connection
// for the oldest waiter. It gives up after one attempt.
func (p *Pool[C]) growForWaiter() {
	p.mu.Lock()
	if p.closed || p.waiters.Len() == 0 || len(p.all)+p.pending >= p.config.MaxConnections {
		p.mu.Unlock()
		return
	}
	p.pending++
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.ConnectionTimeout)
	defer cancel()

	h, err := p.create(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.mu.Unlock()
		p.metrics.creationFailed(p.name)
		p.logger.Warn("failed to open connection for waiter", "error", err)
		return
	}
	if p.closed {
		p.mu.Unlock()
		p.closeConn(h)
		return
	}
	p.all[h.id] = h
	p.created++
	if w := p.popWaiterLocked(); w != nil {
		p.lendLocked(h)
		w.ch <- h
	} else {
		h.lastUsedAt = p.now()
		p.idle = append(p.idle, h)
	}
	p.mu.Unlock()

	p.metrics.connectionCreated(p.name)
	p.observe()
}

func (p *Pool[C]) create(ctx context.Context) (*Handle[C], error) {
	if err := p.createLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, p.config.ConnectionTimeout)
	defer cancel()

	conn, err := p.factory(cctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &BackendError{Op: "create", Err: err}
	}

	now := p.now()
	return &Handle[C]{
		id:         p.nextID.Add(1),
		conn:       conn,
		createdAt:  now,
		lastUsedAt: now,
	}, nil
}

// abandon removes w from the queue after a timeout or cancellation. If a
// release already handed w a handle, that handle goes back to the pool.
func (p *Pool[C]) abandon(w *waiter[C], cause error) error {
	p.mu.Lock()
	if w.elem != nil {
		p.waiters.Remove(w.elem)
		w.elem = nil
		if errors.Is(cause, ErrPoolTimeout) {
			p.timeouts++
		}
		p.mu.Unlock()
		if errors.Is(cause, ErrPoolTimeout) {
			p.metrics.timedOut(p.name)
			p.logger.Warn("timed out waiting for connection",
				"waited", p.now().Sub(w.enqueuedAt),
			)
		}
		p.observe()
		return cause
	}
	p.mu.Unlock()

	// Served or closed concurrently; ch is ready.
	if h, ok := <-w.ch; ok {
		p.Release(h)
	}
	return cause
}

func (p *Pool[C]) popIdleLocked() *Handle[C] {
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	h := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	return h
}

func (p *Pool[C]) popWaiterLocked() *waiter[C] {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := p.waiters.Remove(front).(*waiter[C])
	w.elem = nil
	return w
}

func (p *Pool[C]) lendLocked(h *Handle[C]) {
	h.inUse = true
	h.lastUsedAt = p.now()
	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
}

func (p *Pool[C]) statsLocked() Stats {
	return Stats{
		Total:     len(p.all),
		Idle:      len(p.idle),
		InUse:     p.inUse,
		Waiting:   p.waiters.Len(),
		Pending:   p.pending,
		PeakInUse: p.peak,
		Created:   p.created,
		Reaped:    p.reaped,
		Timeouts:  p.timeouts,
	}
}

func (p *Pool[C]) closeConn(h *Handle[C]) {
	if err := h.conn.Close(); err != nil {
		p.logger.Warn("error closing connection", "handle_id", h.id, "error", err)
	}
}

func (p *Pool[C]) reapLoop(interval time.Duration) {
	defer close(p.reaperDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if n := p.reap(); n > 0 {
				p.logger.Debug("reaped idle connections", "count", n)
			}
		}
	}
}

// reap closes connections idle longer than IdleTimeout, oldest first,
// without dropping below MinConnections.
func (p *Pool[C]) reap() int {
	now := p.now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	total := len(p.all) + p.pending
	kept := make([]*Handle[C], 0, len(p.idle))
	var victims []*Handle[C]
	for _, h := range p.idle {
		if total > p.config.MinConnections && now.Sub(h.lastUsedAt) > p.config.IdleTimeout {
			delete(p.all, h.id)
			victims = append(victims, h)
			total--
			continue
		}
		kept = append(kept, h)
	}
	p.idle = kept
	p.reaped += uint64(len(victims))
	p.mu.Unlock()

	for _, h := range victims {
		p.closeConn(h)
	}
	if len(victims) > 0 {
		p.metrics.connectionsReaped(p.name, len(victims))
		p.observe()
	}
	return len(victims)
}

func (p *Pool[C]) observe() {
	if p.metrics == nil {
		return
	}
	p.metrics.update(p.name, p.Stats())
}

func (p *Pool[C]) observeWait(start time.Time) {
	p.metrics.waitObserved(p.name, p.now().Sub(start))
	p.observe()
}
