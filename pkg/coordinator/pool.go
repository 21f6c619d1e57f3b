package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mnohosten/ddbs-coordinator/internal/retry"
	"github.com/mnohosten/ddbs-coordinator/pkg/coordinator/xadriver"
)

const probeCacheWindow = 30 * time.Second

// Pool is a bounded set of Sessions for one Backend. It enforces
// |loaned| + |idle| <= capacity, recreates the underlying connection pool
// between failed acquire attempts, and caches health-probe results for 30
// seconds.
type Pool struct {
	backend Backend
	retries int
	initial time.Duration

	mu        sync.Mutex
	db        *sql.DB
	idle      []*Session
	liveCount int

	probeMu   sync.Mutex
	lastProbe time.Time
	available bool
}

// NewPool creates a Pool for backend. retries and initial back off mirror
// MAX_RETRY_ATTEMPTS / RETRY_INTERVAL.
func NewPool(backend Backend, retries int, initial time.Duration) (*Pool, error) {
	if retries < 1 {
		retries = 3
	}
	if initial <= 0 {
		initial = time.Second
	}
	p := &Pool{backend: backend, retries: retries, initial: initial}
	if err := p.recreate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) recreate() error {
	db, err := xadriver.Open(p.backend.DSN())
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(p.backend.PoolSize)
	db.SetMaxIdleConns(p.backend.PoolSize)

	p.mu.Lock()
	old := p.db
	p.db = db
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Acquire takes an idle Session, or creates one while capacity allows, making
// up to p.retries attempts bounded by the backend's connection timeout and
// recreating the connection pool with exponential backoff between them. An
// attempt made at capacity fails at once; Acquire does not wait for a loaned
// Session to be released. The returned Session has already passed a
// SELECT 1 probe.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.backend.ConnectionTimeout)
	defer cancel()

	backoff := retry.New(p.initial)
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		sess, err := p.acquireOnce(ctx)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if attempt < p.retries {
			_ = p.recreate()
			if sleepErr := retry.Sleep(ctx, backoff.Next()); sleepErr != nil {
				return nil, newCoordErr(ErrBackendUnavailable, p.backend.ID, sleepErr)
			}
		}
	}
	return nil, newCoordErr(ErrBackendUnavailable, p.backend.ID, lastErr)
}

func (p *Pool) acquireOnce(ctx context.Context) (*Session, error) {
	if sess := p.popIdle(); sess != nil {
		if err := sess.Probe(ctx); err == nil {
			return sess, nil
		}
		p.discard(sess)
		// fall through to create a fresh session, the "retries once" clause.
	}

	p.mu.Lock()
	if p.liveCount >= p.backend.PoolSize {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool for %s at capacity (%d)", p.backend.ID, p.backend.PoolSize)
	}
	p.liveCount++
	db := p.db
	p.mu.Unlock()

	conn, err := xadriver.Acquire(ctx, db)
	if err != nil {
		p.mu.Lock()
		p.liveCount--
		p.mu.Unlock()
		return nil, err
	}

	sess := newSession(p.backend, conn)
	if err := sess.Probe(ctx); err != nil {
		// Transparently retry once with a fresh connection.
		_ = conn.Close()
		conn2, err2 := xadriver.Acquire(ctx, db)
		if err2 != nil {
			p.mu.Lock()
			p.liveCount--
			p.mu.Unlock()
			return nil, err2
		}
		sess = newSession(p.backend, conn2)
		if err3 := sess.Probe(ctx); err3 != nil {
			_ = conn2.Close()
			p.mu.Lock()
			p.liveCount--
			p.mu.Unlock()
			return nil, err3
		}
	}

	return sess, nil
}

func (p *Pool) popIdle() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		return nil
	}
	sess := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return sess
}

func (p *Pool) discard(sess *Session) {
	_ = sess.close()
	p.mu.Lock()
	if p.liveCount > 0 {
		p.liveCount--
	}
	p.mu.Unlock()
}

// Release returns sess to the idle set when ok is true; otherwise it
// discards the session and decrements the live count.
func (p *Pool) Release(sess *Session, ok bool) {
	if sess == nil {
		return
	}
	if !ok {
		p.discard(sess)
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, sess)
	p.mu.Unlock()
}

// Probe performs at most one health check per 30 seconds; the cached result
// is returned in between. Marks the backend unavailable on failure.
func (p *Pool) Probe(ctx context.Context) bool {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()

	if time.Since(p.lastProbe) < probeCacheWindow {
		return p.available
	}

	sess, err := p.acquireOnce(ctx)
	p.lastProbe = time.Now()
	if err != nil {
		p.available = false
		return false
	}
	p.Release(sess, true)
	p.available = true
	return true
}

// Drain discards all idle Sessions; live loans survive to their release.
func (p *Pool) Drain() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, sess := range idle {
		_ = sess.close()
		p.mu.Lock()
		if p.liveCount > 0 {
			p.liveCount--
		}
		p.mu.Unlock()
	}
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Capacity  int
	Live      int
	Idle      int
	Available bool
}

// Stats returns the pool's current occupancy and last-known availability.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	live, idle := p.liveCount, len(p.idle)
	p.mu.Unlock()

	p.probeMu.Lock()
	available := p.available
	p.probeMu.Unlock()

	return Stats{Capacity: p.backend.PoolSize, Live: live, Idle: idle, Available: available}
}

// LastProbeAt returns the timestamp of the most recent health probe.
func (p *Pool) LastProbeAt() time.Time {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()
	return p.lastProbe
}
