package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Registry owns Pools for the configured set of Backends and exposes them
// by id. Registries are shared across Transactions and are safe for
// concurrent use.
type Registry struct {
	cfg TransactionConfig

	mu    sync.RWMutex
	pools map[string]*Pool
	order []string // registry order, preserved for ordered participant lists
}

// NewRegistry builds a Registry with one Pool per backend, in the order
// given. Construction fails if any Pool cannot be created.
func NewRegistry(cfg TransactionConfig, backends ...Backend) (*Registry, error) {
	r := &Registry{
		cfg:   cfg,
		pools: make(map[string]*Pool, len(backends)),
	}
	for _, b := range backends {
		pool, err := NewPool(b, cfg.MaxRetryAttempts, cfg.RetryInterval)
		if err != nil {
			r.shutdownLocked()
			return nil, newCoordErr(ErrBackendUnavailable, b.ID, err)
		}
		r.pools[b.ID] = pool
		r.order = append(r.order, b.ID)
	}
	return r, nil
}

// BackendIDs returns the configured backend ids in registry order.
func (r *Registry) BackendIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Acquire checks out one Session from the named backend's Pool.
func (r *Registry) Acquire(ctx context.Context, backendID string) (*Session, error) {
	pool, err := r.pool(backendID)
	if err != nil {
		return nil, err
	}
	return pool.Acquire(ctx)
}

// AcquireAll checks out one Session per backend, in registry order. On
// partial failure, every already-acquired Session is released before the
// error is surfaced.
func (r *Registry) AcquireAll(ctx context.Context) ([]*Session, error) {
	ids := r.BackendIDs()
	sessions := make([]*Session, 0, len(ids))

	for _, id := range ids {
		sess, err := r.Acquire(ctx, id)
		if err != nil {
			for i, acquired := range sessions {
				r.Release(ids[i], acquired, false)
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Release returns sess to the named backend's Pool.
func (r *Registry) Release(backendID string, sess *Session, ok bool) {
	pool, err := r.pool(backendID)
	if err != nil {
		return
	}
	pool.Release(sess, ok)
}

// Query is a self-contained helper that acquires a Session, executes a
// single query, and releases the Session before returning — it is not used
// for multi-statement transactions. Rows are fetched into memory and handed
// back as one map per row (column name to value), the same dictionary shape
// original_source/database_manager.py's execute_query returns via
// cursor(dictionary=True).fetchall(), so the Session is never leaked to the
// caller past release: a *sql.Rows returned alongside a released Session
// would hand a concurrent Acquire the same physical connection the caller is
// still reading from.
func (r *Registry) Query(ctx context.Context, backendID, query string, args ...any) ([]map[string]any, error) {
	sess, err := r.Acquire(ctx, backendID)
	if err != nil {
		return nil, err
	}
	rows, queryErr := sess.Query(ctx, query, args...)
	if queryErr != nil {
		r.Release(backendID, sess, false)
		return nil, fmt.Errorf("query against %s: %w", backendID, queryErr)
	}
	result, scanErr := scanRows(rows)
	closeErr := rows.Close()
	r.Release(backendID, sess, scanErr == nil && closeErr == nil)
	if scanErr != nil {
		return nil, fmt.Errorf("query against %s: %w", backendID, scanErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("query against %s: %w", backendID, closeErr)
	}
	return result, nil
}

// scanRows materializes every row of rows into a column-name-keyed map
// before the underlying connection is released back to its pool.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// BackendStatus is the per-backend availability view Status() returns.
type BackendStatus struct {
	Available bool
	LastProbe time.Time
	Host      string
	Port      int
	Database  string
}

// Status returns, for each configured backend, its availability, last probe
// time, host, port and database.
func (r *Registry) Status(ctx context.Context) map[string]BackendStatus {
	ids := r.BackendIDs()
	out := make(map[string]BackendStatus, len(ids))

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		pool := r.pools[id]
		out[id] = BackendStatus{
			Available: pool.Probe(ctx),
			LastProbe: pool.LastProbeAt(),
			Host:      pool.backend.Host,
			Port:      pool.backend.Port,
			Database:  pool.backend.Database,
		}
	}
	return out
}

// Shutdown drains all Pools.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdownLocked()
}

func (r *Registry) shutdownLocked() {
	for _, pool := range r.pools {
		pool.Drain()
	}
}

func (r *Registry) pool(backendID string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[backendID]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", backendID)
	}
	return pool, nil
}
