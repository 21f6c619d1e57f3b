package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
)

// mockConn is a hand-rolled fake satisfying xaConn, in the style of the
// teacher's MockParticipant in two_phase_commit_test.go: a struct with
// mutex-guarded call counters and per-verb error injection, no mocking
// framework.
type mockConn struct {
	mu sync.Mutex

	startCalls    int
	endCalls      int
	prepareCalls  int
	commitCalls   int
	rollbackCalls int
	execCalls     int
	closeCalls    int

	failStart    error
	failEnd      error
	failPrepare  error
	failCommit   error
	failRollback error
	failProbe    error
	failExec     error
}

func (m *mockConn) Probe(ctx context.Context) error {
	return m.failProbe
}

func (m *mockConn) Start(ctx context.Context, branchID string) error {
	m.mu.Lock()
	m.startCalls++
	m.mu.Unlock()
	return m.failStart
}

func (m *mockConn) End(ctx context.Context, branchID string) error {
	m.mu.Lock()
	m.endCalls++
	m.mu.Unlock()
	return m.failEnd
}

func (m *mockConn) Prepare(ctx context.Context, branchID string) error {
	m.mu.Lock()
	m.prepareCalls++
	m.mu.Unlock()
	return m.failPrepare
}

func (m *mockConn) Commit(ctx context.Context, branchID string) error {
	m.mu.Lock()
	m.commitCalls++
	m.mu.Unlock()
	return m.failCommit
}

func (m *mockConn) Rollback(ctx context.Context, branchID string) error {
	m.mu.Lock()
	m.rollbackCalls++
	m.mu.Unlock()
	return m.failRollback
}

func (m *mockConn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	m.mu.Lock()
	m.execCalls++
	m.mu.Unlock()
	if m.failExec != nil {
		return nil, m.failExec
	}
	return driverResult{}, nil
}

func (m *mockConn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, fmt.Errorf("mockConn: Query not supported")
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	return nil
}

// driverResult is a trivial sql.Result for mockConn.Exec's return value.
type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 1, nil }

// newMockSession wraps a fresh mockConn in a Session for backend id.
func newMockSession(backendID string) (*Session, *mockConn) {
	conn := &mockConn{}
	backend := Backend{ID: backendID, Host: "mock", Port: 0, Database: backendID}
	return newSession(backend, conn), conn
}

// newMockRegistry builds a Registry whose pools hand out pre-seeded mock
// sessions instead of dialing real backends, using a pool stand-in that
// satisfies just enough of Registry's expectations for Transaction tests.
func newMockRegistry(backendIDs ...string) (*Registry, map[string]*mockConn) {
	cfg := DefaultTransactionConfig()
	reg := &Registry{cfg: cfg, pools: make(map[string]*Pool, len(backendIDs))}
	conns := make(map[string]*mockConn, len(backendIDs))

	for _, id := range backendIDs {
		sess, conn := newMockSession(id)
		pool := &Pool{backend: sess.backend, retries: 1, initial: 0}
		pool.idle = []*Session{sess}
		pool.liveCount = 1
		reg.pools[id] = pool
		reg.order = append(reg.order, id)
		conns[id] = conn
	}
	return reg, conns
}

// beginTransaction constructs a Transaction and begins it, failing the test
// on either step — the two-call happy path every test that isn't exercising
// Begin's own failure modes wants.
func beginTransaction(t *testing.T, registry *Registry, cfg TransactionConfig) *Transaction {
	t.Helper()
	txn, err := NewTransaction(registry, cfg, nil)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if err := txn.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return txn
}
